// Package model defines request-scoped types shared by the proxy pipeline.
package model

import (
	"io"
	"net/url"
)

// FetchRequest describes one upstream GET issued on behalf of a browser.
type FetchRequest struct {
	Target         *url.URL
	AcceptLanguage string
}

// FetchResult is the upstream response handed to the rewriter. It lives for
// a single request; the consumer must close Body.
type FetchResult struct {
	StatusCode  int
	ContentType string
	FinalURL    *url.URL
	Body        io.ReadCloser

	// StopDeadline, when set, lifts the fetch timeout from the remaining
	// body reads. Streaming consumers call it once headers are committed.
	StopDeadline func()
}
