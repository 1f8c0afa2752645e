// Package rewrite turns fetched upstream responses into proxied responses:
// HTML is rewritten so navigation stays inside the proxy, everything else is
// streamed through unmodified.
package rewrite

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"xivi-server/internal/config"
	"xivi-server/internal/metrics"
	"xivi-server/internal/model"
)

var (
	// ErrNoBody is returned when a binary response arrives without a body.
	ErrNoBody = errors.New("upstream response has no body")
	// ErrBodyTooLarge is returned when an HTML body exceeds proxy.max_html_bytes.
	ErrBodyTooLarge = errors.New("html body exceeds size limit")
)

// Rewriter writes fetched responses back to the client.
type Rewriter struct {
	maxHTML int64
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRewriter creates a Rewriter.
// The metrics parameter is optional; pass nil to disable recording.
func NewRewriter(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Rewriter {
	return &Rewriter{
		maxHTML: cfg.Proxy.MaxHTMLBytes,
		logger:  logger.With("component", "rewriter"),
		metrics: m,
	}
}

// Rewrite dispatches res on its content type and writes the result to w.
//
// An error is returned only while nothing has been written yet, so the
// caller can still answer with an error status. Failures during streaming
// are logged instead. The caller keeps ownership of res.Body.
func (r *Rewriter) Rewrite(w http.ResponseWriter, res *model.FetchResult, rc Context) error {
	kind := Classify(res.ContentType)
	if r.metrics != nil {
		r.metrics.RewritesTotal.WithLabelValues(rc.Strategy.Name, kind.String()).Inc()
	}

	switch kind {
	case KindHTML:
		return r.writeHTML(w, res, rc)
	case KindBinary:
		if res.Body == nil {
			return ErrNoBody
		}
	}
	r.stream(w, res)
	return nil
}

func (r *Rewriter) writeHTML(w http.ResponseWriter, res *model.FetchResult, rc Context) error {
	var src []byte
	if res.Body != nil {
		var err error
		src, err = readLimited(res.Body, r.maxHTML)
		if err != nil {
			return err
		}
	}

	out, err := RewriteHTML(src, rc)
	if err != nil {
		return fmt.Errorf("rewrite html: %w", err)
	}

	h := w.Header()
	h.Set("Content-Type", res.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(out)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out); err != nil {
		r.logger.Warn("writing rewritten html", "err", err, "host", rc.Base.Host)
	}
	return nil
}

func (r *Rewriter) stream(w http.ResponseWriter, res *model.FetchResult) {
	if res.ContentType != "" {
		w.Header().Set("Content-Type", res.ContentType)
	}
	w.WriteHeader(http.StatusOK)
	if res.Body == nil {
		return
	}
	if res.StopDeadline != nil {
		res.StopDeadline()
	}

	// Headers are already sent, so a failed copy leaves the client with a
	// truncated body under a 200 status. Log it and move on.
	if _, err := io.Copy(w, res.Body); err != nil {
		r.logger.Error("streaming response body", "err", err, "content_type", res.ContentType)
	}
}

func readLimited(body io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("read html body: %w", err)
		}
		return b, nil
	}
	b, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read html body: %w", err)
	}
	if int64(len(b)) > limit {
		return nil, ErrBodyTooLarge
	}
	return b, nil
}
