// Package client provides the upstream HTTP clients: the page fetcher used
// by the rewriting proxy and the JSON client used by the API passthroughs.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"xivi-server/internal/config"
	"xivi-server/internal/metrics"
	"xivi-server/internal/model"
)

// maxRedirects bounds how many upstream redirects a single fetch follows.
const maxRedirects = 10

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d for %s", e.StatusCode, e.URL)
}

// Fetcher performs the single upstream GET behind every proxied page.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewFetcher creates a Fetcher with connection pooling, a redirect cap and
// the configured per-request timeout.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewFetcher(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Fetcher {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Proxy.IdleConnections,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Fetcher{
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent: cfg.Proxy.UserAgent,
		timeout:   time.Duration(cfg.Proxy.TimeoutSeconds) * time.Second,
		logger:    logger.With("component", "fetcher"),
		metrics:   m,
	}
}

// Fetch retrieves fr.Target. Redirects are followed by the transport and
// the URL that finally answered is reported in FetchResult.FinalURL. The
// body is always delivered identity-encoded.
//
// The timeout covers the exchange up to response headers and keeps running
// over body reads until FetchResult.StopDeadline is called. A timeout is
// reported as context.DeadlineExceeded. The caller is responsible for
// closing FetchResult.Body.
func (f *Fetcher) Fetch(ctx context.Context, fr *model.FetchRequest) (*model.FetchResult, error) {
	ctx, cancelCause := context.WithCancelCause(ctx)
	var timer *time.Timer
	if f.timeout > 0 {
		timer = time.AfterFunc(f.timeout, func() { cancelCause(context.DeadlineExceeded) })
	}
	stopDeadline := func() {
		if timer != nil {
			timer.Stop()
		}
	}
	cancel := func() {
		stopDeadline()
		cancelCause(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fr.Target.String(), http.NoBody)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", acceptEncoding)
	if fr.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", fr.AcceptLanguage)
	} else {
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	}

	f.logger.Debug("upstream fetch", "host", fr.Target.Host)

	start := time.Now()
	resp, err := f.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via FetchResult
	f.observe(time.Since(start), resp)
	if err != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) {
			err = fmt.Errorf("%w: %w", cause, err)
		}
		cancel()
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		cancel()
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: resp.Request.URL.String()}
	}

	body, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("decode upstream body: %w", err)
	}

	return &model.FetchResult{
		StatusCode:   resp.StatusCode,
		ContentType:  resp.Header.Get("Content-Type"),
		FinalURL:     resp.Request.URL,
		Body:         &cancelCloser{ReadCloser: body, cancel: cancel},
		StopDeadline: stopDeadline,
	}, nil
}

func (f *Fetcher) observe(d time.Duration, resp *http.Response) {
	if f.metrics == nil {
		return
	}
	f.metrics.UpstreamDuration.WithLabelValues("fetcher", http.MethodGet).Observe(d.Seconds())
	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	f.metrics.UpstreamResponses.WithLabelValues("fetcher", http.MethodGet, status).Inc()
}
