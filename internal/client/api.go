package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"xivi-server/internal/config"
	"xivi-server/internal/metrics"
)

// maxAPIResponseBytes caps how much of an upstream API response is read.
const maxAPIResponseBytes = 8 << 20

// APIClient talks JSON to the third-party APIs behind /api/music and /api/chat.
type APIClient struct {
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewAPIClient creates an APIClient sharing one pooled transport. Deadlines
// come from the caller's context because chat completions and music lookups
// need very different budgets.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewAPIClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *APIClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &APIClient{
		httpClient: &http.Client{Transport: transport},
		userAgent: cfg.Proxy.UserAgent,
		logger:    logger.With("component", "api_client"),
		metrics:   m,
	}
}

// GetJSON issues a GET and decodes a 2xx JSON response into out.
func (c *APIClient) GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// PostJSON sends in as a JSON body and returns the raw 2xx response body.
// header entries are added to the request.
func (c *APIClient) PostJSON(ctx context.Context, url string, header http.Header, in any) ([]byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req)
}

// do executes req and returns the body of a 2xx response. Non-2xx responses
// yield an *APIError carrying a bounded excerpt of the upstream body.
func (c *APIClient) do(req *http.Request) ([]byte, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Debug("upstream api request", "method", req.Method, "host", req.URL.Host, "path", req.URL.Path)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)
	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues("api", method).Observe(duration)
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamResponses.WithLabelValues("api", method, "error").Inc()
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues("api", method, strconv.Itoa(resp.StatusCode)).Inc()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: excerpt(body)}
	}
	return body, nil
}

// APIError reports a non-2xx response from a JSON API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream api returned status %d: %s", e.StatusCode, e.Body)
}

func excerpt(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
