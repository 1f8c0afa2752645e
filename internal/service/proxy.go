// Package service implements the proxy pipeline and the JSON API backends.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"net/url"
	"strings"

	"xivi-server/internal/client"
	"xivi-server/internal/codec"
	"xivi-server/internal/config"
	"xivi-server/internal/metrics"
	"xivi-server/internal/model"
)

// ErrForbiddenTarget is returned when private-network blocking rejects a target.
var ErrForbiddenTarget = errors.New("target address is not allowed")

// LoopError reports a target that points back at the serving host. Local is
// the equivalent path on this server.
type LoopError struct {
	Local string
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("target points back at this server (%s)", e.Local)
}

// blockedHostnames are rejected alongside private IP literals.
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
}

// Fetcher retrieves upstream pages. *client.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, fr *model.FetchRequest) (*model.FetchResult, error)
}

// ProxyService turns a decoded target into a fetched upstream response.
type ProxyService struct {
	fetcher      Fetcher
	blockPrivate bool
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewProxyService creates a ProxyService.
// The metrics parameter is optional; pass nil to disable recording.
func NewProxyService(f *client.Fetcher, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	return NewProxyServiceForTest(f, cfg, logger, m)
}

// NewProxyServiceForTest creates a ProxyService around any Fetcher.
// This is intended only for tests that substitute canned upstream responses.
func NewProxyServiceForTest(f Fetcher, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	return &ProxyService{
		fetcher:      f,
		blockPrivate: cfg.Proxy.BlockPrivateNetworks,
		logger:       logger.With("component", "proxy_service"),
		metrics:      m,
	}
}

// Open normalizes raw into a TargetURL, applies the loop guard and the
// optional private-network check, and fetches it. requestHost is the Host
// the browser used to reach this server.
//
// Normalization failures wrap codec.ErrEmptyTarget or codec.ErrInvalidTarget.
// A target on the serving host yields *LoopError and is never fetched. The
// caller must close the returned body.
func (s *ProxyService) Open(ctx context.Context, raw, requestHost string, header http.Header) (*model.FetchResult, error) {
	target, err := codec.Normalize(raw)
	if err != nil {
		return nil, err
	}

	if codec.SameHost(target, requestHost) {
		if s.metrics != nil {
			s.metrics.LoopsBlocked.Inc()
		}
		s.logger.Warn("proxy loop blocked", "host", target.Host)
		return nil, &LoopError{Local: target.RequestURI()}
	}

	if s.blockPrivate && isPrivateTarget(target) {
		s.logger.Warn("private target blocked", "host", target.Host)
		return nil, fmt.Errorf("%w: %s", ErrForbiddenTarget, target.Hostname())
	}

	res, err := s.fetcher.Fetch(ctx, &model.FetchRequest{
		Target:         target,
		AcceptLanguage: header.Get("Accept-Language"),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target.Host, err)
	}
	return res, nil
}

// isPrivateTarget reports whether u names a loopback, private, link-local or
// unspecified address literal, or a well-known local hostname.
func isPrivateTarget(u *url.URL) bool {
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if blockedHostnames[host] || strings.HasSuffix(host, ".localhost") {
		return true
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsUnspecified()
}
