package rewrite

import (
	"net/url"

	"xivi-server/internal/codec"
)

// Strategy selects how a proxied page navigates. It is the only difference
// between the /ric/proxy and /api/proxy variants.
type Strategy struct {
	// Name labels metrics and logs.
	Name string
	// Scheme encodes target URLs into ProxyPaths.
	Scheme codec.Scheme
	// PostMessage makes the interceptor hand navigations to the embedding
	// window instead of assigning window.location.
	PostMessage bool
	// InjectBase inserts <base href="{origin}/"> after <head>. ProxyPaths
	// are then written with the proxy origin so the base cannot capture them.
	InjectBase bool
}

var (
	// RedirectStrategy serves top-level browsing under /ric/proxy/.
	RedirectStrategy = Strategy{
		Name:   "redirect",
		Scheme: codec.PathScheme,
	}
	// MessageStrategy serves sandboxed iframes under /api/proxy.
	MessageStrategy = Strategy{
		Name:        "message",
		Scheme:      codec.QueryScheme,
		PostMessage: true,
		InjectBase:  true,
	}
)

// Context carries the per-response inputs of a rewrite.
type Context struct {
	// Base is the final fetched URL; relative references resolve against it.
	Base *url.URL
	// ProxyOrigin is this server's scheme://host as seen by the browser.
	ProxyOrigin string
	Strategy    Strategy
}

// proxyPrefix is the string every rewritten URL starts with.
func (rc Context) proxyPrefix() string {
	if rc.Strategy.InjectBase {
		return rc.ProxyOrigin + rc.Strategy.Scheme.Prefix
	}
	return rc.Strategy.Scheme.Prefix
}
