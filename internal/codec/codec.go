// Package codec maps absolute target URLs into the proxy's own URL space
// and back.
//
// Two encodings coexist. The path scheme embeds the percent-encoded target as
// a single path segment (/ric/proxy/<segment>); the query scheme carries it as
// the url query value (/api/proxy?url=<value>). Both use the same
// component encoding, so a ProxyPath is always Prefix + EncodeComponent(url).
package codec

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrEmptyTarget is returned when a request carries no target URL.
	ErrEmptyTarget = errors.New("target URL is empty")
	// ErrInvalidTarget is returned when the target cannot be decoded or parsed.
	ErrInvalidTarget = errors.New("invalid target URL")
)

// Scheme is one way of embedding a target URL in a proxy URL.
type Scheme struct {
	// Prefix is prepended to the encoded target.
	Prefix string
	// Param names the query parameter that holds the target; empty for the
	// path scheme.
	Param string
}

var (
	// PathScheme serves /ric/proxy/<percent-encoded url>.
	PathScheme = Scheme{Prefix: "/ric/proxy/"}
	// QueryScheme serves /api/proxy?url=<url>.
	QueryScheme = Scheme{Prefix: "/api/proxy?url=", Param: "url"}
)

// Encode returns the ProxyPath for an absolute URL.
func (s Scheme) Encode(target string) string {
	return s.Prefix + EncodeComponent(target)
}

// Owns reports whether value already points into this scheme's URL space.
func (s Scheme) Owns(value string) bool {
	return strings.HasPrefix(value, s.Prefix)
}

// Decode recovers the raw target string from an inbound request URL. The
// result still needs Normalize before it can be fetched.
//
// For the path scheme, a query string on the proxy URL itself belongs to the
// target (plain form submissions produce /ric/proxy/<segment>?a=b) and is
// appended to it.
func (s Scheme) Decode(u *url.URL) (string, error) {
	if s.Param != "" {
		v := u.Query().Get(s.Param)
		if strings.TrimSpace(v) == "" {
			return "", ErrEmptyTarget
		}
		return v, nil
	}

	p := u.EscapedPath()
	if !strings.HasPrefix(p, s.Prefix) {
		return "", fmt.Errorf("%w: path %q is outside %s", ErrInvalidTarget, p, s.Prefix)
	}
	segment := strings.TrimPrefix(p, s.Prefix)
	if segment == "" {
		return "", ErrEmptyTarget
	}

	target, err := DecodeComponent(segment)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if u.RawQuery != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + u.RawQuery
	}
	return target, nil
}

// EncodeComponent percent-encodes s with the same rules as JavaScript's
// encodeURIComponent, so that server-side and injected client-side encodings
// agree byte for byte.
func EncodeComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

// DecodeComponent reverses EncodeComponent. A literal '+' stays a '+'.
func DecodeComponent(s string) (string, error) {
	return url.PathUnescape(s)
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

// Normalize turns a decoded target into a fetchable absolute URL. A missing
// scheme defaults to https; schemes other than http and https are rejected.
func Normalize(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyTarget
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
	case strings.HasPrefix(raw, "//"):
		raw = "https:" + raw
	default:
		if i := strings.Index(raw, "://"); i > 0 && !strings.ContainsAny(raw[:i], "/?#.") {
			return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, raw[:i])
		}
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidTarget, raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u, nil
}

// SameHost reports whether target points at requestHost, the Host header of
// the inbound request. Comparison ignores case and default ports.
func SameHost(target *url.URL, requestHost string) bool {
	if requestHost == "" {
		return false
	}
	return canonicalHost(target.Host) == canonicalHost(requestHost)
}

func canonicalHost(hostport string) string {
	hostport = strings.ToLower(strings.TrimSuffix(hostport, "."))
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return strings.Trim(hostport, "[]")
	}
	host = strings.TrimSuffix(host, ".")
	if port == "" || port == "80" || port == "443" {
		return host
	}
	return net.JoinHostPort(host, port)
}
