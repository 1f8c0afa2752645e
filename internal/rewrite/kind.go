package rewrite

import "strings"

// Kind is the handling chosen for an upstream response body.
type Kind int

const (
	// KindPassthrough streams the body unmodified.
	KindPassthrough Kind = iota
	// KindBinary streams the body unmodified and requires one to exist.
	KindBinary
	// KindHTML buffers the body and rewrites it.
	KindHTML
)

func (k Kind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindHTML:
		return "html"
	default:
		return "passthrough"
	}
}

// Classify maps a Content-Type header value to a Kind. The first matching
// rule wins: image/* and application/octet-stream are binary, anything
// containing text/html is HTML, everything else passes through.
func Classify(contentType string) Kind {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "image/"), strings.HasPrefix(ct, "application/octet-stream"):
		return KindBinary
	case strings.Contains(ct, "text/html"):
		return KindHTML
	default:
		return KindPassthrough
	}
}
