package rewrite

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"xivi-server/internal/codec"
)

// urlAttrs are the attributes whose values are routed back through the proxy.
var urlAttrs = map[string]bool{
	"href":   true,
	"src":    true,
	"action": true,
}

// skippedPrefixes mark attribute values that are not navigations or fetches.
var skippedPrefixes = []string{"#", "javascript:", "data:", "mailto:", "tel:", "blob:", "about:"}

// RewriteHTML rewrites href, src and action attributes in src to ProxyPaths,
// optionally inserts a <base> tag after <head>, and inserts the navigation
// interceptor before the first </body>.
//
// The document is tokenized, not parsed into a tree: every token that is not
// rewritten is copied byte for byte from the input, so malformed markup passes
// through unchanged. A document without </body> gets no script.
func RewriteHTML(src []byte, rc Context) ([]byte, error) {
	script, err := renderInterceptor(rc)
	if err != nil {
		return nil, err
	}

	w := &htmlWriter{
		rc:     rc,
		base:   rc.Base,
		prefix: rc.proxyPrefix(),
	}
	w.out.Grow(len(src) + len(script) + 256)

	z := html.NewTokenizer(bytes.NewReader(src))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// Raw holds any unterminated trailing tag.
			w.out.Write(z.Raw())
			break
		}

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			raw := append([]byte(nil), z.Raw()...)
			w.startTag(z, raw, tt == html.SelfClosingTagToken)
		case html.EndTagToken:
			raw := append([]byte(nil), z.Raw()...)
			name, _ := z.TagName()
			if !w.scriptDone && string(name) == "body" {
				w.out.WriteString(script)
				w.scriptDone = true
			}
			w.out.Write(raw)
		default:
			w.out.Write(z.Raw())
		}
	}

	return w.out.Bytes(), nil
}

type htmlWriter struct {
	out        bytes.Buffer
	rc         Context
	base       *url.URL
	prefix     string
	baseDone   bool
	scriptDone bool
}

func (w *htmlWriter) startTag(z *html.Tokenizer, raw []byte, selfClosing bool) {
	nameBytes, hasAttr := z.TagName()
	name := string(nameBytes)

	var attrs []html.Attribute
	changed := false
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		a := html.Attribute{Key: string(key), Val: string(val)}
		if name == "base" && a.Key == "href" {
			// A document <base> moves the resolution base, and is itself
			// proxied so the browser keeps resolving inside the proxy.
			rewritten, ok := w.rewriteValue(a.Val)
			if u, err := w.base.Parse(strings.TrimSpace(a.Val)); err == nil {
				w.base = u
			}
			if ok {
				a.Val = rewritten
				changed = true
			}
		} else if urlAttrs[a.Key] {
			if rewritten, ok := w.rewriteValue(a.Val); ok {
				a.Val = rewritten
				changed = true
			}
		}
		attrs = append(attrs, a)
	}

	if changed {
		writeTag(&w.out, name, attrs, selfClosing)
	} else {
		w.out.Write(raw)
	}

	if name == "head" && w.rc.Strategy.InjectBase && !w.baseDone {
		fmt.Fprintf(&w.out, `<base href="%s/">`, html.EscapeString(origin(w.rc.Base)))
		w.baseDone = true
	}
}

// rewriteValue returns the ProxyPath for an attribute value, or false when
// the value must be left untouched.
func (w *htmlWriter) rewriteValue(val string) (string, bool) {
	v := strings.TrimSpace(val)
	if v == "" {
		return "", false
	}
	lower := strings.ToLower(v)
	for _, p := range skippedPrefixes {
		if strings.HasPrefix(lower, p) {
			return "", false
		}
	}
	if strings.HasPrefix(v, w.prefix) || w.rc.Strategy.Scheme.Owns(v) {
		return "", false
	}

	ref, err := url.Parse(v)
	if err != nil {
		return "", false
	}
	abs := w.base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	return w.prefix + codec.EncodeComponent(abs.String()), true
}

func writeTag(buf *bytes.Buffer, name string, attrs []html.Attribute, selfClosing bool) {
	buf.WriteByte('<')
	buf.WriteString(name)
	for _, a := range attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.Key)
		buf.WriteString(`="`)
		buf.WriteString(html.EscapeString(a.Val))
		buf.WriteByte('"')
	}
	if selfClosing {
		buf.WriteString("/>")
	} else {
		buf.WriteByte('>')
	}
}

func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}
