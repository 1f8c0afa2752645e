package rewrite

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"text/template"
)

//go:embed interceptor.js.tmpl
var interceptorSource string

var interceptorTmpl = template.Must(template.New("interceptor").Parse(interceptorSource))

type interceptorData struct {
	Prefix      string
	PageURL     string
	PostMessage bool
}

// renderInterceptor renders the navigation interceptor for one response.
// String values are JSON literals; json.Marshal escapes <, > and & so they
// cannot close the surrounding script element.
func renderInterceptor(rc Context) (string, error) {
	prefix, err := json.Marshal(rc.Strategy.Scheme.Prefix)
	if err != nil {
		return "", fmt.Errorf("encode prefix: %w", err)
	}
	pageURL, err := json.Marshal(rc.Base.String())
	if err != nil {
		return "", fmt.Errorf("encode page url: %w", err)
	}

	var buf bytes.Buffer
	err = interceptorTmpl.Execute(&buf, interceptorData{
		Prefix:      string(prefix),
		PageURL:     string(pageURL),
		PostMessage: rc.Strategy.PostMessage,
	})
	if err != nil {
		return "", fmt.Errorf("render interceptor: %w", err)
	}
	return buf.String(), nil
}
