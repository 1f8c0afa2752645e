package rewrite

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		contentType string
		want        Kind
	}{
		{"image/png", KindBinary},
		{"IMAGE/SVG+XML", KindBinary},
		{"application/octet-stream", KindBinary},
		{"text/html", KindHTML},
		{"text/html; charset=utf-8", KindHTML},
		{"Text/HTML;charset=ISO-8859-1", KindHTML},
		{"application/json", KindPassthrough},
		{"text/css", KindPassthrough},
		{"application/javascript", KindPassthrough},
		{"application/xhtml+xml", KindPassthrough},
		{"", KindPassthrough},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			if got := Classify(tt.contentType); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.contentType, got, tt.want)
			}
		})
	}
}

func TestKind_String(t *testing.T) {
	for k, want := range map[Kind]string{
		KindBinary:      "binary",
		KindHTML:        "html",
		KindPassthrough: "passthrough",
	} {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(k), got, want)
		}
	}
}
