package security

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSetSecurityHeaders(t *testing.T) {
	tests := []struct {
		name     string
		issuer   string
		wantHSTS bool
	}{
		{
			name:     "HTTPS issuer",
			issuer:   "https://auth.example.com",
			wantHSTS: true,
		},
		{
			name:     "HTTP issuer",
			issuer:   "http://localhost:3000",
			wantHSTS: false,
		},
		{
			name:     "empty issuer",
			issuer:   "",
			wantHSTS: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SetSecurityHeaders(w, tt.issuer)

			want := map[string]string{
				"X-Frame-Options":         "DENY",
				"X-Content-Type-Options":  "nosniff",
				"Referrer-Policy":         "no-referrer",
				"Cache-Control":           "no-store",
				"Pragma":                  "no-cache",
				"Content-Security-Policy": apiContentSecurityPolicy,
			}
			for header, value := range want {
				if got := w.Header().Get(header); got != value {
					t.Errorf("%s = %q, want %q", header, got, value)
				}
			}

			hsts := w.Header().Get("Strict-Transport-Security")
			if tt.wantHSTS && hsts == "" {
				t.Error("Strict-Transport-Security should be set for HTTPS")
			}
			if !tt.wantHSTS && hsts != "" {
				t.Errorf("Strict-Transport-Security should not be set, got %q", hsts)
			}
		})
	}
}

func TestSetConsentPageHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SetConsentPageHeaders(w, "http://localhost:3000")

	csp := w.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "style-src 'unsafe-inline'") {
		t.Errorf("consent CSP should allow inline styles, got %q", csp)
	}
	if strings.Contains(csp, "script-src") {
		t.Errorf("consent CSP should not allow scripts, got %q", csp)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}
