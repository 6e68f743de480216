package security

import (
	"net/http"
	"strings"
)

const (
	// apiContentSecurityPolicy is applied to JSON and redirect responses.
	apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

	// consentContentSecurityPolicy allows the consent page's inline stylesheet.
	// form-action is left open because the POST answers with a redirect to the
	// client's registered callback.
	consentContentSecurityPolicy = "default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none'"
)

// SetSecurityHeaders sets the headers every OAuth endpoint response carries.
// HSTS is only sent when the issuer is served over HTTPS.
func SetSecurityHeaders(w http.ResponseWriter, issuer string) {
	setCommonHeaders(w, issuer)
	w.Header().Set("Content-Security-Policy", apiContentSecurityPolicy)
}

// SetConsentPageHeaders is SetSecurityHeaders for the HTML consent page.
func SetConsentPageHeaders(w http.ResponseWriter, issuer string) {
	setCommonHeaders(w, issuer)
	w.Header().Set("Content-Security-Policy", consentContentSecurityPolicy)
}

func setCommonHeaders(w http.ResponseWriter, issuer string) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")

	if strings.HasPrefix(strings.ToLower(issuer), "https://") {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
}
