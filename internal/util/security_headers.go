package util

import (
	"net/http"
	"strings"
)

const (
	apiCSP  = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'"
	siteCSP = "default-src 'self'; img-src * data:; style-src 'self' 'unsafe-inline'; script-src 'none'; frame-ancestors 'none'; base-uri 'none'"
)

// PublicSitePrefix is the path prefix of published website pages. Those
// responses are HTML and get a content policy that allows inline styles and
// remote images; everything else is treated as JSON API output.
const PublicSitePrefix = "/sites/"

// WithSecurityHeaders adds security response headers.
func WithSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")
		if strings.HasPrefix(r.URL.Path, PublicSitePrefix) {
			w.Header().Set("Content-Security-Policy", siteCSP)
		} else {
			w.Header().Set("Content-Security-Policy", apiCSP)
		}

		// HSTS only over HTTPS (direct or forwarded).
		if r.TLS != nil || strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https") {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
