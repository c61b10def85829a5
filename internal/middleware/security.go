package middleware

import (
	"net/http"

	"github.com/unrolled/secure"
)

// SecurityHeaders sets the standard hardening headers. HTTPS redirects are
// only enforced in production, behind a proxy that reports the scheme.
func SecurityHeaders(isProduction bool) func(http.Handler) http.Handler {
	sec := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        isProduction,
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:      !isProduction,
	})
	return sec.Handler
}
