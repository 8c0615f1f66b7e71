package middleware

import (
	"net/http"
	"strings"
)

// Normalize standardizes request fields coming through proxies (Vercel/Cloudflare)
//   - Trims whitespace around URL.Path and a trailing slash on /api routes, so
//     "/api/clients/getAll/" resolves like "/api/clients/getAll"
//   - Restores scheme/host from forwarding headers for logs and magic-link URLs
func Normalize() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := strings.TrimSpace(r.URL.Path)
			if strings.HasPrefix(p, "/api/") && len(p) > len("/api/") {
				p = strings.TrimSuffix(p, "/")
			}
			r.URL.Path = p

			if xfproto := r.Header.Get("X-Forwarded-Proto"); xfproto != "" {
				r.URL.Scheme = xfproto
			}
			if xfhost := r.Header.Get("X-Forwarded-Host"); xfhost != "" {
				r.Host = xfhost
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestScheme returns the scheme the client used, honoring Normalize
func RequestScheme(r *http.Request) string {
	if r.URL.Scheme != "" {
		return r.URL.Scheme
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
