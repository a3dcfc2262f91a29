package middleware

import (
	"crypto/subtle"
	"net/http"
)

const WebhookTokenHeader = "X-Webhook-Token"

// WebhookToken rejects requests that do not carry the shared secret. An empty
// token disables the check.
func WebhookToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := []byte(token)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(WebhookTokenHeader))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
