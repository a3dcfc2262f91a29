package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS lets the web app call the JSON API. Webhooks are server-to-server
// and never need it.
func CORS(origins []string, credentials bool) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: credentials,
		MaxAge:           600,
	})
}
