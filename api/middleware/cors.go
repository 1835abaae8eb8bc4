package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS returns the API's cross-origin policy. Browser clients live on other
// origins, so the policy is permissive: any origin, the standard verb set.
func CORS() func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler
}
