package middleware

import (
	"net/http"

	"github.com/rpattn/yoda/internal/entityloader"
	"github.com/rpattn/yoda/internal/repository"
)

// DataLoaderMiddleware attaches a fresh projection loader to every request.
func DataLoaderMiddleware(store repository.EntityStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := entityloader.NewEntityLoader(store)
			ctx := entityloader.WithLoader(r.Context(), loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
