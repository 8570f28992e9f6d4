package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/rpattn/yoda/internal/auth"
)

const (
	HeaderUserID    = "X-User-Id"
	HeaderUserRoles = "X-User-Roles"
)

// IdentityMiddleware reads the caller identity asserted by the trusted
// upstream gateway. Requests without a user id continue anonymously and are
// denied by the authorization gate.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		roles, err := auth.ParseRoles(strings.Split(r.Header.Get(HeaderUserRoles), ","))
		if err != nil {
			log.Printf("[HTTP] rejecting identity for %s: %v", userID, err)
			http.Error(w, `{"error":"invalid roles header"}`, http.StatusBadRequest)
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), auth.Identity{UserID: userID, Roles: roles})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
