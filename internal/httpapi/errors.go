package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/rpattn/yoda/internal/auth"
	"github.com/rpattn/yoda/internal/domain"
)

type errorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	Conflicts []domain.Conflict `json:"conflicts,omitempty"`
}

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "database"
	}
}

// WriteError renders err as a JSON error body. Internal failures are logged
// and their detail withheld.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	resp := errorResponse{Error: err.Error(), Code: code}

	var authErr *auth.AuthorizationError
	if errors.As(err, &authErr) {
		resp.Error = authErr.Reason
	}
	var conflictErr *domain.ConflictError
	if errors.As(err, &conflictErr) {
		resp.Conflicts = conflictErr.Conflicts
	}
	if status == http.StatusInternalServerError {
		log.Printf("[HTTP] %s %s failed: %v", r.Method, r.URL.Path, err)
		resp.Error = "internal error"
	}

	WriteJSON(w, status, resp)
}

// WriteJSON encodes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
