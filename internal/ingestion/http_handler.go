package ingestion

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/yoda/internal/auth"
	"github.com/rpattn/yoda/internal/domain"
	"github.com/rpattn/yoda/internal/httpapi"
)

const maxUploadBytes = 32 << 20

// Handler exposes ingestion as an HTTP endpoint.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service with a multipart POST endpoint. The entity
// type comes from the {type} path segment or the entityType form value; a
// truthy preview value validates without creating anything.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpapi.WriteError(w, r, domain.Validationf("invalid form data: %v", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpapi.WriteError(w, r, domain.Validationf("file required: %v", err))
		return
	}
	defer file.Close()

	entityType := r.PathValue("type")
	if entityType == "" {
		entityType = strings.TrimSpace(r.FormValue("entityType"))
	}
	if entityType == "" {
		httpapi.WriteError(w, r, domain.Validationf("entityType is required"))
		return
	}

	headerRow, err := parseHeaderRow(r.FormValue("headerRow"))
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		httpapi.WriteError(w, r, domain.Validationf("failed to read file: %v", err))
		return
	}

	identity, _ := auth.IdentityFromContext(r.Context())

	if preview, _ := strconv.ParseBool(r.FormValue("preview")); preview {
		// Preview still requires the right to create the type.
		def, err := h.service.definitions.Lookup(entityType)
		if err != nil {
			httpapi.WriteError(w, r, err)
			return
		}
		if err := auth.Authorize(identity, auth.Create(), def.Access.MutateRoles); err != nil {
			httpapi.WriteError(w, r, err)
			return
		}
		result, err := h.service.Preview(entityType, header.Filename, bytes.NewReader(data), headerRow, 0)
		if err != nil {
			httpapi.WriteError(w, r, err)
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, result)
		return
	}

	summary, err := h.service.Ingest(r.Context(), Request{
		EntityType:     entityType,
		FileName:       header.Filename,
		HeaderRowIndex: headerRow,
		Data:           bytes.NewReader(data),
		Identity:       identity,
	})
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, summary)
}

// parseHeaderRow reads a 1-based header row number.
func parseHeaderRow(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	row, err := strconv.Atoi(raw)
	if err != nil || row < 1 {
		return nil, domain.Validationf("invalid headerRow %q", raw)
	}
	idx := row - 1
	return &idx, nil
}
