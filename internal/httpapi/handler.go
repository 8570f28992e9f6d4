package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/yoda/internal/auth"
	"github.com/rpattn/yoda/internal/domain"
	"github.com/rpattn/yoda/internal/service"
)

const maxBodyBytes = 1 << 20

// Reserved search query parameters; every other parameter is a field filter.
var paginationParams = map[string]struct{}{"skip": {}, "limit": {}, "after": {}}

// Handler serves the entity service as a JSON API.
type Handler struct {
	service  *service.Service
	mux      *http.ServeMux
	importer http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithImportHandler mounts h at POST /entities/{type}/import.
func WithImportHandler(h http.Handler) Option {
	return func(handler *Handler) {
		handler.importer = h
	}
}

// NewHandler registers the API routes.
func NewHandler(svc *service.Service, opts ...Option) *Handler {
	h := &Handler{service: svc, mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(h)
	}

	h.mux.HandleFunc("GET /healthz", h.health)
	h.mux.HandleFunc("GET /entities", h.listTypes)
	h.mux.HandleFunc("POST /entities/{type}", h.create)
	// ?skip=&limit=&after=<endCursor>; every other parameter filters a field
	h.mux.HandleFunc("GET /entities/{type}", h.search)
	h.mux.HandleFunc("POST /entities/{type}/batch", h.findMany)
	h.mux.HandleFunc("GET /entities/{type}/{id}", h.find)
	h.mux.HandleFunc("PATCH /entities/{type}/{id}", h.update)
	h.mux.HandleFunc("GET /entities/{type}/{id}/tokens", h.tokens)
	h.mux.HandleFunc("GET /entities/{type}/{id}/history", h.history)
	h.mux.HandleFunc("GET /entities/{type}/{id}/diff", h.diff)
	h.mux.HandleFunc("POST /references/resolve", h.resolve)
	if h.importer != nil {
		h.mux.Handle("POST /entities/{type}/import", h.importer)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func identity(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.UseNumber()
	if err := decoder.Decode(dst); err != nil {
		return domain.Validationf("invalid request body: %v", err)
	}
	return nil
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listTypes(w http.ResponseWriter, r *http.Request) {
	reg := h.service.Registry()
	defs := make([]domain.EntityDefinition, 0)
	for _, name := range reg.Names() {
		def, err := reg.Lookup(name)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		defs = append(defs, def)
	}
	WriteJSON(w, http.StatusOK, defs)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input service.CreateInput
	if err := decodeBody(r, &input); err != nil {
		WriteError(w, r, err)
		return
	}
	id, err := h.service.Create(r.Context(), r.PathValue("type"), input, identity(r))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]domain.Identifier{"identifier": id})
}

func (h *Handler) find(w http.ResponseWriter, r *http.Request) {
	agg, err := h.service.Find(r.Context(), r.PathValue("type"), r.PathValue("id"), identity(r))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, agg)
}

// tokens returns the precondition token per field, the value a PATCH sends
// as "start" to change that field.
func (h *Handler) tokens(w http.ResponseWriter, r *http.Request) {
	agg, err := h.service.Find(r.Context(), r.PathValue("type"), r.PathValue("id"), identity(r))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, agg.Tokens())
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var body domain.StoreBody
	if err := decodeBody(r, &body); err != nil {
		WriteError(w, r, err)
		return
	}
	agg, err := h.service.Update(r.Context(), r.PathValue("type"), r.PathValue("id"), body, identity(r))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, agg)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	pagination, err := parsePagination(query.Get("skip"), query.Get("limit"), query.Get("after"))
	if err != nil {
		WriteError(w, r, err)
		return
	}

	filter := domain.SearchFilter{}
	for key, values := range query {
		if _, reserved := paginationParams[key]; reserved || len(values) == 0 {
			continue
		}
		filter[key] = values[0]
	}

	page, err := h.service.Search(r.Context(), r.PathValue("type"), filter, pagination, identity(r))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

// parsePagination reads skip and limit. Cursors name the offset of an edge,
// so after=c resumes at row c+1, the row following that edge. Passing a
// page's endCursor as after fetches the next page.
func parsePagination(skipRaw, limitRaw, after string) (domain.Pagination, error) {
	var p domain.Pagination
	if strings.TrimSpace(skipRaw) != "" {
		skip, err := strconv.Atoi(skipRaw)
		if err != nil || skip < 0 {
			return p, domain.Validationf("invalid skip %q", skipRaw)
		}
		p.Skip = skip
	}
	if strings.TrimSpace(limitRaw) != "" {
		limit, err := strconv.Atoi(limitRaw)
		if err != nil || limit < 0 {
			return p, domain.Validationf("invalid limit %q", limitRaw)
		}
		p.Limit = limit
	}
	if strings.TrimSpace(after) != "" {
		offset, err := domain.ParseCursor(after)
		if err != nil {
			return p, err
		}
		p.Skip = offset + 1
	}
	return p, nil
}

func (h *Handler) findMany(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	aggs, err := h.service.FindMany(r.Context(), r.PathValue("type"), req.IDs, identity(r))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, aggs)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.History(r.Context(), r.PathValue("type"), r.PathValue("id"), identity(r))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, history)
}

func (h *Handler) diff(w http.ResponseWriter, r *http.Request) {
	base, err := strconv.Atoi(r.URL.Query().Get("base"))
	if err != nil {
		WriteError(w, r, domain.Validationf("base version is required"))
		return
	}
	target, err := strconv.Atoi(r.URL.Query().Get("target"))
	if err != nil {
		WriteError(w, r, domain.Validationf("target version is required"))
		return
	}

	diff, err := h.service.Diff(r.Context(), r.PathValue("type"), r.PathValue("id"), base, target, identity(r))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/x-diff; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, diff)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	var ref domain.Reference
	if err := decodeBody(r, &ref); err != nil {
		WriteError(w, r, err)
		return
	}
	agg, err := h.service.ResolveReference(r.Context(), ref, identity(r))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, agg)
}
