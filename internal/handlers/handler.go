package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatdigest/internal/store"
)

const (
	// MessagesPerPage is the dashboard page size for message lists.
	MessagesPerPage = 20
	// SummariesPerPage is the dashboard page size for the summary history.
	SummariesPerPage = 10
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store  store.DataStore
	redis  *store.RedisStore // nil when Redis is not configured
	logger zerolog.Logger
}

// NewHandler creates a new Handler with the given stores.
func NewHandler(ds store.DataStore, redis *store.RedisStore, logger zerolog.Logger) *Handler {
	return &Handler{store: ds, redis: redis, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// internalError logs err and sends a generic 500.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, message string, err error) {
	h.logger.Error().Err(err).Str("path", r.URL.Path).Msg(message)
	h.Error(w, http.StatusInternalServerError, message)
}

// pageParam parses the 1-based "page" query parameter.
func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// totalPages returns the number of pages needed for total items, at least 1.
func totalPages(total, perPage int) int {
	if total <= 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}

// optionalInt64 parses an optional integer query parameter.
func optionalInt64(r *http.Request, name string) (*int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, false
	}
	return &v, true
}
