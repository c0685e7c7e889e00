package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/eldtechnologies/chatdigest/internal/models"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
	maxQueryLength     = 200
)

// SearchResponse represents the search response.
type SearchResponse struct {
	Query   string           `json:"query"`
	Results []models.Message `json:"results"`
	Total   int              `json:"total"`
}

// SearchMessages handles GET /api/messages/search?q=.
func (h *Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		h.Error(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	if utf8.RuneCountInString(q) > maxQueryLength {
		h.Error(w, http.StatusBadRequest, "query too long")
		return
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxSearchLimit)
	}

	results, err := h.store.SearchMessages(r.Context(), q, limit)
	if err != nil {
		h.internalError(w, r, "search failed", err)
		return
	}

	h.JSON(w, http.StatusOK, SearchResponse{
		Query:   q,
		Results: results,
		Total:   len(results),
	})
}
