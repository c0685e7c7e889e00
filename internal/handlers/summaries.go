package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/chatdigest/internal/models"
)

// SummaryResponse is a summary as shown on the dashboard.
type SummaryResponse struct {
	ID           int64     `json:"id"`
	ChatID       *int64    `json:"chat_id"` // null for all-chats summaries
	Text         string    `json:"summary_text"`
	MessageIDs   []int64   `json:"message_ids,omitempty"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
}

func summaryResponse(s *models.Summary) SummaryResponse {
	resp := SummaryResponse{
		ID:           s.ID,
		Text:         s.Text,
		MessageCount: s.MessageCount,
		CreatedAt:    s.CreatedAt,
	}
	if id, ok := s.Scope.ChatID(); ok {
		resp.ChatID = &id
	}
	if len(s.Covered) > 0 {
		resp.MessageIDs = s.MessageIDs()
	}
	return resp
}

// SummariesResponse is one page of the summary history.
type SummariesResponse struct {
	Summaries  []SummaryResponse `json:"summaries"`
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
	Total      int               `json:"total"`
}

// ListSummaries handles GET /api/summaries?page=N&chat_id=N.
func (h *Handler) ListSummaries(w http.ResponseWriter, r *http.Request) {
	chatID, ok := optionalInt64(r, "chat_id")
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid chat_id")
		return
	}

	page := pageParam(r)
	sums, total, err := h.store.ListSummaries(r.Context(), chatID, SummariesPerPage, (page-1)*SummariesPerPage)
	if err != nil {
		h.internalError(w, r, "failed to list summaries", err)
		return
	}

	out := make([]SummaryResponse, 0, len(sums))
	for i := range sums {
		out = append(out, summaryResponse(&sums[i]))
	}
	h.JSON(w, http.StatusOK, SummariesResponse{
		Summaries:  out,
		Page:       page,
		TotalPages: totalPages(total, SummariesPerPage),
		Total:      total,
	})
}

// GetSummary handles GET /api/summaries/{id}.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sum, ok := h.loadSummary(w, r)
	if !ok {
		return
	}
	h.JSON(w, http.StatusOK, summaryResponse(sum))
}

// SummaryMessages handles GET /api/summaries/{id}/messages: the messages a
// summary covers, in the order they were summarized.
func (h *Handler) SummaryMessages(w http.ResponseWriter, r *http.Request) {
	sum, ok := h.loadSummary(w, r)
	if !ok {
		return
	}
	msgs, err := h.store.MessagesByKeys(r.Context(), sum.Covered)
	if err != nil {
		h.internalError(w, r, "failed to load summary messages", err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]any{
		"summary":  summaryResponse(sum),
		"messages": msgs,
	})
}

func (h *Handler) loadSummary(w http.ResponseWriter, r *http.Request) (*models.Summary, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		h.Error(w, http.StatusBadRequest, "invalid summary id")
		return nil, false
	}
	sum, err := h.store.GetSummary(r.Context(), id)
	if err != nil {
		h.internalError(w, r, "failed to load summary", err)
		return nil, false
	}
	if sum == nil {
		h.Error(w, http.StatusNotFound, "summary not found")
		return nil, false
	}
	return sum, true
}
