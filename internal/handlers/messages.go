package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/eldtechnologies/chatdigest/internal/models"
)

const maxIDsPerRequest = 500

// MessagesResponse is one page of the new or processed message list.
type MessagesResponse struct {
	Tab        string           `json:"tab"`
	Messages   []models.Message `json:"messages"`
	Page       int              `json:"page"`
	TotalPages int              `json:"total_pages"`
	Total      int              `json:"total"`
}

// ListMessages handles GET /api/messages?tab=new|processed&page=N.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	tab := r.URL.Query().Get("tab")
	if tab == "" {
		tab = "new"
	}
	var summarized bool
	switch tab {
	case "new":
	case "processed":
		summarized = true
	default:
		h.Error(w, http.StatusBadRequest, "tab must be 'new' or 'processed'")
		return
	}

	page := pageParam(r)
	msgs, total, err := h.store.ListMessages(r.Context(), summarized, MessagesPerPage, (page-1)*MessagesPerPage)
	if err != nil {
		h.internalError(w, r, "failed to list messages", err)
		return
	}

	h.JSON(w, http.StatusOK, MessagesResponse{
		Tab:        tab,
		Messages:   msgs,
		Page:       page,
		TotalPages: totalPages(total, MessagesPerPage),
		Total:      total,
	})
}

// MessagesByIDs handles GET /api/messages_by_ids?ids=1,2&chat_id=N.
func (h *Handler) MessagesByIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDList(r.URL.Query().Get("ids"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	chatID, ok := optionalInt64(r, "chat_id")
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid chat_id")
		return
	}

	msgs, err := h.store.MessagesByIDs(r.Context(), ids, chatID)
	if err != nil {
		h.internalError(w, r, "failed to load messages", err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

type badRequest string

func (e badRequest) Error() string { return string(e) }

// parseIDList parses a comma-separated list of message ids.
func parseIDList(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, badRequest("query parameter 'ids' is required")
	}
	parts := strings.Split(raw, ",")
	if len(parts) > maxIDsPerRequest {
		return nil, badRequest("too many ids")
	}
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, badRequest("invalid id: " + p)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, badRequest("query parameter 'ids' is required")
	}
	return ids, nil
}
