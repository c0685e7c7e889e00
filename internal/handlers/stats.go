package handlers

import (
	"net/http"
	"strconv"
	"time"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalMessages      int64      `json:"total_messages"`
	PendingMessages    int64      `json:"pending_messages"`
	SummarizedMessages int64      `json:"summarized_messages"`
	Chats              int64      `json:"chats"`
	Summaries          int64      `json:"summaries"`
	LastSummaryAt      *time.Time `json:"last_summary_at,omitempty"`
	LastSummary        string     `json:"last_summary"`
}

// Stats returns message and summary counts for the dashboard index.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Stats(r.Context())
	if err != nil {
		h.internalError(w, r, "failed to load stats", err)
		return
	}

	lastSummary := "no summaries yet"
	if st.LastSummaryAt != nil {
		lastSummary = formatTimeAgo(*st.LastSummaryAt)
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalMessages:      st.TotalMessages,
		PendingMessages:    st.PendingMessages,
		SummarizedMessages: st.SummarizedMessages,
		Chats:              st.Chats,
		Summaries:          st.Summaries,
		LastSummaryAt:      st.LastSummaryAt,
		LastSummary:        lastSummary,
	})
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	default:
		return plural(int(diff.Hours()/24), "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
