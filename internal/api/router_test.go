package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/eldtechnologies/chatdigest/internal/config"
	"github.com/eldtechnologies/chatdigest/internal/models"
	"github.com/eldtechnologies/chatdigest/internal/store"
)

var t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	router *chi.Mux
	store  *store.SQLiteStore
	sumID  int64
}

// newFixture serves a store holding chat 100 (ids 1..3, 1 and 3 summarized)
// and chat 200 (id 1, pending).
func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	for _, m := range []struct {
		id, chat int64
		min      int
		text     string
	}{
		{1, 100, 0, "hi all"},
		{2, 100, 1, "release on friday"},
		{3, 100, 2, "bye"},
		{1, 200, 3, "other chat"},
	} {
		sender, text := "alice", m.text
		_, err := s.SaveMessage(ctx, &models.Message{
			ID: m.id, ChatID: m.chat, Sender: &sender, Text: &text,
			Timestamp: t0.Add(time.Duration(m.min) * time.Minute),
		})
		require.NoError(t, err)
	}

	sum := &models.Summary{
		Scope:     models.Chat(100),
		Text:      "Greetings exchanged.",
		Covered:   []models.MessageKey{{ID: 1, ChatID: 100}, {ID: 3, ChatID: 100}},
		CreatedAt: t0.Add(time.Hour),
	}
	require.NoError(t, s.CommitSummary(ctx, sum))

	if cfg == nil {
		cfg = &config.Config{Env: "development", DashboardUser: "admin"}
	}
	return &fixture{router: NewRouter(zerolog.Nop(), cfg, s, nil), store: s, sumID: sum.ID}
}

func (f *fixture) get(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec, body := f.get(t, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "pass", checks["database"].(map[string]any)["status"])
	assert.Equal(t, "skip", checks["redis"].(map[string]any)["status"])
	assert.Equal(t, "default-src 'none'", rec.Header().Get("Content-Security-Policy"))
}

func TestStatsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec, body := f.get(t, "/api/stats")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, body["total_messages"])
	assert.EqualValues(t, 2, body["pending_messages"])
	assert.EqualValues(t, 2, body["summarized_messages"])
	assert.EqualValues(t, 2, body["chats"])
	assert.EqualValues(t, 1, body["summaries"])
	assert.Contains(t, body["last_summary"], "ago")
}

func TestListMessagesTabs(t *testing.T) {
	f := newFixture(t, nil)

	rec, body := f.get(t, "/api/messages")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new", body["tab"])
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 1, body["total_pages"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.EqualValues(t, 200, msgs[0].(map[string]any)["chat_id"], "newest first")

	_, body = f.get(t, "/api/messages?tab=processed&page=1")
	assert.EqualValues(t, 2, body["total"])

	_, body = f.get(t, "/api/messages?tab=processed&page=9")
	assert.Empty(t, body["messages"])
	assert.EqualValues(t, 9, body["page"])

	rec, _ = f.get(t, "/api/messages?tab=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	rec, body := f.get(t, "/api/messages/search?q=release")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])

	rec, _ = f.get(t, "/api/messages/search?q=")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.get(t, "/api/messages/search?q=x&limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessagesByIDsEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	_, body := f.get(t, "/api/messages_by_ids?ids=1,3")
	assert.Len(t, body["messages"], 3, "id 1 exists in two chats")

	_, body = f.get(t, "/api/messages_by_ids?ids=1,3&chat_id=100")
	assert.Len(t, body["messages"], 2)

	rec, _ := f.get(t, "/api/messages_by_ids?ids=1,x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.get(t, "/api/messages_by_ids")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.get(t, "/api/messages_by_ids?ids=1&chat_id=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummaryEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	rec, body := f.get(t, "/api/summaries")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])
	list := body["summaries"].([]any)
	require.Len(t, list, 1)
	assert.EqualValues(t, 100, list[0].(map[string]any)["chat_id"])

	_, body = f.get(t, "/api/summaries?chat_id=200")
	assert.EqualValues(t, 0, body["total"])
	assert.Empty(t, body["summaries"])

	path := "/api/summaries/" + itoa(f.sumID)
	rec, body = f.get(t, path)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Greetings exchanged.", body["summary_text"])
	assert.Equal(t, []any{float64(1), float64(3)}, body["message_ids"])

	rec, body = f.get(t, path+"/messages")
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi all", msgs[0].(map[string]any)["text"])
	assert.Equal(t, "bye", msgs[1].(map[string]any)["text"])

	rec, _ = f.get(t, "/api/summaries/999")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.get(t, "/api/summaries/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIInfo(t *testing.T) {
	f := newFixture(t, nil)
	rec, body := f.get(t, "/api")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chatdigest", body["name"])
}

func TestReadOnly(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/summaries", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDashboardBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	f := newFixture(t, &config.Config{Env: "production", DashboardUser: "admin", DashboardPasswordHash: string(hash)})

	do := func(user, pass string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		if user != "" {
			req.SetBasicAuth(user, pass)
		}
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do("", ""))
	assert.Equal(t, http.StatusUnauthorized, do("admin", "wrong"))
	assert.Equal(t, http.StatusUnauthorized, do("root", "s3cret"))
	assert.Equal(t, http.StatusOK, do("admin", "s3cret"))

	// Health stays public for probes.
	rec, _ := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
