package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatdigest/internal/metrics"
	"github.com/eldtechnologies/chatdigest/internal/models"
)

// ErrAlreadySummarized is returned by CommitSummary when at least one covered
// message was summarized by another run in the meantime. Nothing is written.
var ErrAlreadySummarized = errors.New("messages already summarized")

// ErrEmptySummary is returned by CommitSummary for a summary covering no messages.
var ErrEmptySummary = errors.New("summary covers no messages")

// DataStore defines the interface for persistent storage of messages and summaries.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Ingestion
	SaveMessage(ctx context.Context, msg *models.Message) (bool, error)

	// Summarization
	PendingMessages(ctx context.Context, scope models.Scope) ([]models.Message, error)
	CommitSummary(ctx context.Context, summary *models.Summary) error

	// Presentation
	ListMessages(ctx context.Context, summarized bool, limit, offset int) ([]models.Message, int, error)
	MessagesByIDs(ctx context.Context, ids []int64, chatID *int64) ([]models.Message, error)
	MessagesByKeys(ctx context.Context, keys []models.MessageKey) ([]models.Message, error)
	SearchMessages(ctx context.Context, query string, limit int) ([]models.Message, error)
	ListSummaries(ctx context.Context, chatID *int64, limit, offset int) ([]models.Summary, int, error)
	GetSummary(ctx context.Context, id int64) (*models.Summary, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

// Open returns the Postgres store when databaseURL is a postgres URL and the
// SQLite store at dbPath otherwise.
func Open(ctx context.Context, databaseURL, dbPath string, logger zerolog.Logger) (DataStore, error) {
	if isPostgresURL(databaseURL) {
		logger.Info().Msg("using PostgreSQL message store")
		return NewPostgresStore(ctx, databaseURL)
	}
	logger.Info().Str("path", dbPath).Msg("using SQLite message store")
	return NewSQLiteStore(ctx, dbPath)
}

func isPostgresURL(u string) bool {
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://")
}

// joinIDs renders ids as the comma-joined message_ids column.
func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// scopeChatID maps a scope onto the nullable summaries.chat_id column.
func scopeChatID(scope models.Scope) *int64 {
	if id, ok := scope.ChatID(); ok {
		return &id
	}
	return nil
}

func scopeFromChatID(chatID *int64) models.Scope {
	if chatID == nil {
		return models.AllChats()
	}
	return models.Chat(*chatID)
}

// orderByKeys returns msgs rearranged to follow keys; missing keys are dropped.
func orderByKeys(msgs []models.Message, keys []models.MessageKey) []models.Message {
	byKey := make(map[models.MessageKey]models.Message, len(msgs))
	for _, m := range msgs {
		byKey[m.Key()] = m
	}
	out := make([]models.Message, 0, len(keys))
	for _, k := range keys {
		if m, ok := byKey[k]; ok {
			out = append(out, m)
		}
	}
	return out
}

// likePattern escapes LIKE wildcards in q and wraps it for a substring match.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

func observe(backend, op string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

// rowScanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const messageColumns = `id, chat_id, sender, text, date, summarized`

func scanMessage(row rowScanner) (models.Message, error) {
	var m models.Message
	err := row.Scan(&m.ID, &m.ChatID, &m.Sender, &m.Text, &m.Timestamp, &m.Summarized)
	m.Timestamp = m.Timestamp.UTC()
	return m, err
}

const summaryColumns = `id, chat_id, summary_text, message_count, created_at`

func scanSummary(row rowScanner) (models.Summary, error) {
	var (
		s      models.Summary
		chatID *int64
	)
	if err := row.Scan(&s.ID, &chatID, &s.Text, &s.MessageCount, &s.CreatedAt); err != nil {
		return s, err
	}
	s.Scope = scopeFromChatID(chatID)
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}
