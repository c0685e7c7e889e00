package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/chatdigest/internal/models"
)

const postgresBackend = "postgres"

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS messages (
		id BIGINT NOT NULL,
		chat_id BIGINT NOT NULL,
		sender TEXT,
		text TEXT,
		date TIMESTAMPTZ NOT NULL,
		summarized BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (id, chat_id)
	);

	CREATE TABLE IF NOT EXISTS summaries (
		id BIGSERIAL PRIMARY KEY,
		chat_id BIGINT,
		summary_text TEXT NOT NULL,
		message_ids TEXT NOT NULL,
		message_count INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS summary_messages (
		summary_id BIGINT NOT NULL REFERENCES summaries(id),
		message_id BIGINT NOT NULL,
		chat_id BIGINT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (summary_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id);
	CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date);
	CREATE INDEX IF NOT EXISTS idx_messages_pending ON messages(summarized) WHERE NOT summarized;
	CREATE INDEX IF NOT EXISTS idx_summaries_chat_id ON summaries(chat_id);
	`)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveMessage stores a message unless one with the same (id, chat_id) exists.
func (s *PostgresStore) SaveMessage(ctx context.Context, msg *models.Message) (bool, error) {
	defer observe(postgresBackend, "save_message", time.Now())

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, chat_id, sender, text, date, summarized)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		ON CONFLICT (id, chat_id) DO NOTHING
	`, msg.ID, msg.ChatID, msg.Sender, msg.Text, msg.Timestamp.UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// PendingMessages returns the unsummarized messages of scope, oldest first.
func (s *PostgresStore) PendingMessages(ctx context.Context, scope models.Scope) ([]models.Message, error) {
	defer observe(postgresBackend, "pending_messages", time.Now())

	if chatID, ok := scope.ChatID(); ok {
		return s.queryMessages(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE NOT summarized AND chat_id = $1
			ORDER BY date ASC, id ASC
		`, chatID)
	}
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE NOT summarized
		ORDER BY date ASC, id ASC
	`)
}

// CommitSummary inserts the summary and marks its covered messages as
// summarized in one transaction.
func (s *PostgresStore) CommitSummary(ctx context.Context, summary *models.Summary) error {
	defer observe(postgresBackend, "commit_summary", time.Now())

	if len(summary.Covered) == 0 {
		return ErrEmptySummary
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO summaries (chat_id, summary_text, message_ids, message_count, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, scopeChatID(summary.Scope), summary.Text, joinIDs(summary.MessageIDs()), len(summary.Covered), summary.CreatedAt.UTC()).Scan(&id)
	if err != nil {
		return err
	}

	ids := make([]int64, len(summary.Covered))
	chats := make([]int64, len(summary.Covered))
	for i, k := range summary.Covered {
		ids[i], chats[i] = k.ID, k.ChatID
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO summary_messages (summary_id, message_id, chat_id, position)
		SELECT $1, k.id, k.chat_id, k.ord - 1
		FROM unnest($2::bigint[], $3::bigint[]) WITH ORDINALITY AS k(id, chat_id, ord)
	`, id, ids, chats)
	if err != nil {
		return err
	}

	// Row locks taken by the update make a concurrent commit on the same
	// messages wait, then see summarized = TRUE and match fewer rows.
	tag, err := tx.Exec(ctx, `
		UPDATE messages m SET summarized = TRUE
		FROM unnest($1::bigint[], $2::bigint[]) AS k(id, chat_id)
		WHERE m.id = k.id AND m.chat_id = k.chat_id AND NOT m.summarized
	`, ids, chats)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != int64(len(summary.Covered)) {
		return ErrAlreadySummarized
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	summary.ID = id
	summary.MessageCount = len(summary.Covered)
	return nil
}

// ListMessages returns a page of messages by summarized state, newest first.
func (s *PostgresStore) ListMessages(ctx context.Context, summarized bool, limit, offset int) ([]models.Message, int, error) {
	defer observe(postgresBackend, "list_messages", time.Now())

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE summarized = $1`, summarized).Scan(&total); err != nil {
		return nil, 0, err
	}

	msgs, err := s.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE summarized = $1
		ORDER BY date DESC, id DESC
		LIMIT $2 OFFSET $3
	`, summarized, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// MessagesByIDs returns messages with the given ids, optionally limited to one chat.
func (s *PostgresStore) MessagesByIDs(ctx context.Context, ids []int64, chatID *int64) ([]models.Message, error) {
	if len(ids) == 0 {
		return []models.Message{}, nil
	}
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE id = ANY($1) AND ($2::bigint IS NULL OR chat_id = $2)
		ORDER BY date ASC, id ASC
	`, ids, chatID)
}

// MessagesByKeys returns the messages identified by keys, in key order.
func (s *PostgresStore) MessagesByKeys(ctx context.Context, keys []models.MessageKey) ([]models.Message, error) {
	if len(keys) == 0 {
		return []models.Message{}, nil
	}
	ids := make([]int64, len(keys))
	chats := make([]int64, len(keys))
	for i, k := range keys {
		ids[i], chats[i] = k.ID, k.ChatID
	}
	msgs, err := s.queryMessages(ctx, `
		SELECT m.id, m.chat_id, m.sender, m.text, m.date, m.summarized
		FROM messages m
		JOIN unnest($1::bigint[], $2::bigint[]) AS k(id, chat_id)
			ON m.id = k.id AND m.chat_id = k.chat_id
	`, ids, chats)
	if err != nil {
		return nil, err
	}
	return orderByKeys(msgs, keys), nil
}

// SearchMessages returns messages whose text or sender contains query, newest first.
func (s *PostgresStore) SearchMessages(ctx context.Context, query string, limit int) ([]models.Message, error) {
	defer observe(postgresBackend, "search_messages", time.Now())

	return s.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE text ILIKE $1 OR sender ILIKE $1
		ORDER BY date DESC, id DESC
		LIMIT $2
	`, likePattern(query), limit)
}

// ListSummaries returns a page of summaries, newest first, optionally limited to one chat.
func (s *PostgresStore) ListSummaries(ctx context.Context, chatID *int64, limit, offset int) ([]models.Summary, int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM summaries WHERE $1::bigint IS NULL OR chat_id = $1
	`, chatID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+summaryColumns+` FROM summaries
		WHERE $1::bigint IS NULL OR chat_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, chatID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	summaries := []models.Summary{}
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, 0, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, total, rows.Err()
}

// GetSummary retrieves a summary with its covered keys, or nil if not found.
func (s *PostgresStore) GetSummary(ctx context.Context, id int64) (*models.Summary, error) {
	sum, err := scanSummary(s.pool.QueryRow(ctx, `SELECT `+summaryColumns+` FROM summaries WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT message_id, chat_id FROM summary_messages WHERE summary_id = $1 ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var k models.MessageKey
		if err := rows.Scan(&k.ID, &k.ChatID); err != nil {
			return nil, err
		}
		sum.Covered = append(sum.Covered, k)
	}
	return &sum, rows.Err()
}

// Stats returns message and summary counts.
func (s *PostgresStore) Stats(ctx context.Context) (*models.Stats, error) {
	st := &models.Stats{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT summarized),
			COUNT(DISTINCT chat_id),
			(SELECT COUNT(*) FROM summaries),
			(SELECT MAX(created_at) FROM summaries)
		FROM messages
	`).Scan(&st.TotalMessages, &st.PendingMessages, &st.Chats, &st.Summaries, &st.LastSummaryAt)
	if err != nil {
		return nil, err
	}
	st.SummarizedMessages = st.TotalMessages - st.PendingMessages
	if st.LastSummaryAt != nil {
		t := st.LastSummaryAt.UTC()
		st.LastSummaryAt = &t
	}
	return st, nil
}

func (s *PostgresStore) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
