package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/chatdigest/internal/models"
)

const sqliteBackend = "sqlite"

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/telegram_messages.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/telegram_messages.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	// Immediate transactions take the write lock up front, so two commits
	// never interleave their guarded updates.
	dsn := dbPath + "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER NOT NULL,
		chat_id INTEGER NOT NULL,
		sender TEXT,
		text TEXT,
		date DATETIME NOT NULL,
		summarized INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (id, chat_id)
	);

	CREATE TABLE IF NOT EXISTS summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER,
		summary_text TEXT NOT NULL,
		message_ids TEXT NOT NULL,
		message_count INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS summary_messages (
		summary_id INTEGER NOT NULL REFERENCES summaries(id),
		message_id INTEGER NOT NULL,
		chat_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (summary_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id);
	CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date);
	CREATE INDEX IF NOT EXISTS idx_messages_summarized ON messages(summarized);
	CREATE INDEX IF NOT EXISTS idx_summaries_chat_id ON summaries(chat_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveMessage stores a message unless one with the same (id, chat_id) exists.
// It reports whether a row was inserted.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *models.Message) (bool, error) {
	defer observe(sqliteBackend, "save_message", time.Now())

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages (id, chat_id, sender, text, date, summarized)
		VALUES (?, ?, ?, ?, ?, 0)
	`, msg.ID, msg.ChatID, msg.Sender, msg.Text, msg.Timestamp.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// PendingMessages returns the unsummarized messages of scope, oldest first.
func (s *SQLiteStore) PendingMessages(ctx context.Context, scope models.Scope) ([]models.Message, error) {
	defer observe(sqliteBackend, "pending_messages", time.Now())

	query := `SELECT ` + messageColumns + ` FROM messages WHERE summarized = 0`
	var args []any
	if chatID, ok := scope.ChatID(); ok {
		query += ` AND chat_id = ?`
		args = append(args, chatID)
	}
	query += ` ORDER BY date ASC, id ASC`

	return s.queryMessages(ctx, query, args...)
}

// CommitSummary inserts the summary and marks its covered messages as
// summarized in one transaction.
func (s *SQLiteStore) CommitSummary(ctx context.Context, summary *models.Summary) error {
	defer observe(sqliteBackend, "commit_summary", time.Now())

	if len(summary.Covered) == 0 {
		return ErrEmptySummary
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO summaries (chat_id, summary_text, message_ids, message_count, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, scopeChatID(summary.Scope), summary.Text, joinIDs(summary.MessageIDs()), len(summary.Covered), summary.CreatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	link, err := tx.PrepareContext(ctx, `
		INSERT INTO summary_messages (summary_id, message_id, chat_id, position) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer link.Close()

	mark, err := tx.PrepareContext(ctx, `
		UPDATE messages SET summarized = 1 WHERE id = ? AND chat_id = ? AND summarized = 0
	`)
	if err != nil {
		return err
	}
	defer mark.Close()

	for i, k := range summary.Covered {
		if _, err := link.ExecContext(ctx, id, k.ID, k.ChatID, i); err != nil {
			return err
		}
		res, err := mark.ExecContext(ctx, k.ID, k.ChatID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return ErrAlreadySummarized
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	summary.ID = id
	summary.MessageCount = len(summary.Covered)
	return nil
}

// ListMessages returns a page of messages by summarized state, newest first,
// together with the total count.
func (s *SQLiteStore) ListMessages(ctx context.Context, summarized bool, limit, offset int) ([]models.Message, int, error) {
	defer observe(sqliteBackend, "list_messages", time.Now())

	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE summarized = ?`, summarized).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	msgs, err := s.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE summarized = ?
		ORDER BY date DESC, id DESC
		LIMIT ? OFFSET ?
	`, summarized, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// MessagesByIDs returns messages with the given ids, optionally limited to
// one chat, oldest first.
func (s *SQLiteStore) MessagesByIDs(ctx context.Context, ids []int64, chatID *int64) ([]models.Message, error) {
	if len(ids) == 0 {
		return []models.Message{}, nil
	}

	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id IN (` + placeholders(len(ids)) + `)`
	if chatID != nil {
		query += ` AND chat_id = ?`
		args = append(args, *chatID)
	}
	query += ` ORDER BY date ASC, id ASC`

	return s.queryMessages(ctx, query, args...)
}

// keysPerQuery bounds the OR chain of one lookup; SQLite rejects
// expression trees deeper than 1000.
const keysPerQuery = 200

// MessagesByKeys returns the messages identified by keys, in key order.
func (s *SQLiteStore) MessagesByKeys(ctx context.Context, keys []models.MessageKey) ([]models.Message, error) {
	if len(keys) == 0 {
		return []models.Message{}, nil
	}

	msgs := make([]models.Message, 0, len(keys))
	for start := 0; start < len(keys); start += keysPerQuery {
		batch := keys[start:min(start+keysPerQuery, len(keys))]

		conds := make([]string, len(batch))
		args := make([]any, 0, 2*len(batch))
		for i, k := range batch {
			conds[i] = `(id = ? AND chat_id = ?)`
			args = append(args, k.ID, k.ChatID)
		}
		found, err := s.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages WHERE `+strings.Join(conds, " OR "), args...)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, found...)
	}
	return orderByKeys(msgs, keys), nil
}

// SearchMessages returns messages whose text or sender contains query, newest first.
func (s *SQLiteStore) SearchMessages(ctx context.Context, query string, limit int) ([]models.Message, error) {
	defer observe(sqliteBackend, "search_messages", time.Now())

	pattern := likePattern(query)
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE text LIKE ? ESCAPE '\' OR sender LIKE ? ESCAPE '\'
		ORDER BY date DESC, id DESC
		LIMIT ?
	`, pattern, pattern, limit)
}

// ListSummaries returns a page of summaries, newest first, optionally limited
// to one chat. Covered keys are not loaded; use GetSummary for those.
func (s *SQLiteStore) ListSummaries(ctx context.Context, chatID *int64, limit, offset int) ([]models.Summary, int, error) {
	where := ""
	var args []any
	if chatID != nil {
		where = ` WHERE chat_id = ?`
		args = append(args, *chatID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM summaries`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+summaryColumns+` FROM summaries`+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
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

// GetSummary retrieves a summary with its covered keys. It returns nil when
// no summary has the id.
func (s *SQLiteStore) GetSummary(ctx context.Context, id int64) (*models.Summary, error) {
	sum, err := scanSummary(s.db.QueryRowContext(ctx, `SELECT `+summaryColumns+` FROM summaries WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, chat_id FROM summary_messages WHERE summary_id = ? ORDER BY position
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
func (s *SQLiteStore) Stats(ctx context.Context) (*models.Stats, error) {
	st := &models.Stats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN summarized = 0 THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT chat_id),
			(SELECT COUNT(*) FROM summaries)
		FROM messages
	`).Scan(&st.TotalMessages, &st.PendingMessages, &st.Chats, &st.Summaries)
	if err != nil {
		return nil, err
	}
	st.SummarizedMessages = st.TotalMessages - st.PendingMessages

	// Read the column itself so the driver returns a time value.
	var last time.Time
	err = s.db.QueryRowContext(ctx, `SELECT created_at FROM summaries ORDER BY created_at DESC LIMIT 1`).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		last = last.UTC()
		st.LastSummaryAt = &last
	}
	return st, nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
