package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

const threadsSchema = `
CREATE TABLE IF NOT EXISTS threads (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	thread_id  TEXT NOT NULL,
	type       TEXT NOT NULL,
	content    TEXT NOT NULL,
	parts      TEXT,
	is_llm     INTEGER NOT NULL DEFAULT 0,
	metadata   TEXT,
	created_at TIMESTAMP NOT NULL,
	FOREIGN KEY (thread_id) REFERENCES threads(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_thread_type ON messages(thread_id, type);
`

// SQLiteStore persists threads and messages in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) a SQLite-backed thread store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an existing database handle and applies migrations.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(threadsSchema); err != nil {
		return nil, fmt.Errorf("migrate threads schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the handle so other stores can share one database file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) CreateThread(ctx context.Context, thread *models.Thread) error {
	if thread.ID == "" {
		thread.ID = uuid.NewString()
	}
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (id, project_id, created_at) VALUES (?, ?, ?)`,
		thread.ID, thread.ProjectID, thread.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, created_at FROM threads WHERE id = ?`, id)
	var thread models.Thread
	if err := row.Scan(&thread.ID, &thread.ProjectID, &thread.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan thread: %w", err)
	}
	return &thread, nil
}

func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	parts, err := encodeJSON(msg.Parts)
	if err != nil {
		return fmt.Errorf("encode parts: %w", err)
	}
	metadata, err := encodeJSON(msg.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, thread_id, type, content, parts, is_llm, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ThreadID, string(msg.Type), msg.Content, parts,
		boolToInt(msg.IsLLMMessage), metadata, msg.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) HasMessage(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM messages WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count message: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetHistory(ctx context.Context, threadID string, llmOnly bool) ([]*models.Message, error) {
	query := `SELECT id, thread_id, type, content, parts, is_llm, metadata, created_at
		 FROM messages WHERE thread_id = ?`
	if llmOnly {
		query += ` AND is_llm = 1`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetLatestByType(ctx context.Context, threadID string, msgType models.MessageType) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, thread_id, type, content, parts, is_llm, metadata, created_at
		 FROM messages WHERE thread_id = ? AND type = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		threadID, string(msgType))
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return msg, nil
}

func (s *SQLiteStore) DeleteByType(ctx context.Context, threadID string, msgType models.MessageType) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE thread_id = ? AND type = ?`,
		threadID, string(msgType))
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var raw sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT metadata FROM messages WHERE id = ?`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("read metadata: %w", err)
	}

	merged := map[string]any{}
	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &merged); err != nil {
			return fmt.Errorf("decode metadata: %w", err)
		}
	}
	for k, v := range metadata {
		merged[k] = v
	}
	encoded, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET metadata = ? WHERE id = ?`, string(encoded), id); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		msg      models.Message
		msgType  string
		parts    sql.NullString
		isLLM    int
		metadata sql.NullString
	)
	err := row.Scan(&msg.ID, &msg.ThreadID, &msgType, &msg.Content,
		&parts, &isLLM, &metadata, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	msg.Type = models.MessageType(msgType)
	msg.IsLLMMessage = isLLM != 0
	if parts.Valid && parts.String != "" {
		if err := json.Unmarshal([]byte(parts.String), &msg.Parts); err != nil {
			return nil, fmt.Errorf("decode parts: %w", err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &msg, nil
}

func encodeJSON(v any) (sql.NullString, error) {
	switch value := v.(type) {
	case []models.ContentPart:
		if len(value) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]any:
		if len(value) == 0 {
			return sql.NullString{}, nil
		}
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(encoded), Valid: true}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
