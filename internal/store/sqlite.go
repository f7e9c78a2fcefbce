package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/ollama-manager/internal/domain"
	"github.com/ashureev/ollama-manager/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	appendMaxRetries = 3
	appendBaseDelay  = 50 * time.Millisecond
	busyTimeout      = 5 * time.Second
)

// SQLiteStore implements HistoryStore using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (or creates) the history database at dbPath and ensures the
// schema exists.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	return openSQLite(dbPath, busyTimeout)
}

func openSQLite(dbPath string, timeout time.Duration) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode so history reads do not block the writer.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)",
		dbPath, timeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS chat_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		model TEXT NOT NULL,
		messages TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_history_timestamp ON chat_history(timestamp);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Append inserts a conversation record. Busy or locked database errors are
// retried with exponential backoff.
func (s *SQLiteStore) Append(ctx context.Context, model string, messages []domain.Message) (int64, error) {
	if messages == nil {
		messages = []domain.Message{}
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return 0, fmt.Errorf("encode messages: %w", err)
	}
	timestamp := s.now().UnixMilli()

	for i := 0; i < appendMaxRetries; i++ {
		id, err := s.appendOnce(ctx, model, string(payload), timestamp)
		if err == nil {
			return id, nil
		}

		if shared.IsSQLiteConflictError(err) && i < appendMaxRetries-1 {
			delay := appendBaseDelay * time.Duration(1<<i) // exponential backoff: 50ms, 100ms
			slog.Debug("History append hit a locked database, retrying",
				"model", model,
				"attempt", i+1,
				"delay", delay)
			select {
			case <-ctx.Done():
				return 0, fmt.Errorf("append history: %w", ctx.Err())
			case <-time.After(delay):
			}
			continue
		}

		return 0, err
	}

	return 0, fmt.Errorf("append history: exhausted %d attempts", appendMaxRetries)
}

func (s *SQLiteStore) appendOnce(ctx context.Context, model, payload string, timestamp int64) (int64, error) {
	query := `INSERT INTO chat_history (model, messages, timestamp) VALUES (?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query, model, payload, timestamp)
	if err != nil {
		return 0, fmt.Errorf("insert history: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get inserted id: %w", err)
	}
	return id, nil
}

// Latest returns the newest record, ordered by timestamp and then id.
func (s *SQLiteStore) Latest(ctx context.Context) (*domain.ConversationRecord, error) {
	query := `
		SELECT id, model, messages, timestamp
		FROM chat_history ORDER BY timestamp DESC, id DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query)

	var record domain.ConversationRecord
	var messagesJSON string
	var timestamp int64

	err := row.Scan(&record.ID, &record.Model, &messagesJSON, &timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan history row: %w", err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &record.Messages); err != nil {
		return nil, fmt.Errorf("decode messages for record %d: %w", record.ID, err)
	}
	record.Timestamp = time.UnixMilli(timestamp)

	return &record, nil
}

// MostRecent returns the messages of the newest record.
func (s *SQLiteStore) MostRecent(ctx context.Context) ([]domain.Message, error) {
	record, err := s.Latest(ctx)
	if err != nil || record == nil {
		return nil, err
	}
	return record.Messages, nil
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}
