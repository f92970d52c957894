package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"relaybot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.TranscriptStore using SQLite.
type SQLiteStore struct {
	db         *sql.DB
	logger     *slog.Logger
	maxHistory int
}

func NewSQLiteStore(dbPath string, maxHistory int, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if maxHistory <= 0 {
		maxHistory = 200
	}

	store := &SQLiteStore{db: db, logger: logger, maxHistory: maxHistory}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id          TEXT PRIMARY KEY,
		channel     TEXT NOT NULL,
		chat_id     TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role            TEXT NOT NULL,
		content         TEXT,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conv ON messages(conversation_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// EnsureConversation returns the conversation for a channel/chat pair,
// creating it on first use. The conversation ID doubles as the session key.
func (s *SQLiteStore) EnsureConversation(ctx context.Context, channel, chatID string) (*domain.Conversation, error) {
	id := channel + ":" + chatID
	now := time.Now()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id, channel, chat_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, channel, chatID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure conversation: %w", err)
	}

	return s.GetConversation(ctx, id)
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, channel, chat_id, created_at, updated_at FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &conv.Channel, &conv.ChatID, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, domain.ErrConversationNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// AddMessage appends a transcript entry and trims the conversation to the
// configured history cap, oldest entries first.
func (s *SQLiteStore) AddMessage(ctx context.Context, convID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		convID, role, content, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, time.Now(), convID,
	)
	if err != nil {
		s.logger.Warn("conversation touch failed", "conversation", convID, "err", err)
	}

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = ? AND id NOT IN (
			SELECT id FROM messages WHERE conversation_id = ? ORDER BY id DESC LIMIT ?
		)`,
		convID, convID, s.maxHistory,
	)
	if err != nil {
		s.logger.Warn("history trim failed", "conversation", convID, "err", err)
	}
	return nil
}

// GetMessages returns the most recent messages for a conversation, oldest
// first.
func (s *SQLiteStore) GetMessages(ctx context.Context, convID string, limit int) ([]domain.MessageRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM (
			SELECT id, conversation_id, role, content, created_at
			FROM messages WHERE conversation_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		convID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.MessageRecord
	for rows.Next() {
		var m domain.MessageRecord
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
