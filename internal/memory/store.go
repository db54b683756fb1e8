// Package memory persists WhatsApp conversations and their messages in SQLite.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"tienditabot/internal/domain"
)

const (
	statusOpen    = "open"
	statusPending = "pending"
)

// SQLiteStore implements domain.ConversationStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
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

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// DB exposes the handle for diagnostics (doctor, schema version).
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Record upserts the conversation summary and appends the exchange's turns.
func (s *SQLiteStore) Record(ctx context.Context, ex domain.Exchange) error {
	if ex.ConversationID == "" {
		return fmt.Errorf("record: empty conversation id")
	}
	at := ex.At
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	status := statusOpen
	if ex.NeedsHuman {
		status = statusPending
	}
	lastText := ex.Inbound.Text
	if ex.Outbound != nil && ex.Outbound.Text != "" {
		lastText = ex.Outbound.Text
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, channel, sender_name, state, needs_human, status,
			last_message_text, last_message_at, unread_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			sender_name = CASE WHEN excluded.sender_name != '' THEN excluded.sender_name ELSE conversations.sender_name END,
			state = excluded.state,
			needs_human = excluded.needs_human,
			status = excluded.status,
			last_message_text = excluded.last_message_text,
			last_message_at = excluded.last_message_at,
			unread_count = conversations.unread_count + 1,
			updated_at = excluded.updated_at`,
		ex.ConversationID, ex.UserID, ex.Channel, ex.SenderName, ex.State, ex.NeedsHuman, status,
		lastText, at, at, at,
	)
	if err != nil {
		return fmt.Errorf("upsert conversation %s: %w", ex.ConversationID, err)
	}

	turns := []domain.Turn{ex.Inbound}
	if ex.Outbound != nil {
		turns = append(turns, *ex.Outbound)
	}
	for _, t := range turns {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = at
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, from_role, direction, text, intent_id, kind, status_code, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, ex.ConversationID, t.From, t.Direction, t.Text, t.IntentID, t.Kind, t.StatusCode, t.CreatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	return tx.Commit()
}

const conversationColumns = `id, user_id, channel, sender_name, state, needs_human, status,
	last_message_text, last_message_at, unread_count, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (domain.Conversation, error) {
	var c domain.Conversation
	var lastAt sql.NullTime
	err := row.Scan(&c.ID, &c.UserID, &c.Channel, &c.SenderName, &c.State, &c.NeedsHuman, &c.Status,
		&c.LastMessageText, &lastAt, &c.UnreadCount, &c.CreatedAt, &c.UpdatedAt)
	if lastAt.Valid {
		c.LastMessageAt = lastAt.Time
	}
	return c, err
}

// GetConversation returns nil, nil when the conversation does not exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	c, err := scanConversation(s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversations returns the most recently active conversations first.
func (s *SQLiteStore) ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// GetMessages returns the last limit turns of a conversation, oldest first.
func (s *SQLiteStore) GetMessages(ctx context.Context, convID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, from_role, direction, text, intent_id, kind, status_code, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, convID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		var text sql.NullString
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.From, &t.Direction, &text,
			&t.IntentID, &t.Kind, &t.StatusCode, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Text = text.String
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// MarkRead clears the unread counter once staff has opened the conversation.
func (s *SQLiteStore) MarkRead(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET unread_count = 0 WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
