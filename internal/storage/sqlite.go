// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		meta TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateConversation inserts a conversation and returns it with its assigned id.
func (s *SQLiteStorage) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	now := time.Now()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (title, created_at) VALUES (?, ?)`, title, now)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Conversation{ID: id, Title: title, CreatedAt: now}, nil
}

// GetConversation returns a conversation by id.
func (s *SQLiteStorage) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	var convo models.Conversation
	var title sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at FROM conversations WHERE id = ?`, id,
	).Scan(&convo.ID, &title, &convo.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conversation not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	convo.Title = title.String
	return &convo, nil
}

// ListConversations returns all conversations, newest first.
func (s *SQLiteStorage) ListConversations(ctx context.Context) ([]*models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at FROM conversations ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convos []*models.Conversation
	for rows.Next() {
		var convo models.Conversation
		var title sql.NullString
		if err := rows.Scan(&convo.ID, &title, &convo.CreatedAt); err != nil {
			return nil, err
		}
		convo.Title = title.String
		convos = append(convos, &convo)
	}
	return convos, rows.Err()
}

// DeleteConversation removes a conversation and its messages.
func (s *SQLiteStorage) DeleteConversation(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("conversation not found: %d", id)
	}
	return nil
}

// AddMessage appends a message and fills in its assigned id and timestamp.
func (s *SQLiteStorage) AddMessage(ctx context.Context, msg *models.Message) error {
	var metaJSON sql.NullString
	if msg.Meta != nil {
		raw, err := json.Marshal(msg.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal message meta: %w", err)
		}
		metaJSON = sql.NullString{String: string(raw), Valid: true}
	}
	msg.CreatedAt = time.Now()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, meta, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.ConversationID, msg.Role, msg.Content, metaJSON, msg.CreatedAt,
	)
	if err != nil {
		return err
	}
	msg.ID, err = result.LastInsertId()
	return err
}

func scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	var msgs []*models.Message
	for rows.Next() {
		var msg models.Message
		var metaJSON sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &metaJSON, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if metaJSON.Valid && metaJSON.String != "" {
			var meta models.MessageMeta
			if err := json.Unmarshal([]byte(metaJSON.String), &meta); err != nil {
				return nil, fmt.Errorf("failed to unmarshal message meta: %w", err)
			}
			msg.Meta = &meta
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}

// ListMessages returns all messages for a conversation in chronological order.
func (s *SQLiteStorage) ListMessages(ctx context.Context, conversationID int64) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, meta, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentMessages returns the most recent limit messages in chronological order.
func (s *SQLiteStorage) RecentMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, meta, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY id DESC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	// Reverse to oldest-first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
