// Package storage defines the persistence interface for conversations and messages.
package storage

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Storage defines conversation and message persistence. Messages are
// append-only; ordering is by creation order.
type Storage interface {
	CreateConversation(ctx context.Context, title string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
	ListConversations(ctx context.Context) ([]*models.Conversation, error)
	// DeleteConversation removes the conversation and all of its messages.
	DeleteConversation(ctx context.Context, id int64) error

	AddMessage(ctx context.Context, msg *models.Message) error
	// ListMessages returns all messages in chronological order.
	ListMessages(ctx context.Context, conversationID int64) ([]*models.Message, error)
	// RecentMessages returns the most recent limit messages in chronological
	// order (oldest first).
	RecentMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error)

	Close() error
}
