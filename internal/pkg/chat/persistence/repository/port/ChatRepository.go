package repository

import (
	"context"
	"time"

	chat "studychat/internal/pkg/chat/domain"
)

// ChatRepository defines persistence for the message log and the derived
// conversation records. The message log is authoritative: a conversation
// row can always be rebuilt by re-scanning messages, so implementations
// must persist the message before touching conversation state.
type ChatRepository interface {
	// SaveMessage appends a message and returns it with the store-assigned
	// ID, ConversationID and CreatedAt filled in. The conversation for the
	// canonical pair is created on first contact; its last-message pointer
	// advances and the receiver's unread counter is incremented atomically.
	SaveMessage(ctx context.Context, m chat.Message) (*chat.Message, error)

	// GetConversation fetches a conversation by id, including unread
	// counters. Returns chat.ErrNotFound when absent.
	GetConversation(ctx context.Context, conversationID string) (*chat.Conversation, error)

	// GetConversationByPair resolves the canonical conversation for two
	// participants regardless of argument order.
	GetConversationByPair(ctx context.Context, a, b string) (*chat.Conversation, error)

	// ListConversations returns every conversation containing userID
	// ordered by last-message time descending.
	ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error)

	// ListMessages pages a conversation's log. Descending creation order
	// when asc is false (the default history view), ascending otherwise.
	ListMessages(ctx context.Context, conversationID string, limit, offset int, asc bool) ([]chat.Message, error)

	// MarkRead flips the read flag on all messages addressed to readerID in
	// the conversation and resets the reader's unread counter to zero.
	// Returns the number of messages flipped.
	MarkRead(ctx context.Context, conversationID, readerID string) (int, error)

	// DeleteMessage removes a message only when requesterID is its sender.
	// Returns chat.ErrNotFound otherwise, whether the message exists or not.
	DeleteMessage(ctx context.Context, messageID, requesterID string) error
}

// Clock abstracts time for stores that stamp records themselves (the
// memory adapter); the Postgres adapter lets the database assign time.
type Clock func() time.Time
