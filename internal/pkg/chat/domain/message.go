package chat

import (
	"fmt"
	"strings"
	"time"
)

// MessageKind classifies message content.
type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindImage MessageKind = "image"
	MessageKindFile  MessageKind = "file"
)

// ValidKind reports whether k is one of the supported content kinds.
func ValidKind(k MessageKind) bool {
	switch k {
	case MessageKindText, MessageKindImage, MessageKindFile:
		return true
	}
	return false
}

// Message is an immutable log entry between two users. Only the Read flag
// changes after creation. The store assigns ID and CreatedAt so ordering
// within a conversation never depends on client clocks.
type Message struct {
	ID             string      `db:"id" json:"id"`
	ConversationID string      `db:"conversation_id" json:"conversation_id"`
	SenderID       string      `db:"sender_id" json:"sender_id"`
	ReceiverID     string      `db:"receiver_id" json:"receiver_id"`
	Content        string      `db:"content" json:"content"`
	Kind           MessageKind `db:"kind" json:"kind"`
	Read           bool        `db:"is_read" json:"read"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// NewMessage validates the caller-supplied fields of a message and
// normalizes content and kind. ID, ConversationID and CreatedAt are left
// for the store to assign.
func NewMessage(senderID, receiverID, content string, kind MessageKind) (*Message, error) {
	if senderID == "" {
		return nil, fmt.Errorf("%w: sender is required", ErrValidation)
	}
	if receiverID == "" {
		return nil, fmt.Errorf("%w: receiver is required", ErrValidation)
	}
	if senderID == receiverID {
		return nil, fmt.Errorf("%w: sender and receiver must differ", ErrValidation)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrValidation)
	}
	if kind == "" {
		kind = MessageKindText
	}
	if !ValidKind(kind) {
		return nil, fmt.Errorf("%w: unknown message kind %q", ErrValidation, kind)
	}
	return &Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Kind:       kind,
	}, nil
}
