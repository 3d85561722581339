package dispatch

import (
	"encoding/json"

	chat "studychat/internal/pkg/chat/domain"
)

// Wire event names shared by the socket controller and the dispatcher.
// Inbound names are what clients emit; outbound names are what they listen
// for. Changing any of these is a breaking protocol change.
const (
	EventSendMessage = "send_message"
	EventTyping      = "typing"
	EventMarkRead    = "mark_read"
	EventJoin        = "join_conversation"
	EventLeave       = "leave_conversation"

	EventConnected    = "connected"
	EventMessageSent  = "message_sent"
	EventNewMessage   = "new_message"
	EventMessageError = "message_error"
	EventUserTyping   = "user_typing"
	EventMessagesRead = "messages_read"
	EventNotification = "notification"
)

// Frame is the envelope for every socket payload in both directions.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// InboundSend is the payload of a send_message frame.
type InboundSend struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	Kind       string `json:"kind,omitempty"`
}

// InboundTyping is the payload of a typing frame. ReceiverID is only
// consulted when ConversationID is absent.
type InboundTyping struct {
	ConversationID string `json:"conversation_id,omitempty"`
	ReceiverID     string `json:"receiver_id,omitempty"`
	IsTyping       bool   `json:"is_typing"`
}

// InboundConversation is the payload of mark_read, join_conversation and
// leave_conversation frames.
type InboundConversation struct {
	ConversationID string `json:"conversation_id"`
}

type typingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	IsTyping       bool   `json:"is_typing"`
}

type readPayload struct {
	ConversationID  string `json:"conversation_id"`
	ReaderID        string `json:"reader_id"`
	MessagesUpdated int    `json:"messages_updated"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type notificationPayload struct {
	Title          string `json:"title"`
	Body           string `json:"body"`
	SenderID       string `json:"sender_id"`
	ConversationID string `json:"conversation_id"`
}

type connectedPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func encode(eventType string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	out, err := json.Marshal(Frame{Type: eventType, Data: raw})
	if err != nil {
		return nil
	}
	return out
}

// ConnectedFrame is the handshake acknowledgement sent once after a
// successful upgrade and registration.
func ConnectedFrame(userID, username string) []byte {
	return encode(EventConnected, connectedPayload{UserID: userID, Username: username})
}

// MessageSentFrame acks a persisted message back to its sender.
func MessageSentFrame(m *chat.Message) []byte {
	return encode(EventMessageSent, m)
}

// NewMessageFrame carries a persisted message to its receiver.
func NewMessageFrame(m *chat.Message) []byte {
	return encode(EventNewMessage, m)
}

// ErrorFrame reports a failed inbound operation to the offending session.
func ErrorFrame(msg string) []byte {
	return encode(EventMessageError, errorPayload{Message: msg})
}
