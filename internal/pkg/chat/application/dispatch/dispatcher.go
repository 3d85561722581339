package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	queueport "studychat/internal/infrastructure/queue/port"
	"studychat/internal/infrastructure/realtime"
	"studychat/internal/pkg/chat/application/usecase"
	chat "studychat/internal/pkg/chat/domain"
)

const defaultPersistTimeout = 5 * time.Second

// TypeNotify is the task type for offline message notifications.
const TypeNotify = "chat:notify"

// NotifyPayload is the queued notification body. The worker delivers it to
// the receiver's session when one appears; delivery is best-effort.
type NotifyPayload struct {
	ReceiverID     string `json:"receiver_id"`
	SenderID       string `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	Preview        string `json:"preview"`
	ConversationID string `json:"conversation_id"`
}

// Dispatcher is the write path behind the socket controller. It persists
// through the usecases, fans results out through the presence registry and
// hands offline notifications to the queue. Persistence is synchronous with
// a bounded timeout; delivery never blocks the caller's read loop.
type Dispatcher struct {
	Send     *usecase.SendMessageUseCase
	Mark     *usecase.MarkReadUseCase
	Unread   *usecase.UnreadCountUseCase
	Registry *realtime.Registry
	Queue    queueport.Client // nil disables queued notifications

	// PersistTimeout bounds each store write. Zero means the default.
	PersistTimeout time.Duration
}

func NewDispatcher(send *usecase.SendMessageUseCase, mark *usecase.MarkReadUseCase, unread *usecase.UnreadCountUseCase, registry *realtime.Registry, queue queueport.Client) *Dispatcher {
	return &Dispatcher{Send: send, Mark: mark, Unread: unread, Registry: registry, Queue: queue}
}

func (d *Dispatcher) persistCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := d.PersistTimeout
	if timeout <= 0 {
		timeout = defaultPersistTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// SendMessage persists the message, then pushes it to the receiver's live
// session or, when the receiver is offline, enqueues a notification. The
// persisted message is returned so the transport can ack the sender.
// Delivery and notification failures never fail a persisted send.
func (d *Dispatcher) SendMessage(ctx context.Context, senderName string, in usecase.SendMessageInput) (*chat.Message, error) {
	pctx, cancel := d.persistCtx(ctx)
	defer cancel()

	saved, err := d.Send.Execute(pctx, in)
	if err != nil {
		return nil, err
	}

	if d.Unread != nil {
		d.Unread.Invalidate(ctx, saved.ReceiverID)
	}

	if d.Registry.NotifyUser(saved.ReceiverID, NewMessageFrame(saved)) {
		d.Registry.NotifyUser(saved.ReceiverID, notifyFrame(senderName, saved))
	} else {
		d.enqueueNotify(ctx, senderName, saved)
	}
	return saved, nil
}

// MarkRead marks the conversation read for readerID and tells the other
// participant their messages were seen.
func (d *Dispatcher) MarkRead(ctx context.Context, readerID, conversationID string) (*usecase.MarkReadResult, error) {
	pctx, cancel := d.persistCtx(ctx)
	defer cancel()

	res, err := d.Mark.Execute(pctx, readerID, conversationID)
	if err != nil {
		return nil, err
	}

	if d.Unread != nil {
		d.Unread.Invalidate(ctx, readerID)
	}

	if res.MessagesUpdated > 0 {
		d.Registry.NotifyUser(res.OtherParticipant, encode(EventMessagesRead, readPayload{
			ConversationID:  res.ConversationID,
			ReaderID:        res.ReaderID,
			MessagesUpdated: res.MessagesUpdated,
		}))
	}
	return res, nil
}

// NotifyTyping relays a typing indicator to the other members of the
// conversation room, or straight to the receiver's session when the sender
// has not joined a room yet. Nothing is persisted and nothing fails: an
// indicator with nobody listening is simply dropped.
func (d *Dispatcher) NotifyTyping(userID, username, conversationID, receiverID string, isTyping bool) {
	frame := encode(EventUserTyping, typingPayload{
		ConversationID: conversationID,
		UserID:         userID,
		Username:       username,
		IsTyping:       isTyping,
	})
	if conversationID != "" {
		d.Registry.BroadcastRoom(conversationID, frame, userID)
		return
	}
	if receiverID != "" {
		d.Registry.NotifyUser(receiverID, frame)
	}
}

func (d *Dispatcher) enqueueNotify(ctx context.Context, senderName string, m *chat.Message) {
	if d.Queue == nil {
		return
	}
	payload, err := json.Marshal(NotifyPayload{
		ReceiverID:     m.ReceiverID,
		SenderID:       m.SenderID,
		SenderName:     senderName,
		Preview:        preview(m),
		ConversationID: m.ConversationID,
	})
	if err != nil {
		return
	}
	_, err = d.Queue.Enqueue(ctx, queueport.Task{Type: TypeNotify, Payload: payload}, queueport.EnqueueOption{
		Queue:     "notify",
		MaxRetry:  3,
		UniqueTTL: time.Minute,
	})
	if err != nil {
		log.Printf("dispatch: enqueue notify for %s: %v", m.ReceiverID, err)
	}
}

func notifyFrame(senderName string, m *chat.Message) []byte {
	return encode(EventNotification, notificationPayload{
		Title:          senderName,
		Body:           preview(m),
		SenderID:       m.SenderID,
		ConversationID: m.ConversationID,
	})
}

func preview(m *chat.Message) string {
	switch m.Kind {
	case chat.MessageKindImage:
		return "sent an image"
	case chat.MessageKindFile:
		return "sent a file"
	}
	const max = 80
	runes := []rune(m.Content)
	if len(runes) > max {
		return string(runes[:max])
	}
	return m.Content
}

// RegisterNotifyWorker wires the notification handler onto a queue server.
// The handler pushes a notification frame to the receiver's session and
// always succeeds: a still-offline receiver is not an error worth retrying,
// the unread counter already carries the signal.
func RegisterNotifyWorker(srv queueport.Server, registry *realtime.Registry) {
	srv.Register(TypeNotify, func(_ context.Context, task queueport.Task) error {
		var p NotifyPayload
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return errors.New("notify: malformed payload")
		}
		registry.NotifyUser(p.ReceiverID, encode(EventNotification, notificationPayload{
			Title:          p.SenderName,
			Body:           p.Preview,
			SenderID:       p.SenderID,
			ConversationID: p.ConversationID,
		}))
		return nil
	})
}
