package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	queueport "studychat/internal/infrastructure/queue/port"
	"studychat/internal/infrastructure/realtime"
	"studychat/internal/pkg/chat/application/usecase"
	chat "studychat/internal/pkg/chat/domain"
	"studychat/internal/pkg/chat/persistence/repository/adapter"
)

type fakeSession struct {
	mu     sync.Mutex
	id     string
	user   string
	frames [][]byte
}

func newFakeSession(id, user string) *fakeSession {
	return &fakeSession{id: id, user: user}
}

func (f *fakeSession) SessionID() string        { return f.id }
func (f *fakeSession) UserID() string           { return f.user }
func (f *fakeSession) DisplayName() string      { return "User " + f.user }
func (f *fakeSession) Start()                   {}
func (f *fakeSession) Close(code int, r string) {}

func (f *fakeSession) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, payload)
	return nil
}

func (f *fakeSession) framesOfType(t *testing.T, eventType string) []Frame {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Frame
	for _, raw := range f.frames {
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("bad frame %q: %v", raw, err)
		}
		if frame.Type == eventType {
			out = append(out, frame)
		}
	}
	return out
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []queueport.Task
	fail  bool
}

func (q *fakeQueue) Enqueue(_ context.Context, t queueport.Task, _ ...queueport.EnqueueOption) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail {
		return "", errors.New("broker down")
	}
	q.tasks = append(q.tasks, t)
	return "task-1", nil
}

func (q *fakeQueue) Close() error { return nil }

func newDispatcher(t *testing.T, queue queueport.Client) (*Dispatcher, *realtime.Registry) {
	t.Helper()
	repo := adapter.NewMemChatRepository(nil)
	reg := realtime.NewRegistry()
	d := NewDispatcher(
		usecase.NewSendMessageUseCase(repo),
		usecase.NewMarkReadUseCase(repo),
		usecase.NewUnreadCountUseCase(repo, nil),
		reg,
		queue,
	)
	return d, reg
}

func TestSendMessageDeliversToOnlineReceiver(t *testing.T) {
	queue := &fakeQueue{}
	d, reg := newDispatcher(t, queue)

	bob := newFakeSession("s-bob", "bob")
	reg.Register(bob)

	saved, err := d.SendMessage(context.Background(), "Alice", usecase.SendMessageInput{
		SenderID: "alice", ReceiverID: "bob", Content: "hello",
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	frames := bob.framesOfType(t, EventNewMessage)
	if len(frames) != 1 {
		t.Fatalf("expected 1 new_message frame, got %d", len(frames))
	}
	var got chat.Message
	if err := json.Unmarshal(frames[0].Data, &got); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if got.ID != saved.ID || got.Content != "hello" {
		t.Fatalf("delivered message mismatch: %+v", got)
	}
	if len(queue.tasks) != 0 {
		t.Fatalf("online delivery should not enqueue, got %d tasks", len(queue.tasks))
	}

	notifs := bob.framesOfType(t, EventNotification)
	if len(notifs) != 1 {
		t.Fatalf("online receiver should get a notification frame, got %d", len(notifs))
	}
	var n notificationPayload
	if err := json.Unmarshal(notifs[0].Data, &n); err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if n.Title != "Alice" || n.Body != "hello" || n.SenderID != "alice" {
		t.Fatalf("notification mismatch: %+v", n)
	}
}

func TestSendMessageQueuesWhenReceiverOffline(t *testing.T) {
	queue := &fakeQueue{}
	d, _ := newDispatcher(t, queue)

	if _, err := d.SendMessage(context.Background(), "Alice", usecase.SendMessageInput{
		SenderID: "alice", ReceiverID: "bob", Content: "you there?",
	}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if len(queue.tasks) != 1 || queue.tasks[0].Type != TypeNotify {
		t.Fatalf("expected one notify task, got %+v", queue.tasks)
	}
	var p NotifyPayload
	if err := json.Unmarshal(queue.tasks[0].Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.ReceiverID != "bob" || p.SenderName != "Alice" || p.Preview != "you there?" {
		t.Fatalf("payload mismatch: %+v", p)
	}
}

func TestSendMessageSurvivesBrokerFailure(t *testing.T) {
	queue := &fakeQueue{fail: true}
	d, _ := newDispatcher(t, queue)

	saved, err := d.SendMessage(context.Background(), "Alice", usecase.SendMessageInput{
		SenderID: "alice", ReceiverID: "bob", Content: "still saved",
	})
	if err != nil {
		t.Fatalf("persisted send must not fail on broker error: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("message not persisted")
	}
}

func TestSendMessageValidationReachesCaller(t *testing.T) {
	d, _ := newDispatcher(t, nil)
	_, err := d.SendMessage(context.Background(), "Alice", usecase.SendMessageInput{
		SenderID: "alice", ReceiverID: "alice", Content: "note to self",
	})
	if !errors.Is(err, chat.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMarkReadNotifiesOtherParticipant(t *testing.T) {
	d, reg := newDispatcher(t, nil)

	alice := newFakeSession("s-alice", "alice")
	reg.Register(alice)

	saved, err := d.SendMessage(context.Background(), "Alice", usecase.SendMessageInput{
		SenderID: "alice", ReceiverID: "bob", Content: "read me",
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	res, err := d.MarkRead(context.Background(), "bob", saved.ConversationID)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if res.MessagesUpdated != 1 {
		t.Fatalf("expected 1 updated, got %d", res.MessagesUpdated)
	}

	frames := alice.framesOfType(t, EventMessagesRead)
	if len(frames) != 1 {
		t.Fatalf("expected 1 messages_read frame, got %d", len(frames))
	}

	// Re-marking with nothing unread stays quiet.
	if _, err := d.MarkRead(context.Background(), "bob", saved.ConversationID); err != nil {
		t.Fatalf("second MarkRead: %v", err)
	}
	if got := alice.framesOfType(t, EventMessagesRead); len(got) != 1 {
		t.Fatalf("idle mark should not notify, got %d frames", len(got))
	}
}

func TestTypingFansOutToRoomOnly(t *testing.T) {
	d, reg := newDispatcher(t, nil)

	alice := newFakeSession("s-alice", "alice")
	bob := newFakeSession("s-bob", "bob")
	carol := newFakeSession("s-carol", "carol")
	reg.Register(alice)
	reg.Register(bob)
	reg.Register(carol)
	reg.Join("conv-1", alice)
	reg.Join("conv-1", bob)

	d.NotifyTyping("alice", "Alice", "conv-1", "", true)

	if got := bob.framesOfType(t, EventUserTyping); len(got) != 1 {
		t.Fatalf("room member should see typing, got %d", len(got))
	}
	if got := alice.framesOfType(t, EventUserTyping); len(got) != 0 {
		t.Fatalf("typist should not echo, got %d", len(got))
	}
	if got := carol.framesOfType(t, EventUserTyping); len(got) != 0 {
		t.Fatalf("non-member should not see typing, got %d", len(got))
	}

	var p typingPayload
	frame := bob.framesOfType(t, EventUserTyping)[0]
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		t.Fatalf("decode typing payload: %v", err)
	}
	if p.UserID != "alice" || !p.IsTyping {
		t.Fatalf("payload mismatch: %+v", p)
	}
}

func TestPreviewTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", 120)
	got := preview(&chat.Message{Kind: chat.MessageKindText, Content: long})
	if !utf8.ValidString(got) {
		t.Fatalf("preview is not valid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 80 {
		t.Fatalf("preview length = %d runes, want 80", n)
	}

	if got := preview(&chat.Message{Kind: chat.MessageKindImage, Content: "x"}); got != "sent an image" {
		t.Fatalf("image preview = %q", got)
	}
	if got := preview(&chat.Message{Kind: chat.MessageKindText, Content: "short"}); got != "short" {
		t.Fatalf("short preview = %q", got)
	}
}

func TestTypingFallsBackToReceiverWithoutRoom(t *testing.T) {
	d, reg := newDispatcher(t, nil)

	bob := newFakeSession("s-bob", "bob")
	reg.Register(bob)

	d.NotifyTyping("alice", "Alice", "", "bob", true)

	if got := bob.framesOfType(t, EventUserTyping); len(got) != 1 {
		t.Fatalf("receiver should see typing, got %d", len(got))
	}

	// Neither address present is a silent drop.
	d.NotifyTyping("alice", "Alice", "", "", true)
	if got := bob.framesOfType(t, EventUserTyping); len(got) != 1 {
		t.Fatalf("unaddressed typing should be dropped, got %d frames", len(got))
	}
}

func TestNotifyWorkerDeliversAndAlwaysSucceeds(t *testing.T) {
	reg := realtime.NewRegistry()
	srv := &fakeServer{handlers: map[string]queueport.Handler{}}
	RegisterNotifyWorker(srv, reg)

	h, ok := srv.handlers[TypeNotify]
	if !ok {
		t.Fatal("notify handler not registered")
	}

	payload, _ := json.Marshal(NotifyPayload{ReceiverID: "bob", SenderName: "Alice", Preview: "hi"})

	// Offline receiver: still nil, the unread counter carries the signal.
	if err := h(context.Background(), queueport.Task{Type: TypeNotify, Payload: payload}); err != nil {
		t.Fatalf("offline delivery should not error: %v", err)
	}

	bob := newFakeSession("s-bob", "bob")
	reg.Register(bob)
	if err := h(context.Background(), queueport.Task{Type: TypeNotify, Payload: payload}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got := bob.framesOfType(t, EventNotification); len(got) != 1 {
		t.Fatalf("expected 1 notification frame, got %d", len(got))
	}

	if err := h(context.Background(), queueport.Task{Type: TypeNotify, Payload: []byte("{")}); err == nil {
		t.Fatal("malformed payload should error")
	}
}

type fakeServer struct {
	handlers map[string]queueport.Handler
}

func (s *fakeServer) Register(taskType string, h queueport.Handler) { s.handlers[taskType] = h }
func (s *fakeServer) Run(context.Context) error                    { return nil }
func (s *fakeServer) Stop(context.Context) error                   { return nil }

func TestPersistTimeoutBounds(t *testing.T) {
	d, _ := newDispatcher(t, nil)
	d.PersistTimeout = 10 * time.Millisecond

	ctx, cancel := d.persistCtx(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected a deadline")
	}
	if time.Until(deadline) > 20*time.Millisecond {
		t.Fatalf("deadline too far: %v", time.Until(deadline))
	}
}
