package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	cacheport "studychat/internal/infrastructure/cache/port"
	chat "studychat/internal/pkg/chat/domain"
	"studychat/internal/pkg/chat/persistence/repository/adapter"
	identityadapter "studychat/internal/pkg/identity/adapter"
	identity "studychat/internal/pkg/identity/port"
)

// tickingClock hands out strictly increasing timestamps so ordering
// assertions do not depend on wall-clock resolution.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		base = base.Add(time.Second)
		return base
	}
}

func newRepo(t *testing.T) *adapter.MemChatRepository {
	t.Helper()
	return adapter.NewMemChatRepository(tickingClock())
}

func mustSend(t *testing.T, repo *adapter.MemChatRepository, sender, receiver, content string) *chat.Message {
	t.Helper()
	uc := NewSendMessageUseCase(repo)
	msg, err := uc.Execute(context.Background(), SendMessageInput{
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
	})
	if err != nil {
		t.Fatalf("send %q from %s to %s: %v", content, sender, receiver, err)
	}
	return msg
}

func TestSendMessageCreatesConversationOnFirstContact(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	msg := mustSend(t, repo, "alice", "bob", "hello")
	if msg.ID == "" || msg.ConversationID == "" {
		t.Fatalf("expected ids assigned, got %+v", msg)
	}
	if msg.Kind != chat.MessageKindText {
		t.Fatalf("expected default kind text, got %q", msg.Kind)
	}

	reply := mustSend(t, repo, "bob", "alice", "hi back")
	if reply.ConversationID != msg.ConversationID {
		t.Fatalf("reply opened a second conversation: %s vs %s", reply.ConversationID, msg.ConversationID)
	}

	conv, err := repo.GetConversationByPair(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("GetConversationByPair: %v", err)
	}
	if conv.ParticipantLow != "alice" || conv.ParticipantHigh != "bob" {
		t.Fatalf("participants not canonical: %s / %s", conv.ParticipantLow, conv.ParticipantHigh)
	}
	if conv.LastMessageID == nil || *conv.LastMessageID != reply.ID {
		t.Fatalf("last message pointer not advanced")
	}
}

func TestSendMessageValidation(t *testing.T) {
	repo := newRepo(t)
	uc := NewSendMessageUseCase(repo)

	cases := []SendMessageInput{
		{SenderID: "", ReceiverID: "bob", Content: "x"},
		{SenderID: "alice", ReceiverID: "", Content: "x"},
		{SenderID: "alice", ReceiverID: "bob", Content: "   "},
		{SenderID: "alice", ReceiverID: "alice", Content: "x"},
		{SenderID: "alice", ReceiverID: "bob", Content: "x", Kind: "voice"},
	}
	for i, in := range cases {
		if _, err := uc.Execute(context.Background(), in); !errors.Is(err, chat.ErrValidation) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestUnreadCountersAccumulateAndReset(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mustSend(t, repo, "alice", "bob", "ping")
	}
	convID := mustSend(t, repo, "alice", "bob", "last").ConversationID

	conv, err := repo.GetConversation(ctx, convID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got := conv.UnreadFor("bob"); got != 4 {
		t.Fatalf("expected 4 unread for bob, got %d", got)
	}
	if got := conv.UnreadFor("alice"); got != 0 {
		t.Fatalf("sender unread should stay 0, got %d", got)
	}

	res, err := NewMarkReadUseCase(repo).Execute(ctx, "bob", convID)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if res.MessagesUpdated != 4 {
		t.Fatalf("expected 4 messages updated, got %d", res.MessagesUpdated)
	}
	if res.OtherParticipant != "alice" {
		t.Fatalf("expected other participant alice, got %s", res.OtherParticipant)
	}

	conv, _ = repo.GetConversation(ctx, convID)
	if got := conv.UnreadFor("bob"); got != 0 {
		t.Fatalf("unread not reset after mark, got %d", got)
	}
}

func TestMarkReadLeavesOtherCounterUntouched(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	convID := mustSend(t, repo, "alice", "bob", "one").ConversationID
	mustSend(t, repo, "bob", "alice", "two")
	mustSend(t, repo, "bob", "alice", "three")

	if _, err := NewMarkReadUseCase(repo).Execute(ctx, "bob", convID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	conv, _ := repo.GetConversation(ctx, convID)
	if got := conv.UnreadFor("alice"); got != 2 {
		t.Fatalf("alice's counter changed by bob's mark, got %d", got)
	}
}

func TestMarkReadAuthorization(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	convID := mustSend(t, repo, "alice", "bob", "secret").ConversationID

	uc := NewMarkReadUseCase(repo)
	if _, err := uc.Execute(ctx, "mallory", convID); !errors.Is(err, chat.ErrNotAuthorized) {
		t.Fatalf("expected not-authorized for outsider, got %v", err)
	}
	if _, err := uc.Execute(ctx, "bob", "no-such-conversation"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestGetMessagesOrderingAndPaging(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	var convID string
	contents := []string{"m1", "m2", "m3", "m4", "m5"}
	for _, c := range contents {
		convID = mustSend(t, repo, "alice", "bob", c).ConversationID
	}

	uc := NewGetMessagesUseCase(repo)

	newest, err := uc.Execute(ctx, GetMessagesInput{ConversationID: convID, RequesterID: "bob", Limit: 2})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(newest) != 2 || newest[0].Content != "m5" || newest[1].Content != "m4" {
		t.Fatalf("descending page wrong: %+v", newest)
	}

	oldest, err := uc.Execute(ctx, GetMessagesInput{ConversationID: convID, RequesterID: "alice", Limit: 3, Ascending: true})
	if err != nil {
		t.Fatalf("Execute asc: %v", err)
	}
	if len(oldest) != 3 || oldest[0].Content != "m1" || oldest[2].Content != "m3" {
		t.Fatalf("ascending page wrong: %+v", oldest)
	}

	page2, err := uc.Execute(ctx, GetMessagesInput{ConversationID: convID, RequesterID: "bob", Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("Execute offset: %v", err)
	}
	if len(page2) != 1 || page2[0].Content != "m1" {
		t.Fatalf("offset page wrong: %+v", page2)
	}

	if _, err := uc.Execute(ctx, GetMessagesInput{ConversationID: convID, RequesterID: "mallory"}); !errors.Is(err, chat.ErrNotAuthorized) {
		t.Fatalf("expected not-authorized for outsider, got %v", err)
	}
}

func TestListConversationsOrderAndDecoration(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	dir := identityadapter.NewMemDirectory()
	dir.Put(identity.Identity{ID: "alice", Name: "Alice Nguyen"})
	dir.Put(identity.Identity{ID: "bob", Name: "Bob Tran"})
	dir.Put(identity.Identity{ID: "carol", Name: "Carol Pham"})

	mustSend(t, repo, "alice", "bob", "older thread")
	mustSend(t, repo, "carol", "bob", "newer thread")

	uc := NewListConversationsUseCase(repo, dir)
	list, err := uc.Execute(ctx, "bob")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(list))
	}
	if list[0].LastMessage == nil || list[0].LastMessage.Content != "newer thread" {
		t.Fatalf("most recent conversation not first: %+v", list[0].LastMessage)
	}
	if list[0].UnreadCount != 1 || list[1].UnreadCount != 1 {
		t.Fatalf("unread counts wrong: %d / %d", list[0].UnreadCount, list[1].UnreadCount)
	}
	names := map[string]bool{}
	for _, p := range list[0].Participants {
		names[p.Name] = true
	}
	if !names["Carol Pham"] || !names["Bob Tran"] {
		t.Fatalf("profiles not resolved: %+v", list[0].Participants)
	}
}

func TestSearchConversationsByName(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	dir := identityadapter.NewMemDirectory()
	dir.Put(identity.Identity{ID: "alice", Name: "Alice Nguyen"})
	dir.Put(identity.Identity{ID: "bob", Name: "Bob Tran"})
	dir.Put(identity.Identity{ID: "carol", Name: "Carol Pham"})

	mustSend(t, repo, "alice", "bob", "hey")
	mustSend(t, repo, "carol", "bob", "hi")

	uc := NewListConversationsUseCase(repo, dir)

	hits, err := uc.Search(ctx, "bob", "CAROL")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Conversation.OtherParticipant("bob") != "carol" {
		t.Fatalf("expected only carol's thread, got %d hits", len(hits))
	}

	if _, err := uc.Search(ctx, "bob", "   "); !errors.Is(err, chat.ErrValidation) {
		t.Fatalf("expected validation error for blank term, got %v", err)
	}

	none, err := uc.Search(ctx, "bob", "zelda")
	if err != nil {
		t.Fatalf("Search miss: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no hits, got %d", len(none))
	}
}

func TestDeleteMessageOwnership(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	msg := mustSend(t, repo, "alice", "bob", "mistake")
	uc := NewDeleteMessageUseCase(repo)

	if err := uc.Execute(ctx, "bob", msg.ID); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("non-sender delete should read as not-found, got %v", err)
	}

	history, _ := NewGetMessagesUseCase(repo).Execute(ctx, GetMessagesInput{ConversationID: msg.ConversationID, RequesterID: "alice"})
	if len(history) != 1 {
		t.Fatalf("message removed by non-sender")
	}

	if err := uc.Execute(ctx, "alice", msg.ID); err != nil {
		t.Fatalf("sender delete: %v", err)
	}
	history, _ = NewGetMessagesUseCase(repo).Execute(ctx, GetMessagesInput{ConversationID: msg.ConversationID, RequesterID: "alice"})
	if len(history) != 0 {
		t.Fatalf("message still present after delete")
	}

	if err := uc.Execute(ctx, "alice", msg.ID); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("second delete should be not-found, got %v", err)
	}
}

func TestUnreadCountAcrossConversations(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	abID := mustSend(t, repo, "alice", "bob", "one").ConversationID
	mustSend(t, repo, "alice", "bob", "two")
	mustSend(t, repo, "carol", "bob", "three")

	uc := NewUnreadCountUseCase(repo, nil)
	counts, err := uc.Execute(ctx, "bob")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("expected 2 entries, got %v", counts)
	}
	if counts[abID] != 2 {
		t.Fatalf("expected 2 unread from alice, got %d", counts[abID])
	}

	if _, err := NewMarkReadUseCase(repo).Execute(ctx, "bob", abID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	counts, _ = uc.Execute(ctx, "bob")
	if _, ok := counts[abID]; ok {
		t.Fatalf("zeroed conversation should be omitted, got %v", counts)
	}
	if len(counts) != 1 {
		t.Fatalf("carol's thread lost: %v", counts)
	}
}

func TestUnreadCounterExactUnderConcurrentSends(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	uc := NewSendMessageUseCase(repo)

	// Two senders hammer the same receiver at once. Every increment must
	// land: the counter is updated atomically, not read-modify-write.
	const perSender = 25
	var wg sync.WaitGroup
	for _, sender := range []string{"alice", "carol"} {
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				if _, err := uc.Execute(ctx, SendMessageInput{
					SenderID:   sender,
					ReceiverID: "bob",
					Content:    "ping",
				}); err != nil {
					t.Errorf("send from %s: %v", sender, err)
				}
			}
		}(sender)
	}
	wg.Wait()

	counts, err := NewUnreadCountUseCase(repo, nil).Execute(ctx, "bob")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, sender := range []string{"alice", "carol"} {
		conv, err := repo.GetConversationByPair(ctx, sender, "bob")
		if err != nil {
			t.Fatalf("GetConversationByPair(%s): %v", sender, err)
		}
		if counts[conv.ID] != perSender {
			t.Fatalf("unread from %s = %d, want %d", sender, counts[conv.ID], perSender)
		}
	}
}

// stubCache records operations so caching behavior is observable.
type stubCache struct {
	mu    sync.Mutex
	store map[string]string
	gets  int
	sets  int
	dels  int
}

func newStubCache() *stubCache { return &stubCache{store: make(map[string]string)} }

func (c *stubCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.store[key]
	if !ok {
		return "", cacheport.ErrMiss
	}
	return v, nil
}

func (c *stubCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.store[key] = value
	return nil
}

func (c *stubCache) Del(_ context.Context, keys ...string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dels++
	var n int64
	for _, k := range keys {
		if _, ok := c.store[k]; ok {
			delete(c.store, k)
			n++
		}
	}
	return n, nil
}

func (c *stubCache) Ping(context.Context) error { return nil }
func (c *stubCache) Close() error               { return nil }

func TestUnreadCountUsesCacheUntilInvalidated(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	cache := newStubCache()

	convID := mustSend(t, repo, "alice", "bob", "one").ConversationID

	uc := NewUnreadCountUseCase(repo, cache)
	first, err := uc.Execute(ctx, "bob")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if first[convID] != 1 || cache.sets != 1 {
		t.Fatalf("expected snapshot cached, counts=%v sets=%d", first, cache.sets)
	}

	// A second send without invalidation still serves the stale snapshot.
	mustSend(t, repo, "alice", "bob", "two")
	stale, _ := uc.Execute(ctx, "bob")
	if stale[convID] != 1 {
		t.Fatalf("expected cached value 1, got %d", stale[convID])
	}

	uc.Invalidate(ctx, "bob")
	fresh, _ := uc.Execute(ctx, "bob")
	if fresh[convID] != 2 {
		t.Fatalf("expected fresh value 2 after invalidation, got %d", fresh[convID])
	}
}
