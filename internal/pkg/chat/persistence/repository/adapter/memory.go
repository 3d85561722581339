package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	chat "studychat/internal/pkg/chat/domain"
	repository "studychat/internal/pkg/chat/persistence/repository/port"
)

var _ repository.ChatRepository = (*PgChatRepository)(nil)
var _ repository.ChatRepository = (*MemChatRepository)(nil)

// MemChatRepository is a mutex-guarded in-memory implementation of the
// chat repository. It backs the test suites and lets the server run
// without a database (state is lost on restart, like presence).
type MemChatRepository struct {
	mu     sync.RWMutex
	now    repository.Clock
	seq    int64
	msgs   map[string]*chat.Message      // messageID -> message
	convs  map[string]*chat.Conversation // conversationID -> conversation
	byPair map[string]string             // "low|high" -> conversationID
	order  map[string][]string           // conversationID -> messageIDs in insertion order
}

func NewMemChatRepository(now repository.Clock) *MemChatRepository {
	if now == nil {
		now = time.Now
	}
	return &MemChatRepository{
		now:    now,
		msgs:   make(map[string]*chat.Message),
		convs:  make(map[string]*chat.Conversation),
		byPair: make(map[string]string),
		order:  make(map[string][]string),
	}
}

func pairKey(a, b string) string {
	low, high := chat.CanonicalPair(a, b)
	return low + "|" + high
}

func (r *MemChatRepository) SaveMessage(_ context.Context, m chat.Message) (*chat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	key := pairKey(m.SenderID, m.ReceiverID)
	convID, ok := r.byPair[key]
	if !ok {
		low, high := chat.CanonicalPair(m.SenderID, m.ReceiverID)
		convID = uuid.NewString()
		r.byPair[key] = convID
		r.convs[convID] = &chat.Conversation{
			ID:              convID,
			ParticipantLow:  low,
			ParticipantHigh: high,
			CreatedAt:       now,
			Unread:          make(map[string]int, 2),
		}
	}

	r.seq++
	saved := m
	saved.ID = fmt.Sprintf("%08d-%s", r.seq, uuid.NewString())
	saved.ConversationID = convID
	saved.CreatedAt = now
	saved.UpdatedAt = now

	r.msgs[saved.ID] = &saved
	r.order[convID] = append(r.order[convID], saved.ID)

	conv := r.convs[convID]
	conv.LastMessageID = &saved.ID
	at := saved.CreatedAt
	conv.LastMessageAt = &at
	conv.Unread[m.ReceiverID]++

	out := saved
	return &out, nil
}

func (r *MemChatRepository) GetConversation(_ context.Context, conversationID string) (*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.convs[conversationID]
	if !ok {
		return nil, chat.ErrNotFound
	}
	return cloneConversation(conv), nil
}

func (r *MemChatRepository) GetConversationByPair(_ context.Context, a, b string) (*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	convID, ok := r.byPair[pairKey(a, b)]
	if !ok {
		return nil, chat.ErrNotFound
	}
	return cloneConversation(r.convs[convID]), nil
}

func (r *MemChatRepository) ListConversations(_ context.Context, userID string) ([]chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []chat.Conversation
	for _, conv := range r.convs {
		if conv.HasParticipant(userID) {
			out = append(out, *cloneConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].LastMessageAt, out[j].LastMessageAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	return out, nil
}

func (r *MemChatRepository) ListMessages(_ context.Context, conversationID string, limit, offset int, asc bool) ([]chat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	ids := r.order[conversationID]
	ordered := make([]chat.Message, 0, len(ids))
	if asc {
		for _, id := range ids {
			ordered = append(ordered, *r.msgs[id])
		}
	} else {
		for i := len(ids) - 1; i >= 0; i-- {
			ordered = append(ordered, *r.msgs[ids[i]])
		}
	}

	if offset >= len(ordered) {
		return nil, nil
	}
	end := offset + limit
	if end > len(ordered) {
		end = len(ordered)
	}
	return ordered[offset:end], nil
}

func (r *MemChatRepository) MarkRead(_ context.Context, conversationID, readerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.convs[conversationID]
	if !ok {
		return 0, chat.ErrNotFound
	}

	updated := 0
	for _, id := range r.order[conversationID] {
		msg := r.msgs[id]
		if msg.ReceiverID == readerID && !msg.Read {
			msg.Read = true
			msg.UpdatedAt = r.now().UTC()
			updated++
		}
	}
	conv.Unread[readerID] = 0
	return updated, nil
}

func (r *MemChatRepository) DeleteMessage(_ context.Context, messageID, requesterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.msgs[messageID]
	if !ok || msg.SenderID != requesterID {
		return chat.ErrNotFound
	}

	delete(r.msgs, messageID)
	ids := r.order[msg.ConversationID]
	for i, id := range ids {
		if id == messageID {
			r.order[msg.ConversationID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func cloneConversation(conv *chat.Conversation) *chat.Conversation {
	out := *conv
	out.Unread = make(map[string]int, len(conv.Unread))
	for k, v := range conv.Unread {
		out.Unread[k] = v
	}
	if conv.LastMessageID != nil {
		id := *conv.LastMessageID
		out.LastMessageID = &id
	}
	if conv.LastMessageAt != nil {
		at := *conv.LastMessageAt
		out.LastMessageAt = &at
	}
	return &out
}
