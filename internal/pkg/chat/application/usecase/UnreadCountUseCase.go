package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cacheport "studychat/internal/infrastructure/cache/port"
	chat "studychat/internal/pkg/chat/domain"
	repository "studychat/internal/pkg/chat/persistence/repository/port"
)

const unreadCacheTTL = 30 * time.Second

// UnreadCountUseCase reports the caller's unread counters per conversation,
// omitting conversations with nothing unread. Results are cached briefly;
// send and mark-read invalidate through Invalidate.
type UnreadCountUseCase struct {
	Repo  repository.ChatRepository
	Cache cacheport.Cache // optional
}

func NewUnreadCountUseCase(repo repository.ChatRepository, cache cacheport.Cache) *UnreadCountUseCase {
	return &UnreadCountUseCase{Repo: repo, Cache: cache}
}

func (uc *UnreadCountUseCase) Execute(ctx context.Context, userID string) (map[string]int, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", chat.ErrValidation)
	}

	// Cache trouble never fails the read; misses and errors both fall
	// through to the store.
	key := unreadCacheKey(userID)
	if uc.Cache != nil {
		if raw, err := uc.Cache.Get(ctx, key); err == nil {
			counts := make(map[string]int)
			if json.Unmarshal([]byte(raw), &counts) == nil {
				return counts, nil
			}
		}
	}

	convs, err := uc.Repo.ListConversations(ctx, userID)
	if err != nil {
		return nil, persistence(err)
	}

	counts := make(map[string]int)
	for _, conv := range convs {
		if n := conv.UnreadFor(userID); n > 0 {
			counts[conv.ID] = n
		}
	}

	if uc.Cache != nil {
		if raw, err := json.Marshal(counts); err == nil {
			_ = uc.Cache.Set(ctx, key, string(raw), unreadCacheTTL)
		}
	}
	return counts, nil
}

// Invalidate drops the cached snapshot for each user, typically the two
// participants touched by a send or read-mark.
func (uc *UnreadCountUseCase) Invalidate(ctx context.Context, userIDs ...string) {
	if uc.Cache == nil || len(userIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, unreadCacheKey(id))
	}
	_, _ = uc.Cache.Del(ctx, keys...)
}

func unreadCacheKey(userID string) string {
	return "chat:unread:" + userID
}
