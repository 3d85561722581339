package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	chat "studychat/internal/pkg/chat/domain"
	repository "studychat/internal/pkg/chat/persistence/repository/port"
	identity "studychat/internal/pkg/identity/port"
)

// ConversationSummary is one row of the caller's conversation list: the
// canonical record decorated with participant profiles, the last message
// and the caller's own unread count.
type ConversationSummary struct {
	Conversation chat.Conversation
	Participants []identity.Identity
	LastMessage  *chat.Message
	UnreadCount  int
}

// ListConversationsUseCase returns the caller's conversations ordered by
// last-message time descending, optionally filtered by the other
// participant's display name.
type ListConversationsUseCase struct {
	Repo      repository.ChatRepository
	Directory identity.Directory
}

func NewListConversationsUseCase(repo repository.ChatRepository, directory identity.Directory) *ListConversationsUseCase {
	return &ListConversationsUseCase{Repo: repo, Directory: directory}
}

// Execute lists every conversation containing userID.
func (uc *ListConversationsUseCase) Execute(ctx context.Context, userID string) ([]ConversationSummary, error) {
	return uc.list(ctx, userID, "")
}

// Search filters the list to conversations whose other participant's name
// contains term, case-insensitive.
func (uc *ListConversationsUseCase) Search(ctx context.Context, userID, term string) ([]ConversationSummary, error) {
	if strings.TrimSpace(term) == "" {
		return nil, fmt.Errorf("%w: search term is required", chat.ErrValidation)
	}
	return uc.list(ctx, userID, strings.ToLower(strings.TrimSpace(term)))
}

func (uc *ListConversationsUseCase) list(ctx context.Context, userID, loweredTerm string) ([]ConversationSummary, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", chat.ErrValidation)
	}

	convs, err := uc.Repo.ListConversations(ctx, userID)
	if err != nil {
		return nil, persistence(err)
	}

	profiles, err := uc.resolveProfiles(ctx, convs)
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		other := conv.OtherParticipant(userID)
		otherProfile := profiles[other]
		if loweredTerm != "" && !strings.Contains(strings.ToLower(otherProfile.Name), loweredTerm) {
			continue
		}

		summary := ConversationSummary{
			Conversation: conv,
			UnreadCount:  conv.UnreadFor(userID),
			Participants: []identity.Identity{
				profileOrBare(profiles, conv.ParticipantLow),
				profileOrBare(profiles, conv.ParticipantHigh),
			},
		}

		if conv.LastMessageID != nil {
			last, err := uc.Repo.ListMessages(ctx, conv.ID, 1, 0, false)
			if err != nil && !errors.Is(err, chat.ErrNotFound) {
				return nil, persistence(err)
			}
			if len(last) > 0 {
				msg := last[0]
				summary.LastMessage = &msg
			}
		}

		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (uc *ListConversationsUseCase) resolveProfiles(ctx context.Context, convs []chat.Conversation) (map[string]identity.Identity, error) {
	if uc.Directory == nil {
		return map[string]identity.Identity{}, nil
	}
	seen := make(map[string]bool, len(convs)*2)
	ids := make([]string, 0, len(convs)*2)
	for _, conv := range convs {
		for _, id := range []string{conv.ParticipantLow, conv.ParticipantHigh} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	profiles, err := uc.Directory.FindByIDs(ctx, ids)
	if err != nil {
		return nil, persistence(err)
	}
	return profiles, nil
}

func profileOrBare(profiles map[string]identity.Identity, id string) identity.Identity {
	if p, ok := profiles[id]; ok {
		return p
	}
	return identity.Identity{ID: id}
}
