package usecase

import (
	"context"
	"errors"
	"fmt"

	chat "studychat/internal/pkg/chat/domain"
	repository "studychat/internal/pkg/chat/persistence/repository/port"
)

// GetMessagesInput pages a conversation's history. The default view is
// newest first; Ascending flips to creation order for backfill reads.
type GetMessagesInput struct {
	ConversationID string
	RequesterID    string
	Limit          int
	Offset         int
	Ascending      bool
}

// GetMessagesUseCase fetches messages for one conversation.
type GetMessagesUseCase struct {
	Repo repository.ChatRepository
}

func NewGetMessagesUseCase(repo repository.ChatRepository) *GetMessagesUseCase {
	return &GetMessagesUseCase{Repo: repo}
}

func (uc *GetMessagesUseCase) Execute(ctx context.Context, in GetMessagesInput) ([]chat.Message, error) {
	if in.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", chat.ErrValidation)
	}

	conv, err := uc.Repo.GetConversation(ctx, in.ConversationID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return nil, err
		}
		return nil, persistence(err)
	}
	if !conv.HasParticipant(in.RequesterID) {
		return nil, fmt.Errorf("%w: not a participant", chat.ErrNotAuthorized)
	}

	msgs, err := uc.Repo.ListMessages(ctx, in.ConversationID, in.Limit, in.Offset, in.Ascending)
	if err != nil {
		return nil, persistence(err)
	}
	return msgs, nil
}
