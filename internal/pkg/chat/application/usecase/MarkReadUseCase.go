package usecase

import (
	"context"
	"errors"
	"fmt"

	chat "studychat/internal/pkg/chat/domain"
	repository "studychat/internal/pkg/chat/persistence/repository/port"
)

// MarkReadResult reports what a read-mark changed so the dispatcher can
// notify the other participant.
type MarkReadResult struct {
	ConversationID   string
	ReaderID         string
	OtherParticipant string
	MessagesUpdated  int
}

// MarkReadUseCase flips the read flag on every message addressed to the
// reader in a conversation and resets the reader's unread counter. Only a
// participant may mark; the other participant's counter is untouched.
type MarkReadUseCase struct {
	Repo repository.ChatRepository
}

func NewMarkReadUseCase(repo repository.ChatRepository) *MarkReadUseCase {
	return &MarkReadUseCase{Repo: repo}
}

func (uc *MarkReadUseCase) Execute(ctx context.Context, readerID, conversationID string) (*MarkReadResult, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", chat.ErrValidation)
	}

	conv, err := uc.Repo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return nil, err
		}
		return nil, persistence(err)
	}
	if !conv.HasParticipant(readerID) {
		return nil, fmt.Errorf("%w: not a participant", chat.ErrNotAuthorized)
	}

	updated, err := uc.Repo.MarkRead(ctx, conversationID, readerID)
	if err != nil {
		return nil, persistence(err)
	}

	return &MarkReadResult{
		ConversationID:   conversationID,
		ReaderID:         readerID,
		OtherParticipant: conv.OtherParticipant(readerID),
		MessagesUpdated:  updated,
	}, nil
}
