package usecase

import (
	"context"
	"errors"
	"fmt"

	chat "studychat/internal/pkg/chat/domain"
	repository "studychat/internal/pkg/chat/persistence/repository/port"
)

// DeleteMessageUseCase removes a message on behalf of its sender. A
// requester who is not the sender gets not-found, never forbidden, so the
// operation leaks nothing about which message ids exist.
type DeleteMessageUseCase struct {
	Repo repository.ChatRepository
}

func NewDeleteMessageUseCase(repo repository.ChatRepository) *DeleteMessageUseCase {
	return &DeleteMessageUseCase{Repo: repo}
}

func (uc *DeleteMessageUseCase) Execute(ctx context.Context, requesterID, messageID string) error {
	if messageID == "" {
		return fmt.Errorf("%w: message id is required", chat.ErrValidation)
	}

	err := uc.Repo.DeleteMessage(ctx, messageID, requesterID)
	if err == nil || errors.Is(err, chat.ErrNotFound) {
		return err
	}
	return persistence(err)
}
