package usecase

import (
	"context"
	"errors"

	chat "studychat/internal/pkg/chat/domain"
	repository "studychat/internal/pkg/chat/persistence/repository/port"
)

// SendMessageInput carries the data needed to send a new message.
type SendMessageInput struct {
	SenderID   string
	ReceiverID string
	Content    string
	Kind       chat.MessageKind
}

// SendMessageUseCase persists a message and its conversation bookkeeping.
// Hexagonal: depends on the repository port, returns the domain entity.
type SendMessageUseCase struct {
	Repo repository.ChatRepository
}

func NewSendMessageUseCase(repo repository.ChatRepository) *SendMessageUseCase {
	return &SendMessageUseCase{Repo: repo}
}

// Execute validates and appends the message. The repository creates the
// conversation lazily on first contact, advances the last-message pointer
// and increments the receiver's unread counter; the store assigns the
// authoritative timestamp.
func (uc *SendMessageUseCase) Execute(ctx context.Context, in SendMessageInput) (*chat.Message, error) {
	msg, err := chat.NewMessage(in.SenderID, in.ReceiverID, in.Content, in.Kind)
	if err != nil {
		return nil, err
	}

	saved, err := uc.Repo.SaveMessage(ctx, *msg)
	if err != nil {
		if errors.Is(err, chat.ErrValidation) {
			return nil, err
		}
		return nil, persistence(err)
	}
	return saved, nil
}
