package usecase

import (
	"fmt"

	chat "studychat/internal/pkg/chat/domain"
)

// persistence wraps a repository failure in the shared taxonomy so callers
// can map it to a transport code with a single errors.Is check.
func persistence(err error) error {
	return fmt.Errorf("%w: %v", chat.ErrPersistence, err)
}
