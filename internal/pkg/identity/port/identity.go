package port

import (
	"context"
	"errors"
)

// Identity is the authenticated principal plus its display profile, used at
// connection time and to decorate message/conversation responses.
type Identity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// ErrInvalidCredential covers missing, malformed, expired or unknown-user
// bearer credentials.
var ErrInvalidCredential = errors.New("identity: invalid credential")

// Verifier maps a bearer credential to an identity. Credential issuance is
// owned by the auth service; this side only validates.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Directory resolves display profiles by user id.
type Directory interface {
	FindByID(ctx context.Context, id string) (*Identity, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]Identity, error)
}
