package chat

import "errors"

// Error taxonomy shared by every chat operation. Use cases return these
// wrapped; presentation layers map them to transport codes.
var (
	// ErrValidation covers missing or malformed required fields.
	ErrValidation = errors.New("chat: validation failed")
	// ErrNotAuthorized means the actor is not a participant or owner.
	ErrNotAuthorized = errors.New("chat: not authorized")
	// ErrNotFound means the referenced conversation or message does not
	// exist. Ownership mismatches on delete also surface as not-found so
	// callers cannot probe for message existence.
	ErrNotFound = errors.New("chat: not found")
	// ErrPersistence indicates a store failure; never retried server-side.
	ErrPersistence = errors.New("chat: persistence error")
)
