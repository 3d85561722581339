package port

import (
	"context"
	"time"
)

// Cache is the minimal key-value contract the application depends on; the
// chat layer uses it for per-user unread-count snapshots. Implementations
// must be safe for concurrent use, and all methods are context-aware so
// callers control timeouts.
type Cache interface {
	// Get fetches the value for key. Misses return ("", ErrMiss); a non-nil
	// error other than ErrMiss means a transport or server failure.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key. Zero or negative TTL means no expiration.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Del removes keys and returns how many were removed.
	Del(ctx context.Context, keys ...string) (int64, error)

	// Ping verifies connectivity with the backend.
	Ping(ctx context.Context) error

	// Close releases resources held by the cache.
	Close() error
}

// ErrMiss signals a cache miss in a typed way so callers can distinguish
// misses from transport errors.
var ErrMiss = errMiss{}

type errMiss struct{}

func (e errMiss) Error() string { return "cache: miss" }
