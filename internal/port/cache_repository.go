package port

import (
	"context"
	"time"
)

type IdempotencyStore interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency forgets a key so a failed request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}

type Locker interface {
	// AcquireLock returns a token identifying the holder when the lock was free
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)

	// ReleaseLock deletes the lock only if token still owns it
	ReleaseLock(ctx context.Context, key, token string) error
}

type CacheRepository interface {
	IdempotencyStore
	Locker
}
