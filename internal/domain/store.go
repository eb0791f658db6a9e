package domain

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by EphemeralStore.Get when the key is absent or expired.
var ErrKeyNotFound = errors.New("key not found")

// EphemeralStore is the TTL-capable key-value store backing OTPs, counters,
// lockouts, reset tokens and the token blacklist. The store is authoritative
// for expiry.
type EphemeralStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	// Del reports how many of the keys were actually removed.
	Del(ctx context.Context, keys ...string) (int64, error)
	// Incr atomically increments key and (re)arms its TTL, returning the new value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// TTL returns the remaining lifetime, or ErrKeyNotFound.
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
