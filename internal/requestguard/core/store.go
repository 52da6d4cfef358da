// Package core defines the shared counter store contract.
package core

import (
	"context"
	"time"
)

// CounterStore is the shared TTL key-value backend the guards lean on.
// Incr must be atomic and must set the expiry only when the key is
// created, so a window's deadline is fixed by its first request.
type CounterStore interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}
