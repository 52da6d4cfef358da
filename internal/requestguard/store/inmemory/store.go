// Package inmemory provides a TTL counter store for tests and single
// process deployments.
package inmemory

import (
	"context"
	"sync"
	"time"
)

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

type valueEntry struct {
	data      []byte
	expiresAt time.Time
}

// Store is an in-process CounterStore with TTL expiry.
type Store struct {
	mu       sync.Mutex
	counters map[string]*counterEntry
	values   map[string]valueEntry
	now      func() time.Time

	cleanupEvery time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the store clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithCleanupEvery overrides the janitor interval.
func WithCleanupEvery(d time.Duration) Option {
	return func(s *Store) { s.cleanupEvery = d }
}

// New constructs an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		counters:     make(map[string]*counterEntry),
		values:       make(map[string]valueEntry),
		now:          time.Now,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Incr atomically increments a counter. The expiry is set only when the
// key is created or has lapsed.
func (s *Store) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.counters[key]
	if entry == nil || !entry.expiresAt.After(now) {
		entry = &counterEntry{expiresAt: now.Add(ttl)}
		s.counters[key] = entry
	}
	entry.count++
	return entry.count, nil
}

// Get returns the current counter value, zero when absent or expired.
func (s *Store) Get(_ context.Context, key string) (int64, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.counters[key]
	if entry == nil || !entry.expiresAt.After(now) {
		return 0, nil
	}
	return entry.count, nil
}

// TTL returns the remaining lifetime of a counter, zero when absent.
func (s *Store) TTL(_ context.Context, key string) (time.Duration, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.counters[key]
	if entry == nil || !entry.expiresAt.After(now) {
		return 0, nil
	}
	return entry.expiresAt.Sub(now), nil
}

// GetBytes returns a stored value and whether it exists.
func (s *Store) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(now) {
		delete(s.values, key)
		return nil, false, nil
	}
	return entry.data, true, nil
}

// SetBytes stores a value. A non-positive ttl keeps the value until
// overwritten.
func (s *Store) SetBytes(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := valueEntry{data: value}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = entry
	return nil
}

// Close releases store resources.
func (s *Store) Close() error {
	return nil
}

// Cleanup removes expired entries.
func (s *Store) Cleanup() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.counters {
		if !entry.expiresAt.After(now) {
			delete(s.counters, key)
		}
	}
	for key, entry := range s.values {
		if !entry.expiresAt.IsZero() && !entry.expiresAt.After(now) {
			delete(s.values, key)
		}
	}
}

// StartJanitor runs periodic cleanup until the context is done.
func (s *Store) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}
	ticker := time.NewTicker(s.cleanupEvery)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}
