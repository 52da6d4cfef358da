// Package redisstore provides the Redis-backed counter store.
package redisstore

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Config captures Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store is a CounterStore backed by Redis.
type Store struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return &Store{client: client}, nil
}

// Incr atomically increments a counter, setting the expiry only when the
// key is created. INCR plus EXPIRE NX in one pipeline keeps the window
// deadline fixed by the first request.
func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	counter := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return counter.Val(), nil
}

// Get returns the current counter value, zero when absent.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	value, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return value, err
}

// TTL returns the remaining lifetime of a key, zero when absent.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// GetBytes returns a stored value and whether it exists.
func (s *Store) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// SetBytes stores a value with an optional TTL.
func (s *Store) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
