// Package ratelimit provides the counter store used to throttle outbound
// mails. The store is injected so callers can be tested without Redis.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore counts events under a key with a time-to-live set when the
// counter is first incremented.
type CounterStore interface {
	// Incr increments the counter and returns the new value. The TTL is
	// applied only when the increment created the counter.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Count returns the current value, 0 when the key is absent or expired.
	Count(ctx context.Context, key string) (int64, error)
}

type redisStore struct {
	client *redis.Client
}

// NewRedisStore returns a CounterStore backed by the shared Redis client.
func NewRedisStore(client *redis.Client) CounterStore {
	return &redisStore{client: client}
}

func (s *redisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 && ttl > 0 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (s *redisStore) Count(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore returns an in-process CounterStore for tests and dev mode.
func NewMemoryStore() CounterStore {
	return &memoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

// NewMemoryStoreWithClock allows tests to control expiry.
func NewMemoryStoreWithClock(now func() time.Time) CounterStore {
	return &memoryStore{entries: make(map[string]memoryEntry), now: now}
}

func (s *memoryStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || (!e.expiresAt.IsZero() && !e.expiresAt.After(now)) {
		e = memoryEntry{}
		if ttl > 0 {
			e.expiresAt = now.Add(ttl)
		}
	}
	e.count++
	s.entries[key] = e
	return e.count, nil
}

func (s *memoryStore) Count(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return 0, nil
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(s.now()) {
		delete(s.entries, key)
		return 0, nil
	}
	return e.count, nil
}
