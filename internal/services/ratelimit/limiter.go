// Package ratelimit provides a sliding-window request limiter. The redis
// implementation shares the window across replicas; the in-memory one
// backs lite mode.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type RedisLimiter struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisLimiter(client *redis.Client, logger *zap.Logger) *RedisLimiter {
	return &RedisLimiter{client: client, logger: logger}
}

// Allow records one request under key and reports whether the window
// still has capacity. Implemented as a ZSET of request timestamps pruned
// to the window on every call.
func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now().UnixNano()
	windowStart := now - window.Nanoseconds()

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))
	count := pipe.ZCount(ctx, key, fmt.Sprintf("%d", windowStart), "+inf")
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	current, err := count.Result()
	if err != nil {
		return false, fmt.Errorf("failed to get count: %w", err)
	}
	if current >= int64(limit) {
		return false, nil
	}

	if err := r.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(now),
		Member: fmt.Sprintf("%d", now),
	}).Err(); err != nil {
		return false, fmt.Errorf("failed to add rate limit entry: %w", err)
	}
	r.client.Expire(ctx, key, window)

	return true, nil
}

// MemoryLimiter is the single-process fallback used when redis is not
// configured.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{entries: make(map[string][]time.Time)}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window)

	kept := m.entries[key][:0]
	for _, t := range m.entries[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit {
		m.entries[key] = kept
		return false, nil
	}

	m.entries[key] = append(kept, now)
	return true, nil
}
