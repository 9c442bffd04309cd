package deduplication

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Repository records a key only if it is absent. SetNX reports true when the
// key was recorded by this call.
type Repository interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	GetCacheSize(ctx context.Context, prefix string) (int, error)
}

type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func (r *RedisRepository) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	success, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX failed: %w", err)
	}
	return success, nil
}

func (r *RedisRepository) GetCacheSize(ctx context.Context, prefix string) (int, error) {
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	count := 0
	for iter.Next(ctx) {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan failed: %w", err)
	}
	return count, nil
}

// MemoryRepository is a bounded LRU window. Every entry shares the TTL given
// at construction; the per-call ttl is ignored.
type MemoryRepository struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, int64]
}

func NewMemoryRepository(maxEntries int, ttl time.Duration) *MemoryRepository {
	return &MemoryRepository{
		cache: expirable.NewLRU[string, int64](maxEntries, nil, ttl),
	}
}

func (r *MemoryRepository) SetNX(_ context.Context, key string, _ interface{}, _ time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Peek skips expired entries and does not refresh recency
	if _, ok := r.cache.Peek(key); ok {
		return false, nil
	}
	r.cache.Add(key, time.Now().Unix())
	return true, nil
}

func (r *MemoryRepository) GetCacheSize(_ context.Context, _ string) (int, error) {
	return r.cache.Len(), nil
}
