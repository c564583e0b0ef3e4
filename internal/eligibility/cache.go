package eligibility

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache stores computed eligibility sets per (election, criteria version,
// membership version) so repeated checks during a voting window avoid
// rebuilding snapshots.
type Cache interface {
	Get(ctx context.Context, key string) ([]uuid.UUID, bool, error)
	Set(ctx context.Context, key string, ids []uuid.UUID, ttl time.Duration) error
	// InvalidateElection drops every cached set for the election, regardless
	// of version.
	InvalidateElection(ctx context.Context, electionID uuid.UUID) error
}

func cacheKey(kind string, scope Scope, criteriaVersion int, membershipVersion int64) string {
	return fmt.Sprintf("elig:%s:%s:c%d:m%d", kind, scope.ElectionID, criteriaVersion, membershipVersion)
}

// RedisCache is the production cache, shared across instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]uuid.UUID, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("eligibility cache get: %w", err)
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false, fmt.Errorf("eligibility cache decode: %w", err)
	}
	return ids, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, ids []uuid.UUID, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("eligibility cache encode: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("eligibility cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) InvalidateElection(ctx context.Context, electionID uuid.UUID) error {
	var cursor uint64
	patterns := []string{
		fmt.Sprintf("elig:voters:%s:*", electionID),
		fmt.Sprintf("elig:candidates:%s:*", electionID),
	}
	for _, pattern := range patterns {
		for {
			keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
			if err != nil {
				return fmt.Errorf("eligibility cache scan: %w", err)
			}
			if len(keys) > 0 {
				if err := c.client.Del(ctx, keys...).Err(); err != nil {
					return fmt.Errorf("eligibility cache del: %w", err)
				}
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
	return nil
}

// InMemoryCache backs unit tests and single-instance development.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]uuid.UUID
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{entries: make(map[string][]uuid.UUID)}
}

func (c *InMemoryCache) Get(_ context.Context, key string) ([]uuid.UUID, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids, ok := c.entries[key]
	return ids, ok, nil
}

func (c *InMemoryCache) Set(_ context.Context, key string, ids []uuid.UUID, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ids
	return nil
}

func (c *InMemoryCache) InvalidateElection(_ context.Context, electionID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefixes := []string{
		fmt.Sprintf("elig:voters:%s:", electionID),
		fmt.Sprintf("elig:candidates:%s:", electionID),
	}
	for key := range c.entries {
		for _, prefix := range prefixes {
			if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
				delete(c.entries, key)
			}
		}
	}
	return nil
}
