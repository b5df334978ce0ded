package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/panthersecurity/panther/pkg/wire"
)

// PolicyCache fronts current-policy lookups. A miss is (nil, nil); errors
// are reserved for backend failures so callers can degrade to the store.
type PolicyCache interface {
	Get(ctx context.Context, key PolicyKey) (*wire.Policy, error)
	Set(ctx context.Context, key PolicyKey, p *wire.Policy) error
	Invalidate(ctx context.Context, key PolicyKey) error
}

func cacheKey(key PolicyKey) string {
	return fmt.Sprintf("policy:%s:%s:%s:%s", key.AppID, key.AppVersion, key.Env, key.DevicePlatform)
}

// RedisPolicyCache caches current policies in Redis with a TTL.
type RedisPolicyCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPolicyCache connects to addr. A zero ttl keeps entries until
// they are invalidated.
func NewRedisPolicyCache(addr, password string, db int, ttl time.Duration) *RedisPolicyCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisPolicyCache{client: rdb, ttl: ttl}
}

func (c *RedisPolicyCache) Get(ctx context.Context, key PolicyKey) (*wire.Policy, error) {
	payload, err := c.client.Get(ctx, cacheKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis policy get: %w", err)
	}
	var p wire.Policy
	if err := wire.DecodeStrictBytes([]byte(payload), &p); err != nil {
		// A value this build cannot decode is a miss, not a failure.
		return nil, nil
	}
	return &p, nil
}

func (c *RedisPolicyCache) Set(ctx context.Context, key PolicyKey, p *wire.Policy) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode cached policy: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(key), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis policy set: %w", err)
	}
	return nil
}

func (c *RedisPolicyCache) Invalidate(ctx context.Context, key PolicyKey) error {
	if err := c.client.Del(ctx, cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("redis policy invalidate: %w", err)
	}
	return nil
}

func (c *RedisPolicyCache) Close() error {
	return c.client.Close()
}

// NopPolicyCache disables caching; every Get is a miss.
type NopPolicyCache struct{}

func (NopPolicyCache) Get(context.Context, PolicyKey) (*wire.Policy, error) { return nil, nil }

func (NopPolicyCache) Set(context.Context, PolicyKey, *wire.Policy) error { return nil }

func (NopPolicyCache) Invalidate(context.Context, PolicyKey) error { return nil }
