// Package cache memoises owned-id expansions of the activity hierarchy.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "directory:owned:"

// Noop never stores anything.
type Noop struct{}

// Get always misses.
func (Noop) Get(context.Context, int64) ([]int64, bool, error) { return nil, false, nil }

// Set discards ids.
func (Noop) Set(context.Context, int64, []int64) error { return nil }

// Invalidate does nothing.
func (Noop) Invalidate(context.Context, ...int64) error { return nil }

// RedisOwnership stores owned-id sets as comma separated strings with a TTL.
type RedisOwnership struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisOwnership wraps client. A zero ttl keeps entries until invalidated.
func NewRedisOwnership(client redis.UniversalClient, ttl time.Duration) *RedisOwnership {
	return &RedisOwnership{client: client, ttl: ttl}
}

// Open connects to addr and verifies the connection with PING.
func Open(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// Get returns the cached set for ownerID.
func (c *RedisOwnership) Get(ctx context.Context, ownerID int64) ([]int64, bool, error) {
	raw, err := c.client.Get(ctx, Key(ownerID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	ids, err := DecodeIDs(raw)
	if err != nil {
		return nil, false, fmt.Errorf("decode cached owned ids for %d: %w", ownerID, err)
	}
	return ids, true, nil
}

// Set caches ids for ownerID.
func (c *RedisOwnership) Set(ctx context.Context, ownerID int64, ids []int64) error {
	return c.client.Set(ctx, Key(ownerID), EncodeIDs(ids), c.ttl).Err()
}

// Invalidate drops the entries of every owner listed.
func (c *RedisOwnership) Invalidate(ctx context.Context, ownerIDs ...int64) error {
	if len(ownerIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ownerIDs))
	for _, id := range ownerIDs {
		keys = append(keys, Key(id))
	}
	return c.client.Del(ctx, keys...).Err()
}

// Key is the Redis key holding the owned set of ownerID.
func Key(ownerID int64) string {
	return keyPrefix + strconv.FormatInt(ownerID, 10)
}

// EncodeIDs renders ids as "1,2,3".
func EncodeIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

// DecodeIDs parses the EncodeIDs form. The empty string is an empty set.
func DecodeIDs(raw string) ([]int64, error) {
	if raw == "" {
		return []int64{}, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
