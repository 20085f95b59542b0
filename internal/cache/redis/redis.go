package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"caserag/internal/cache"
)

// Client is the subset of *redis.Client the adapter uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Adapter implements cache.Cache on Redis.
type Adapter struct {
	client Client
	prefix string
}

var _ cache.Cache = (*Adapter)(nil)

// Connect dials addr and verifies the connection.
func Connect(ctx context.Context, addr, password string, db int) (*Adapter, *redis.Client, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewAdapter(rc), rc, nil
}

func NewAdapter(client Client) *Adapter {
	return &Adapter{client: client, prefix: cache.KeyPrefix}
}

func (a *Adapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	result, err := a.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get from cache: %w", err)
	}
	return result, true, nil
}

func (a *Adapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := a.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in cache: %w", err)
	}
	return nil
}

// Clear deletes every key under the module prefix. Other keys in the same
// database are left alone.
func (a *Adapter) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := a.client.Scan(ctx, cursor, a.prefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			if err := a.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete from cache: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
