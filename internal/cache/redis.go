package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stockx/market-engine/internal/model"
)

const keyPrefix = "stock:ticks:"

// RedisCache implements PriceCache on Redis with JSON values and a 1-hour
// TTL per entry.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache creates a Redis-backed price cache.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func stateKey(instrumentID string) string {
	return keyPrefix + instrumentID
}

func (c *RedisCache) Get(ctx context.Context, instrumentID string) (*model.PriceState, error) {
	data, err := c.rdb.Get(ctx, stateKey(instrumentID)).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", instrumentID, err)
	}

	var state model.PriceState
	if err := json.Unmarshal(data, &state); err != nil {
		// A corrupt entry behaves like a miss; the caller rebuilds it.
		return nil, ErrMiss
	}
	return &state, nil
}

func (c *RedisCache) Set(ctx context.Context, instrumentID string, state *model.PriceState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, stateKey(instrumentID), data, TTL).Err()
}

func (c *RedisCache) Delete(ctx context.Context, instrumentID string) error {
	return c.rdb.Del(ctx, stateKey(instrumentID)).Err()
}

// Clear removes every price-state key via SCAN, keeping Redis responsive
// even with a large universe.
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
