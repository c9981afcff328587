package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/phenrril/kitehouse/internal/domain"
)

const keyPrefix = "cart:"

// CartCache keeps rendered cart views in Redis under cart:{userID}.
type CartCache struct {
	client  goredis.UniversalClient
	baseTTL time.Duration
}

func NewCartCache(client goredis.UniversalClient, ttl time.Duration) *CartCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CartCache{client: client, baseTTL: ttl}
}

func (c *CartCache) Get(ctx context.Context, userID uuid.UUID) (*domain.CartView, error) {
	data, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	var view domain.CartView
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &view, nil
}

// Set stores the view with a jittered TTL so entries written together do not expire together.
func (c *CartCache) Set(ctx context.Context, userID uuid.UUID, v *domain.CartView) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	ttl := c.baseTTL + time.Duration(rand.Int63n(int64(c.baseTTL/4)+1))
	if err := c.client.Set(ctx, cacheKey(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *CartCache) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := c.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (c *CartCache) Purge(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 200).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 200 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis purge failed: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis purge failed: %w", err)
		}
	}
	return nil
}

func cacheKey(userID uuid.UUID) string {
	return keyPrefix + userID.String()
}

// NopCache is used when no Redis address is configured: every read misses.
type NopCache struct{}

func (NopCache) Get(context.Context, uuid.UUID) (*domain.CartView, error) {
	return nil, domain.ErrCacheMiss
}
func (NopCache) Set(context.Context, uuid.UUID, *domain.CartView) error { return nil }
func (NopCache) Delete(context.Context, uuid.UUID) error                 { return nil }
func (NopCache) Purge(context.Context) error                             { return nil }
