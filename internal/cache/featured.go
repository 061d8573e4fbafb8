package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/studex/apiserver/types"
)

const featuredKey = keyPrefix + "projects:featured"

// FeaturedCache keeps the featured listing set in Redis between rotations.
type FeaturedCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewFeaturedCache(rdb *redis.Client, ttl time.Duration) *FeaturedCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &FeaturedCache{rdb: rdb, ttl: ttl}
}

// GetFeatured reports ok=false on a cache miss.
func (c *FeaturedCache) GetFeatured(ctx context.Context) ([]types.Project, bool, error) {
	raw, err := c.rdb.Get(ctx, featuredKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("featured get: %w", err)
	}
	var projects []types.Project
	if err := json.Unmarshal(raw, &projects); err != nil {
		// A payload from an older layout is treated as a miss.
		_ = c.rdb.Del(ctx, featuredKey).Err()
		return nil, false, nil
	}
	return projects, true, nil
}

func (c *FeaturedCache) SetFeatured(ctx context.Context, projects []types.Project) error {
	if projects == nil {
		projects = []types.Project{}
	}
	raw, err := json.Marshal(projects)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, featuredKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("featured set: %w", err)
	}
	return nil
}

func (c *FeaturedCache) InvalidateFeatured(ctx context.Context) error {
	if err := c.rdb.Del(ctx, featuredKey).Err(); err != nil {
		return fmt.Errorf("featured del: %w", err)
	}
	return nil
}
