package categories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MosinFAM/blog-posts/internal/models"

	"github.com/redis/go-redis/v9"
)

// Cache - внешний кэш списка категорий
type Cache interface {
	// Get возвращает nil, nil при промахе
	Get(ctx context.Context) ([]models.Category, error)
	Set(ctx context.Context, categories []models.Category) error
	Invalidate(ctx context.Context) error
}

// RedisCache хранит список категорий одной JSON-строкой
type RedisCache struct {
	rc  *redis.Client
	key string
	ttl time.Duration
}

func NewRedisCache(rc *redis.Client, key string, ttl time.Duration) *RedisCache {
	if key == "" {
		key = "blog:categories"
	}
	return &RedisCache{rc: rc, key: key, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context) ([]models.Category, error) {
	result, err := c.rc.Get(ctx, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}

	var categories []models.Category
	if err := json.Unmarshal([]byte(result), &categories); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return categories, nil
}

func (c *RedisCache) Set(ctx context.Context, categories []models.Category) error {
	if categories == nil {
		categories = []models.Category{}
	}
	data, err := json.Marshal(categories)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	if err := c.rc.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	return c.rc.Del(ctx, c.key).Err()
}
