package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storyplay-server/shared/interfaces"
	"storyplay-server/shared/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Compile-time check to ensure redisGraphCache implements GraphCache
var _ interfaces.GraphCache = (*redisGraphCache)(nil)

// redisGraphCache кэширует StoryContent в Redis как JSON с TTL.
// Контент опубликованной истории неизменяем, поэтому кэш инвалидируется
// только по TTL или явным Invalidate при переиздании истории.
type redisGraphCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisGraphCache creates a Redis-backed story content cache.
func NewRedisGraphCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) interfaces.GraphCache {
	return &redisGraphCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisGraphCache"),
	}
}

func graphCacheKey(storyID uuid.UUID) string {
	return fmt.Sprintf("story_graph:%s", storyID)
}

// Get implements interfaces.GraphCache.
func (c *redisGraphCache) Get(ctx context.Context, storyID uuid.UUID) (*models.StoryContent, error) {
	raw, err := c.client.Get(ctx, graphCacheKey(storyID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		c.logger.Error("Failed to read story graph from cache", zap.String("storyID", storyID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка при чтении графа из кэша: %w", err)
	}

	var content models.StoryContent
	if err := json.Unmarshal(raw, &content); err != nil {
		// Битую запись считаем промахом и перечитываем из БД.
		c.logger.Warn("Corrupt story graph cache entry, dropping", zap.String("storyID", storyID.String()), zap.Error(err))
		c.client.Del(ctx, graphCacheKey(storyID))
		return nil, models.ErrNotFound
	}
	return &content, nil
}

// Set implements interfaces.GraphCache.
func (c *redisGraphCache) Set(ctx context.Context, content *models.StoryContent) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("ошибка при сериализации графа: %w", err)
	}
	if err := c.client.Set(ctx, graphCacheKey(content.Story.ID), raw, c.ttl).Err(); err != nil {
		c.logger.Error("Failed to cache story graph", zap.String("storyID", content.Story.ID.String()), zap.Error(err))
		return fmt.Errorf("ошибка при записи графа в кэш: %w", err)
	}
	return nil
}

// Invalidate implements interfaces.GraphCache.
func (c *redisGraphCache) Invalidate(ctx context.Context, storyID uuid.UUID) error {
	if err := c.client.Del(ctx, graphCacheKey(storyID)).Err(); err != nil {
		c.logger.Error("Failed to invalidate story graph cache", zap.String("storyID", storyID.String()), zap.Error(err))
		return fmt.Errorf("ошибка при инвалидации кэша графа: %w", err)
	}
	return nil
}
