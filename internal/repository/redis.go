package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fitbook/internal/config"
	"fitbook/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisRecommendationCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisRecommendationCache(client *redis.Client, ttl time.Duration) *RedisRecommendationCache {
	return &RedisRecommendationCache{
		client: client,
		ttl:    ttl,
	}
}

func cacheKey(clientID int64) string {
	return fmt.Sprintf("recommendations:%d", clientID)
}

func (r *RedisRecommendationCache) Get(ctx context.Context, clientID int64) (*models.RecommendationList, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, cacheKey(clientID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendations from redis: %w", err)
	}

	var list models.RecommendationList
	if err := json.Unmarshal([]byte(val), &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recommendations: %w", err)
	}

	return &list, nil
}

func (r *RedisRecommendationCache) Set(ctx context.Context, list *models.RecommendationList) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}

	if err := r.client.Set(ctx, cacheKey(list.ClientID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set recommendations in redis: %w", err)
	}

	return nil
}

func (r *RedisRecommendationCache) Invalidate(ctx context.Context, clientID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, cacheKey(clientID)).Err(); err != nil {
		return fmt.Errorf("failed to delete recommendations from redis: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
