package repository

import (
	"context"
	"sync"
	"time"

	"fitbook/internal/models"
)

// RecommendationCache stores computed recommendation lists per client.
// Get returns nil, nil on a miss; expiry counts as a miss.
type RecommendationCache interface {
	Get(ctx context.Context, clientID int64) (*models.RecommendationList, error)
	Set(ctx context.Context, list *models.RecommendationList) error
	Invalidate(ctx context.Context, clientID int64) error
}

type MemoryRecommendationCache struct {
	entries sync.Map
	ttl     time.Duration
}

type memoryEntry struct {
	list      *models.RecommendationList
	expiresAt time.Time
}

func NewMemoryRecommendationCache(ttl time.Duration) *MemoryRecommendationCache {
	return &MemoryRecommendationCache{ttl: ttl}
}

func (r *MemoryRecommendationCache) Get(ctx context.Context, clientID int64) (*models.RecommendationList, error) {
	val, ok := r.entries.Load(clientID)
	if !ok {
		return nil, nil
	}

	entry := val.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		r.entries.Delete(clientID)
		return nil, nil
	}
	return entry.list, nil
}

func (r *MemoryRecommendationCache) Set(ctx context.Context, list *models.RecommendationList) error {
	r.entries.Store(list.ClientID, &memoryEntry{
		list:      list,
		expiresAt: time.Now().Add(r.ttl),
	})
	return nil
}

func (r *MemoryRecommendationCache) Invalidate(ctx context.Context, clientID int64) error {
	r.entries.Delete(clientID)
	return nil
}
