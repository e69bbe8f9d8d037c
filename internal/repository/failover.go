package repository

import (
	"context"
	"sync/atomic"
	"time"

	"fitbook/internal/models"

	"github.com/rs/zerolog"
)

// FailoverRecommendationCache serves from primary until it errors, then
// switches to fallback and probes primary again after a minute.
type FailoverRecommendationCache struct {
	primary  RecommendationCache
	fallback RecommendationCache
	logger   *zerolog.Logger
	isDown   atomic.Bool
	// downSince holds unix nanos of the last failed primary call, so callers
	// on different goroutines can read it without a lock.
	downSince atomic.Int64
}

func NewFailoverRecommendationCache(primary, fallback RecommendationCache, logger *zerolog.Logger) *FailoverRecommendationCache {
	return &FailoverRecommendationCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverRecommendationCache) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary recommendation cache failed, falling back to memory")
	r.isDown.Store(true)
	r.downSince.Store(time.Now().UnixNano())
}

// shouldProbe reports whether the primary has been down long enough to retry.
func (r *FailoverRecommendationCache) shouldProbe() bool {
	return time.Since(time.Unix(0, r.downSince.Load())) > time.Minute
}

func (r *FailoverRecommendationCache) Get(ctx context.Context, clientID int64) (*models.RecommendationList, error) {
	if !r.isDown.Load() {
		list, err := r.primary.Get(ctx, clientID)
		if err == nil {
			return list, nil
		}
		r.markDown(err)
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && r.shouldProbe() {
		list, err := r.primary.Get(ctx, clientID)
		if err == nil {
			r.isDown.Store(false)
			return list, nil
		}
		r.downSince.Store(time.Now().UnixNano())
	}

	return r.fallback.Get(ctx, clientID)
}

func (r *FailoverRecommendationCache) Set(ctx context.Context, list *models.RecommendationList) error {
	if !r.isDown.Load() {
		err := r.primary.Set(ctx, list)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.Set(ctx, list)
}

func (r *FailoverRecommendationCache) Invalidate(ctx context.Context, clientID int64) error {
	if !r.isDown.Load() {
		err := r.primary.Invalidate(ctx, clientID)
		if err == nil {
			// the fallback may hold a stale copy from a previous outage
			_ = r.fallback.Invalidate(ctx, clientID)
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.Invalidate(ctx, clientID)
}
