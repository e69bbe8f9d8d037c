package repository

import (
	"context"
	"testing"
	"time"

	"fitbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRecommendationCache(t *testing.T) {
	cache := NewMemoryRecommendationCache(time.Hour)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		list := &models.RecommendationList{ClientID: 1, Results: []models.Recommendation{{TrainingID: 5}}}
		require.NoError(t, cache.Set(ctx, list))

		got, err := cache.Get(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(5), got.Results[0].TrainingID)
	})

	t.Run("Miss", func(t *testing.T) {
		got, err := cache.Get(ctx, 404)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Invalidate", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, &models.RecommendationList{ClientID: 2}))
		require.NoError(t, cache.Invalidate(ctx, 2))

		got, err := cache.Get(ctx, 2)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Expiry", func(t *testing.T) {
		short := NewMemoryRecommendationCache(time.Nanosecond)
		require.NoError(t, short.Set(ctx, &models.RecommendationList{ClientID: 3}))

		time.Sleep(time.Millisecond)

		got, err := short.Get(ctx, 3)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
