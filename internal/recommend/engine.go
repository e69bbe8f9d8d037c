// Package recommend computes per-client training recommendations: the
// planned catalog filtered by preferences and availability, ordered by
// distance from the client's address.
package recommend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"fitbook/internal/database"
	"fitbook/internal/geo"
	"fitbook/internal/metrics"
	"fitbook/internal/models"
	"fitbook/internal/repository"
	"fitbook/internal/timeslot"

	"github.com/rs/zerolog"
)

type Engine struct {
	db       *database.DB
	cache    repository.RecommendationCache
	geocoder geo.Geocoder
	ttl      time.Duration
	limit    int
	logger   *zerolog.Logger

	now func() time.Time
}

func NewEngine(db *database.DB, cache repository.RecommendationCache, geocoder geo.Geocoder, ttl time.Duration, limit int, logger *zerolog.Logger) *Engine {
	if limit <= 0 {
		limit = models.MaxRecommendations
	}
	return &Engine{
		db:       db,
		cache:    cache,
		geocoder: geocoder,
		ttl:      ttl,
		limit:    limit,
		logger:   logger,
		now:      time.Now,
	}
}

// Get serves from cache when fresh, otherwise recomputes and refreshes the
// cache. Cache infrastructure errors degrade to a recompute.
func (e *Engine) Get(ctx context.Context, clientID int64) (*models.RecommendationList, error) {
	cached, err := e.cache.Get(ctx, clientID)
	if err != nil {
		e.logger.Warn().Err(err).Int64("client_id", clientID).Msg("recommendation cache read failed")
	}
	if cached != nil && cached.FreshAt(e.now(), e.ttl) {
		metrics.IncCacheHit()
		return cached, nil
	}

	metrics.IncCacheMiss()
	return e.Recompute(ctx, clientID)
}

// Recompute always rebuilds the list and stores it, bypassing any cached copy.
func (e *Engine) Recompute(ctx context.Context, clientID int64) (*models.RecommendationList, error) {
	list, err := e.compute(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Set(ctx, list); err != nil {
		// Stale cache is acceptable; the list is still correct.
		e.logger.Warn().Err(err).Int64("client_id", clientID).Msg("recommendation cache write failed")
	}
	return list, nil
}

// Invalidate drops the cached list so the next Get recomputes.
func (e *Engine) Invalidate(ctx context.Context, clientID int64) error {
	return e.cache.Invalidate(ctx, clientID)
}

func (e *Engine) compute(ctx context.Context, clientID int64) (*models.RecommendationList, error) {
	client, err := e.db.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client.Address.Empty() {
		return nil, fmt.Errorf("client %d has no location: %w", clientID, database.ErrNotFound)
	}

	list := &models.RecommendationList{
		ClientID:   clientID,
		ComputedAt: e.now(),
		Results:    []models.Recommendation{},
	}

	origin, err := e.geocoder.Geocode(ctx, client.Address)
	if err != nil {
		return nil, err
	}
	if origin == nil {
		// Без координат клиента ранжировать нечем: пустой список
		e.logger.Info().Int64("client_id", clientID).Msg("client address did not resolve")
		return list, nil
	}

	catalog, err := e.db.GetTrainingCatalog(ctx)
	if err != nil {
		return nil, err
	}

	freeSlots, bookedSlots, err := e.clientSlots(ctx, client.ScheduleID)
	if err != nil {
		return nil, err
	}

	// одна тренировка на адрес: координаты зала запрашиваем один раз
	resolved := make(map[models.Address]*models.Coordinates)

	for _, entry := range catalog {
		if entry.Window == nil || entry.Gym == nil {
			continue
		}
		if entry.Training.HasClient(clientID) {
			continue
		}
		if client.Preferences != nil && !client.Preferences.WantsType(entry.Training.Type) {
			continue
		}
		if !e.slotSuits(entry.Window, freeSlots, bookedSlots) {
			continue
		}

		coords, ok := resolved[entry.Gym.Address]
		if !ok {
			coords, err = e.geocoder.Geocode(ctx, entry.Gym.Address)
			if err != nil {
				return nil, err
			}
			resolved[entry.Gym.Address] = coords
		}
		if coords == nil {
			continue
		}

		list.Results = append(list.Results, models.Recommendation{
			TrainingID: entry.Training.ID,
			Type:       entry.Training.Type,
			Price:      entry.Training.Price,
			TrainerID:  entry.Training.TrainerID,
			GymID:      entry.Gym.ID,
			DistanceKm: Haversine(*origin, *coords),
		})
	}

	sort.Slice(list.Results, func(i, j int) bool {
		if list.Results[i].DistanceKm != list.Results[j].DistanceKm {
			return list.Results[i].DistanceKm < list.Results[j].DistanceKm
		}
		return list.Results[i].TrainingID < list.Results[j].TrainingID
	})

	if len(list.Results) > e.limit {
		list.Results = list.Results[:e.limit]
	}

	return list, nil
}

type slot struct {
	day      int
	startMin int
	endMin   int
}

func (e *Engine) clientSlots(ctx context.Context, scheduleID int64) (free, booked []slot, err error) {
	windows, err := e.db.ScheduleWindows(ctx, scheduleID)
	if err != nil {
		return nil, nil, err
	}

	for _, w := range windows {
		startMin, endMin, err := timeslot.ValidRange(w.StartTime, w.EndTime)
		if err != nil {
			return nil, nil, fmt.Errorf("stored window %d has bad times: %w", w.ID, err)
		}
		s := slot{day: w.DayOfWeek, startMin: startMin, endMin: endMin}
		if w.Booked() {
			booked = append(booked, s)
		} else {
			free = append(free, s)
		}
	}
	return free, booked, nil
}

// slotSuits accepts a candidate that avoids the client's booked slots and,
// when the client declared free windows, fits inside one of them. A client
// with no declared free windows is treated as fully available.
func (e *Engine) slotSuits(w *models.Window, free, booked []slot) bool {
	startMin, endMin, err := timeslot.ValidRange(w.StartTime, w.EndTime)
	if err != nil {
		return false
	}

	for _, b := range booked {
		if b.day == w.DayOfWeek && timeslot.Overlaps(startMin, endMin, b.startMin, b.endMin) {
			return false
		}
	}

	if len(free) == 0 {
		return true
	}
	for _, f := range free {
		if f.day == w.DayOfWeek && timeslot.FitsWithin(startMin, endMin, f.startMin, f.endMin) {
			return true
		}
	}
	return false
}
