// Package worker rebuilds recommendation lists in the background so reads
// after an invalidation hit a warm cache instead of paying the geocoding cost.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"fitbook/internal/events"
	"fitbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Recomputer rebuilds one client's recommendation list.
type Recomputer interface {
	Recompute(ctx context.Context, clientID int64) (*models.RecommendationList, error)
}

// Config tunes the recompute worker. A recompute mostly fails because the
// geocoder is down, which recovers within seconds to minutes, so retry delays
// double from RetryDelay up to MaxRetryDelay.
type Config struct {
	MaxAttempts   int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	QueueSize     int
}

type recomputeTask struct {
	ClientID   int64     `json:"client_id"`
	RetryCount int       `json:"retry_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecomputeWorker consumes recompute tasks from redis with an in-memory
// channel fallback, retrying with exponential backoff.
type RecomputeWorker struct {
	engine        Recomputer
	redis         *redis.Client
	cfg           Config
	queue         chan recomputeTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	logger        *zerolog.Logger
}

// NewRecomputeWorker builds a worker with sane defaults.
func NewRecomputeWorker(engine Recomputer, redisClient *redis.Client, cfg Config, logger *zerolog.Logger) *RecomputeWorker {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 1 * time.Minute
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}

	return &RecomputeWorker{
		engine:        engine,
		redis:         redisClient,
		cfg:           cfg,
		queue:         make(chan recomputeTask, cfg.QueueSize),
		redisQueueKey: "recommendations:queue",
		deadLetterKey: "recommendations:deadletter",
		pollInterval:  2 * time.Second,
		logger:        logger,
	}
}

// retryDelay doubles per attempt, clamped at the configured ceiling.
func (w *RecomputeWorker) retryDelay(attempt int) time.Duration {
	d := w.cfg.RetryDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= w.cfg.MaxRetryDelay {
			return w.cfg.MaxRetryDelay
		}
	}
	return d
}

// Bind enqueues a recompute for every client a domain event touches.
func (w *RecomputeWorker) Bind(bus *events.EventBus) {
	trainingHandler := func(event *events.Event) error {
		var payload events.TrainingEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		for _, clientID := range payload.ClientIDs {
			w.Enqueue(context.Background(), clientID)
		}
		return nil
	}
	for _, eventType := range []string{
		events.EventTrainingBooked,
		events.EventTrainingUpdated,
		events.EventTrainingCancelled,
	} {
		bus.Subscribe(eventType, trainingHandler)
	}

	clientHandler := func(event *events.Event) error {
		var payload events.ClientEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		w.Enqueue(context.Background(), payload.ClientID)
		return nil
	}
	bus.Subscribe(events.EventClientLocationChanged, clientHandler)
	bus.Subscribe(events.EventClientPreferencesChanged, clientHandler)
}

// Enqueue schedules a recompute via redis or the in-memory queue.
func (w *RecomputeWorker) Enqueue(ctx context.Context, clientID int64) {
	task := recomputeTask{ClientID: clientID, CreatedAt: time.Now()}

	// Try redis first for durability.
	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Msg("recompute_worker: redis push failed, fallback to memory queue")
		} else {
			return
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("client_id", clientID).Msg("recompute_worker: queue full, task dropped")
	}
}

// Start launches main loop; stops when ctx is done.
func (w *RecomputeWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("recompute_worker: started")
	defer w.logger.Info().Msg("recompute_worker: stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, t)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case t := <-w.queue:
			w.processTask(ctx, t)
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *RecomputeWorker) tryLocalQueue() (recomputeTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return recomputeTask{}, false
	}
}

func (w *RecomputeWorker) tryRedis(ctx context.Context) (recomputeTask, bool) {
	if w.redis == nil {
		return recomputeTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return recomputeTask{}, false
		}
		w.logger.Warn().Err(err).Msg("recompute_worker: redis BRPOP error")
		return recomputeTask{}, false
	}
	if len(res) != 2 {
		return recomputeTask{}, false
	}
	var task recomputeTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Warn().Err(err).Msg("recompute_worker: decode redis task")
		return recomputeTask{}, false
	}
	return task, true
}

func (w *RecomputeWorker) processTask(ctx context.Context, task recomputeTask) {
	_, err := w.engine.Recompute(ctx, task.ClientID)
	if err == nil {
		return
	}

	task.RetryCount++
	if task.RetryCount >= w.cfg.MaxAttempts {
		w.logger.Error().Err(err).
			Int64("client_id", task.ClientID).
			Msg("recompute_worker: retries exhausted")
		w.pushDeadLetter(ctx, task)
		return
	}

	w.logger.Warn().Err(err).
		Int64("client_id", task.ClientID).
		Int("attempt", task.RetryCount).
		Msg("recompute_worker: recompute failed, will retry")

	select {
	case <-ctx.Done():
	case <-time.After(w.retryDelay(task.RetryCount)):
		w.requeue(ctx, task)
	}
}

func (w *RecomputeWorker) requeue(ctx context.Context, task recomputeTask) {
	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err == nil {
			return
		}
	}
	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("client_id", task.ClientID).Msg("recompute_worker: queue full on retry")
	}
}

func (w *RecomputeWorker) pushRedis(ctx context.Context, task recomputeTask) error {
	if w.redis == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *RecomputeWorker) pushDeadLetter(ctx context.Context, task recomputeTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Warn().Err(err).Int64("client_id", task.ClientID).Msg("recompute_worker: deadletter push failed")
	}
}
