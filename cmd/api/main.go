package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"fitbook/internal/api"
	"fitbook/internal/booking"
	"fitbook/internal/config"
	"fitbook/internal/database"
	"fitbook/internal/events"
	"fitbook/internal/export"
	"fitbook/internal/geo"
	"fitbook/internal/logging"
	"fitbook/internal/metrics"
	"fitbook/internal/models"
	"fitbook/internal/recommend"
	"fitbook/internal/repository"
	"fitbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedDatabase(ctx, db, cfg, &logger); err != nil {
		return err
	}

	redisClient, cache := initCache(ctx, cfg, &logger)
	defer func() { _ = repository.Close(redisClient) }()

	eventBus := events.NewEventBus()

	geocoder := geo.NewClient(cfg.Geocoder, &logger)
	engine := recommend.NewEngine(db, cache, geocoder,
		time.Duration(cfg.Cache.TTLSeconds)*time.Second, cfg.Cache.MaxResults, &logger)
	recommend.NewInvalidator(engine, &logger).Bind(eventBus)

	recomputeWorker := worker.NewRecomputeWorker(engine, redisClient, worker.Config{
		MaxAttempts:   5,
		RetryDelay:    2 * time.Second,
		MaxRetryDelay: time.Minute,
		QueueSize:     cfg.Booking.WorkerQueueSize,
	}, &logger)
	recomputeWorker.Bind(eventBus)
	go recomputeWorker.Start(ctx)

	resolver := booking.NewConflictResolver(db, &logger)
	trainings := booking.NewTrainingService(db, resolver, eventBus, cfg.Booking.CancellationNoticeMinutes, &logger)

	exporter := export.NewExporter(db, cfg.Exports.Path, &logger)
	mirror := initSheetsMirror(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, db, trainings, engine, exporter, mirror, eventBus, &logger)

	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare data directory: %w", err)
		}
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}
	return db, nil
}

func initCache(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, repository.RecommendationCache) {
	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	memory := repository.NewMemoryRecommendationCache(ttl)

	if !cfg.Cache.UseRedis {
		return nil, memory
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		// Клиент оставляем: failover-кэш сам переключится, когда redis поднимется
		logger.Warn().Err(err).Msg("redis connection failed at startup")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}

	redisCache := repository.NewRedisRecommendationCache(redisClient, ttl)
	if cfg.Cache.FailoverMemory {
		return redisClient, repository.NewFailoverRecommendationCache(redisCache, memory, logger)
	}
	return redisClient, redisCache
}

func initSheetsMirror(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *export.SheetsMirror {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.ScheduleSpreadSheetID == "" {
		return nil
	}

	mirror, err := export.NewSheetsMirror(cfg.Google.GoogleCredentialsFile, cfg.Google.ScheduleSpreadSheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := mirror.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Str("service_account", mirror.GetServiceAccountEmail()).Msg("google sheets connection test failed")
	}

	logger.Info().Msg("google sheets connected")
	return mirror
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

type seedConfig struct {
	Trainers []models.Trainer `yaml:"trainers"`
	Gyms     []seedGym        `yaml:"gyms"`
	Clients  []models.Client  `yaml:"clients"`
}

type seedGym struct {
	models.Gym `yaml:",inline"`
	NoSchedule bool `yaml:"no_schedule"`
	Rooms      []struct {
		Capacity int64 `yaml:"capacity"`
	} `yaml:"rooms"`
}

// seedDatabase loads the initial roster from the seed file. A database that
// already has trainers is left untouched.
func seedDatabase(ctx context.Context, db *database.DB, cfg *config.Config, logger *zerolog.Logger) error {
	seedPath := os.Getenv("SEED_PATH")
	if seedPath == "" {
		seedPath = cfg.SeedFile
	}
	if seedPath == "" {
		return nil
	}

	existing, err := db.ListTrainers(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	data, err := os.ReadFile(seedPath)
	if err != nil {
		logger.Error().Err(err).Str("seed_path", seedPath).Msg("read seed file")
		return err
	}

	var seed seedConfig
	if err := yaml.Unmarshal(data, &seed); err != nil {
		logger.Error().Err(err).Str("seed_path", seedPath).Msg("parse seed file")
		return err
	}

	for i := range seed.Trainers {
		if err := db.CreateTrainer(ctx, &seed.Trainers[i]); err != nil {
			return err
		}
	}
	for i := range seed.Gyms {
		gym := seed.Gyms[i].Gym
		if err := db.CreateGym(ctx, &gym, seed.Gyms[i].NoSchedule); err != nil {
			return err
		}
		for _, r := range seed.Gyms[i].Rooms {
			room := models.Room{GymID: gym.ID, Capacity: r.Capacity}
			if err := db.CreateRoom(ctx, &room); err != nil {
				return err
			}
		}
	}
	for i := range seed.Clients {
		if err := db.CreateClient(ctx, &seed.Clients[i]); err != nil {
			return err
		}
	}

	logger.Info().
		Int("trainers", len(seed.Trainers)).
		Int("gyms", len(seed.Gyms)).
		Int("clients", len(seed.Clients)).
		Msg("database seeded")
	return nil
}
