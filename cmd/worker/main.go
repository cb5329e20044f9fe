// Package main provides the background worker entry point. The worker
// drains the projection repair queue and tails the Redis event channels
// for operational visibility.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/voyatra/voyatra/internal/config"
	"github.com/voyatra/voyatra/internal/domain/event"
	"github.com/voyatra/voyatra/internal/infrastructure/eventbus"
	"github.com/voyatra/voyatra/internal/infrastructure/eventstore"
	mongodbinfra "github.com/voyatra/voyatra/internal/infrastructure/mongodb"
	"github.com/voyatra/voyatra/internal/infrastructure/projector"
	"github.com/voyatra/voyatra/internal/infrastructure/repair"
	"github.com/voyatra/voyatra/internal/worker"
)

const (
	startupTimeout         = 30 * time.Second
	mongoDisconnectTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		//nolint:sloglint // No context available before logger setup
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := setupLogger(cfg)
	logger.Info("starting voyatra worker")

	if runErr := run(cfg, logger); runErr != nil {
		logger.Error("worker failed", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startupCtx, startupCancel := context.WithTimeout(ctx, startupTimeout)
	defer startupCancel()

	mongoClient, err := connectMongo(startupCtx, cfg)
	if err != nil {
		return fmt.Errorf("mongodb: %w", err)
	}
	defer disconnectMongo(mongoClient, logger)

	db := mongoClient.Database(cfg.MongoDB.Database)

	eventLog := eventstore.NewMongoEventLog(
		db.Collection(mongodbinfra.CollectionEvents),
		eventstore.WithMongoLogger(logger),
	)
	store := eventstore.NewStore(eventLog,
		eventstore.WithLogger(logger),
		eventstore.WithAppendRetries(cfg.Store.AppendRetries),
	)

	bookingProjector := projector.NewBookingProjector(
		store,
		db.Collection(mongodbinfra.CollectionBookingReadModel),
		logger,
	)
	statsProjector := projector.NewStatsProjector(
		db.Collection(mongodbinfra.CollectionDailyStats),
		db.Collection(mongodbinfra.CollectionEvents),
		logger,
	)

	repairQueue := repair.NewMongoQueue(
		db.Collection(mongodbinfra.CollectionRepairQueue),
		logger,
	)

	repairWorker := worker.NewRepairWorker(
		repairQueue,
		map[string]worker.Rebuilder{
			projector.BookingProjectionName: bookingProjector,
			projector.StatsProjectionName:   statsProjector,
		},
		logger,
		worker.RepairWorkerConfig{
			PollInterval: cfg.Repair.PollInterval,
			BatchSize:    cfg.Repair.BatchSize,
			MaxRetries:   cfg.Repair.MaxRetries,
			Enabled:      cfg.Repair.Enabled,
		},
	)

	workerErr := make(chan error, 1)
	if cfg.Repair.Enabled {
		go func() {
			workerErr <- repairWorker.Start(ctx)
		}()
	} else {
		logger.Info("repair worker disabled by configuration")
	}

	var subscriber *eventbus.Subscriber
	if cfg.Publisher.Enabled {
		redisClient, redisErr := connectRedis(startupCtx, cfg)
		if redisErr != nil {
			return fmt.Errorf("redis: %w", redisErr)
		}
		defer func() { _ = redisClient.Close() }()

		subscriber, err = startEventTap(ctx, redisClient, cfg, logger)
		if err != nil {
			return fmt.Errorf("event tap: %w", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err = <-workerErr:
		if err != nil {
			return fmt.Errorf("repair worker: %w", err)
		}
		logger.Info("repair worker stopped")
	}

	cancel()
	if subscriber != nil {
		if shutdownErr := subscriber.Shutdown(); shutdownErr != nil {
			logger.Error("subscriber shutdown error", slog.String("error", shutdownErr.Error()))
		}
	}

	logger.Info("worker shutdown complete")
	return nil
}

// startEventTap subscribes to every known event channel and logs each
// delivery. This gives operators a live view of the fan-out without
// touching the store.
func startEventTap(
	ctx context.Context,
	client *redis.Client,
	cfg *config.Config,
	logger *slog.Logger,
) (*eventbus.Subscriber, error) {
	subscriber := eventbus.NewSubscriber(
		client,
		eventbus.WithSubscriberLogger(logger),
		eventbus.WithSubscriberChannelPrefix(cfg.Publisher.ChannelPrefix),
	)

	tap := func(ctx context.Context, evt event.Event) error {
		logger.DebugContext(ctx, "event published",
			slog.String("event_id", evt.ID.String()),
			slog.String("event_type", evt.Type.String()),
			slog.String("aggregate_id", evt.AggregateID),
			slog.Int("version", evt.Version),
		)
		return nil
	}

	for _, eventType := range event.KnownTypes() {
		if err := subscriber.Subscribe(eventType, tap); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", eventType, err)
		}
	}

	go func() {
		if err := subscriber.Start(ctx); err != nil {
			logger.Error("subscriber stopped", slog.String("error", err.Error()))
		}
	}()

	return subscriber, nil
}

func connectMongo(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	clientOpts := options.Client().
		ApplyURI(cfg.MongoDB.URI).
		SetMaxPoolSize(cfg.MongoDB.MaxPoolSize)

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.MongoDB.Timeout)
	defer cancel()

	if pingErr := client.Ping(pingCtx, nil); pingErr != nil {
		return nil, fmt.Errorf("failed to ping: %w", pingErr)
	}

	return client, nil
}

func connectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	return client, nil
}

func disconnectMongo(client *mongo.Client, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		logger.Error("mongodb disconnect error", slog.String("error", err.Error()))
	}
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}

	switch cfg.Log.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
