// Package main provides the API server entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/voyatra/voyatra/internal/application/appcore"
	"github.com/voyatra/voyatra/internal/config"
	"github.com/voyatra/voyatra/internal/domain/event"
	"github.com/voyatra/voyatra/internal/infrastructure/eventbus"
	"github.com/voyatra/voyatra/internal/infrastructure/eventstore"
	"github.com/voyatra/voyatra/internal/infrastructure/healthcheck"
	"github.com/voyatra/voyatra/internal/infrastructure/metrics"
	mongodbinfra "github.com/voyatra/voyatra/internal/infrastructure/mongodb"
	"github.com/voyatra/voyatra/internal/infrastructure/projector"
	"github.com/voyatra/voyatra/internal/infrastructure/repair"
)

// Container initialization timeouts.
const (
	containerInitTimeout   = 30 * time.Second
	redisPingTimeout       = 5 * time.Second
	mongoDisconnectTimeout = 10 * time.Second
	healthPingTimeout      = 3 * time.Second

	// readModelSyncSampleSize bounds the per-check comparison between the
	// event log and the booking read model.
	readModelSyncSampleSize = 25
)

// Container holds all application dependencies and manages their lifecycle.
type Container struct {
	// Configuration
	Config *config.Config
	Logger *slog.Logger

	// Infrastructure
	MongoDB     *mongo.Client
	MongoDBName string
	Redis       *redis.Client

	// Event store
	EventLog  eventstore.EventLog
	Store     *eventstore.Store
	Audit     *eventstore.AuditQueries
	Metrics   *metrics.StoreMetrics
	Publisher *eventbus.Publisher

	// Projections
	BookingProjector *projector.BookingProjector
	StatsProjector   *projector.StatsProjector

	// Repair
	RepairQueue repair.Queue

	// Health
	HealthCheckers []appcore.HealthChecker

	registerer prometheus.Registerer
}

// ContainerOption configures the Container.
type ContainerOption func(*Container)

// WithLogger sets a custom logger for the container.
func WithLogger(logger *slog.Logger) ContainerOption {
	return func(c *Container) {
		c.Logger = logger
	}
}

// WithMetricsRegisterer overrides the Prometheus registerer (for tests).
func WithMetricsRegisterer(registerer prometheus.Registerer) ContainerOption {
	return func(c *Container) {
		c.registerer = registerer
	}
}

// NewContainer creates a new dependency injection container.
// The wiring mode (real/mock) is determined by config.App.Mode.
func NewContainer(cfg *config.Config, opts ...ContainerOption) (*Container, error) {
	c := &Container{
		Config:     cfg,
		Logger:     slog.Default(),
		registerer: prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logWiringMode()

	if c.Config.App.IsMockMode() {
		c.setupMockStore()
		return c, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), containerInitTimeout)
	defer cancel()

	if err := c.setupMongoDB(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mongodb: %w", err)
	}

	if c.Config.Publisher.Enabled {
		if err := c.setupRedis(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
	}

	c.setupStore()
	c.setupHealthCheckers()

	return c, nil
}

// logWiringMode logs the current wiring mode configuration.
func (c *Container) logWiringMode() {
	mode := c.Config.App.Mode
	if mode == "" {
		mode = config.AppModeReal
	}

	if c.Config.App.IsMockMode() {
		c.Logger.Warn("container starting in MOCK mode",
			slog.String("mode", string(mode)),
			slog.Bool("is_development", c.Config.IsDevelopment()),
		)
	} else {
		c.Logger.Info("container starting in REAL mode",
			slog.String("mode", string(mode)),
			slog.Bool("is_development", c.Config.IsDevelopment()),
		)
	}
}

// setupMockStore wires an in-memory event store for local development.
// No MongoDB, Redis, projections, or repair queue are involved.
func (c *Container) setupMockStore() {
	c.EventLog = eventstore.NewMemoryEventLog()
	c.Metrics = metrics.NewStoreMetrics(c.registerer)
	c.Store = eventstore.NewStore(c.EventLog,
		eventstore.WithLogger(c.Logger),
		eventstore.WithMetrics(c.Metrics),
		eventstore.WithAppendRetries(c.Config.Store.AppendRetries),
	)
	c.Audit = eventstore.NewAuditQueries(c.Store)

	c.Logger.Debug("in-memory event store initialized")
}

// setupMongoDB initializes the MongoDB client and ensures indexes exist.
func (c *Container) setupMongoDB(ctx context.Context) error {
	clientOpts := options.Client().
		ApplyURI(c.Config.MongoDB.URI).
		SetMaxPoolSize(c.Config.MongoDB.MaxPoolSize)

	client, connectErr := mongo.Connect(clientOpts)
	if connectErr != nil {
		return fmt.Errorf("failed to connect: %w", connectErr)
	}

	pingCtx, cancel := context.WithTimeout(ctx, c.Config.MongoDB.Timeout)
	defer cancel()

	if pingErr := client.Ping(pingCtx, nil); pingErr != nil {
		return fmt.Errorf("failed to ping: %w", pingErr)
	}

	c.MongoDB = client
	c.MongoDBName = c.Config.MongoDB.Database

	c.Logger.InfoContext(ctx, "connected to MongoDB",
		slog.String("database", c.Config.MongoDB.Database),
	)

	// The unique stream/version index is what makes optimistic
	// concurrency work, so index creation is not optional.
	db := client.Database(c.Config.MongoDB.Database)
	indexCtx, indexCancel := context.WithTimeout(ctx, c.Config.MongoDB.Timeout)
	defer indexCancel()

	if indexErr := mongodbinfra.CreateAllIndexes(indexCtx, db); indexErr != nil {
		return fmt.Errorf("failed to create indexes: %w", indexErr)
	}

	c.Logger.InfoContext(ctx, "MongoDB indexes created successfully")

	return nil
}

// setupRedis initializes the Redis client for the event publisher.
func (c *Container) setupRedis(ctx context.Context) error {
	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
		PoolSize: c.Config.Redis.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if pingErr := c.Redis.Ping(pingCtx).Err(); pingErr != nil {
		return fmt.Errorf("failed to ping: %w", pingErr)
	}

	c.Logger.InfoContext(ctx, "connected to Redis",
		slog.String("addr", c.Config.Redis.Addr),
	)

	return nil
}

// setupStore wires the event store with its projections, publisher fan-out
// and repair hook.
func (c *Container) setupStore() {
	db := c.MongoDB.Database(c.MongoDBName)

	c.EventLog = eventstore.NewMongoEventLog(
		db.Collection(mongodbinfra.CollectionEvents),
		eventstore.WithMongoLogger(c.Logger),
	)
	c.Metrics = metrics.NewStoreMetrics(c.registerer)
	c.RepairQueue = repair.NewMongoQueue(
		db.Collection(mongodbinfra.CollectionRepairQueue),
		c.Logger,
	)

	storeOpts := []eventstore.StoreOption{
		eventstore.WithLogger(c.Logger),
		eventstore.WithMetrics(c.Metrics),
		eventstore.WithAppendRetries(c.Config.Store.AppendRetries),
	}
	if c.Config.Repair.Enabled {
		storeOpts = append(storeOpts,
			eventstore.WithProjectionFailureHook(repair.EnqueueHook(c.RepairQueue, c.Logger)))
	}

	c.Store = eventstore.NewStore(c.EventLog, storeOpts...)
	c.Audit = eventstore.NewAuditQueries(c.Store)

	// Projections run synchronously inside Append.
	c.BookingProjector = projector.NewBookingProjector(
		c.Store,
		db.Collection(mongodbinfra.CollectionBookingReadModel),
		c.Logger,
	)
	c.StatsProjector = projector.NewStatsProjector(
		db.Collection(mongodbinfra.CollectionDailyStats),
		db.Collection(mongodbinfra.CollectionEvents),
		c.Logger,
	)
	c.Store.RegisterProjection(c.BookingProjector)
	c.Store.RegisterProjection(c.StatsProjector)

	// The publisher is a fire-and-forget handler for every known type.
	if c.Redis != nil {
		c.Publisher = eventbus.NewPublisher(
			c.Redis,
			eventbus.WithPublisherLogger(c.Logger),
			eventbus.WithPublisherChannelPrefix(c.Config.Publisher.ChannelPrefix),
		)
		publish := c.Publisher.AsHandler()
		for _, eventType := range event.KnownTypes() {
			c.Store.RegisterHandler(eventType, publish)
		}
	}

	c.Logger.Debug("event store initialized",
		slog.Int("append_retries", c.Config.Store.AppendRetries),
		slog.Bool("publisher", c.Publisher != nil),
		slog.Bool("repair_hook", c.Config.Repair.Enabled),
	)
}

// setupHealthCheckers builds the readiness checkers for the real wiring.
func (c *Container) setupHealthCheckers() {
	db := c.MongoDB.Database(c.MongoDBName)

	c.HealthCheckers = []appcore.HealthChecker{
		&mongoPingChecker{client: c.MongoDB},
		healthcheck.NewEventLogChecker(db.Collection(mongodbinfra.CollectionEvents)),
		healthcheck.NewReadModelSyncChecker(
			db.Collection(mongodbinfra.CollectionEvents),
			db.Collection(mongodbinfra.CollectionBookingReadModel),
			readModelSyncSampleSize,
		),
	}

	if c.Config.Repair.Enabled {
		c.HealthCheckers = append(c.HealthCheckers,
			healthcheck.NewRepairQueueChecker(c.RepairQueue, c.Config.Repair.BacklogThreshold,
				healthcheck.WithPendingGauge(c.Metrics.RepairPending)))
	}
	if c.Redis != nil {
		c.HealthCheckers = append(c.HealthCheckers, &redisPingChecker{client: c.Redis})
	}
}

// Close releases all container resources.
func (c *Container) Close() error {
	var errs []error

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}

	if c.MongoDB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
		if err := c.MongoDB.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect: %w", err))
		}
		cancel()
	}

	return errors.Join(errs...)
}

// mongoPingChecker reports MongoDB connectivity.
type mongoPingChecker struct {
	client *mongo.Client
}

func (m *mongoPingChecker) Name() string { return "mongodb" }

func (m *mongoPingChecker) Check(ctx context.Context) appcore.HealthStatus {
	pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()

	status := appcore.HealthStatus{Healthy: true, CheckedAt: time.Now()}
	if err := m.client.Ping(pingCtx, nil); err != nil {
		status.Healthy = false
		status.Message = err.Error()
	}
	return status
}

// redisRateLimitAdapter narrows *redis.Client to what the rate limiter needs.
type redisRateLimitAdapter struct {
	client *redis.Client
}

func (a *redisRateLimitAdapter) Incr(ctx context.Context, key string) (int64, error) {
	return a.client.Incr(ctx, key).Result()
}

func (a *redisRateLimitAdapter) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return a.client.Expire(ctx, key, expiration).Err()
}

func (a *redisRateLimitAdapter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return a.client.TTL(ctx, key).Result()
}

// redisPingChecker reports Redis connectivity.
type redisPingChecker struct {
	client *redis.Client
}

func (r *redisPingChecker) Name() string { return "redis" }

func (r *redisPingChecker) Check(ctx context.Context) appcore.HealthStatus {
	pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()

	status := appcore.HealthStatus{Healthy: true, CheckedAt: time.Now()}
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		status.Healthy = false
		status.Message = err.Error()
	}
	return status
}
