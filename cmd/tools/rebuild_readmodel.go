// Command rebuild_readmodel rebuilds projection read models from the
// event log. With -booking it refolds a single booking; without it the
// whole booking read model is rebuilt.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/voyatra/voyatra/internal/config"
	"github.com/voyatra/voyatra/internal/infrastructure/eventstore"
	mongodbinfra "github.com/voyatra/voyatra/internal/infrastructure/mongodb"
	"github.com/voyatra/voyatra/internal/infrastructure/projector"
)

const rebuildTimeout = 5 * time.Minute

func main() {
	bookingID := flag.String("booking", "", "rebuild only this booking aggregate")
	verify := flag.Bool("verify", false, "verify read model consistency instead of rebuilding")
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if runErr := run(cfg, logger, *bookingID, *verify); runErr != nil {
		logger.Error("rebuild failed", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, bookingID string, verify bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), rebuildTimeout)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoDB.URI))
	if err != nil {
		return fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	if pingErr := client.Ping(ctx, nil); pingErr != nil {
		return fmt.Errorf("failed to ping mongodb: %w", pingErr)
	}

	db := client.Database(cfg.MongoDB.Database)

	eventLog := eventstore.NewMongoEventLog(
		db.Collection(mongodbinfra.CollectionEvents),
		eventstore.WithMongoLogger(logger),
	)
	store := eventstore.NewStore(eventLog, eventstore.WithLogger(logger))

	bookingProjector := projector.NewBookingProjector(
		store,
		db.Collection(mongodbinfra.CollectionBookingReadModel),
		logger,
	)

	switch {
	case verify && bookingID != "":
		consistent, verifyErr := bookingProjector.VerifyConsistency(ctx, bookingID)
		if verifyErr != nil {
			return fmt.Errorf("verify %s: %w", bookingID, verifyErr)
		}
		if !consistent {
			return fmt.Errorf("booking %s read model is out of sync with the event log", bookingID)
		}
		logger.Info("read model is consistent", slog.String("booking_id", bookingID))

	case bookingID != "":
		if rebuildErr := bookingProjector.RebuildOne(ctx, bookingID); rebuildErr != nil {
			return fmt.Errorf("rebuild %s: %w", bookingID, rebuildErr)
		}
		logger.Info("booking read model rebuilt", slog.String("booking_id", bookingID))

	default:
		if rebuildErr := bookingProjector.RebuildAll(ctx); rebuildErr != nil {
			return fmt.Errorf("rebuild all: %w", rebuildErr)
		}
		logger.Info("booking read model fully rebuilt")
	}

	return nil
}
