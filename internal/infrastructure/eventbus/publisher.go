// Package eventbus provides Redis Pub/Sub delivery of stored events to
// out-of-process consumers. Delivery is best effort: a dropped message is
// recoverable by replaying the event log.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/voyatra/voyatra/internal/domain/event"
	"github.com/voyatra/voyatra/internal/infrastructure/eventstore"
)

const defaultChannelPrefix = "events:"

// Publisher publishes stored events to Redis Pub/Sub channels, one channel
// per event type.
type Publisher struct {
	client        *redis.Client
	logger        *slog.Logger
	channelPrefix string
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherLogger sets the logger for the publisher.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithPublisherChannelPrefix sets a prefix for Redis channel names.
func WithPublisherChannelPrefix(prefix string) PublisherOption {
	return func(p *Publisher) {
		p.channelPrefix = prefix
	}
}

// NewPublisher creates a Redis-backed event publisher.
func NewPublisher(client *redis.Client, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		client:        client,
		logger:        slog.Default(),
		channelPrefix: defaultChannelPrefix,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Publish serializes the event and publishes it to its type channel.
func (p *Publisher) Publish(ctx context.Context, evt event.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channel := p.channelName(evt.Type)

	if publishErr := p.client.Publish(ctx, channel, data).Err(); publishErr != nil {
		return fmt.Errorf("failed to publish event to Redis: %w", publishErr)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("event_id", evt.ID.String()),
		slog.String("event_type", evt.Type.String()),
		slog.String("aggregate_id", evt.AggregateID),
		slog.String("channel", channel),
	)

	return nil
}

// AsHandler adapts the publisher into a store fan-out handler. Publish
// failures are reported to the store, which logs them without affecting
// the append.
func (p *Publisher) AsHandler() eventstore.Handler {
	return func(ctx context.Context, evt event.Event) error {
		return p.Publish(ctx, evt)
	}
}

func (p *Publisher) channelName(eventType event.Type) string {
	return p.channelPrefix + eventType.String()
}
