package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voyatra/voyatra/internal/domain/event"
)

// Default retry configuration constants.
const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultBackoffFactor  = 2.0
)

// EventHandler is a function that handles events received from Redis.
type EventHandler func(ctx context.Context, evt event.Event) error

// RetryConfig configures retry behavior for event handling.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     defaultMaxRetries,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
		BackoffFactor:  defaultBackoffFactor,
	}
}

// Subscriber consumes events published by Publisher and dispatches them to
// registered handlers with retry.
type Subscriber struct {
	client        *redis.Client
	pubsub        *redis.PubSub
	pubsubMu      sync.RWMutex
	handlers      map[event.Type][]EventHandler
	handlersMu    sync.RWMutex
	running       bool
	runningMu     sync.RWMutex
	shutdown      chan struct{}
	wg            sync.WaitGroup
	logger        *slog.Logger
	retryConfig   RetryConfig
	channelPrefix string
}

// SubscriberOption configures a Subscriber.
type SubscriberOption func(*Subscriber)

// WithSubscriberLogger sets the logger for the subscriber.
func WithSubscriberLogger(logger *slog.Logger) SubscriberOption {
	return func(s *Subscriber) {
		s.logger = logger
	}
}

// WithRetryConfig sets the retry configuration for event handling.
func WithRetryConfig(config RetryConfig) SubscriberOption {
	return func(s *Subscriber) {
		s.retryConfig = config
	}
}

// WithSubscriberChannelPrefix sets a prefix for Redis channel names.
// Must match the publisher's prefix.
func WithSubscriberChannelPrefix(prefix string) SubscriberOption {
	return func(s *Subscriber) {
		s.channelPrefix = prefix
	}
}

// NewSubscriber creates a Redis-based event subscriber.
func NewSubscriber(client *redis.Client, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		client:        client,
		handlers:      make(map[event.Type][]EventHandler),
		shutdown:      make(chan struct{}),
		logger:        slog.Default(),
		retryConfig:   DefaultRetryConfig(),
		channelPrefix: defaultChannelPrefix,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Subscribe registers an event handler for a specific event type.
// Handlers are called concurrently when events are received.
func (s *Subscriber) Subscribe(eventType event.Type, handler EventHandler) error {
	if eventType == "" {
		return errors.New("event type cannot be empty")
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()

	s.handlers[eventType] = append(s.handlers[eventType], handler)

	return nil
}

// Start begins listening for events on subscribed channels.
// This method blocks until Shutdown is called or the context is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	s.runningMu.Lock()
	if s.running {
		s.runningMu.Unlock()
		return errors.New("subscriber is already running")
	}
	s.running = true
	s.runningMu.Unlock()

	channels := s.subscribedChannels()
	if len(channels) == 0 {
		s.logger.WarnContext(ctx, "starting subscriber with no subscriptions")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.shutdown:
			return nil
		}
	}

	pubsub := s.client.Subscribe(ctx, channels...)

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to channels: %w", err)
	}

	s.pubsubMu.Lock()
	s.pubsub = pubsub
	s.pubsubMu.Unlock()

	s.logger.InfoContext(ctx, "subscriber started",
		slog.Int("channel_count", len(channels)),
		slog.Any("channels", channels),
	)

	msgCh := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "subscriber stopping due to context cancellation")
			return ctx.Err()

		case <-s.shutdown:
			s.logger.InfoContext(ctx, "subscriber stopping due to shutdown signal")
			return nil

		case msg, ok := <-msgCh:
			if !ok {
				s.logger.WarnContext(ctx, "message channel closed")
				return nil
			}
			s.handleMessage(ctx, msg)
		}
	}
}

// Shutdown gracefully stops the subscriber.
// It waits for all pending event handlers to complete.
func (s *Subscriber) Shutdown() error {
	s.runningMu.Lock()
	if !s.running {
		s.runningMu.Unlock()
		return nil
	}
	s.running = false
	s.runningMu.Unlock()

	close(s.shutdown)

	// Wait for all handlers to complete
	s.wg.Wait()

	s.pubsubMu.Lock()
	pubsub := s.pubsub
	s.pubsub = nil
	s.pubsubMu.Unlock()

	if pubsub != nil {
		if err := pubsub.Close(); err != nil {
			return fmt.Errorf("failed to close pubsub: %w", err)
		}
	}

	return nil
}

// IsRunning returns true if the subscriber is currently running.
func (s *Subscriber) IsRunning() bool {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()
	return s.running
}

// HandlerCount returns the number of handlers registered for an event type.
func (s *Subscriber) HandlerCount(eventType event.Type) int {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	return len(s.handlers[eventType])
}

func (s *Subscriber) channelName(eventType event.Type) string {
	return s.channelPrefix + eventType.String()
}

// subscribedChannels returns all Redis channel names for subscribed event types.
func (s *Subscriber) subscribedChannels() []string {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()

	channels := make([]string, 0, len(s.handlers))
	for eventType := range s.handlers {
		channels = append(channels, s.channelName(eventType))
	}
	return channels
}

// handleMessage processes a message received from Redis.
func (s *Subscriber) handleMessage(ctx context.Context, msg *redis.Message) {
	var evt event.Event
	if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
		s.logger.ErrorContext(ctx, "failed to unmarshal event",
			slog.String("channel", msg.Channel),
			slog.String("error", err.Error()),
		)
		return
	}

	s.handlersMu.RLock()
	handlers := s.handlers[evt.Type]
	s.handlersMu.RUnlock()

	for i, handler := range handlers {
		s.wg.Add(1)
		go s.executeHandler(ctx, handler, evt, i)
	}
}

// executeHandler runs a single event handler with retry logic.
func (s *Subscriber) executeHandler(
	ctx context.Context,
	handler EventHandler,
	evt event.Event,
	handlerIndex int,
) {
	defer s.wg.Done()

	var lastErr error
	backoff := s.retryConfig.InitialBackoff

	for attempt := 0; attempt <= s.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.DebugContext(ctx, "retrying event handler",
				slog.String("event_type", evt.Type.String()),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
			)

			select {
			case <-ctx.Done():
				s.logger.WarnContext(ctx, "handler retry cancelled",
					slog.String("event_type", evt.Type.String()),
					slog.String("error", ctx.Err().Error()),
				)
				return
			case <-time.After(backoff):
			}

			// Exponential growth, capped
			backoff = time.Duration(float64(backoff) * s.retryConfig.BackoffFactor)
			if backoff > s.retryConfig.MaxBackoff {
				backoff = s.retryConfig.MaxBackoff
			}
		}

		if err := handler(ctx, evt); err != nil {
			lastErr = err
			s.logger.WarnContext(ctx, "event handler failed",
				slog.String("event_type", evt.Type.String()),
				slog.String("aggregate_id", evt.AggregateID),
				slog.Int("handler_index", handlerIndex),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			continue
		}

		s.logger.DebugContext(ctx, "event handler completed",
			slog.String("event_type", evt.Type.String()),
			slog.String("aggregate_id", evt.AggregateID),
			slog.Int("handler_index", handlerIndex),
		)
		return
	}

	s.logger.ErrorContext(ctx, "event handler failed after all retries",
		slog.String("event_type", evt.Type.String()),
		slog.String("aggregate_id", evt.AggregateID),
		slog.Int("handler_index", handlerIndex),
		slog.Int("max_retries", s.retryConfig.MaxRetries),
		slog.String("error", lastErr.Error()),
	)
}
