package eventstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voyatra/voyatra/internal/application/appcore"
	"github.com/voyatra/voyatra/internal/domain/event"
	"github.com/voyatra/voyatra/internal/domain/uuid"
	"github.com/voyatra/voyatra/internal/infrastructure/metrics"
)

// defaultAppendRetries bounds the read-compute-insert cycle under contention.
const defaultAppendRetries = 3

// Handler is a best-effort, side-effecting reaction to an appended event.
// Handlers are observers, not participants in the write's atomicity.
type Handler func(ctx context.Context, evt event.Event) error

// Projection is a long-lived read model maintained incrementally from events.
// Handle is invoked once per event, in append order, never concurrently with
// itself for a given store instance.
type Projection interface {
	// Name identifies the projection in logs and repair tasks.
	Name() string

	// Handle applies one event to the read model. Projections ignore
	// event types that are not relevant to them.
	Handle(ctx context.Context, evt event.Event) error
}

// ProjectionFailureHook is notified when a projection fails to apply an
// event, so infrastructure can schedule a rebuild of the stale read model.
type ProjectionFailureHook func(ctx context.Context, projectionName string, evt event.Event, err error)

// Store is the event store: an append-only log plus handler and projection
// registries owned by this instance. Construct one per process and pass it
// to all callers; there is no global registry.
type Store struct {
	log         EventLog
	logger      *slog.Logger
	metrics     *metrics.StoreMetrics
	maxRetries  int
	failureHook ProjectionFailureHook

	mu          sync.RWMutex
	handlers    map[event.Type][]Handler
	projections []Projection

	now func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics sets the Prometheus metrics for the store.
func WithMetrics(m *metrics.StoreMetrics) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithAppendRetries overrides the version allocation retry budget.
func WithAppendRetries(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithProjectionFailureHook sets the hook invoked on projection failures.
func WithProjectionFailureHook(hook ProjectionFailureHook) StoreOption {
	return func(s *Store) {
		s.failureHook = hook
	}
}

// NewStore creates a new event store over the given log.
func NewStore(log EventLog, opts ...StoreOption) *Store {
	s := &Store{
		log:        log,
		logger:     slog.Default(),
		maxRetries: defaultAppendRetries,
		handlers:   make(map[event.Type][]Handler),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RegisterHandler associates a handler with an event type. Multiple handlers
// per type are allowed and run in registration order.
func (s *Store) RegisterHandler(eventType event.Type, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[eventType] = append(s.handlers[eventType], handler)
}

// RegisterProjection adds a projection. Projections receive every appended
// event in registration order.
func (s *Store) RegisterProjection(projection Projection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.projections = append(s.projections, projection)
}

// Append validates the draft, allocates the next version for the aggregate,
// durably persists the event, then synchronously fans it out to registered
// handlers and projections. The returned event is fully populated.
//
// Only ErrInvalidInput, ErrConcurrencyConflict and ErrStorageFailure are
// surfaced; fan-out failures are logged and never affect the result.
func (s *Store) Append(ctx context.Context, draft event.Draft) (*event.Event, error) {
	if err := draft.Validate(); err != nil {
		s.observeAppend(draft.Type, "invalid", 0)
		return nil, fmt.Errorf("%w: %w", appcore.ErrInvalidInput, err)
	}

	started := s.now()

	evt, err := s.persist(ctx, draft)
	if err != nil {
		return nil, err
	}

	s.observeAppend(evt.Type, "success", s.now().Sub(started))

	s.dispatch(ctx, *evt)

	return evt, nil
}

// persist runs the bounded read-compute-insert cycle. Version numbers are
// assigned fresh on every attempt; a lost race never reuses a version.
func (s *Store) persist(ctx context.Context, draft event.Draft) (*event.Event, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", appcore.ErrStorageFailure, err)
		}

		current, err := s.log.MaxVersion(ctx, draft.AggregateType, draft.AggregateID)
		if err != nil {
			s.observeAppend(draft.Type, "failed", 0)
			return nil, fmt.Errorf("%w: %w", appcore.ErrStorageFailure, err)
		}

		evt := s.buildEvent(ctx, draft, current+1)

		err = s.log.Insert(ctx, evt)
		if err == nil {
			return &evt, nil
		}

		if errors.Is(err, ErrVersionConflict) {
			if s.metrics != nil {
				s.metrics.VersionConflictsTotal.Inc()
			}
			s.logger.WarnContext(ctx, "version conflict, retrying append",
				slog.String("aggregate_type", draft.AggregateType),
				slog.String("aggregate_id", draft.AggregateID),
				slog.Int("version", evt.Version),
				slog.Int("attempt", attempt),
			)
			continue
		}

		s.observeAppend(draft.Type, "failed", 0)
		return nil, fmt.Errorf("%w: %w", appcore.ErrStorageFailure, err)
	}

	s.observeAppend(draft.Type, "conflict", 0)

	return nil, fmt.Errorf("%w: aggregate %s/%s after %d attempts",
		appcore.ErrConcurrencyConflict, draft.AggregateType, draft.AggregateID, s.maxRetries)
}

// buildEvent populates the store-assigned fields of a draft. Correlation,
// trace and actor identity fall back to the ambient context so that events
// appended on behalf of an authenticated request stay attributable.
func (s *Store) buildEvent(ctx context.Context, draft event.Draft, version int) event.Event {
	correlationID, _ := appcore.GetCorrelationID(ctx)

	userID := draft.UserID
	if userID == "" {
		userID, _ = appcore.GetUserID(ctx)
	}

	return event.Event{
		ID:            uuid.NewUUID(),
		Type:          draft.Type,
		AggregateID:   draft.AggregateID,
		AggregateType: draft.AggregateType,
		Version:       version,
		Data:          draft.Data,
		CorrelationID: correlationID,
		TraceID:       appcore.GetTraceID(ctx),
		UserID:        userID,
		Timestamp:     s.now().UTC(),
		Metadata:      draft.Metadata,
	}
}

// dispatch invokes handlers for the event's type, then all projections, in
// registration order. Errors and panics are contained per invocation.
func (s *Store) dispatch(ctx context.Context, evt event.Event) {
	s.mu.RLock()
	handlers := s.handlers[evt.Type]
	projections := s.projections
	s.mu.RUnlock()

	for i, handler := range handlers {
		if err := s.invoke(ctx, func(ctx context.Context) error {
			return handler(ctx, evt.Clone())
		}); err != nil {
			s.recordFanoutFailure(ctx, "handler", fmt.Sprintf("%s[%d]", evt.Type, i), evt, err)
		}
	}

	for _, projection := range projections {
		p := projection
		if err := s.invoke(ctx, func(ctx context.Context) error {
			return p.Handle(ctx, evt.Clone())
		}); err != nil {
			s.recordFanoutFailure(ctx, "projection", p.Name(), evt, err)

			if s.failureHook != nil {
				s.failureHook(ctx, p.Name(), evt.Clone(), err)
			}
		}
	}
}

// invoke runs one fan-out callback, converting a panic into an error.
func (s *Store) invoke(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return fn(ctx)
}

// recordFanoutFailure logs and counts one handler or projection failure.
func (s *Store) recordFanoutFailure(ctx context.Context, kind, name string, evt event.Event, err error) {
	s.logger.ErrorContext(ctx, "event fan-out failure",
		slog.String("kind", kind),
		slog.String("name", name),
		slog.String("event_id", evt.ID.String()),
		slog.String("event_type", evt.Type.String()),
		slog.String("aggregate_type", evt.AggregateType),
		slog.String("aggregate_id", evt.AggregateID),
		slog.Int("version", evt.Version),
		slog.String("error", err.Error()),
	)

	if s.metrics != nil {
		s.metrics.FanoutFailuresTotal.WithLabelValues(kind, name).Inc()
	}
}

// GetEvents returns one aggregate's events ascending by version, optionally
// bounded by fromVersion/toVersion (0 means unbounded).
func (s *Store) GetEvents(
	ctx context.Context,
	aggregateType, aggregateID string,
	fromVersion, toVersion int,
) ([]event.Event, error) {
	s.countQuery("events")

	events, err := s.log.Events(ctx, aggregateType, aggregateID, fromVersion, toVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appcore.ErrStorageFailure, err)
	}

	return events, nil
}

// GetEventsByType returns events of one type descending by timestamp.
func (s *Store) GetEventsByType(
	ctx context.Context,
	eventType event.Type,
	start, end time.Time,
	limit int,
) ([]event.Event, error) {
	s.countQuery("events_by_type")

	events, err := s.log.EventsByType(ctx, eventType, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appcore.ErrStorageFailure, err)
	}

	return events, nil
}

// GetUserEvents returns events caused by one actor descending by timestamp.
func (s *Store) GetUserEvents(
	ctx context.Context,
	userID string,
	start, end time.Time,
	limit int,
) ([]event.Event, error) {
	s.countQuery("user_events")

	events, err := s.log.EventsByUser(ctx, userID, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appcore.ErrStorageFailure, err)
	}

	return events, nil
}

func (s *Store) observeAppend(eventType event.Type, status string, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	s.metrics.AppendsTotal.WithLabelValues(eventType.String(), status).Inc()
	if status == "success" {
		s.metrics.AppendDuration.WithLabelValues(eventType.String()).Observe(elapsed.Seconds())
	}
}

func (s *Store) countQuery(name string) {
	if s.metrics != nil {
		s.metrics.QueriesTotal.WithLabelValues(name).Inc()
	}
}
