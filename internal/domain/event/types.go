package event

import (
	"fmt"
	"sort"
	"sync"
)

// Type identifies the kind of state change an event represents.
// Only registered types are accepted at the append boundary.
type Type string

// Event types produced by the platform's domain services.
const (
	TypeUserCreated     Type = "user.created"
	TypeUserUpdated     Type = "user.updated"
	TypeUserDeactivated Type = "user.deactivated"

	TypeBookingCreated   Type = "booking.created"
	TypeBookingConfirmed Type = "booking.confirmed"
	TypeBookingCancelled Type = "booking.cancelled"
	TypeBookingCompleted Type = "booking.completed"

	TypePaymentAuthorized Type = "payment.authorized"
	TypePaymentCaptured   Type = "payment.captured"
	TypePaymentFailed     Type = "payment.failed"

	TypeCommissionCalculated Type = "commission.calculated"
	TypeCommissionReversed   Type = "commission.reversed"

	TypeSystemError Type = "system.error"
)

// typeRegistry holds the closed set of known event types.
type typeRegistry struct {
	mu    sync.RWMutex
	known map[Type]struct{}
}

var registry = &typeRegistry{
	known: map[Type]struct{}{
		TypeUserCreated:          {},
		TypeUserUpdated:          {},
		TypeUserDeactivated:      {},
		TypeBookingCreated:       {},
		TypeBookingConfirmed:     {},
		TypeBookingCancelled:     {},
		TypeBookingCompleted:     {},
		TypePaymentAuthorized:    {},
		TypePaymentCaptured:      {},
		TypePaymentFailed:        {},
		TypeCommissionCalculated: {},
		TypeCommissionReversed:   {},
		TypeSystemError:          {},
	},
}

// RegisterType adds a new event type to the known set.
// Intended for wiring additional domain modules at process start.
func RegisterType(t Type) error {
	if t == "" {
		return fmt.Errorf("%w: empty event type", ErrUnknownType)
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.known[t] = struct{}{}

	return nil
}

// IsKnownType reports whether the event type is registered.
func IsKnownType(t Type) bool {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	_, ok := registry.known[t]
	return ok
}

// KnownTypes returns the registered event types in sorted order.
func KnownTypes() []Type {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	types := make([]Type, 0, len(registry.known))
	for t := range registry.known {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// String returns the string representation of the type.
func (t Type) String() string {
	return string(t)
}
