// Package workflow holds the event-type to handler mapping and the handlers
// themselves. Registration happens once at startup, before the dispatcher is
// started; the registry is effectively immutable afterwards.
package workflow

import (
	"context"
	"encoding/json"
)

// Handler processes one event payload. Handlers receive only the payload
// snapshot; delivery state belongs to the dispatcher.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Registry maps event types to their ordered handler lists. It is built once
// at startup and injected into the dispatcher rather than held as package
// state, which keeps the dispatcher testable with a throwaway registry.
type Registry struct {
	handlers map[string][]Handler
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string][]Handler),
	}
}

// Register appends a handler for the given event type. Handlers run in
// registration order at dispatch time.
func (r *Registry) Register(eventType string, handler Handler) {
	r.handlers[eventType] = append(r.handlers[eventType], handler)
}

// Handlers returns the ordered handlers for an event type. An unknown type
// returns an empty list; the dispatcher treats that as a successful no-op.
func (r *Registry) Handlers(eventType string) []Handler {
	return r.handlers[eventType]
}
