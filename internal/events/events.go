package events

import "context"

// Handler processes a single event. Handlers run synchronously on the
// emitting goroutine and should return quickly.
type Handler[E any] func(ctx context.Context, event E)

// EventEmitter defines an interface for components that can emit events.
// This allows schedulers to publish events without direct knowledge of handlers.
type EventEmitter[E any] interface {
	// RegisterHandler adds a handler that receives every subsequent event.
	RegisterHandler(handler Handler[E])

	// EmitEvent publishes the given event to all registered handlers and
	// returns how many of them panicked.
	EmitEvent(ctx context.Context, event E) int
}
