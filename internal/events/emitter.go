package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// InMemoryEventEmitter is a simple implementation of the EventEmitter interface
// that stores registered handlers in memory and dispatches events to them.
type InMemoryEventEmitter[E any] struct {
	handlers []Handler[E]
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewInMemoryEventEmitter creates a new instance of InMemoryEventEmitter.
// name identifies the event stream in log output.
func NewInMemoryEventEmitter[E any](logger *slog.Logger, name string) *InMemoryEventEmitter[E] {
	return &InMemoryEventEmitter[E]{
		handlers: make([]Handler[E], 0),
		logger:   logger.With("component", "in_memory_event_emitter", "event", name),
	}
}

// RegisterHandler adds a new event handler to receive events.
func (e *InMemoryEventEmitter[E]) RegisterHandler(handler Handler[E]) {
	if handler == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
	e.logger.Debug("registered new event handler", "handler_count", len(e.handlers))
}

// HandlerCount returns the number of registered handlers.
func (e *InMemoryEventEmitter[E]) HandlerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}

// EmitEvent publishes the given event to all registered handlers.
// If any handler panics, the event will still be sent to all other handlers.
func (e *InMemoryEventEmitter[E]) EmitEvent(ctx context.Context, event E) int {
	e.mu.RLock()
	handlers := make([]Handler[E], len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	failures := 0
	for i, handler := range handlers {
		if err := e.dispatch(ctx, handler, event); err != nil {
			e.logger.Error("handler failed to process event",
				"error", err,
				"handler_index", i)
			failures++
		}
	}
	return failures
}

func (e *InMemoryEventEmitter[E]) dispatch(ctx context.Context, handler Handler[E], event E) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	handler(ctx, event)
	return nil
}
