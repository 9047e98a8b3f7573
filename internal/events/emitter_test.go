package events

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testEvent struct {
	ID string
}

func TestInMemoryEventEmitter(t *testing.T) {
	// Create a minimal logger that discards output
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("emit event with no handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter[testEvent](logger, "test")

		failures := emitter.EmitEvent(context.Background(), testEvent{ID: "a"})
		assert.Equal(t, 0, failures)
		assert.Equal(t, 0, emitter.HandlerCount())
	})

	t.Run("emit event with successful handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter[testEvent](logger, "test")

		var first, second []string
		emitter.RegisterHandler(func(_ context.Context, e testEvent) { first = append(first, e.ID) })
		emitter.RegisterHandler(func(_ context.Context, e testEvent) { second = append(second, e.ID) })

		failures := emitter.EmitEvent(context.Background(), testEvent{ID: "a"})
		assert.Equal(t, 0, failures)

		assert.Equal(t, []string{"a"}, first)
		assert.Equal(t, []string{"a"}, second)
	})

	t.Run("panicking handler does not block others", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter[testEvent](logger, "test")

		var received []string
		emitter.RegisterHandler(func(_ context.Context, _ testEvent) { panic("boom") })
		emitter.RegisterHandler(func(_ context.Context, e testEvent) { received = append(received, e.ID) })

		failures := emitter.EmitEvent(context.Background(), testEvent{ID: "b"})
		assert.Equal(t, 1, failures)
		assert.Equal(t, []string{"b"}, received)
	})

	t.Run("nil handler is ignored", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter[testEvent](logger, "test")
		emitter.RegisterHandler(nil)
		assert.Equal(t, 0, emitter.HandlerCount())
	})
}
