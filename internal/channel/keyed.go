package channel

import (
	"context"
	"errors"
	"sync"
)

// ErrChannelClosed is returned when pushing to a key (or a channel) that has
// been closed. It indicates a lifecycle bug in the caller.
var ErrChannelClosed = errors.New("keyed channel is closed")

// KeyedChannel is a set of per-key FIFO queues. Values pushed for the same key
// are received by Next in push order; there is no ordering across keys.
type KeyedChannel[K comparable, V any] struct {
	mu     sync.Mutex
	queues map[K]*keyQueue[V]
	closed bool
}

type keyQueue[V any] struct {
	values []V
	// signal is closed to wake receivers whenever a value arrives or the key
	// is closed. It is replaced after each push.
	signal chan struct{}
	closed bool
}

func newKeyQueue[V any]() *keyQueue[V] {
	return &keyQueue[V]{signal: make(chan struct{})}
}

func (q *keyQueue[V]) wake() {
	close(q.signal)
	if !q.closed {
		q.signal = make(chan struct{})
	}
}

// New creates an empty KeyedChannel.
func New[K comparable, V any]() *KeyedChannel[K, V] {
	return &KeyedChannel[K, V]{queues: make(map[K]*keyQueue[V])}
}

// Register creates the queue for key if it does not exist yet and reports
// whether it was created by this call.
func (c *KeyedChannel[K, V]) Register(key K) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrChannelClosed
	}
	if _, ok := c.queues[key]; ok {
		return false, nil
	}
	c.queues[key] = newKeyQueue[V]()
	return true, nil
}

// Push appends v to the queue for key, creating the queue on first use, and
// wakes any receiver blocked in Next for that key.
func (c *KeyedChannel[K, V]) Push(key K, v V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	q, ok := c.queues[key]
	if !ok {
		q = newKeyQueue[V]()
		c.queues[key] = q
	}
	if q.closed {
		return ErrChannelClosed
	}
	q.values = append(q.values, v)
	q.wake()
	return nil
}

// Next blocks until a value is available for key and returns it with true.
// It returns false once the key is closed, when the key is unknown, or when
// ctx is done.
func (c *KeyedChannel[K, V]) Next(ctx context.Context, key K) (V, bool) {
	var zero V
	for {
		c.mu.Lock()
		q, ok := c.queues[key]
		if !ok {
			c.mu.Unlock()
			return zero, false
		}
		if q.closed {
			c.mu.Unlock()
			return zero, false
		}
		if len(q.values) > 0 {
			v := q.values[0]
			q.values[0] = zero
			q.values = q.values[1:]
			c.mu.Unlock()
			return v, true
		}
		wait := q.signal
		c.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, false
		}
	}
}

// Close marks key as done, discards its queued values and wakes every
// receiver waiting on it. Closing an unknown key is a no-op.
func (c *KeyedChannel[K, V]) Close(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if q, ok := c.queues[key]; ok {
		c.closeQueue(q)
	}
}

// CloseAll closes every key and rejects any further Push or Register.
func (c *KeyedChannel[K, V]) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for _, q := range c.queues {
		c.closeQueue(q)
	}
}

func (c *KeyedChannel[K, V]) closeQueue(q *keyQueue[V]) {
	if q.closed {
		return
	}
	q.closed = true
	q.values = nil
	q.wake()
}

// Remove deletes the queue for key. Workers call it after Next reports done.
func (c *KeyedChannel[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.queues, key)
}

// Len returns the number of values waiting for key.
func (c *KeyedChannel[K, V]) Len(key K) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if q, ok := c.queues[key]; ok {
		return len(q.values)
	}
	return 0
}

// Keys returns the keys that currently have a queue.
func (c *KeyedChannel[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.queues))
	for k := range c.queues {
		keys = append(keys, k)
	}
	return keys
}
