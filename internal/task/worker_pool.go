package task

import "context"

// slotPool is a counting semaphore bounding how many jobs run at once.
// Acquisition is wake-driven: a blocked Acquire returns as soon as another
// job releases its slot.
type slotPool struct {
	slots chan struct{}
}

func newSlotPool(size int) *slotPool {
	if size <= 0 {
		size = DefaultMaxConcurrent
	}
	return &slotPool{slots: make(chan struct{}, size)}
}

// Acquire blocks until a slot is free or ctx is done.
func (p *slotPool) Acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot only if one is free right now.
func (p *slotPool) TryAcquire() bool {
	select {
	case p.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (p *slotPool) Release() {
	select {
	case <-p.slots:
	default:
		panic("task: slot released without being acquired")
	}
}

// InUse returns the number of slots currently held.
func (p *slotPool) InUse() int {
	return len(p.slots)
}

// Capacity returns the maximum number of concurrent slots.
func (p *slotPool) Capacity() int {
	return cap(p.slots)
}
