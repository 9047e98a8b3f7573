package task

// jobQueue is an explicit FIFO of pending jobs. Selection order is the
// enqueue order; it never depends on map iteration.
type jobQueue[T any] struct {
	items []T
}

func (q *jobQueue[T]) Push(v T) {
	q.items = append(q.items, v)
}

// Pop removes and returns the head of the queue.
func (q *jobQueue[T]) Pop() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

func (q *jobQueue[T]) Len() int {
	return len(q.items)
}

func (q *jobQueue[T]) Clear() {
	q.items = nil
}
