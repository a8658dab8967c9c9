package batch

import "sync"

// fifo is the accumulator's thread-safe backlog.
type fifo[T any] struct {
	mu    sync.Mutex
	items []T
}

func newFIFO[T any]() *fifo[T] {
	return &fifo[T]{items: make([]T, 0, 64)}
}

// Enqueue appends v to the backlog.
func (q *fifo[T]) Enqueue(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
}

// DequeueN removes up to n elements in arrival order.
func (q *fifo[T]) DequeueN(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	count := n
	if count > len(q.items) {
		count = len(q.items)
	}
	result := make([]T, count)
	copy(result, q.items[:count])
	remaining := len(q.items) - count
	copy(q.items, q.items[count:])
	var zero T
	for i := remaining; i < len(q.items); i++ {
		q.items[i] = zero
	}
	q.items = q.items[:remaining]
	return result
}

// Depth returns the current backlog length.
func (q *fifo[T]) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
