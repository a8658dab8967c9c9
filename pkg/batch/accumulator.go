package batch

import (
	"sync"
	"time"
)

// Accumulator converts a stream of elements into batches honoring a
// Policy. Batches are emitted on the Batches channel: when the backlog
// reaches MaxSize, when MaxWait elapses with at least MinSize collected,
// or when the stream is closed (regardless of MinSize).
type Accumulator[T any] struct {
	policy  Policy
	backlog *fifo[T]
	out     chan []T
	notify  chan struct{} // signals new element arrival
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewAccumulator[T any](policy Policy) *Accumulator[T] {
	if policy.MinSize <= 0 {
		policy.MinSize = 1
	}
	if policy.MaxSize < policy.MinSize {
		policy.MaxSize = policy.MinSize
	}
	if policy.MaxWait <= 0 {
		policy.MaxWait = DefaultPolicy().MaxWait
	}
	return &Accumulator[T]{
		policy:  policy,
		backlog: newFIFO[T](),
		out:     make(chan []T),
		notify:  make(chan struct{}, 256),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the collection loop in a background goroutine.
func (a *Accumulator[T]) Start() {
	a.wg.Add(1)
	go a.loop()
}

// Add enqueues one element. Must not be called after Close.
func (a *Accumulator[T]) Add(v T) {
	a.backlog.Enqueue(v)
	select {
	case a.notify <- struct{}{}:
	default:
		// Collection loop will see the backlog on its next pass.
	}
}

// Batches delivers emitted batches. The channel is closed after Close
// once every remaining element has been flushed.
func (a *Accumulator[T]) Batches() <-chan []T { return a.out }

// Close marks the end of the stream, flushes the backlog (possibly as a
// short final batch below MinSize), and closes the Batches channel. It
// blocks until the flush completes.
func (a *Accumulator[T]) Close() {
	close(a.stopCh)
	a.wg.Wait()
}

func (a *Accumulator[T]) loop() {
	defer a.wg.Done()
	defer close(a.out)

	for {
		select {
		case <-a.stopCh:
			a.drainRemaining()
			return
		case <-a.notify:
		}

		batch := a.collect()
		if len(batch) == 0 {
			continue
		}
		select {
		case a.out <- batch:
		case <-a.stopCh:
			a.emitBlocking(batch)
			a.drainRemaining()
			return
		}
	}
}

// collect gathers one batch, waiting for MinSize elements unless the
// stream closes first.
func (a *Accumulator[T]) collect() []T {
	timer := time.NewTimer(a.policy.MaxWait)
	defer timer.Stop()

	for {
		if a.backlog.Depth() >= a.policy.MaxSize {
			return a.backlog.DequeueN(a.policy.MaxSize)
		}

		select {
		case <-a.stopCh:
			// Flush-on-completion: drained by the loop.
			return a.backlog.DequeueN(a.policy.MaxSize)
		case <-timer.C:
			if a.backlog.Depth() >= a.policy.MinSize {
				return a.backlog.DequeueN(a.policy.MaxSize)
			}
			timer.Reset(a.policy.MaxWait)
		case <-a.notify:
		}
	}
}

func (a *Accumulator[T]) drainRemaining() {
	for {
		batch := a.backlog.DequeueN(a.policy.MaxSize)
		if len(batch) == 0 {
			return
		}
		a.emitBlocking(batch)
	}
}

func (a *Accumulator[T]) emitBlocking(batch []T) {
	a.out <- batch
}
