package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectAll[T any](t *testing.T, a *Accumulator[T]) [][]T {
	t.Helper()
	var batches [][]T
	done := make(chan struct{})
	go func() {
		defer close(done)
		for b := range a.Batches() {
			batches = append(batches, b)
		}
	}()
	a.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("accumulator did not drain")
	}
	return batches
}

func TestAccumulatorRespectsMaxSize(t *testing.T) {
	a := NewAccumulator[int](Policy{MinSize: 1, MaxSize: 3, MaxWait: 10 * time.Millisecond})
	a.Start()
	for i := 0; i < 10; i++ {
		a.Add(i)
	}

	batches := collectAll(t, a)

	var got []int
	for _, b := range batches {
		assert.LessOrEqual(t, len(b), 3)
		got = append(got, b...)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestAccumulatorHoldsUntilMinSize(t *testing.T) {
	a := NewAccumulator[int](Policy{MinSize: 9999, MaxSize: 9999, MaxWait: 5 * time.Millisecond})
	a.Start()
	for i := 0; i < 100; i++ {
		a.Add(i)
	}
	// The min is far above what the stream carries; nothing may flush
	// before close even after several wait windows.
	time.Sleep(50 * time.Millisecond)
	select {
	case b := <-a.Batches():
		t.Fatalf("unexpected early batch of %d elements", len(b))
	default:
	}

	batches := collectAll(t, a)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 100)
}

func TestAccumulatorFlushesOnMaxWait(t *testing.T) {
	a := NewAccumulator[string](Policy{MinSize: 1, MaxSize: 100, MaxWait: 10 * time.Millisecond})
	a.Start()
	defer a.Close()

	a.Add("x")
	a.Add("y")

	select {
	case b := <-a.Batches():
		assert.Equal(t, []string{"x", "y"}, b)
	case <-time.After(2 * time.Second):
		t.Fatal("partial batch was not flushed on wait timeout")
	}
}

func TestAccumulatorFinalShortFlush(t *testing.T) {
	a := NewAccumulator[int](Policy{MinSize: 4, MaxSize: 4, MaxWait: time.Hour})
	a.Start()
	a.Add(1)
	a.Add(2)

	batches := collectAll(t, a)
	require.Len(t, batches, 1)
	assert.Equal(t, []int{1, 2}, batches[0])
}

func TestPolicyOverrides(t *testing.T) {
	base := DefaultPolicy()

	p := Overrides{}.Apply(base)
	assert.Equal(t, base, p)

	p = Overrides{MinSize: 9999}.Apply(base)
	assert.Equal(t, 9999, p.MinSize)
	assert.Equal(t, 9999, p.MaxSize) // raised to keep the policy coherent
	assert.Equal(t, base.MaxWait, p.MaxWait)

	p = Overrides{MaxSize: 64, MaxWait: time.Second}.Apply(base)
	assert.Equal(t, base.MinSize, p.MinSize)
	assert.Equal(t, 64, p.MaxSize)
	assert.Equal(t, time.Second, p.MaxWait)
}

type overridingProvider struct{}

func (overridingProvider) BatchPolicy() Overrides { return Overrides{MinSize: 7} }

func TestPolicyFor(t *testing.T) {
	assert.Equal(t, DefaultPolicy(), PolicyFor(struct{}{}))

	p := PolicyFor(overridingProvider{})
	assert.Equal(t, 7, p.MinSize)
}

func TestFIFOOrderAndDepth(t *testing.T) {
	q := newFIFO[int]()
	assert.Nil(t, q.DequeueN(3))

	for i := 0; i < 5; i++ {
		q.Enqueue(i)
	}
	assert.Equal(t, 5, q.Depth())
	assert.Equal(t, []int{0, 1}, q.DequeueN(2))
	assert.Equal(t, []int{2, 3, 4}, q.DequeueN(10))
	assert.Equal(t, 0, q.Depth())
}
