package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferflow/inferflow/pkg/batch"
	"github.com/inferflow/inferflow/pkg/inference"
	"github.com/inferflow/inferflow/pkg/metrics"
)

type incModel struct{}

type incLoader struct {
	loads atomic.Int64
}

func (l *incLoader) LoadModel() (incModel, error) {
	l.loads.Add(1)
	return incModel{}, nil
}

func (l *incLoader) InferenceRunner() inference.InferenceRunner[int, int, incModel] {
	return inference.RunnerFunc[int, int, incModel](
		func(_ context.Context, batch []int, _ incModel, _ inference.Options) ([]int, error) {
			out := make([]int, len(batch))
			for i, v := range batch {
				out[i] = v + 1
			}
			return out, nil
		})
}

func TestRunSimple(t *testing.T) {
	results, err := Run[int, int, incModel](context.Background(), []int{1, 5, 3, 10}, &incLoader{}, Config{})
	require.NoError(t, err)

	got := make([]int, len(results))
	for i, r := range results {
		got[i] = r.Inference
	}
	assert.Equal(t, []int{2, 6, 4, 11}, got)
}

func TestRunKeyed(t *testing.T) {
	elements := []inference.Keyed[int, int]{{0, 1}, {1, 5}, {2, 3}, {3, 10}}
	results, err := RunKeyed[int, int, int, incModel](context.Background(), elements, &incLoader{}, Config{})
	require.NoError(t, err)

	require.Len(t, results, 4)
	expected := []int{2, 6, 4, 11}
	for i, r := range results {
		assert.Equal(t, i, r.Key)
		assert.Equal(t, expected[i], r.Value.Inference)
	}
}

func TestRunLoadsOncePerWorker(t *testing.T) {
	loader := &incLoader{}
	recorder := metrics.NewInMemory()

	values := make([]int, 1000)
	for i := range values {
		values[i] = i
	}
	results, err := Run[int, int, incModel](context.Background(), values, loader, Config{
		Workers:  4,
		Recorder: recorder,
	})
	require.NoError(t, err)
	require.Len(t, results, 1000)

	assert.Equal(t, int64(4), loader.loads.Load())
	loadLatency, ok := recorder.Distribution(inference.MetricLoadModelLatencyMillis)
	require.True(t, ok)
	assert.Equal(t, int64(4), loadLatency.Count)
	assert.Equal(t, int64(1000), recorder.Counter(inference.MetricNumInferences))

	// Contiguous partitioning keeps worker-order merging deterministic.
	got := make([]int, len(results))
	for i, r := range results {
		got[i] = r.Inference
	}
	assert.True(t, sort.IntsAreSorted(got))
}

func TestRunEmptyInput(t *testing.T) {
	loader := &incLoader{}
	results, err := Run[int, int, incModel](context.Background(), nil, loader, Config{Workers: 4})
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Equal(t, int64(0), loader.loads.Load())
}

type faultyLoader struct{ incLoader }

func (l *faultyLoader) InferenceRunner() inference.InferenceRunner[int, int, incModel] {
	return inference.RunnerFunc[int, int, incModel](
		func(_ context.Context, batch []int, _ incModel, _ inference.Options) ([]int, error) {
			return nil, errors.New("backend rejected batch")
		})
}

func TestRunSurfacesBatchFailure(t *testing.T) {
	_, err := Run[int, int, incModel](context.Background(), []int{1, 2, 3}, &faultyLoader{}, Config{Workers: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend rejected batch")
}

// overrideLoader mandates a minimum batch far above the stream size, so
// only the flush at stream end may emit, and pairs it with a runner that
// rejects small batches.
type overrideLoader struct{ incLoader }

func (l *overrideLoader) BatchPolicy() batch.Overrides {
	return batch.Overrides{MinSize: 9999}
}

func (l *overrideLoader) InferenceRunner() inference.InferenceRunner[int, int, incModel] {
	return inference.RunnerFunc[int, int, incModel](
		func(_ context.Context, b []int, _ incModel, _ inference.Options) ([]int, error) {
			if len(b) < 100 {
				return nil, errors.New("unexpectedly small batch")
			}
			return b, nil
		})
}

func TestRunForwardsBatchOverrides(t *testing.T) {
	values := make([]int, 100)
	for i := range values {
		values[i] = i
	}
	results, err := Run[int, int, incModel](context.Background(), values, &overrideLoader{}, Config{})
	require.NoError(t, err)
	require.Len(t, results, 100)
	for i, r := range results {
		assert.Equal(t, i, r.Inference)
	}
}

func TestChunk(t *testing.T) {
	parts := chunk([]int{1, 2, 3, 4, 5}, 2)
	require.Len(t, parts, 2)
	assert.Equal(t, []int{1, 2, 3}, parts[0])
	assert.Equal(t, []int{4, 5}, parts[1])

	parts = chunk([]int{1, 2}, 8)
	assert.Len(t, parts, 2)
}
