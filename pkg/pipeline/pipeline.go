// Package pipeline is a minimal data-parallel harness around the
// inference stage: it partitions a bounded input across workers, runs
// one stage instance (and therefore one model load) per worker, and
// merges the per-element results. It exists to exercise the stage end to
// end; it is not a general dataflow engine.
package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inferflow/inferflow/pkg/batch"
	"github.com/inferflow/inferflow/pkg/clock"
	"github.com/inferflow/inferflow/pkg/inference"
	"github.com/inferflow/inferflow/pkg/metrics"
)

// Config controls a pipeline run. Zero values mean one worker, system
// clock, no-op recorder and logger.
type Config struct {
	Workers  int
	Options  inference.Options
	Clock    clock.Clock
	Recorder metrics.Recorder
	Logger   *zap.Logger
}

func (c Config) normalized() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

func (c Config) stageConfig() inference.StageConfig {
	return inference.StageConfig{
		Options:  c.Options,
		Clock:    c.Clock,
		Recorder: c.Recorder,
		Logger:   c.Logger,
	}
}

// Run pushes values through the inference stage and returns one
// PredictionResult per input. Each worker owns its own stage instance,
// so the model is loaded once per worker. The loader's batching
// overrides, if any, are resolved before the first batch is formed.
func Run[In, Out, M any](
	ctx context.Context,
	values []In,
	loader inference.ModelLoader[In, Out, M],
	cfg Config,
) ([]inference.PredictionResult[In, Out], error) {
	cfg = cfg.normalized()
	return runPartitions(ctx, values, cfg, batch.PolicyFor(loader),
		func() processFunc[In, inference.PredictionResult[In, Out]] {
			stage := inference.NewStage(loader, cfg.stageConfig())
			return stage.ProcessBatch
		})
}

// RunKeyed is the keyed-mode counterpart of Run: keys pass through
// unchanged and in one-to-one correspondence with their inputs.
func RunKeyed[K comparable, In, Out, M any](
	ctx context.Context,
	elements []inference.Keyed[K, In],
	loader inference.ModelLoader[In, Out, M],
	cfg Config,
) ([]inference.Keyed[K, inference.PredictionResult[In, Out]], error) {
	cfg = cfg.normalized()
	return runPartitions(ctx, elements, cfg, batch.PolicyFor(loader),
		func() processFunc[inference.Keyed[K, In], inference.Keyed[K, inference.PredictionResult[In, Out]]] {
			stage := inference.NewKeyedStage[K](loader, cfg.stageConfig())
			return stage.ProcessBatch
		})
}

type processFunc[E, R any] func(ctx context.Context, batch []E) ([]R, error)

// runPartitions chunks elements across cfg.Workers workers, each with a
// fresh accumulator and process function, and concatenates results in
// worker order. The first worker error cancels the run.
func runPartitions[E, R any](
	ctx context.Context,
	elements []E,
	cfg Config,
	policy batch.Policy,
	newProcess func() processFunc[E, R],
) ([]R, error) {
	if len(elements) == 0 {
		return nil, nil
	}

	partitions := chunk(elements, cfg.Workers)
	runID := uuid.NewString()
	cfg.Logger.Info("pipeline run starting",
		zap.String("run_id", runID),
		zap.Int("elements", len(elements)),
		zap.Int("workers", len(partitions)),
		zap.Int("min_batch", policy.MinSize),
		zap.Int("max_batch", policy.MaxSize))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]R, len(partitions))
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i, part := range partitions {
		wg.Add(1)
		go func(workerID int, part []E) {
			defer wg.Done()

			process := newProcess()
			acc := batch.NewAccumulator[E](policy)
			acc.Start()
			go func() {
				for _, e := range part {
					acc.Add(e)
				}
				acc.Close()
			}()

			var out []R
			for b := range acc.Batches() {
				if ctx.Err() != nil {
					continue // drain so Close can finish
				}
				processed, err := process(ctx, b)
				if err != nil {
					cfg.Logger.Error("worker batch failed",
						zap.String("run_id", runID),
						zap.Int("worker", workerID),
						zap.Int("batch_size", len(b)),
						zap.Error(err))
					fail(err)
					continue
				}
				out = append(out, processed...)
			}
			results[workerID] = out
		}(i, part)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	var merged []R
	for _, r := range results {
		merged = append(merged, r...)
	}
	cfg.Logger.Info("pipeline run finished",
		zap.String("run_id", runID),
		zap.Int("results", len(merged)))
	return merged, nil
}

// chunk splits elements into at most n contiguous partitions of near
// equal size.
func chunk[E any](elements []E, n int) [][]E {
	if n > len(elements) {
		n = len(elements)
	}
	partitions := make([][]E, 0, n)
	size := (len(elements) + n - 1) / n
	for start := 0; start < len(elements); start += size {
		end := start + size
		if end > len(elements) {
			end = len(elements)
		}
		partitions = append(partitions, elements[start:end:end])
	}
	return partitions
}
