package inference

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inferflow/inferflow/pkg/clock"
	"github.com/inferflow/inferflow/pkg/metrics"
)

// Metric names recorded by the stage. They are part of the observable
// contract and must not change.
const (
	MetricNumInferences                 = "num_inferences"
	MetricInferenceRequestBatchSize     = "inference_request_batch_size"
	MetricInferenceRequestBatchByteSize = "inference_request_batch_byte_size"
	MetricModelByteSize                 = "model_byte_size"
	MetricInferenceBatchLatencyMicros   = "inference_batch_latency_micro_secs"
	MetricLoadModelLatencyMillis        = "load_model_latency_milli_secs"
)

// StageConfig holds the optional collaborators of a Stage. Zero values
// select a system clock, a no-op recorder, and a no-op logger.
type StageConfig struct {
	// Options are forwarded unmodified to every RunInference call.
	Options  Options
	Clock    clock.Clock
	Recorder metrics.Recorder
	Logger   *zap.Logger
}

// Stage executes batched inference over unkeyed values. One instance is
// owned by one pipeline worker: the model is loaded on the first batch
// and cached for the instance's lifetime. The load is guarded so that
// concurrent first use performs it exactly once.
type Stage[In, Out, M any] struct {
	loader   ModelLoader[In, Out, M]
	opts     Options
	clock    clock.Clock
	recorder metrics.Recorder
	logger   *zap.Logger

	loadOnce  sync.Once
	model     M
	modelSize int64
	runner    InferenceRunner[In, Out, M]
	loadErr   error
}

func NewStage[In, Out, M any](loader ModelLoader[In, Out, M], cfg StageConfig) *Stage[In, Out, M] {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Stage[In, Out, M]{
		loader:   loader,
		opts:     cfg.Options,
		clock:    cfg.Clock,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
	}
}

// ensureModel performs the one-time load. Other callers block until the
// load completes and observe either the cached model or the cached
// error; a failed load is fatal for the stage instance.
func (s *Stage[In, Out, M]) ensureModel() error {
	s.loadOnce.Do(func() {
		start := s.clock.NowNanos()
		model, err := s.loader.LoadModel()
		end := s.clock.NowNanos()
		if err != nil {
			s.loadErr = fmt.Errorf("%w: %w", ErrModelLoad, err)
			s.logger.Error("model load failed", zap.Error(err))
			return
		}
		s.recorder.ObserveDistribution(MetricLoadModelLatencyMillis, (end-start)/int64(time.Millisecond))
		s.model = model
		s.runner = s.loader.InferenceRunner()
		if sized, ok := any(s.loader).(ByteSized); ok {
			s.modelSize = sized.ModelByteSize()
		} else {
			s.modelSize = approxByteSize(model)
		}
		s.logger.Info("model loaded",
			zap.Int64("load_ms", (end-start)/int64(time.Millisecond)),
			zap.Int64("model_bytes", s.modelSize))
	})
	return s.loadErr
}

// ProcessBatch runs inference over one batch of values and returns a
// PredictionResult per input, in input order. The first call loads the
// model. A runner failure is fatal to the batch and is returned to the
// caller untouched; the stage performs no retry and emits no partial
// results.
func (s *Stage[In, Out, M]) ProcessBatch(ctx context.Context, values []In) ([]PredictionResult[In, Out], error) {
	if len(values) == 0 {
		return nil, nil
	}
	if err := s.ensureModel(); err != nil {
		return nil, err
	}

	s.recorder.ObserveDistribution(MetricInferenceRequestBatchSize, int64(len(values)))
	s.recorder.ObserveDistribution(MetricInferenceRequestBatchByteSize, approxByteSize(values))
	s.recorder.ObserveDistribution(MetricModelByteSize, s.modelSize)

	start := s.clock.NowNanos()
	outputs, err := s.runner.RunInference(ctx, values, s.model, s.opts)
	end := s.clock.NowNanos()
	if err != nil {
		s.logger.Error("batch inference failed",
			zap.Int("batch_size", len(values)),
			zap.Error(err))
		return nil, fmt.Errorf("run inference: %w", err)
	}
	if len(outputs) != len(values) {
		return nil, fmt.Errorf("%w: %d outputs for %d inputs",
			ErrOutputCountMismatch, len(outputs), len(values))
	}
	s.recorder.ObserveDistribution(MetricInferenceBatchLatencyMicros, (end-start)/int64(time.Microsecond))

	results := make([]PredictionResult[In, Out], len(values))
	for i, value := range values {
		results[i] = PredictionResult[In, Out]{Example: value, Inference: outputs[i]}
	}
	s.recorder.IncCounter(MetricNumInferences, int64(len(values)))
	return results, nil
}

// Loader exposes the stage's loader so callers can resolve its batching
// overrides before the first batch is formed.
func (s *Stage[In, Out, M]) Loader() ModelLoader[In, Out, M] { return s.loader }
