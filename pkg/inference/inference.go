// Package inference implements a batched model-inference execution
// stage: it lazily loads a model exactly once per stage instance, runs a
// pluggable inference routine over each batch, pairs every output with
// its input, and records latency, throughput, and size telemetry.
package inference

import "context"

// Options is the caller-defined bag of extra options supplied at stage
// construction and forwarded verbatim to every RunInference call.
type Options map[string]any

// InferenceRunner applies a loaded model to a batch of inputs, producing
// exactly one output per input, in input order. Implementations must not
// mutate the batch or the model, and should reject batches that violate
// their own shape or size requirements.
type InferenceRunner[In, Out, M any] interface {
	RunInference(ctx context.Context, batch []In, model M, opts Options) ([]Out, error)
}

// ModelLoader owns model acquisition. LoadModel may be expensive and
// blocking; the stage calls it at most once per instance and caches the
// result. InferenceRunner returns the strategy paired with models from
// this loader; it is cheap and called once after a successful load.
//
// A loader may additionally implement batch.PolicyProvider to mandate
// batching overrides, and ByteSized to report an exact model size.
type ModelLoader[In, Out, M any] interface {
	LoadModel() (M, error)
	InferenceRunner() InferenceRunner[In, Out, M]
}

// ByteSized is implemented by loaders that know their model's size in
// bytes. Without it the stage falls back to a best-effort serialized
// size of the loaded model. The value feeds telemetry only.
type ByteSized interface {
	ModelByteSize() int64
}

// RunnerFunc adapts a plain function to the InferenceRunner interface.
type RunnerFunc[In, Out, M any] func(ctx context.Context, batch []In, model M, opts Options) ([]Out, error)

func (f RunnerFunc[In, Out, M]) RunInference(ctx context.Context, batch []In, model M, opts Options) ([]Out, error) {
	return f(ctx, batch, model, opts)
}
