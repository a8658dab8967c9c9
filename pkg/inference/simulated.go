package inference

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"
)

// SimulatedModel mimics a loaded classification model: a weight blob
// big enough to make the model_byte_size telemetry meaningful.
type SimulatedModel struct {
	Weights []float64
}

// SimulatedLoader produces SimulatedModels after an artificial load
// delay. It exists for demos, load tests, and wiring examples; real
// deployments supply their own ModelLoader.
type SimulatedLoader struct {
	// LoadDelay mimics deserialization/download time.
	LoadDelay time.Duration
	// WeightCount controls the synthetic model size. Defaults to 4096.
	WeightCount int
	// BaseLatency is the per-batch floor of the simulated GPU time.
	// Defaults to 5ms.
	BaseLatency time.Duration
}

func (l *SimulatedLoader) LoadModel() (*SimulatedModel, error) {
	if l.LoadDelay > 0 {
		time.Sleep(l.LoadDelay)
	}
	count := l.WeightCount
	if count <= 0 {
		count = 4096
	}
	weights := make([]float64, count)
	for i := range weights {
		weights[i] = rand.NormFloat64()
	}
	return &SimulatedModel{Weights: weights}, nil
}

func (l *SimulatedLoader) InferenceRunner() InferenceRunner[[]byte, []byte, *SimulatedModel] {
	base := l.BaseLatency
	if base <= 0 {
		base = 5 * time.Millisecond
	}
	return &simulatedRunner{baseLatency: base}
}

// ModelByteSize reports the exact weight footprint instead of the
// stage's serialized estimate.
func (l *SimulatedLoader) ModelByteSize() int64 {
	count := l.WeightCount
	if count <= 0 {
		count = 4096
	}
	return int64(count) * 8
}

// simulatedRunner sleeps base + sublinear per-element time, the latency
// shape batched GPU execution shows, and emits one JSON classification
// per payload.
type simulatedRunner struct {
	baseLatency time.Duration
}

var simulatedClasses = []string{"cat", "dog", "car", "tree", "person", "building", "bird", "fish"}

func (r *simulatedRunner) RunInference(ctx context.Context, batch [][]byte, model *SimulatedModel, opts Options) ([][]byte, error) {
	latency := r.baseLatency + time.Duration(float64(len(batch))*1.5)*time.Millisecond
	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	results := make([][]byte, len(batch))
	for i := range batch {
		result := map[string]any{
			"class":      simulatedClasses[rand.Intn(len(simulatedClasses))],
			"confidence": 0.7 + rand.Float64()*0.29,
			"simulated":  true,
			"batch_pos":  i,
		}
		data, _ := json.Marshal(result)
		results[i] = data
	}
	return results, nil
}
