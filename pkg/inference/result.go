package inference

// PredictionResult pairs an input value with its inference output.
type PredictionResult[In, Out any] struct {
	Example   In
	Inference Out
}

// Keyed attaches an opaque key to a value. Keys pass through the keyed
// stage verbatim.
type Keyed[K comparable, V any] struct {
	Key   K
	Value V
}
