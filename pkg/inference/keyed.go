package inference

import "context"

// KeyedStage is the keyed variant of Stage: each element carries an
// opaque key that is stripped before inference and reattached, verbatim,
// to the element's result. Keyed and unkeyed modes are chosen at
// construction, never by inspecting element shapes.
type KeyedStage[K comparable, In, Out, M any] struct {
	stage *Stage[In, Out, M]
}

func NewKeyedStage[K comparable, In, Out, M any](loader ModelLoader[In, Out, M], cfg StageConfig) *KeyedStage[K, In, Out, M] {
	return &KeyedStage[K, In, Out, M]{stage: NewStage(loader, cfg)}
}

// ProcessBatch strips keys, delegates to the unkeyed stage, and re-wraps
// each result with its original key, preserving input order.
func (s *KeyedStage[K, In, Out, M]) ProcessBatch(ctx context.Context, elements []Keyed[K, In]) ([]Keyed[K, PredictionResult[In, Out]], error) {
	if len(elements) == 0 {
		return nil, nil
	}
	keys := make([]K, len(elements))
	values := make([]In, len(elements))
	for i, e := range elements {
		keys[i] = e.Key
		values[i] = e.Value
	}

	results, err := s.stage.ProcessBatch(ctx, values)
	if err != nil {
		return nil, err
	}

	keyed := make([]Keyed[K, PredictionResult[In, Out]], len(results))
	for i, r := range results {
		keyed[i] = Keyed[K, PredictionResult[In, Out]]{Key: keys[i], Value: r}
	}
	return keyed, nil
}

// Loader exposes the underlying loader, mirroring Stage.Loader.
func (s *KeyedStage[K, In, Out, M]) Loader() ModelLoader[In, Out, M] { return s.stage.Loader() }
