package inference

import "errors"

var (
	// ErrModelLoad wraps a model acquisition failure. The stage caches it
	// and returns it for every subsequent batch; it never retries the
	// load itself.
	ErrModelLoad = errors.New("model load failed")

	// ErrOutputCountMismatch reports a runner that returned a different
	// number of outputs than the batch had inputs.
	ErrOutputCountMismatch = errors.New("inference output count does not match batch size")
)
