package inference

import (
	"encoding/gob"
	"fmt"
)

type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}

// approxByteSize estimates the serialized size of v in bytes. The gob
// encoding carries type descriptors, so the estimate is at least as
// large as a straightforward serialization of the same value. Values gob
// cannot encode degrade to the length of their printed form; the
// estimate never fails.
func approxByteSize(v any) int64 {
	var w countingWriter
	if err := gob.NewEncoder(&w).Encode(v); err == nil {
		return w.n
	}
	return int64(len(fmt.Sprintf("%v", v)))
}
