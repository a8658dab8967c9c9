// Package metrics defines the thin recorder contract the inference stage
// writes its telemetry through, plus the backends that implement it:
// an in-memory recorder for tests and live snapshots, a Prometheus
// recorder, and an asynchronous ClickHouse sink.
package metrics

// Recorder is a sink for counter increments and distribution observations.
// Aggregation (count, sum, mean) is the backend's responsibility; callers
// only ever push named samples.
type Recorder interface {
	IncCounter(name string, delta int64)
	ObserveDistribution(name string, value int64)
}

// Nop discards all samples.
type Nop struct{}

func (Nop) IncCounter(string, int64)          {}
func (Nop) ObserveDistribution(string, int64) {}

// Multi fans every sample out to all wrapped recorders.
type Multi []Recorder

func (m Multi) IncCounter(name string, delta int64) {
	for _, r := range m {
		r.IncCounter(name, delta)
	}
}

func (m Multi) ObserveDistribution(name string, value int64) {
	for _, r := range m {
		r.ObserveDistribution(name, value)
	}
}
