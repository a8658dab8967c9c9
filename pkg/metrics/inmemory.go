package metrics

import "sync"

// DistributionResult is the aggregate over all observations of one
// distribution.
type DistributionResult struct {
	Count int64
	Sum   int64
	Min   int64
	Max   int64
}

// Mean returns Sum/Count, or 0 for an empty distribution.
func (d DistributionResult) Mean() float64 {
	if d.Count == 0 {
		return 0
	}
	return float64(d.Sum) / float64(d.Count)
}

// InMemory aggregates samples in process memory. It backs tests and the
// live stats broadcast. Safe for concurrent use.
type InMemory struct {
	mu            sync.RWMutex
	counters      map[string]int64
	distributions map[string]DistributionResult
}

func NewInMemory() *InMemory {
	return &InMemory{
		counters:      make(map[string]int64),
		distributions: make(map[string]DistributionResult),
	}
}

func (m *InMemory) IncCounter(name string, delta int64) {
	m.mu.Lock()
	m.counters[name] += delta
	m.mu.Unlock()
}

func (m *InMemory) ObserveDistribution(name string, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.distributions[name]
	if !ok {
		m.distributions[name] = DistributionResult{Count: 1, Sum: value, Min: value, Max: value}
		return
	}
	d.Count++
	d.Sum += value
	if value < d.Min {
		d.Min = value
	}
	if value > d.Max {
		d.Max = value
	}
	m.distributions[name] = d
}

// Counter returns the current value of a counter, or 0 if it was never
// incremented.
func (m *InMemory) Counter(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[name]
}

// Distribution returns the aggregate for a named distribution and whether
// any observation was ever recorded against it.
func (m *InMemory) Distribution(name string) (DistributionResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.distributions[name]
	return d, ok
}

// Snapshot copies out all counters and distributions.
func (m *InMemory) Snapshot() (map[string]int64, map[string]DistributionResult) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counters := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		counters[k] = v
	}
	distributions := make(map[string]DistributionResult, len(m.distributions))
	for k, v := range m.distributions {
		distributions[k] = v
	}
	return counters, distributions
}
