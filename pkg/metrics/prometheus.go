package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus exposes recorded samples through a prometheus.Registerer.
// Counters map to prometheus counters; distributions map to summaries so
// count, sum, and quantiles survive without pre-declared buckets.
// Collectors are created lazily on first use of a name.
type Prometheus struct {
	registerer prometheus.Registerer

	mu        sync.Mutex
	counters  map[string]prometheus.Counter
	summaries map[string]prometheus.Summary
}

func NewPrometheus(registerer prometheus.Registerer) *Prometheus {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Prometheus{
		registerer: registerer,
		counters:   make(map[string]prometheus.Counter),
		summaries:  make(map[string]prometheus.Summary),
	}
}

func (p *Prometheus) IncCounter(name string, delta int64) {
	if delta < 0 {
		return
	}
	p.counter(name).Add(float64(delta))
}

func (p *Prometheus) ObserveDistribution(name string, value int64) {
	p.summary(name).Observe(float64(value))
}

func (p *Prometheus) counter(name string) prometheus.Counter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: name,
		Help: "inferflow counter " + name,
	})
	p.registerer.MustRegister(c)
	p.counters[name] = c
	return c
}

func (p *Prometheus) summary(name string) prometheus.Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.summaries[name]; ok {
		return s
	}
	s := prometheus.NewSummary(prometheus.SummaryOpts{
		Name:       name,
		Help:       "inferflow distribution " + name,
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	})
	p.registerer.MustRegister(s)
	p.summaries[name] = s
	return s
}
