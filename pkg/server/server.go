// Package server exposes the inference stage as a demo HTTP service:
// POST /infer routes request payloads through a shared batch
// accumulator so concurrent callers are batched together, /metrics
// serves Prometheus output, and /ws streams live stage stats.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/inferflow/inferflow/pkg/batch"
	"github.com/inferflow/inferflow/pkg/inference"
	"github.com/inferflow/inferflow/pkg/metrics"
)

// pendingRequest carries one payload through the accumulator together
// with the channels its HTTP handler blocks on.
type pendingRequest struct {
	payload   []byte
	doneCh    chan []byte
	errCh     chan error
	enqueueAt time.Time
}

// Config controls server batching and the stats broadcast.
type Config struct {
	Policy            batch.Policy
	Options           inference.Options
	BroadcastInterval time.Duration
	// Extra recorders (e.g. a ClickHouse sink) in addition to the
	// server-owned in-memory and Prometheus recorders.
	ExtraRecorders []metrics.Recorder
}

// Server ties one inference stage to an HTTP surface. M is the model
// type of the supplied loader.
type Server[M any] struct {
	logger      *zap.Logger
	stage       *inference.Stage[[]byte, []byte, M]
	acc         *batch.Accumulator[*pendingRequest]
	broadcaster *Broadcaster
	stats       *metrics.InMemory
	registry    *prometheus.Registry
	interval    time.Duration
	started     time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Server around loader. The loader's batching overrides are
// applied on top of cfg.Policy before the accumulator is created.
func New[M any](loader inference.ModelLoader[[]byte, []byte, M], cfg Config, logger *zap.Logger) *Server[M] {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = 500 * time.Millisecond
	}

	stats := metrics.NewInMemory()
	registry := prometheus.NewRegistry()
	recorder := append(metrics.Multi{stats, metrics.NewPrometheus(registry)}, cfg.ExtraRecorders...)

	stage := inference.NewStage(loader, inference.StageConfig{
		Options:  cfg.Options,
		Recorder: recorder,
		Logger:   logger,
	})

	policy := cfg.Policy
	if policy == (batch.Policy{}) {
		policy = batch.DefaultPolicy()
	}
	if provider, ok := any(loader).(batch.PolicyProvider); ok {
		policy = provider.BatchPolicy().Apply(policy)
	}

	return &Server[M]{
		logger:      logger,
		stage:       stage,
		acc:         batch.NewAccumulator[*pendingRequest](policy),
		broadcaster: NewBroadcaster(logger),
		stats:       stats,
		registry:    registry,
		interval:    cfg.BroadcastInterval,
		stopCh:      make(chan struct{}),
	}
}

// Start launches the accumulator, the dispatch loop, and the stats
// broadcast loop.
func (s *Server[M]) Start() {
	s.started = time.Now()
	s.acc.Start()

	s.wg.Add(2)
	go s.dispatchLoop()
	go s.broadcastLoop()
}

// Stop drains in-flight requests and stops the background loops.
func (s *Server[M]) Stop() {
	close(s.stopCh)
	s.acc.Close()
	s.wg.Wait()
}

// dispatchLoop consumes accumulated batches, runs the stage, and routes
// each result back to the waiting handler.
func (s *Server[M]) dispatchLoop() {
	defer s.wg.Done()

	for b := range s.acc.Batches() {
		payloads := make([][]byte, len(b))
		for i, r := range b {
			payloads[i] = r.payload
		}

		results, err := s.stage.ProcessBatch(context.Background(), payloads)
		if err != nil {
			for _, r := range b {
				r.errCh <- err
			}
			continue
		}
		for i, r := range b {
			r.doneCh <- results[i].Inference
		}
	}
}

func (s *Server[M]) broadcastLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.broadcaster.Broadcast(s.snapshot())
		}
	}
}

// ServiceStats is the JSON payload served on /stats and pushed over the
// WebSocket.
type ServiceStats struct {
	UptimeSeconds        float64 `json:"uptime_seconds"`
	NumInferences        int64   `json:"num_inferences"`
	Batches              int64   `json:"batches"`
	AvgBatchSize         float64 `json:"avg_batch_size"`
	MaxBatchSize         int64   `json:"max_batch_size"`
	AvgBatchLatencyMicro float64 `json:"avg_batch_latency_micro_secs"`
	ModelBytes           int64   `json:"model_bytes"`
	LoadLatencyMillis    int64   `json:"load_latency_milli_secs"`
}

func (s *Server[M]) snapshot() ServiceStats {
	stats := ServiceStats{
		UptimeSeconds: time.Since(s.started).Seconds(),
		NumInferences: s.stats.Counter(inference.MetricNumInferences),
	}
	if d, ok := s.stats.Distribution(inference.MetricInferenceRequestBatchSize); ok {
		stats.Batches = d.Count
		stats.AvgBatchSize = d.Mean()
		stats.MaxBatchSize = d.Max
	}
	if d, ok := s.stats.Distribution(inference.MetricInferenceBatchLatencyMicros); ok {
		stats.AvgBatchLatencyMicro = d.Mean()
	}
	if d, ok := s.stats.Distribution(inference.MetricModelByteSize); ok {
		stats.ModelBytes = d.Max
	}
	if d, ok := s.stats.Distribution(inference.MetricLoadModelLatencyMillis); ok {
		stats.LoadLatencyMillis = d.Max
	}
	return stats
}

// RegisterRoutes wires all HTTP endpoints onto mux.
func (s *Server[M]) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /infer", s.handleInfer)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("/ws", s.broadcaster.HandleWS)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

type inferRequest struct {
	Inputs []json.RawMessage `json:"inputs"`
}

type inferResponse struct {
	Results []json.RawMessage `json:"results"`
}

// handleInfer submits each input element to the shared accumulator, so
// elements from concurrent requests batch together, then blocks until
// every element's result arrives.
func (s *Server[M]) handleInfer(w http.ResponseWriter, r *http.Request) {
	var req inferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Inputs) == 0 {
		http.Error(w, "inputs must not be empty", http.StatusBadRequest)
		return
	}

	pending := make([]*pendingRequest, len(req.Inputs))
	for i, input := range req.Inputs {
		pending[i] = &pendingRequest{
			payload:   input,
			doneCh:    make(chan []byte, 1),
			errCh:     make(chan error, 1),
			enqueueAt: time.Now(),
		}
		s.acc.Add(pending[i])
	}

	results := make([]json.RawMessage, len(pending))
	for i, p := range pending {
		select {
		case out := <-p.doneCh:
			results[i] = out
		case err := <-p.errCh:
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(inferResponse{Results: results})
}

func (s *Server[M]) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.snapshot())
}
