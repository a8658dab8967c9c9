package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	sampleKindCounter      = "counter"
	sampleKindDistribution = "distribution"
)

type sample struct {
	kind  string
	name  string
	value int64
	at    time.Time
}

// ClickHouseConfig configures the ClickHouse sink connection.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string

	// FlushInterval controls how often buffered samples are written.
	// Defaults to 5s.
	FlushInterval time.Duration
	// BufferSize is the channel capacity before samples are dropped.
	// Defaults to 4096.
	BufferSize int
	Logger     *zap.Logger
}

// ClickHouse streams every recorded sample to a ClickHouse table for
// offline analysis. Recording never blocks the stage: samples go through
// a buffered channel and are inserted in batches by a background
// goroutine; when the buffer is full, samples are dropped.
type ClickHouse struct {
	conn   driver.Conn
	runID  string
	logger *zap.Logger

	samples chan sample
	done    chan struct{}
}

// NewClickHouse opens the connection, ensures the samples table exists,
// and starts the flush loop. Each sink instance tags its rows with a
// fresh run ID.
func NewClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouse, error) {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	if err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS inference_metric_samples (
			run_id String,
			kind String,
			name String,
			value Int64,
			recorded_at DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (run_id, name, recorded_at)
	`); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ensure samples table: %w", err)
	}

	ch := &ClickHouse{
		conn:    conn,
		runID:   uuid.NewString(),
		logger:  logger,
		samples: make(chan sample, cfg.BufferSize),
		done:    make(chan struct{}),
	}
	go ch.flushLoop(cfg.FlushInterval)
	return ch, nil
}

// RunID identifies the rows written by this sink instance.
func (c *ClickHouse) RunID() string { return c.runID }

func (c *ClickHouse) IncCounter(name string, delta int64) {
	c.enqueue(sample{kind: sampleKindCounter, name: name, value: delta, at: time.Now()})
}

func (c *ClickHouse) ObserveDistribution(name string, value int64) {
	c.enqueue(sample{kind: sampleKindDistribution, name: name, value: value, at: time.Now()})
}

func (c *ClickHouse) enqueue(s sample) {
	select {
	case c.samples <- s:
	default:
		// Buffer full. Telemetry must never stall inference.
	}
}

// Close flushes pending samples and closes the connection.
func (c *ClickHouse) Close() error {
	close(c.samples)
	<-c.done
	return c.conn.Close()
}

func (c *ClickHouse) flushLoop(interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pending := make([]sample, 0, 256)
	for {
		select {
		case s, ok := <-c.samples:
			if !ok {
				c.flush(pending)
				return
			}
			pending = append(pending, s)
		case <-ticker.C:
			c.flush(pending)
			pending = pending[:0]
		}
	}
}

func (c *ClickHouse) flush(pending []sample) {
	if len(pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO inference_metric_samples
		(run_id, kind, name, value, recorded_at)
		VALUES
	`)
	if err != nil {
		c.logger.Warn("prepare metrics batch failed", zap.Error(err))
		return
	}
	for _, s := range pending {
		if err := batch.Append(c.runID, s.kind, s.name, s.value, s.at); err != nil {
			c.logger.Warn("append metric sample failed", zap.Error(err))
		}
	}
	if err := batch.Send(); err != nil {
		c.logger.Warn("send metrics batch failed", zap.Error(err), zap.Int("samples", len(pending)))
	}
}
