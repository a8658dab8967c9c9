package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/inferflow/inferflow/pkg/batch"
	"github.com/inferflow/inferflow/pkg/config"
	"github.com/inferflow/inferflow/pkg/inference"
	"github.com/inferflow/inferflow/pkg/metrics"
	"github.com/inferflow/inferflow/pkg/server"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("inferflow starting",
		zap.Int("port", cfg.ServerPort),
		zap.Int("min_batch", cfg.MinBatchSize),
		zap.Int("max_batch", cfg.MaxBatchSize),
		zap.Duration("max_wait", cfg.MaxWait))

	var extra []metrics.Recorder
	if cfg.ClickHouseAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		sink, err := metrics.NewClickHouse(ctx, metrics.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
			Logger:   logger,
		})
		cancel()
		if err != nil {
			logger.Fatal("clickhouse sink failed", zap.Error(err))
		}
		defer sink.Close()
		logger.Info("clickhouse sink enabled",
			zap.String("addr", cfg.ClickHouseAddr),
			zap.String("run_id", sink.RunID()))
		extra = append(extra, sink)
	}

	loader := &inference.SimulatedLoader{
		LoadDelay:   cfg.SimLoadDelay,
		WeightCount: cfg.SimWeightCount,
	}
	srv := server.New[*inference.SimulatedModel](loader, server.Config{
		Policy: batch.Policy{
			MinSize: cfg.MinBatchSize,
			MaxSize: cfg.MaxBatchSize,
			MaxWait: cfg.MaxWait,
		},
		BroadcastInterval: cfg.BroadcastInterval,
		ExtraRecorders:    extra,
	}, logger)
	srv.Start()

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: mux,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	srv.Stop()
	logger.Info("stopped")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
