// Package config loads service configuration from environment variables
// with sane defaults.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the demo inference service.
type Config struct {
	ServerPort int

	// Batching
	MinBatchSize int
	MaxBatchSize int
	MaxWait      time.Duration

	// Simulated backend
	SimLoadDelay   time.Duration
	SimWeightCount int

	// Live stats broadcast
	BroadcastInterval time.Duration

	// ClickHouse metrics sink; empty address disables it.
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// Development toggles human-readable logging.
	Development bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		ServerPort:         envInt("SERVER_PORT", 8080),
		MinBatchSize:       envInt("MIN_BATCH_SIZE", 1),
		MaxBatchSize:       envInt("MAX_BATCH_SIZE", 32),
		MaxWait:            time.Duration(envInt("MAX_WAIT_MS", 50)) * time.Millisecond,
		SimLoadDelay:       time.Duration(envInt("SIM_LOAD_DELAY_MS", 500)) * time.Millisecond,
		SimWeightCount:     envInt("SIM_WEIGHT_COUNT", 4096),
		BroadcastInterval:  time.Duration(envInt("BROADCAST_INTERVAL_MS", 500)) * time.Millisecond,
		ClickHouseAddr:     envStr("CLICKHOUSE_ADDR", ""),
		ClickHouseDatabase: envStr("CLICKHOUSE_DATABASE", "inferflow"),
		ClickHouseUsername: envStr("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: envStr("CLICKHOUSE_PASSWORD", ""),
		Development:        envStr("LOG_MODE", "production") == "development",
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
