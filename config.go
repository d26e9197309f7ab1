package main

import (
	"fmt"
	"time"

	"lightning_backend/core"
)

// Config holds the service configuration, loaded from environment variables
// (optionally via a .env file).
type Config struct {
	// Port the HTTP server listens on
	Port int
	// WeightsDir is the root for downloaded weight caches
	WeightsDir string
	// OutputDir is where prediction outputs are written
	OutputDir string
	// ExtractorDir holds the safety preprocessor config
	ExtractorDir string
	// LogFilePath is the rotating log file; empty disables file logging
	LogFilePath string
	// DevMode enables human-readable debug logging
	DevMode bool

	// HistoryEnabled toggles the SQLite prediction history
	HistoryEnabled bool
	// HistoryDBPath is the SQLite database file
	HistoryDBPath string
	// MigrationsPath is the golang-migrate source for history migrations
	MigrationsPath string

	// GPUMetricsEnabled toggles background nvidia-smi sampling
	GPUMetricsEnabled bool
	// GPUSampleInterval is how often GPU state is sampled
	GPUSampleInterval time.Duration

	// ShutdownTimeout bounds graceful HTTP shutdown
	ShutdownTimeout time.Duration
}

// LoadConfig reads configuration from the environment, applying defaults for
// anything unset.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:         core.ParseIntEnv("PORT", 5000),
		WeightsDir:   core.GetEnvOrDefault("WEIGHTS_DIR", "."),
		OutputDir:    core.GetEnvOrDefault("OUTPUT_DIR", "outputs"),
		ExtractorDir: core.GetEnvOrDefault("FEATURE_EXTRACTOR_DIR", "feature-extractor"),
		LogFilePath:  core.GetEnvOrDefault("LOG_FILE", "predictor.log"),
		DevMode:      core.ParseBoolEnv("DEV_MODE", false),

		HistoryEnabled: core.ParseBoolEnv("HISTORY_ENABLED", true),
		HistoryDBPath:  core.GetEnvOrDefault("HISTORY_DB", "history.db"),
		MigrationsPath: core.GetEnvOrDefault("MIGRATIONS_PATH", "file://history/migrations"),

		GPUMetricsEnabled: core.ParseBoolEnv("GPU_METRICS_ENABLED", true),
		GPUSampleInterval: time.Duration(core.ParseIntEnv("GPU_SAMPLE_INTERVAL_SECONDS", 5)) * time.Second,

		ShutdownTimeout: time.Duration(core.ParseIntEnv("SHUTDOWN_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d", cfg.Port)
	}
	if cfg.HistoryEnabled && cfg.HistoryDBPath == "" {
		return nil, fmt.Errorf("HISTORY_DB cannot be empty when history is enabled")
	}

	return cfg, nil
}
