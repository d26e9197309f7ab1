// Command lightning_backend serves SDXL-Lightning text-to-image predictions
// over HTTP. Setup provisions model weights and loads the pipeline once;
// after that the process serves predictions one at a time until it exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/vbauerster/mpb/v7"
	"go.uber.org/zap"

	"lightning_backend/history"
	"lightning_backend/logging"
	"lightning_backend/metrics"
	"lightning_backend/predictor"
	"lightning_backend/weights"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Use fmt here since logger isn't initialized yet
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	config, err := LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(config.DevMode, config.LogFilePath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Printf("Failed to sync logger: %v\n", syncErr)
		}
	}()

	logger.Info("Configuration loaded",
		zap.Int("port", config.Port),
		zap.String("weights_dir", config.WeightsDir),
		zap.String("output_dir", config.OutputDir),
		zap.Bool("history_enabled", config.HistoryEnabled),
		zap.Bool("gpu_metrics_enabled", config.GPUMetricsEnabled),
		zap.Bool("dev_mode", config.DevMode),
	)

	if err := run(config, logger); err != nil {
		logger.Fatal("Service failed", zap.Error(err))
	}
	logger.Info("Goodbye!")
}

func run(config *Config, logger *logging.Logger) error {
	if err := os.MkdirAll(config.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received interrupt signal. Shutting down...")
		cancel()
	}()

	fetcher, err := weights.NewFetcher(config.WeightsDir, logger,
		weights.WithProgress(mpb.New(mpb.WithWidth(60))))
	if err != nil {
		return err
	}

	opts := []predictor.Option{
		predictor.WithOutputRoot(config.OutputDir),
		predictor.WithExtractorDir(config.ExtractorDir),
	}

	var store *history.Store
	if config.HistoryEnabled {
		store, err = history.Open(config.HistoryDBPath, config.MigrationsPath)
		if err != nil {
			return fmt.Errorf("failed to open history store: %w", err)
		}
		defer store.Close()
		opts = append(opts, predictor.WithRecorder(store))
	}

	pred, err := predictor.New(logger, fetcher, opts...)
	if err != nil {
		return err
	}
	defer pred.Close()

	color.Cyan("Provisioning weights and loading pipeline...")
	if err := pred.Setup(ctx); err != nil {
		return err
	}
	color.Green("Setup complete. Serving predictions on port %d.", config.Port)

	var collector *metrics.Collector
	if config.GPUMetricsEnabled {
		collector = metrics.NewCollector(nil, config.GPUSampleInterval, logger)
		collector.Start()
		defer collector.Stop()
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: NewServer(pred, store, collector, logger).Routes(),
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
