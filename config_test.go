package main

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 5000 {
		t.Errorf("port = %d, want 5000", cfg.Port)
	}
	if cfg.OutputDir != "outputs" {
		t.Errorf("output dir = %q, want outputs", cfg.OutputDir)
	}
	if !cfg.HistoryEnabled {
		t.Error("history should default to enabled")
	}
	if cfg.GPUSampleInterval != 5*time.Second {
		t.Errorf("gpu sample interval = %v, want 5s", cfg.GPUSampleInterval)
	}
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("WEIGHTS_DIR", "/data/weights")
	t.Setenv("HISTORY_ENABLED", "false")
	t.Setenv("DEV_MODE", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Port)
	}
	if cfg.WeightsDir != "/data/weights" {
		t.Errorf("weights dir = %q", cfg.WeightsDir)
	}
	if cfg.HistoryEnabled {
		t.Error("history should be disabled")
	}
	if !cfg.DevMode {
		t.Error("dev mode should be enabled")
	}
}

func TestLoadConfig_InvalidPort(t *testing.T) {
	t.Setenv("PORT", "99999")

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for out-of-range port")
	}
}
