package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lightning_backend/logging"
)

func TestParseNvidiaSMIOutput_Valid(t *testing.T) {
	m, err := ParseNvidiaSMIOutput("87, 64, 18432, 24576\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.Utilization != 87 {
		t.Errorf("utilization = %f, want 87", m.Utilization)
	}
	if m.Temperature != 64 {
		t.Errorf("temperature = %f, want 64", m.Temperature)
	}
	wantUsed := int64(18432) * 1024 * 1024
	if m.MemoryUsed != wantUsed {
		t.Errorf("memory used = %d, want %d", m.MemoryUsed, wantUsed)
	}
	if m.MemoryFree != m.MemoryTotal-m.MemoryUsed {
		t.Error("memory free should be total minus used")
	}
}

func TestParseNvidiaSMIOutput_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"empty", ""},
		{"whitespace only", "   \n"},
		{"too few fields", "87, 64, 18432"},
		{"non-numeric", "N/A, 64, 18432, 24576"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseNvidiaSMIOutput(tt.output); err == nil {
				t.Errorf("expected error for %q", tt.output)
			}
		})
	}
}

func TestGPUMetrics_MemoryUsagePercent(t *testing.T) {
	m := GPUMetrics{MemoryTotal: 1000, MemoryUsed: 250}
	if got := m.MemoryUsagePercent(); got != 25 {
		t.Errorf("usage = %f, want 25", got)
	}

	var zero GPUMetrics
	if got := zero.MemoryUsagePercent(); got != 0 {
		t.Errorf("zero-total usage = %f, want 0", got)
	}
}

// mockReader returns canned samples or errors.
type mockReader struct {
	mu      sync.Mutex
	metrics GPUMetrics
	err     error
	calls   int
}

func (m *mockReader) ReadGPUMetrics(ctx context.Context) (GPUMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return GPUMetrics{}, m.err
	}
	return m.metrics, nil
}

func (m *mockReader) setError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.NewLogger(true, "")
	if err != nil {
		t.Fatal(err)
	}
	return logger
}

func TestCollector_SamplesOnStart(t *testing.T) {
	reader := &mockReader{metrics: GPUMetrics{Utilization: 42, MemoryTotal: 100, MemoryUsed: 50}}
	c := NewCollector(reader, time.Hour, testLogger(t))

	c.Start()
	defer c.Stop()

	// The first sample happens synchronously with Start's goroutine; give it
	// a moment.
	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := c.Current(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("collector never produced a sample")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sample, ok := c.Current()
	if !ok {
		t.Fatal("GPU should be reported available")
	}
	if sample.Utilization != 42 {
		t.Errorf("utilization = %f, want 42", sample.Utilization)
	}
}

func TestCollector_ErrorFlipsAvailability(t *testing.T) {
	reader := &mockReader{}
	reader.setError(errors.New("no devices found"))
	c := NewCollector(reader, time.Hour, testLogger(t))

	c.Start()
	defer c.Stop()

	deadline := time.Now().Add(time.Second)
	for c.LastError() == nil {
		if time.Now().After(deadline) {
			t.Fatal("collector never recorded the error")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, ok := c.Current(); ok {
		t.Error("GPU should be reported unavailable after a failed sample")
	}
}
