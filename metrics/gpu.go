// Package metrics samples GPU state via nvidia-smi so operators can see
// device utilization and memory pressure alongside prediction logs.
package metrics

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"lightning_backend/logging"
)

// GPUMetrics is one sample of GPU state.
type GPUMetrics struct {
	// Utilization is GPU utilization percentage (0-100)
	Utilization float64 `json:"utilization"`
	// Temperature in degrees Celsius
	Temperature float64 `json:"temperature"`
	// MemoryTotal in bytes
	MemoryTotal int64 `json:"memory_total"`
	// MemoryUsed in bytes
	MemoryUsed int64 `json:"memory_used"`
	// MemoryFree in bytes
	MemoryFree int64 `json:"memory_free"`
	// SampledAt is when the sample was taken
	SampledAt time.Time `json:"sampled_at"`
}

// MemoryUsagePercent returns used memory as a percentage of total.
func (m GPUMetrics) MemoryUsagePercent() float64 {
	if m.MemoryTotal == 0 {
		return 0
	}
	return float64(m.MemoryUsed) / float64(m.MemoryTotal) * 100
}

// GPUReader reads one GPU sample. Tests substitute mocks.
type GPUReader interface {
	ReadGPUMetrics(ctx context.Context) (GPUMetrics, error)
}

// NvidiaSMIReader reads GPU metrics by executing nvidia-smi.
type NvidiaSMIReader struct {
	// Path to the nvidia-smi executable. Empty means resolve via PATH.
	Path string
}

// ReadGPUMetrics queries nvidia-smi once.
func (r *NvidiaSMIReader) ReadGPUMetrics(ctx context.Context) (GPUMetrics, error) {
	path := r.Path
	if path == "" {
		path = "nvidia-smi"
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, path,
		"--query-gpu=utilization.gpu,temperature.gpu,memory.used,memory.total",
		"--format=csv,noheader,nounits")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return GPUMetrics{}, fmt.Errorf("metrics: nvidia-smi failed: %w (stderr: %s)", err, stderr.String())
	}

	return ParseNvidiaSMIOutput(stdout.String())
}

// ParseNvidiaSMIOutput parses the no-header, no-units CSV form of
// nvidia-smi's query output.
func ParseNvidiaSMIOutput(output string) (GPUMetrics, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return GPUMetrics{}, fmt.Errorf("metrics: empty nvidia-smi output")
	}

	record, err := csv.NewReader(strings.NewReader(output)).Read()
	if err != nil {
		return GPUMetrics{}, fmt.Errorf("metrics: failed to parse CSV: %w", err)
	}
	if len(record) < 4 {
		return GPUMetrics{}, fmt.Errorf("metrics: unexpected field count: got %d, expected 4", len(record))
	}

	fields := make([]float64, 4)
	names := []string{"utilization", "temperature", "memory used", "memory total"}
	for i := range fields {
		fields[i], err = strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
		if err != nil {
			return GPUMetrics{}, fmt.Errorf("metrics: failed to parse %s: %w", names[i], err)
		}
	}

	const mibToBytes = 1024 * 1024
	memUsed := int64(fields[2] * mibToBytes)
	memTotal := int64(fields[3] * mibToBytes)

	return GPUMetrics{
		Utilization: fields[0],
		Temperature: fields[1],
		MemoryTotal: memTotal,
		MemoryUsed:  memUsed,
		MemoryFree:  memTotal - memUsed,
		SampledAt:   time.Now().UTC(),
	}, nil
}

// Collector periodically samples GPU state in the background and retains
// the latest sample for the health endpoint.
type Collector struct {
	mu sync.RWMutex

	reader   GPUReader
	interval time.Duration
	logger   *logging.Logger

	last      GPUMetrics
	available bool
	lastErr   error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCollector creates a Collector sampling at the given interval. Intervals
// under one second are clamped to five seconds.
func NewCollector(reader GPUReader, interval time.Duration, logger *logging.Logger) *Collector {
	if interval < time.Second {
		interval = 5 * time.Second
	}
	if reader == nil {
		reader = &NvidiaSMIReader{}
	}
	return &Collector{
		reader:   reader,
		interval: interval,
		logger:   logger.Named("metrics"),
	}
}

// Start begins background sampling. Non-blocking.
func (c *Collector) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.sampleOnce(ctx)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sampleOnce(ctx)
			}
		}
	}()
}

// Stop halts sampling and waits for the background goroutine.
func (c *Collector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// Current returns the latest sample and whether the GPU is reachable.
func (c *Collector) Current() (GPUMetrics, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last, c.available
}

// LastError returns the most recent sampling error, nil when healthy.
func (c *Collector) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Collector) sampleOnce(ctx context.Context) {
	sample, err := c.reader.ReadGPUMetrics(ctx)

	c.mu.Lock()
	if err != nil {
		// Keep the last valid sample; only availability flips.
		c.available = false
		c.lastErr = err
	} else {
		c.available = true
		c.lastErr = nil
		c.last = sample
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Debug("gpu sample failed", zap.Error(err))
		return
	}
	c.logger.Debug("gpu sample",
		zap.Float64("utilization", sample.Utilization),
		zap.Float64("temperature", sample.Temperature),
		zap.Float64("memory_pct", sample.MemoryUsagePercent()))
}
