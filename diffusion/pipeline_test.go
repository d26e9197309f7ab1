package diffusion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// fakeWeights lays out a minimal base pipeline directory and a UNet
// checkpoint file under a temp dir.
func fakeWeights(t *testing.T) PipelineSpec {
	t.Helper()
	root := t.TempDir()

	baseDir := filepath.Join(root, "checkpoints")
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		t.Fatal(err)
	}

	unetPath := filepath.Join(root, "unet-cache", "sdxl_lightning_4step_unet.safetensors")
	if err := os.MkdirAll(filepath.Dir(unetPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(unetPath, []byte("weights"), 0644); err != nil {
		t.Fatal(err)
	}

	return PipelineSpec{BaseDir: baseDir, UNetPath: unetPath}
}

func TestLoadPipeline_StubMode(t *testing.T) {
	p, err := LoadPipeline(fakeWeights(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()

	if p.Scheduler() != DefaultScheduler {
		t.Errorf("fresh pipeline should start on %v, got %v", DefaultScheduler, p.Scheduler())
	}
	if p.Spec().Device != DeviceCUDA {
		t.Errorf("device should default to cuda, got %q", p.Spec().Device)
	}
}

func TestLoadPipeline_MissingBaseDir(t *testing.T) {
	spec := fakeWeights(t)
	spec.BaseDir = filepath.Join(spec.BaseDir, "does-not-exist")

	_, err := LoadPipeline(spec)
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got: %v", err)
	}
}

func TestLoadPipeline_MissingUNet(t *testing.T) {
	spec := fakeWeights(t)
	spec.UNetPath = filepath.Join(filepath.Dir(spec.UNetPath), "missing.safetensors")

	_, err := LoadPipeline(spec)
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got: %v", err)
	}
}

func TestLoadPipeline_BadCheckpointExtension(t *testing.T) {
	spec := fakeWeights(t)
	bad := filepath.Join(filepath.Dir(spec.UNetPath), "unet.bin")
	if err := os.WriteFile(bad, []byte("weights"), 0644); err != nil {
		t.Fatal(err)
	}
	spec.UNetPath = bad

	_, err := LoadPipeline(spec)
	if !errors.Is(err, ErrCheckpointIncompatible) {
		t.Errorf("expected ErrCheckpointIncompatible, got: %v", err)
	}
}

func TestLoadPipeline_EmptySpec(t *testing.T) {
	if _, err := LoadPipeline(PipelineSpec{}); !errors.Is(err, ErrModelLoadFailed) {
		t.Errorf("expected ErrModelLoadFailed, got: %v", err)
	}
}

func TestPipeline_SetScheduler(t *testing.T) {
	p, err := LoadPipeline(fakeWeights(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()

	if err := p.SetScheduler(SchedulerKarrasDPM); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Scheduler() != SchedulerKarrasDPM {
		t.Errorf("scheduler swap did not stick, got %v", p.Scheduler())
	}

	if err := p.SetScheduler(Scheduler(42)); !errors.Is(err, ErrUnknownScheduler) {
		t.Errorf("expected ErrUnknownScheduler, got: %v", err)
	}
	if p.Scheduler() != SchedulerKarrasDPM {
		t.Error("failed swap should leave the active scheduler untouched")
	}
}

func TestPipeline_Generate_InvalidParams(t *testing.T) {
	p, err := LoadPipeline(fakeWeights(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()

	params := validParams()
	params.Steps = 0
	if _, err := p.Generate(context.Background(), params); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got: %v", err)
	}
}

func TestPipeline_Generate_CanceledContext(t *testing.T) {
	p, err := LoadPipeline(fakeWeights(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Generate(ctx, validParams()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}

func TestPipeline_Generate_StubReturnsGenerationFailed(t *testing.T) {
	p, err := LoadPipeline(fakeWeights(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()

	if _, err := p.Generate(context.Background(), validParams()); !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("stub generate should fail with ErrGenerationFailed, got: %v", err)
	}
}

func TestPipeline_ClosedOperations(t *testing.T) {
	p, err := LoadPipeline(fakeWeights(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("double close should be a no-op, got: %v", err)
	}

	if _, err := p.Generate(context.Background(), validParams()); !errors.Is(err, ErrPipelineClosed) {
		t.Errorf("expected ErrPipelineClosed, got: %v", err)
	}
	if err := p.SetScheduler(SchedulerDDIM); !errors.Is(err, ErrPipelineClosed) {
		t.Errorf("expected ErrPipelineClosed, got: %v", err)
	}
}

func TestBackendInfo_NotEmpty(t *testing.T) {
	if BackendInfo() == "" {
		t.Error("backend info should never be empty")
	}
}
