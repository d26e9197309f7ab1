package diffusion

import (
	"context"
	"fmt"
)

// Device identifiers for pipeline placement.
const (
	DeviceCUDA = "cuda"
	DeviceCPU  = "cpu"
)

// PipelineSpec describes the weights an assembled pipeline is built from.
type PipelineSpec struct {
	// BaseDir is the extracted SDXL base pipeline in diffusers layout
	// (text encoders, VAE, tokenizers, and the base UNet).
	BaseDir string
	// UNetPath is the Lightning UNet checkpoint spliced over the base UNet
	// after the base pipeline loads.
	UNetPath string
	// Device selects where the pipeline runs. Defaults to DeviceCUDA.
	Device string
	// Threads caps CPU threads for the native runtime. Zero means one per
	// core.
	Threads int
}

// Pipeline is a loaded SDXL-Lightning pipeline. It holds device memory for
// the lifetime of the process and is loaded exactly once.
//
// Pipeline is not safe for concurrent Generate calls; callers serialize
// access. The one-request-at-a-time discipline lives in the predictor.
type Pipeline struct {
	handle    *pipelineHandle
	scheduler Scheduler
	spec      PipelineSpec
	closed    bool
}

// LoadPipeline assembles the pipeline: base weights first, then the
// Lightning UNet checkpoint overwriting the base UNet in place. Any failure
// here is unrecoverable for the process instance.
func LoadPipeline(spec PipelineSpec) (*Pipeline, error) {
	if spec.BaseDir == "" {
		return nil, fmt.Errorf("%w: base pipeline directory not set", ErrModelLoadFailed)
	}
	if spec.UNetPath == "" {
		return nil, fmt.Errorf("%w: UNet checkpoint path not set", ErrModelLoadFailed)
	}
	if spec.Device == "" {
		spec.Device = DeviceCUDA
	}

	handle, err := loadPipeline(spec)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		handle:    handle,
		scheduler: DefaultScheduler,
		spec:      spec,
	}, nil
}

// Spec returns the weights the pipeline was assembled from.
func (p *Pipeline) Spec() PipelineSpec {
	return p.spec
}

// Scheduler returns the currently active scheduler.
func (p *Pipeline) Scheduler() Scheduler {
	return p.scheduler
}

// SetScheduler swaps the active sampling algorithm. The swap is cheap; no
// weights move.
func (p *Pipeline) SetScheduler(s Scheduler) error {
	if p.closed {
		return ErrPipelineClosed
	}
	if !s.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownScheduler, int(s))
	}
	p.scheduler = s
	return nil
}

// Generate runs the sampler and returns params.NumOutputs images, one entry
// per requested output, in order. The seed in params must already be
// resolved; every image in the batch records it.
//
// Generation is not interruptible once the native sampler starts; ctx is
// only consulted before device work begins.
func (p *Pipeline) Generate(ctx context.Context, params Params) ([]Image, error) {
	if p.closed {
		return nil, ErrPipelineClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateParams(params); err != nil {
		return nil, err
	}

	images, err := generate(p.handle, params, p.scheduler.config())
	if err != nil {
		return nil, err
	}
	if len(images) != params.NumOutputs {
		return nil, fmt.Errorf("%w: sampler returned %d images, want %d",
			ErrGenerationFailed, len(images), params.NumOutputs)
	}
	return images, nil
}

// Close releases the native pipeline. Safe to call more than once.
func (p *Pipeline) Close() error {
	if p.closed {
		return nil
	}
	freePipeline(p.handle)
	p.handle = nil
	p.closed = true
	return nil
}
