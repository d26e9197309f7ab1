// Package diffusion provides the assembled SDXL-Lightning text-to-image
// pipeline behind CGo bindings to stable-diffusion.cpp.
package diffusion

import "errors"

// Sentinel errors for pipeline operations.
var (
	// Model loading errors
	ErrModelNotFound          = errors.New("diffusion: model weights not found")
	ErrModelLoadFailed        = errors.New("diffusion: failed to load model")
	ErrCheckpointIncompatible = errors.New("diffusion: checkpoint is incompatible with the pipeline")

	// Generation errors
	ErrGenerationFailed = errors.New("diffusion: image generation failed")

	// Input validation errors
	ErrInvalidPrompt    = errors.New("diffusion: invalid prompt")
	ErrInvalidParams    = errors.New("diffusion: invalid generation parameters")
	ErrUnknownScheduler = errors.New("diffusion: unknown scheduler")

	// Hardware/resource errors
	ErrCUDANotAvailable = errors.New("diffusion: CUDA not available")
	ErrOutOfVRAM        = errors.New("diffusion: out of VRAM")

	// Lifecycle errors
	ErrPipelineClosed = errors.New("diffusion: pipeline is closed")
)
