package diffusion

import "fmt"

// Validation constants for generation parameters.
const (
	MaxPromptLength = 1000

	MinImageSize      = 8
	MaxImageSize      = 2048
	ImageSizeMultiple = 8

	MinNumOutputs = 1
	MaxNumOutputs = 4

	// Lightning checkpoints are distilled for very few steps; anything past
	// ten degrades output instead of improving it.
	MinSteps = 1
	MaxSteps = 10

	MinGuidanceScale = 0.0
	MaxGuidanceScale = 50.0
)

// Params describes a single generation request after defaults have been
// applied. Seed must be resolved (non-negative) before the pipeline sees it.
type Params struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	NumOutputs     int
	Scheduler      Scheduler
	Steps          int
	GuidanceScale  float64
	Seed           int64
}

// ValidatePrompt checks that a prompt is usable for generation.
//
// Returns nil if valid, or an error wrapping ErrInvalidPrompt describing the
// problem.
func ValidatePrompt(prompt string) error {
	if prompt == "" {
		return fmt.Errorf("%w: prompt cannot be empty", ErrInvalidPrompt)
	}
	if len(prompt) > MaxPromptLength {
		return fmt.Errorf("%w: prompt too long (%d chars, max %d)",
			ErrInvalidPrompt, len(prompt), MaxPromptLength)
	}
	for _, r := range prompt {
		if r == 0 {
			return fmt.Errorf("%w: prompt contains null character", ErrInvalidPrompt)
		}
	}
	return nil
}

// ValidateDimensions checks image width and height. Both must be positive
// multiples of eight; the latent space downscales by that factor.
func ValidateDimensions(width, height int) error {
	for _, dim := range []struct {
		name  string
		value int
	}{
		{"width", width},
		{"height", height},
	} {
		if dim.value < MinImageSize || dim.value > MaxImageSize {
			return fmt.Errorf("%w: %s %d out of range [%d, %d]",
				ErrInvalidParams, dim.name, dim.value, MinImageSize, MaxImageSize)
		}
		if dim.value%ImageSizeMultiple != 0 {
			return fmt.Errorf("%w: %s %d is not a multiple of %d",
				ErrInvalidParams, dim.name, dim.value, ImageSizeMultiple)
		}
	}
	return nil
}

// ValidateParams checks every field of a generation request.
//
// The scheduler must be one of the supported variants; unknown values are
// rejected here rather than silently mapped to a default.
func ValidateParams(p Params) error {
	if err := ValidatePrompt(p.Prompt); err != nil {
		return err
	}
	if len(p.NegativePrompt) > MaxPromptLength {
		return fmt.Errorf("%w: negative prompt too long (%d chars, max %d)",
			ErrInvalidPrompt, len(p.NegativePrompt), MaxPromptLength)
	}
	if err := ValidateDimensions(p.Width, p.Height); err != nil {
		return err
	}
	if p.NumOutputs < MinNumOutputs || p.NumOutputs > MaxNumOutputs {
		return fmt.Errorf("%w: num_outputs %d out of range [%d, %d]",
			ErrInvalidParams, p.NumOutputs, MinNumOutputs, MaxNumOutputs)
	}
	if !p.Scheduler.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownScheduler, int(p.Scheduler))
	}
	if p.Steps < MinSteps || p.Steps > MaxSteps {
		return fmt.Errorf("%w: num_inference_steps %d out of range [%d, %d]",
			ErrInvalidParams, p.Steps, MinSteps, MaxSteps)
	}
	if p.GuidanceScale < MinGuidanceScale || p.GuidanceScale > MaxGuidanceScale {
		return fmt.Errorf("%w: guidance_scale %.2f out of range [%.1f, %.1f]",
			ErrInvalidParams, p.GuidanceScale, MinGuidanceScale, MaxGuidanceScale)
	}
	if p.Seed < 0 {
		return fmt.Errorf("%w: seed must be resolved before generation", ErrInvalidParams)
	}
	return nil
}
