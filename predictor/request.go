package predictor

import (
	"fmt"

	"lightning_backend/diffusion"
)

// Request default values, applied to zero fields before validation.
const (
	DefaultPrompt        = "A girl smiling"
	DefaultImageSize     = 1024
	DefaultNumOutputs    = 1
	DefaultSchedulerName = "K_EULER"
	DefaultSteps         = 4
	DefaultGuidance      = 0.0
)

// Request is one prediction request as received from a caller. Zero fields
// take defaults; Seed nil means "draw a random seed".
type Request struct {
	Prompt               string   `json:"prompt"`
	NegativePrompt       string   `json:"negative_prompt"`
	Width                int      `json:"width"`
	Height               int      `json:"height"`
	NumOutputs           int      `json:"num_outputs"`
	Scheduler            string   `json:"scheduler"`
	NumInferenceSteps    int      `json:"num_inference_steps"`
	GuidanceScale        *float64 `json:"guidance_scale"`
	Seed                 *int64   `json:"seed"`
	DisableSafetyChecker bool     `json:"disable_safety_checker"`
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (r *Request) ApplyDefaults() {
	if r.Prompt == "" {
		r.Prompt = DefaultPrompt
	}
	if r.Width == 0 {
		r.Width = DefaultImageSize
	}
	if r.Height == 0 {
		r.Height = DefaultImageSize
	}
	if r.NumOutputs == 0 {
		r.NumOutputs = DefaultNumOutputs
	}
	if r.Scheduler == "" {
		r.Scheduler = DefaultSchedulerName
	}
	if r.NumInferenceSteps == 0 {
		r.NumInferenceSteps = DefaultSteps
	}
	if r.GuidanceScale == nil {
		v := DefaultGuidance
		r.GuidanceScale = &v
	}
}

// toParams converts the request into validated generation parameters. The
// scheduler name is resolved here so unknown names fail before any device
// work. The seed is left unresolved (-1) when the caller omitted it; an
// explicit seed is used verbatim and must be non-negative.
func (r *Request) toParams() (diffusion.Params, error) {
	scheduler, err := diffusion.ParseScheduler(r.Scheduler)
	if err != nil {
		return diffusion.Params{}, err
	}

	seed := int64(-1)
	if r.Seed != nil {
		if *r.Seed < 0 {
			return diffusion.Params{}, fmt.Errorf("%w: seed cannot be negative, omit it to randomize", diffusion.ErrInvalidParams)
		}
		seed = *r.Seed
	}

	return diffusion.Params{
		Prompt:         r.Prompt,
		NegativePrompt: r.NegativePrompt,
		Width:          r.Width,
		Height:         r.Height,
		NumOutputs:     r.NumOutputs,
		Scheduler:      scheduler,
		Steps:          r.NumInferenceSteps,
		GuidanceScale:  *r.GuidanceScale,
		Seed:           seed,
	}, nil
}
