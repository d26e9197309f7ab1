// Package predictor orchestrates the setup-once, predict-many lifecycle of
// the SDXL-Lightning service: weight provisioning, pipeline and checker
// loading, request validation, generation, safety screening, and output
// persistence.
package predictor

import "errors"

var (
	// ErrNotSetup is returned by Predict before Setup has completed.
	ErrNotSetup = errors.New("predictor: setup has not run")

	// ErrAlreadySetup is returned by a second Setup call on the same
	// instance.
	ErrAlreadySetup = errors.New("predictor: setup already completed")

	// ErrAllOutputsFiltered is returned when the safety checker flags every
	// generated image. The generation itself succeeded; the caller should
	// retry with a different prompt or seed rather than report a fault.
	ErrAllOutputsFiltered = errors.New("predictor: NSFW content detected in all outputs, try running it again with a different prompt")
)
