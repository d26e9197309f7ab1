//go:build !sd || stub

// Stub implementation of the native bindings for when stable-diffusion.cpp
// is not available. Build with: go build -tags stub
// Or simply build without the "sd" tag: go build

package diffusion

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

// stubHandleCounter generates unique IDs for stub handles
var stubHandleCounter uint64

// loadPipelineImpl validates that the weight paths exist but does not load
// anything onto a device.
func loadPipelineImpl(spec PipelineSpec) (*pipelineHandle, error) {
	if err := checkPipelinePaths(spec); err != nil {
		return nil, err
	}

	return &pipelineHandle{
		id:      atomic.AddUint64(&stubHandleCounter, 1),
		baseDir: spec.BaseDir,
		valid:   true,
	}, nil
}

// checkPipelinePaths verifies the base pipeline directory and the UNet
// checkpoint file are present on disk.
func checkPipelinePaths(spec PipelineSpec) error {
	info, err := os.Stat(spec.BaseDir)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: base pipeline directory %s", ErrModelNotFound, spec.BaseDir)
	}
	if err != nil {
		return fmt.Errorf("%w: unable to access %s: %v", ErrModelLoadFailed, spec.BaseDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrModelLoadFailed, spec.BaseDir)
	}

	if fi, err := os.Stat(spec.UNetPath); os.IsNotExist(err) {
		return fmt.Errorf("%w: UNet checkpoint %s", ErrModelNotFound, spec.UNetPath)
	} else if err != nil {
		return fmt.Errorf("%w: unable to access %s: %v", ErrModelLoadFailed, spec.UNetPath, err)
	} else if fi.IsDir() {
		return fmt.Errorf("%w: UNet checkpoint %s is a directory", ErrCheckpointIncompatible, spec.UNetPath)
	}

	if ext := filepath.Ext(spec.UNetPath); ext != ".safetensors" && ext != ".ckpt" {
		return fmt.Errorf("%w: unsupported checkpoint format %q", ErrCheckpointIncompatible, ext)
	}

	return nil
}

// generateImpl returns an error indicating the real library is not
// available.
func generateImpl(h *pipelineHandle, params Params, cfg samplerConfig) ([]Image, error) {
	if !h.isValid() {
		return nil, fmt.Errorf("%w: pipeline handle is nil or invalid", ErrGenerationFailed)
	}

	_ = cfg
	return nil, fmt.Errorf("%w: stable-diffusion.cpp library not available (stub mode). "+
		"Build with CGO and the 'sd' tag to enable image generation", ErrGenerationFailed)
}

// freePipelineImpl marks the handle as invalid.
func freePipelineImpl(h *pipelineHandle) {
	if h == nil {
		return
	}
	h.valid = false
}

// backendInfoImpl returns backend info for stub mode.
func backendInfoImpl() string {
	return "stub (no stable-diffusion.cpp library linked)"
}
