//go:build !sd || stub

// Stub implementation of the checker bindings for builds without the native
// runtime.

package safety

import "sync/atomic"

var stubCheckerCounter uint64

// checkerHandle is an opaque handle to a loaded checker model.
type checkerHandle struct {
	id         uint64
	weightsDir string
	valid      bool
}

// loadCheckerImpl records the weights location without loading anything.
func loadCheckerImpl(weightsDir string) (*checkerHandle, error) {
	return &checkerHandle{
		id:         atomic.AddUint64(&stubCheckerCounter, 1),
		weightsDir: weightsDir,
		valid:      true,
	}, nil
}

// classifyImpl never flags anything in stub mode. Stub builds cannot
// generate images either, so nothing real ever passes through unscreened.
func classifyImpl(h *checkerHandle, tensors [][]float32, size int) ([]bool, error) {
	if h == nil || !h.valid {
		return nil, ErrCheckerLoadFailed
	}
	_ = size
	return make([]bool, len(tensors)), nil
}

// freeCheckerImpl marks the handle as invalid.
func freeCheckerImpl(h *checkerHandle) {
	if h == nil {
		return
	}
	h.valid = false
}
