// CGo bindings for the native SDXL runtime (stable-diffusion.cpp).
//
// When the native library is not available, build with the "stub" tag to use
// mock implementations.
//
// Build requirements for the real CGo implementation:
//   - stable-diffusion.cpp compiled as a shared library with SDXL support
//   - Header file: stable-diffusion.h
//   - Set CGO_CFLAGS and CGO_LDFLAGS appropriately
//
// Example build with real library:
//
//	CGO_CFLAGS="-I/path/to/stable-diffusion.cpp" \
//	CGO_LDFLAGS="-L/path/to/stable-diffusion.cpp/build -lstable-diffusion" \
//	go build -tags sd
//
// Example build without library (stub mode):
//
//	go build -tags stub
package diffusion

// pipelineHandle is an opaque handle to a loaded native pipeline. The real
// implementation wraps a C pointer; the stub implementation tracks an
// internal ID.
type pipelineHandle struct {
	id      uint64
	baseDir string
	valid   bool
}

// isValid reports whether the handle is usable.
func (h *pipelineHandle) isValid() bool {
	return h != nil && h.valid
}

// loadPipeline loads the base SDXL pipeline from a diffusers-layout
// directory and splices the Lightning UNet checkpoint over its UNet weights.
// The two loads happen in that order; the distilled UNet must win.
func loadPipeline(spec PipelineSpec) (*pipelineHandle, error) {
	return loadPipelineImpl(spec)
}

// generate runs the native sampler and returns params.NumOutputs raw RGB
// images. All images in a batch share the request seed.
func generate(h *pipelineHandle, params Params, cfg samplerConfig) ([]Image, error) {
	return generateImpl(h, params, cfg)
}

// freePipeline releases native resources. Safe on nil or already-freed
// handles.
func freePipeline(h *pipelineHandle) {
	freePipelineImpl(h)
}

// BackendInfo returns a human-readable description of the compute backend
// the bindings were built against.
func BackendInfo() string {
	return backendInfoImpl()
}
