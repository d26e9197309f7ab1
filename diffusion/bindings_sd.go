//go:build sd && cgo && !stub

// Real CGo implementation of the stable-diffusion.cpp bindings.
// Build with: CGO_ENABLED=1 go build -tags sd
//
// Prerequisites:
//  1. stable-diffusion.cpp must be compiled as a shared library with SDXL
//     support enabled
//  2. Set CGO_CFLAGS to include the header path
//  3. Set CGO_LDFLAGS to link the library

package diffusion

/*
#cgo CFLAGS: -I${SRCDIR}/../vendor/stable-diffusion.cpp
#cgo LDFLAGS: -L${SRCDIR}/../vendor/stable-diffusion.cpp/build -lstable-diffusion

// NOTE: The actual header include is commented out until the library is
// vendored. When stable-diffusion.cpp is integrated, uncomment:
//
// #include <stable-diffusion.h>
// #include <stdlib.h>

#include <stdlib.h>
#include <stdint.h>

// Placeholder type definitions - replace with actual stable-diffusion.h types
typedef void* sdxl_ctx_t;

// Placeholder function declarations - replace with actual library functions.
// Commented to prevent linker errors until the library is vendored:
//
// extern sdxl_ctx_t* sdxl_ctx_create(const char* base_dir, const char* unet_path,
//                                    int n_threads, int use_cuda);
// extern void sdxl_ctx_free(sdxl_ctx_t* ctx);
// extern uint8_t* sdxl_txt2img(sdxl_ctx_t* ctx, const char* prompt,
//                              const char* negative_prompt, int width, int height,
//                              int steps, float cfg_scale, int64_t seed,
//                              int batch_count, int sample_method, int karras_sigmas,
//                              int trailing_spacing);
// extern void sdxl_free_images(uint8_t* imgs);
// extern const char* sdxl_backend_info();
*/
import "C"

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"
)

// sdHandleCounter generates unique IDs for native handles
var sdHandleCounter uint64

// cgoPipeline holds the C context pointer alongside Go metadata
type cgoPipeline struct {
	cCtx *C.sdxl_ctx_t
}

var (
	pipelineMu  sync.Mutex
	pipelineMap = make(map[uint64]*cgoPipeline)
)

// loadPipelineImpl is the real CGo implementation of loadPipeline.
func loadPipelineImpl(spec PipelineSpec) (*pipelineHandle, error) {
	if err := checkPipelinePaths(spec); err != nil {
		return nil, err
	}

	cBaseDir := C.CString(spec.BaseDir)
	defer C.free(unsafe.Pointer(cBaseDir))

	cUNetPath := C.CString(spec.UNetPath)
	defer C.free(unsafe.Pointer(cUNetPath))

	threads := spec.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	// TODO: Uncomment when the library is vendored:
	// useCuda := 0
	// if spec.Device == DeviceCUDA {
	//     useCuda = 1
	// }
	// cCtx := C.sdxl_ctx_create(cBaseDir, cUNetPath, C.int(threads), C.int(useCuda))
	// if cCtx == nil {
	//     return nil, fmt.Errorf("%w: C library returned null context", ErrModelLoadFailed)
	// }
	//
	// id := atomic.AddUint64(&sdHandleCounter, 1)
	// pipelineMu.Lock()
	// pipelineMap[id] = &cgoPipeline{cCtx: cCtx}
	// pipelineMu.Unlock()
	//
	// return &pipelineHandle{id: id, baseDir: spec.BaseDir, valid: true}, nil

	_ = threads
	return nil, fmt.Errorf("%w: stable-diffusion.cpp CGo bindings not yet wired. "+
		"Library header integration pending", ErrModelLoadFailed)
}

// generateImpl is the real CGo implementation of generate.
func generateImpl(h *pipelineHandle, params Params, cfg samplerConfig) ([]Image, error) {
	if !h.isValid() {
		return nil, fmt.Errorf("%w: pipeline handle is nil or invalid", ErrGenerationFailed)
	}

	pipelineMu.Lock()
	cgoCtx, ok := pipelineMap[h.id]
	pipelineMu.Unlock()
	if !ok || cgoCtx == nil || cgoCtx.cCtx == nil {
		return nil, fmt.Errorf("%w: no valid C context found", ErrGenerationFailed)
	}

	cPrompt := C.CString(params.Prompt)
	defer C.free(unsafe.Pointer(cPrompt))

	cNegPrompt := C.CString(params.NegativePrompt)
	defer C.free(unsafe.Pointer(cNegPrompt))

	// TODO: Uncomment when the library is vendored:
	// karras := 0
	// if cfg.sigmas == sigmaScheduleKarras {
	//     karras = 1
	// }
	// trailing := 0
	// if cfg.trailingSpacing {
	//     trailing = 1
	// }
	// imgPtr := C.sdxl_txt2img(
	//     cgoCtx.cCtx,
	//     cPrompt,
	//     cNegPrompt,
	//     C.int(params.Width),
	//     C.int(params.Height),
	//     C.int(params.Steps),
	//     C.float(params.GuidanceScale),
	//     C.int64_t(params.Seed),
	//     C.int(params.NumOutputs),
	//     C.int(cfg.method),
	//     C.int(karras),
	//     C.int(trailing),
	// )
	// if imgPtr == nil {
	//     return nil, fmt.Errorf("%w: sdxl_txt2img returned null", ErrGenerationFailed)
	// }
	// defer C.sdxl_free_images(imgPtr)
	//
	// frame := params.Width * params.Height * 3
	// raw := C.GoBytes(unsafe.Pointer(imgPtr), C.int(frame*params.NumOutputs))
	// images := make([]Image, params.NumOutputs)
	// for i := range images {
	//     images[i] = Image{
	//         Width:  params.Width,
	//         Height: params.Height,
	//         RGB:    raw[i*frame : (i+1)*frame],
	//         Seed:   params.Seed,
	//     }
	// }
	// return images, nil

	_ = cfg
	return nil, fmt.Errorf("%w: stable-diffusion.cpp CGo bindings not yet wired", ErrGenerationFailed)
}

// freePipelineImpl is the real CGo implementation of freePipeline.
func freePipelineImpl(h *pipelineHandle) {
	if h == nil {
		return
	}

	pipelineMu.Lock()
	cgoCtx, ok := pipelineMap[h.id]
	if ok && cgoCtx != nil && cgoCtx.cCtx != nil {
		// TODO: Uncomment when the library is vendored:
		// C.sdxl_ctx_free(cgoCtx.cCtx)
		delete(pipelineMap, h.id)
	}
	pipelineMu.Unlock()

	h.valid = false
}

// backendInfoImpl returns backend info from the C library.
func backendInfoImpl() string {
	// TODO: Uncomment when the library is vendored:
	// cInfo := C.sdxl_backend_info()
	// if cInfo != nil {
	//     return C.GoString(cInfo)
	// }
	return "sd (CGo bindings - library integration pending)"
}

// Ensure atomic is used to avoid unused import error
var _ = atomic.AddUint64
