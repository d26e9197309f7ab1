//go:build sd && cgo && !stub

// Real CGo implementation of the checker bindings. Follows the same build
// conventions as the diffusion bindings: link against the native runtime and
// build with -tags sd.

package safety

/*
#cgo CFLAGS: -I${SRCDIR}/../vendor/stable-diffusion.cpp
#cgo LDFLAGS: -L${SRCDIR}/../vendor/stable-diffusion.cpp/build -lstable-diffusion

// NOTE: Placeholder declarations until the native safety head is vendored:
//
// extern void* safety_checker_create(const char* weights_dir);
// extern void safety_checker_free(void* checker);
// extern int safety_checker_classify(void* checker, const float* tensors,
//                                    int batch, int size, int* out_flags);

#include <stdlib.h>
*/
import "C"

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

var sdCheckerCounter uint64

// checkerHandle is an opaque handle to a loaded checker model.
type checkerHandle struct {
	id         uint64
	weightsDir string
	valid      bool
}

type cgoChecker struct {
	cCtx unsafe.Pointer
}

var (
	checkerMu  sync.Mutex
	checkerMap = make(map[uint64]*cgoChecker)
)

// loadCheckerImpl is the real CGo implementation of checker loading.
func loadCheckerImpl(weightsDir string) (*checkerHandle, error) {
	cDir := C.CString(weightsDir)
	defer C.free(unsafe.Pointer(cDir))

	// TODO: Uncomment when the native safety head is vendored:
	// cCtx := C.safety_checker_create(cDir)
	// if cCtx == nil {
	//     return nil, fmt.Errorf("%w: C library returned null checker", ErrCheckerLoadFailed)
	// }
	//
	// id := atomic.AddUint64(&sdCheckerCounter, 1)
	// checkerMu.Lock()
	// checkerMap[id] = &cgoChecker{cCtx: cCtx}
	// checkerMu.Unlock()
	//
	// return &checkerHandle{id: id, weightsDir: weightsDir, valid: true}, nil

	return nil, fmt.Errorf("%w: native safety checker bindings not yet wired", ErrCheckerLoadFailed)
}

// classifyImpl is the real CGo implementation of batch classification.
func classifyImpl(h *checkerHandle, tensors [][]float32, size int) ([]bool, error) {
	if h == nil || !h.valid {
		return nil, ErrCheckerLoadFailed
	}

	checkerMu.Lock()
	cgoCtx, ok := checkerMap[h.id]
	checkerMu.Unlock()
	if !ok || cgoCtx == nil || cgoCtx.cCtx == nil {
		return nil, fmt.Errorf("%w: no valid C checker found", ErrCheckFailed)
	}

	// TODO: Uncomment when the native safety head is vendored:
	// flat := make([]float32, 0, len(tensors)*3*size*size)
	// for _, t := range tensors {
	//     flat = append(flat, t...)
	// }
	// flags := make([]C.int, len(tensors))
	// rc := C.safety_checker_classify(cgoCtx.cCtx, (*C.float)(&flat[0]),
	//     C.int(len(tensors)), C.int(size), &flags[0])
	// if rc != 0 {
	//     return nil, fmt.Errorf("%w: classifier returned %d", ErrCheckFailed, int(rc))
	// }
	// verdicts := make([]bool, len(tensors))
	// for i, f := range flags {
	//     verdicts[i] = f != 0
	// }
	// return verdicts, nil

	_ = size
	return nil, fmt.Errorf("%w: native safety checker bindings not yet wired", ErrCheckFailed)
}

// freeCheckerImpl is the real CGo implementation of checker release.
func freeCheckerImpl(h *checkerHandle) {
	if h == nil {
		return
	}

	checkerMu.Lock()
	cgoCtx, ok := checkerMap[h.id]
	if ok && cgoCtx != nil && cgoCtx.cCtx != nil {
		// TODO: Uncomment when the native safety head is vendored:
		// C.safety_checker_free(cgoCtx.cCtx)
		delete(checkerMap, h.id)
	}
	checkerMu.Unlock()

	h.valid = false
}

// Ensure atomic is used to avoid unused import error
var _ = atomic.AddUint64
