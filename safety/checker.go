package safety

import (
	"context"
	"fmt"
	"image"
	"os"
)

// Checker wraps the NSFW content checker. It is loaded once during setup,
// alongside its feature extractor config, and screens every generated image
// before the image can leave the process.
type Checker struct {
	cfg    *ExtractorConfig
	handle *checkerHandle
	closed bool
}

// LoadChecker loads the checker weights from weightsDir and the preprocessor
// config from extractorDir. Any failure is unrecoverable for the process
// instance.
func LoadChecker(weightsDir, extractorDir string) (*Checker, error) {
	cfg, err := LoadExtractorConfig(extractorDir)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(weightsDir)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrCheckerNotFound, weightsDir)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: unable to access %s: %v", ErrCheckerLoadFailed, weightsDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrCheckerLoadFailed, weightsDir)
	}

	handle, err := loadCheckerImpl(weightsDir)
	if err != nil {
		return nil, err
	}

	return &Checker{cfg: cfg, handle: handle}, nil
}

// Config returns the loaded extractor config.
func (c *Checker) Config() *ExtractorConfig {
	return c.cfg
}

// Check screens a batch of images and returns one verdict per image, in
// order. True means the image was flagged and must not be surfaced.
//
// A returned error means the check itself could not run; callers must treat
// that as a system fault, never as an all-clear.
func (c *Checker) Check(ctx context.Context, images []image.Image) ([]bool, error) {
	if c.closed {
		return nil, ErrCheckerClosed
	}
	if len(images) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tensors := make([][]float32, len(images))
	for i, img := range images {
		tensor, err := c.cfg.Preprocess(img)
		if err != nil {
			return nil, fmt.Errorf("%w: preprocessing image %d: %v", ErrCheckFailed, i, err)
		}
		tensors[i] = tensor
	}

	flagged, err := classifyImpl(c.handle, tensors, c.cfg.CropSize.Value)
	if err != nil {
		return nil, err
	}
	if len(flagged) != len(images) {
		return nil, fmt.Errorf("%w: checker returned %d verdicts for %d images",
			ErrCheckFailed, len(flagged), len(images))
	}
	return flagged, nil
}

// Close releases the checker. Safe to call more than once.
func (c *Checker) Close() error {
	if c.closed {
		return nil
	}
	freeCheckerImpl(c.handle)
	c.handle = nil
	c.closed = true
	return nil
}
