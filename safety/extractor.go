// Package safety screens generated images for NSFW content before they ever
// reach a caller.
package safety

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

// Sentinel errors for the safety stage.
var (
	ErrExtractorNotFound  = errors.New("safety: feature extractor config not found")
	ErrExtractorCorrupted = errors.New("safety: feature extractor config is invalid")
	ErrCheckerNotFound    = errors.New("safety: checker weights not found")
	ErrCheckerLoadFailed  = errors.New("safety: failed to load checker")
	ErrCheckFailed        = errors.New("safety: content check failed")
	ErrCheckerClosed      = errors.New("safety: checker is closed")
)

// preprocessorConfigFile is the CLIP image processor config shipped with the
// repository, mirroring what the checker was trained against.
const preprocessorConfigFile = "preprocessor_config.json"

// ExtractorConfig describes how raw pixels are turned into the tensor the
// checker consumes. Field names follow the on-disk JSON.
type ExtractorConfig struct {
	CropSize  sizeSpec  `json:"crop_size"`
	DoCenter  bool      `json:"do_center_crop"`
	DoNormal  bool      `json:"do_normalize"`
	DoResize  bool      `json:"do_resize"`
	ImageMean []float64 `json:"image_mean"`
	ImageStd  []float64 `json:"image_std"`
	ShortEdge sizeSpec  `json:"size"`
	Resample  int       `json:"resample"`
	DoRescale bool      `json:"do_rescale"`
	RescaleBy float64   `json:"rescale_factor"`
	Processor string    `json:"image_processor_type"`
}

// sizeSpec accepts both the bare-int and keyed-object forms the config has
// used across processor versions.
type sizeSpec struct {
	Value int
}

func (s *sizeSpec) UnmarshalJSON(data []byte) error {
	var bare int
	if err := json.Unmarshal(data, &bare); err == nil {
		s.Value = bare
		return nil
	}

	var keyed map[string]int
	if err := json.Unmarshal(data, &keyed); err != nil {
		return err
	}
	for _, key := range []string{"shortest_edge", "height", "width"} {
		if v, ok := keyed[key]; ok {
			s.Value = v
			return nil
		}
	}
	return fmt.Errorf("size object has no usable dimension")
}

// LoadExtractorConfig reads the preprocessor config from the feature
// extractor directory.
func LoadExtractorConfig(dir string) (*ExtractorConfig, error) {
	path := filepath.Join(dir, preprocessorConfigFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrExtractorNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("safety: failed to read %s: %w", path, err)
	}

	var cfg ExtractorConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExtractorCorrupted, path, err)
	}

	if cfg.ShortEdge.Value <= 0 || cfg.CropSize.Value <= 0 {
		return nil, fmt.Errorf("%w: non-positive size in %s", ErrExtractorCorrupted, path)
	}
	if len(cfg.ImageMean) != 3 || len(cfg.ImageStd) != 3 {
		return nil, fmt.Errorf("%w: mean/std must have 3 channels", ErrExtractorCorrupted)
	}
	for _, std := range cfg.ImageStd {
		if std == 0 {
			return nil, fmt.Errorf("%w: zero std channel", ErrExtractorCorrupted)
		}
	}

	return &cfg, nil
}

// Preprocess converts an image into a normalized CHW float tensor the
// checker expects: resize so the short edge matches, center crop, scale to
// [0, 1], then per-channel mean/std normalization.
func (cfg *ExtractorConfig) Preprocess(src image.Image) ([]float32, error) {
	resized := resizeShortEdge(src, cfg.ShortEdge.Value)
	cropped := centerCrop(resized, cfg.CropSize.Value)

	size := cfg.CropSize.Value
	tensor := make([]float32, 3*size*size)
	plane := size * size

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := cropped.At(cropped.Bounds().Min.X+x, cropped.Bounds().Min.Y+y).RGBA()
			idx := y*size + x
			tensor[0*plane+idx] = normalize(r, cfg.ImageMean[0], cfg.ImageStd[0])
			tensor[1*plane+idx] = normalize(g, cfg.ImageMean[1], cfg.ImageStd[1])
			tensor[2*plane+idx] = normalize(b, cfg.ImageMean[2], cfg.ImageStd[2])
		}
	}

	return tensor, nil
}

// normalize maps a 16-bit color sample into the checker's input range.
func normalize(sample uint32, mean, std float64) float32 {
	scaled := float64(sample) / 0xffff
	return float32((scaled - mean) / std)
}

// resizeShortEdge scales src so its shorter edge equals edge, preserving
// aspect ratio. Bilinear is what the CLIP processor uses.
func resizeShortEdge(src image.Image, edge int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return src
	}

	var newW, newH int
	if w < h {
		newW = edge
		newH = h * edge / w
	} else {
		newH = edge
		newW = w * edge / h
	}
	if newW == w && newH == h {
		return src
	}

	dst := image.NewNRGBA(image.Rect(0, 0, newW, newH))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	return dst
}

// centerCrop cuts a size x size window from the middle of src.
func centerCrop(src image.Image, size int) image.Image {
	bounds := src.Bounds()
	x0 := bounds.Min.X + (bounds.Dx()-size)/2
	y0 := bounds.Min.Y + (bounds.Dy()-size)/2

	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.Copy(dst, image.Point{}, src, image.Rect(x0, y0, x0+size, y0+size), draw.Src, nil)
	return dst
}
