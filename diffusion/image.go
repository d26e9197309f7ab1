package diffusion

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// Image is one generated output held in memory as packed 8-bit RGB rows,
// together with the seed that produced it.
type Image struct {
	Width  int
	Height int
	RGB    []byte
	Seed   int64
}

// validate checks that the pixel buffer matches the declared dimensions.
func (img *Image) validate() error {
	if img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("diffusion: invalid image dimensions %dx%d", img.Width, img.Height)
	}
	if want := img.Width * img.Height * 3; len(img.RGB) != want {
		return fmt.Errorf("diffusion: pixel buffer is %d bytes, want %d for %dx%d RGB",
			len(img.RGB), want, img.Width, img.Height)
	}
	return nil
}

// ToNRGBA converts the packed RGB buffer into a standard library image.
func (img *Image) ToNRGBA() (*image.NRGBA, error) {
	if err := img.validate(); err != nil {
		return nil, err
	}

	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		src := img.RGB[y*img.Width*3:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < img.Width; x++ {
			dst[x*4+0] = src[x*3+0]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 0xff
		}
	}
	return out, nil
}

// EncodePNG renders the image as a PNG byte stream.
func (img *Image) EncodePNG() ([]byte, error) {
	nrgba, err := img.ToNRGBA()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, nrgba); err != nil {
		return nil, fmt.Errorf("diffusion: failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// pngMagic is the fixed 8-byte PNG file signature.
var pngMagic = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}

// IsPNG reports whether data starts with the PNG signature.
func IsPNG(data []byte) bool {
	return len(data) >= len(pngMagic) && bytes.Equal(data[:len(pngMagic)], pngMagic)
}
