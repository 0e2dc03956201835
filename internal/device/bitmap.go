package device

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"os"
)

// PixelFormat tags the layout of a Bitmap's pixel buffer.
type PixelFormat int

// Pixel formats.
const (
	FormatGray PixelFormat = iota
	FormatRGB
)

// Bitmap is a captured frame in the normalized coordinate space. It is
// produced fresh per capture and never cached across agent cycles.
type Bitmap struct {
	Width  int
	Height int
	Format PixelFormat
	Pix    []byte
}

// NewGrayBitmap wraps a grayscale image as a Bitmap, copying its pixels.
func NewGrayBitmap(img *image.Gray) *Bitmap {
	b := img.Bounds()
	bm := &Bitmap{
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: FormatGray,
		Pix:    make([]byte, b.Dx()*b.Dy()),
	}
	for y := 0; y < bm.Height; y++ {
		copy(bm.Pix[y*bm.Width:(y+1)*bm.Width], img.Pix[y*img.Stride:y*img.Stride+bm.Width])
	}
	return bm
}

// Gray returns the bitmap as an image.Gray sharing the pixel buffer.
func (b *Bitmap) Gray() *image.Gray {
	return &image.Gray{
		Pix:    b.Pix,
		Stride: b.Width,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// At returns the gray value at (x, y).
func (b *Bitmap) At(x, y int) byte {
	return b.Pix[y*b.Width+x]
}

// EncodePNG encodes the bitmap as a PNG.
func (b *Bitmap) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, b.Gray()); err != nil {
		return nil, fmt.Errorf("encoding bitmap png: %w", err)
	}
	return buf.Bytes(), nil
}

// Base64PNG encodes the bitmap as a base64 PNG string, the form the
// reasoning engines accept as image content.
func (b *Bitmap) Base64PNG() (string, error) {
	data, err := b.EncodePNG()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// SavePNG writes the bitmap to a PNG file, for debugging captures.
func (b *Bitmap) SavePNG(path string) error {
	data, err := b.EncodePNG()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
