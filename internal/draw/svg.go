package draw

import (
	"fmt"
	"image"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// rasterizeSVG parses a vector drawing and rasterizes it at the target
// rectangle's resolution.
func rasterizeSVG(svg string, size image.Point) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(strings.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("parsing svg: %w", err)
	}

	w, h := size.X, size.Y
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	icon.SetTarget(0, 0, float64(w), float64(h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	raster := rasterx.NewDasher(w, h, scanner)
	icon.Draw(raster, 1.0)

	return img, nil
}
