package draw

import (
	"fmt"
	"image"
	"os"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// loadFace loads the text rendering face: a font file from disk when
// configured, the embedded Go Regular face otherwise.
func loadFace(path string, size float64) (font.Face, error) {
	data := goregular.TTF
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading font %s: %w", path, err)
		}
	}
	ft, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}
	face, err := opentype.NewFace(ft, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("creating font face: %w", err)
	}
	return face, nil
}

// wrapLines breaks text into lines that fit the given pixel width using
// a fixed per-character width. Words longer than a line are split hard.
func wrapLines(text string, width, charWidth int) []string {
	perLine := width / charWidth
	if perLine < 1 {
		perLine = 1
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		line := ""
		for _, w := range words {
			for len(w) > perLine {
				if line != "" {
					lines = append(lines, line)
					line = ""
				}
				lines = append(lines, w[:perLine])
				w = w[perLine:]
			}
			switch {
			case line == "":
				line = w
			case len(line)+1+len(w) <= perLine:
				line += " " + w
			default:
				lines = append(lines, line)
				line = w
			}
		}
		lines = append(lines, line)
	}
	return lines
}

// renderTextMask rasterizes wrapped text into an RGBA mask the size of
// the target rectangle. Glyph coverage comes from the font, so any
// script the face carries can be drawn, unlike the keyboard path.
func renderTextMask(text string, size image.Point, face font.Face) *image.RGBA {
	mask := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))

	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil() + 2
	ascent := metrics.Ascent.Ceil()
	charWidth := font.MeasureString(face, "M").Ceil()
	if charWidth < 1 {
		charWidth = 8
	}

	d := &font.Drawer{
		Dst:  mask,
		Src:  image.Black,
		Face: face,
	}

	y := ascent
	for _, line := range wrapLines(text, size.X, charWidth) {
		if y-ascent+lineHeight > size.Y {
			break
		}
		d.Dot = fixed.Point26_6{X: fixed.I(0), Y: fixed.I(y)}
		d.DrawString(line)
		y += lineHeight
	}
	return mask
}
