// Package segment finds rectangular regions of ink in a normalized
// bitmap. The agent passes the regions to the reasoning engine as
// spatial context; nothing in the core depends on how they are found.
package segment

import (
	"fmt"
	"image"
	"strings"

	"github.com/mwhite/inkling/internal/device"
)

// Region is one detected rectangle with an optional label. Read-only to
// consumers.
type Region struct {
	Rect  image.Rectangle
	Label string
}

// inkLevel is the gray value below which a pixel counts as ink.
const inkLevel = 128

// minRegionSide filters out specks that are noise rather than content.
const minRegionSide = 8

// maxRegions bounds the context we hand to the engine.
const maxRegions = 32

// Analyze finds connected components of inked pixels and returns their
// bounding boxes, largest first.
func Analyze(bm *device.Bitmap) []Region {
	visited := make([]bool, bm.Width*bm.Height)
	var regions []Region

	for y := 0; y < bm.Height; y++ {
		for x := 0; x < bm.Width; x++ {
			idx := y*bm.Width + x
			if visited[idx] || bm.At(x, y) >= inkLevel {
				continue
			}
			box := flood(bm, visited, x, y)
			if box.Dx() < minRegionSide && box.Dy() < minRegionSide {
				continue
			}
			regions = append(regions, Region{Rect: box, Label: labelFor(box)})
		}
	}

	// Largest first; truncate the tail.
	for i := 0; i < len(regions); i++ {
		for j := i + 1; j < len(regions); j++ {
			if area(regions[j].Rect) > area(regions[i].Rect) {
				regions[i], regions[j] = regions[j], regions[i]
			}
		}
	}
	if len(regions) > maxRegions {
		regions = regions[:maxRegions]
	}
	return regions
}

// Describe formats regions for inclusion in the engine prompt.
func Describe(regions []Region) string {
	if len(regions) == 0 {
		return "No distinct regions detected."
	}
	var b strings.Builder
	for _, r := range regions {
		fmt.Fprintf(&b, "- %s at x=%d y=%d width=%d height=%d\n",
			r.Label, r.Rect.Min.X, r.Rect.Min.Y, r.Rect.Dx(), r.Rect.Dy())
	}
	return b.String()
}

// flood visits one 4-connected component starting at (x, y) and returns
// its bounding box. Iterative with an explicit stack; components can
// span most of the screen.
func flood(bm *device.Bitmap, visited []bool, x, y int) image.Rectangle {
	box := image.Rect(x, y, x+1, y+1)
	stack := []image.Point{{X: x, Y: y}}
	visited[y*bm.Width+x] = true

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		box = box.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))

		for _, d := range [4]image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := p.X+d.X, p.Y+d.Y
			if nx < 0 || ny < 0 || nx >= bm.Width || ny >= bm.Height {
				continue
			}
			idx := ny*bm.Width + nx
			if visited[idx] || bm.At(nx, ny) >= inkLevel {
				continue
			}
			visited[idx] = true
			stack = append(stack, image.Point{X: nx, Y: ny})
		}
	}
	return box
}

func labelFor(box image.Rectangle) string {
	switch {
	case box.Dx() > device.NormalWidth/2 && box.Dy() > device.NormalHeight/2:
		return "large drawing"
	case box.Dy() < box.Dx()/4:
		return "text line"
	default:
		return "drawing"
	}
}

func area(r image.Rectangle) int { return r.Dx() * r.Dy() }
