package draw

import "image"

// inkThreshold is the alpha level above which a rasterized pixel counts
// as ink.
const inkThreshold = 128

// sampleStep spaces pen samples along a run. Finer steps add events
// without adding visible fidelity at e-ink resolution.
const sampleStep = 3

// runGap is the blank space left between segments when a long run is
// split, so a dense fill never becomes one uninterrupted write burst.
const runGap = 4

// stipple traces a rasterized mask into stroke paths: each horizontal
// run of inked pixels becomes one short pen-down segment, and runs
// longer than maxRun are split. Writing large solid regions as one
// continuous stroke has been observed to destabilize the panel
// controller; short segments with gaps keep the write rate survivable.
func stipple(mask *image.RGBA, offset image.Point, maxRun int) []StrokePath {
	if maxRun <= 0 {
		maxRun = 120
	}
	b := mask.Bounds()
	var paths []StrokePath

	for y := b.Min.Y; y < b.Max.Y; y++ {
		x := b.Min.X
		for x < b.Max.X {
			if !inked(mask, x, y) {
				x++
				continue
			}
			start := x
			for x < b.Max.X && inked(mask, x, y) {
				x++
			}
			for s := start; s < x; s += maxRun + runGap {
				end := s + maxRun
				if end > x {
					end = x
				}
				paths = append(paths, runPath(s+offset.X, end+offset.X, y+offset.Y))
			}
		}
	}
	return paths
}

// runPath builds the sample sequence for one horizontal segment from
// x0 (inclusive) to x1 (exclusive) at row y.
func runPath(x0, x1, y int) StrokePath {
	last := x1 - 1
	path := StrokePath{{X: x0, Y: y, PenDown: false}}
	for x := x0; x < last; x += sampleStep {
		path = append(path, Sample{X: x, Y: y, PenDown: true})
	}
	path = append(path,
		Sample{X: last, Y: y, PenDown: true},
		Sample{X: last, Y: y, PenDown: false},
	)
	return path
}

func inked(mask *image.RGBA, x, y int) bool {
	_, _, _, a := mask.At(x, y).RGBA()
	return a>>8 > inkThreshold
}
