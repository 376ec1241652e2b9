// Package coverage classifies silhouette pixels as uncovered, covered once,
// or overlapped, from a piece census and a silhouette mask.
package coverage

import (
	"github.com/kyiku/tangram-back/internal/geometry"
	"github.com/kyiku/tangram-back/internal/raster"
)

// Neighbourhood radii.
const (
	// RadiusStrict inspects only the pixel itself. Used for win checks.
	RadiusStrict = 0
	// RadiusLenient inspects the 3x3 neighbourhood. Used for live overlays.
	RadiusLenient = 1
)

// Overlay colours, RGBA.
var (
	UncoveredColor = [4]byte{255, 0, 0, 160}
	OverlapColor   = [4]byte{0, 100, 255, 160}
)

// Result is the outcome of one classification.
type Result struct {
	Uncovered int `json:"uncovered"`
	Overlap   int `json:"overlap"`
	Width     int `json:"width"`
	Height    int `json:"height"`
	// Overlay is width*height*4 RGBA bytes, or nil when no silhouette was given.
	Overlay []byte `json:"overlay"`
}

// Score returns the defect score: uncovered plus overlapped pixels.
func (r Result) Score() int {
	return r.Uncovered + r.Overlap
}

// RadiusFor maps the strict flag to a neighbourhood radius.
func RadiusFor(strict bool) int {
	if strict {
		return RadiusStrict
	}
	return RadiusLenient
}

// Classify inspects every pixel inside the silhouette mask. A pixel is
// covered when any count within radius is positive and overlapped when any
// count within radius exceeds one. counts and mask are not modified.
func Classify(counts []uint8, mask []bool, width, height, radius int) Result {
	res := Result{Width: width, Height: height}
	if width <= 0 || height <= 0 {
		return res
	}
	res.Overlay = make([]byte, width*height*4)
	n := min(width*height, len(counts), len(mask))

	for pi := 0; pi < n; pi++ {
		if !mask[pi] {
			continue
		}
		x, y := pi%width, pi/width
		covered, overlapped := false, false
		for dy := -radius; dy <= radius && !(covered && overlapped); dy++ {
			ny := y + dy
			if ny < 0 || ny >= height {
				continue
			}
			for dx := -radius; dx <= radius; dx++ {
				nx := x + dx
				if nx < 0 || nx >= width {
					continue
				}
				c := counts[ny*width+nx]
				if c > 0 {
					covered = true
				}
				if c > 1 {
					overlapped = true
					break
				}
			}
		}

		switch {
		case !covered:
			copy(res.Overlay[pi*4:], UncoveredColor[:])
			res.Uncovered++
		case overlapped:
			copy(res.Overlay[pi*4:], OverlapColor[:])
			res.Overlap++
		}
	}
	return res
}

// Compute rasterises pieces and silhouette on a width x height canvas and
// classifies the result. A missing silhouette yields a zero Result with a
// nil overlay.
func Compute(width, height int, pieces []geometry.Polygon, silhouette geometry.Polygon, strict bool) Result {
	if len(silhouette) == 0 {
		return Result{Width: width, Height: height}
	}
	r := raster.NewRasterizer(width, height)
	counts := r.Census(pieces)
	mask := r.Occupancy(silhouette)
	return Classify(counts, mask, width, height, RadiusFor(strict))
}

// DefectScore returns uncovered plus overlapped pixels at strict radius.
func DefectScore(width, height int, pieces []geometry.Polygon, silhouette geometry.Polygon) int {
	return Compute(width, height, pieces, silhouette, true).Score()
}
