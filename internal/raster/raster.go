// Package raster turns polygons into per-pixel occupancy at canvas resolution.
package raster

import (
	"image"

	"golang.org/x/image/vector"

	"github.com/kyiku/tangram-back/internal/geometry"
)

// Rasterizer fills polygons into a reusable alpha buffer.
// A Rasterizer is not safe for concurrent use.
type Rasterizer struct {
	width  int
	height int
	vec    *vector.Rasterizer
	dst    *image.Alpha
}

// NewRasterizer creates a Rasterizer for a width x height canvas.
// Non-positive sizes produce an empty canvas.
func NewRasterizer(width, height int) *Rasterizer {
	width, height = max(width, 0), max(height, 0)
	return &Rasterizer{
		width:  width,
		height: height,
		vec:    vector.NewRasterizer(width, height),
		dst:    image.NewAlpha(image.Rect(0, 0, width, height)),
	}
}

// Size returns the canvas dimensions.
func (r *Rasterizer) Size() (int, int) {
	return r.width, r.height
}

// fill draws poly at full opacity into the cleared alpha buffer.
// Returns false when there is nothing to draw.
func (r *Rasterizer) fill(poly geometry.Polygon) bool {
	clear(r.dst.Pix)
	if len(poly) == 0 || r.width == 0 || r.height == 0 {
		return false
	}

	r.vec.Reset(r.width, r.height)
	r.vec.MoveTo(float32(poly[0].X), float32(poly[0].Y))
	for _, p := range poly[1:] {
		r.vec.LineTo(float32(p.X), float32(p.Y))
	}
	r.vec.ClosePath()
	r.vec.Draw(r.dst, r.dst.Bounds(), image.Opaque, image.Point{})
	return true
}

// Occupancy fills poly and returns whether each pixel has alpha > 0,
// in row-major order.
func (r *Rasterizer) Occupancy(poly geometry.Polygon) []bool {
	occ := make([]bool, r.width*r.height)
	if !r.fill(poly) {
		return occ
	}
	for i, a := range r.dst.Pix {
		occ[i] = a > 0
	}
	return occ
}

// Census rasterises every piece independently and counts, per pixel, how
// many pieces cover it. Counts saturate at 255.
func (r *Rasterizer) Census(pieces []geometry.Polygon) []uint8 {
	counts := make([]uint8, r.width*r.height)
	for _, piece := range pieces {
		if !r.fill(piece) {
			continue
		}
		for i, a := range r.dst.Pix {
			if a > 0 && counts[i] < 255 {
				counts[i]++
			}
		}
	}
	return counts
}

// Rasterize returns the occupancy of poly on a width x height canvas.
func Rasterize(poly geometry.Polygon, width, height int) []bool {
	return NewRasterizer(width, height).Occupancy(poly)
}

// BuildCensus returns the per-pixel piece count on a width x height canvas.
func BuildCensus(pieces []geometry.Polygon, width, height int) []uint8 {
	return NewRasterizer(width, height).Census(pieces)
}

// BuildSilhouetteMask returns the occupancy of the silhouette.
func BuildSilhouetteMask(silhouette geometry.Polygon, width, height int) []bool {
	return Rasterize(silhouette, width, height)
}
