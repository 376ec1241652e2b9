// Package geometry provides the polygon primitives used by the coverage engine.
//
// All coordinates are canvas pixels: x grows to the right, y grows down.
// Polygons are closed implicitly (the last point connects to the first) and
// no winding order is assumed.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// DefaultTolerance is the distance in pixels a point may sit outside a
// polygon edge and still count as on it.
const DefaultTolerance = 1.5

// Point is a position in canvas pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polygon is an ordered, implicitly closed sequence of points.
type Polygon []Point

// Box is an axis-aligned bounding box.
type Box struct {
	Min    Point
	Max    Point
	Width  float64
	Height float64
}

func (p Point) vec() r2.Vec {
	return r2.Vec{X: p.X, Y: p.Y}
}

func fromVec(v r2.Vec) Point {
	return Point{X: v.X, Y: v.Y}
}

// Clone returns a deep copy of the polygon.
func (poly Polygon) Clone() Polygon {
	if poly == nil {
		return nil
	}
	out := make(Polygon, len(poly))
	copy(out, poly)
	return out
}

// Centroid returns the mean of the polygon's vertices.
// An empty polygon has its centroid at the origin.
func (poly Polygon) Centroid() Point {
	if len(poly) == 0 {
		return Point{}
	}
	var sum r2.Vec
	for _, p := range poly {
		sum = r2.Add(sum, p.vec())
	}
	return fromVec(r2.Scale(1/float64(len(poly)), sum))
}

// Translate moves every vertex by (dx, dy) in place.
func (poly Polygon) Translate(dx, dy float64) {
	for i := range poly {
		poly[i].X += dx
		poly[i].Y += dy
	}
}

// ScaleAbout scales every vertex about c by factor in place.
func (poly Polygon) ScaleAbout(c Point, factor float64) {
	cv := c.vec()
	for i := range poly {
		poly[i] = fromVec(r2.Add(cv, r2.Scale(factor, r2.Sub(poly[i].vec(), cv))))
	}
}

// RotateAbout rotates every vertex about c by deg degrees in place.
// Positive angles turn clockwise on screen since y points down.
func (poly Polygon) RotateAbout(c Point, deg float64) {
	if deg == 0 {
		return
	}
	rot := r2.NewRotation(deg*math.Pi/180, c.vec())
	for i := range poly {
		poly[i] = fromVec(rot.Rotate(poly[i].vec()))
	}
}

// EdgeMidpoints returns the midpoint of every edge, including the closing one.
func (poly Polygon) EdgeMidpoints() []Point {
	mids := make([]Point, 0, len(poly))
	for i := range poly {
		a := poly[i]
		b := poly[(i+1)%len(poly)]
		mids = append(mids, Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2})
	}
	return mids
}

// BoundingBox returns the bounding box of the points.
// An empty slice yields the zero Box.
func BoundingBox(points []Point) Box {
	if len(points) == 0 {
		return Box{}
	}
	minP, maxP := points[0], points[0]
	for _, p := range points[1:] {
		minP.X = math.Min(minP.X, p.X)
		minP.Y = math.Min(minP.Y, p.Y)
		maxP.X = math.Max(maxP.X, p.X)
		maxP.Y = math.Max(maxP.Y, p.Y)
	}
	return Box{
		Min:    minP,
		Max:    maxP,
		Width:  maxP.X - minP.X,
		Height: maxP.Y - minP.Y,
	}
}

// Disjoint reports whether the two boxes do not touch.
func (b Box) Disjoint(o Box) bool {
	return b.Max.X < o.Min.X || o.Max.X < b.Min.X ||
		b.Max.Y < o.Min.Y || o.Max.Y < b.Min.Y
}

// Center returns the middle of the box.
func (b Box) Center() Point {
	return Point{X: (b.Min.X + b.Max.X) / 2, Y: (b.Min.Y + b.Max.Y) / 2}
}
