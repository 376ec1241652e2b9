package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// PointInPolygon reports whether p lies inside poly using even-odd ray casting.
// Points exactly on an edge may go either way.
func PointInPolygon(p Point, poly Polygon) bool {
	inside := false
	for i, j := 0, len(poly)-1; i < len(poly); j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) &&
			p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
			inside = !inside
		}
	}
	return inside
}

// projectOnSegment returns the point of segment ab closest to p and the
// squared distance to it.
func projectOnSegment(p, a, b Point) (Point, float64) {
	pv, av := p.vec(), a.vec()
	d := r2.Sub(b.vec(), av)
	t := 0.0
	if l2 := r2.Norm2(d); l2 > 0 {
		t = r2.Dot(r2.Sub(pv, av), d) / l2
	}
	t = math.Max(0, math.Min(1, t))
	proj := r2.Add(av, r2.Scale(t, d))
	return fromVec(proj), r2.Norm2(r2.Sub(proj, pv))
}

// PointInOrOnPolygon reports whether p is inside poly or within tol pixels
// of one of its edges.
func PointInOrOnPolygon(p Point, poly Polygon, tol float64) bool {
	if len(poly) == 0 {
		return false
	}
	if PointInPolygon(p, poly) {
		return true
	}
	tol2 := tol * tol
	for i, j := 0, len(poly)-1; i < len(poly); j, i = i, i+1 {
		if _, d2 := projectOnSegment(p, poly[j], poly[i]); d2 <= tol2 {
			return true
		}
	}
	return false
}

// NearestPointOnBoundary projects p onto the closest edge of poly and
// returns the projected point with its Euclidean distance. Edges are visited
// starting with the closing edge; the first edge wins ties.
// An empty polygon yields p itself at infinite distance.
func NearestPointOnBoundary(p Point, poly Polygon) (Point, float64) {
	best, bestD2 := p, math.Inf(1)
	for i, j := 0, len(poly)-1; i < len(poly); j, i = i, i+1 {
		proj, d2 := projectOnSegment(p, poly[j], poly[i])
		if d2 < bestD2 {
			best, bestD2 = proj, d2
		}
	}
	return best, math.Sqrt(bestD2)
}

// PolygonsOverlap reports whether a and b overlap, judged by bounding boxes
// and then by vertex containment in either direction. Two shapes crossing
// like an X with no vertex inside the other are not detected.
func PolygonsOverlap(a, b Polygon) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	if BoundingBox(a).Disjoint(BoundingBox(b)) {
		return false
	}
	for _, p := range a {
		if PointInPolygon(p, b) {
			return true
		}
	}
	for _, p := range b {
		if PointInPolygon(p, a) {
			return true
		}
	}
	return false
}

// Marker identifies a vertex or edge midpoint of a piece that lies outside
// the silhouette.
type Marker struct {
	Point    Point `json:"point"`
	Piece    int   `json:"piece"`
	Index    int   `json:"index"`
	Midpoint bool  `json:"midpoint"`
}

// OutsidePoints lists every vertex and edge midpoint of piece that is not
// within tol of silhouette. pieceIndex is copied into each marker.
func OutsidePoints(pieceIndex int, piece, silhouette Polygon, tol float64) []Marker {
	var markers []Marker
	for i, p := range piece {
		if !PointInOrOnPolygon(p, silhouette, tol) {
			markers = append(markers, Marker{Point: p, Piece: pieceIndex, Index: i})
		}
	}
	for i, m := range piece.EdgeMidpoints() {
		if !PointInOrOnPolygon(m, silhouette, tol) {
			markers = append(markers, Marker{Point: m, Piece: pieceIndex, Index: i, Midpoint: true})
		}
	}
	return markers
}

// Contained reports whether every vertex and edge midpoint of every piece
// lies within tol of silhouette. It stops at the first failure.
func Contained(pieces []Polygon, silhouette Polygon, tol float64) bool {
	for _, piece := range pieces {
		for _, p := range piece {
			if !PointInOrOnPolygon(p, silhouette, tol) {
				return false
			}
		}
		for _, m := range piece.EdgeMidpoints() {
			if !PointInOrOnPolygon(m, silhouette, tol) {
				return false
			}
		}
	}
	return true
}
