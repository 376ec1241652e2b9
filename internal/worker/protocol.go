// Package worker runs coverage checks and snap searches off the control
// path and routes their results back by request id.
package worker

import (
	"github.com/kyiku/tangram-back/internal/coverage"
	"github.com/kyiku/tangram-back/internal/geometry"
	"github.com/kyiku/tangram-back/internal/snap"
)

// Message types.
const (
	TypeCheck       = "check"
	TypeCheckResult = "check-result"
	TypeSnap        = "snap"
	TypeSnapResult  = "snap-result"
	TypeError       = "error"
	TypePing        = "ping"
	TypePong        = "pong"
)

// PieceShape is the wire form of a piece: its points only.
type PieceShape struct {
	Points geometry.Polygon `json:"points"`
}

// Request is a message sent to a worker.
type Request struct {
	Type       string           `json:"type"`
	ID         uint64           `json:"id"`
	Width      int              `json:"width"`
	Height     int              `json:"height"`
	Pieces     []PieceShape     `json:"pieces"`
	Silhouette geometry.Polygon `json:"silhouette"`
	Strict     bool             `json:"strict,omitempty"`
	Options    *snap.Options    `json:"options,omitempty"`
}

// Response is a message sent back by a worker. Overlay travels as base64
// in JSON.
type Response struct {
	Type      string       `json:"type"`
	ID        uint64       `json:"id"`
	Uncovered int          `json:"uncovered"`
	Overlap   int          `json:"overlap"`
	Width     int          `json:"width"`
	Height    int          `json:"height"`
	Overlay   []byte       `json:"overlay"`
	Improved  bool         `json:"improved"`
	Pieces    []PieceShape `json:"pieces"`
	// Evaluations and State describe the snap search.
	Evaluations int    `json:"evaluations,omitempty"`
	State       string `json:"state,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewCheckRequest builds a check request from copies of the given polygons.
func NewCheckRequest(width, height int, pieces []geometry.Polygon, silhouette geometry.Polygon, strict bool) Request {
	return Request{
		Type:       TypeCheck,
		Width:      width,
		Height:     height,
		Pieces:     ToShapes(pieces),
		Silhouette: silhouette.Clone(),
		Strict:     strict,
	}
}

// NewSnapRequest builds a snap request from copies of the given polygons.
func NewSnapRequest(width, height int, pieces []geometry.Polygon, silhouette geometry.Polygon, opts snap.Options) Request {
	return Request{
		Type:       TypeSnap,
		Width:      width,
		Height:     height,
		Pieces:     ToShapes(pieces),
		Silhouette: silhouette.Clone(),
		Options:    &opts,
	}
}

// ToShapes copies polygons into wire shapes.
func ToShapes(polys []geometry.Polygon) []PieceShape {
	shapes := make([]PieceShape, len(polys))
	for i, p := range polys {
		shapes[i] = PieceShape{Points: p.Clone()}
	}
	return shapes
}

// Polygons extracts the polygons of shapes.
func Polygons(shapes []PieceShape) []geometry.Polygon {
	polys := make([]geometry.Polygon, len(shapes))
	for i, s := range shapes {
		polys[i] = s.Points
	}
	return polys
}

// Coverage converts a check result back into a coverage.Result.
func (r Response) Coverage() coverage.Result {
	return coverage.Result{
		Uncovered: r.Uncovered,
		Overlap:   r.Overlap,
		Width:     r.Width,
		Height:    r.Height,
		Overlay:   r.Overlay,
	}
}

// Snap converts a snap result back into a snap.Result.
func (r Response) Snap() snap.Result {
	return snap.Result{
		Improved:    r.Improved,
		Pieces:      Polygons(r.Pieces),
		Evaluations: r.Evaluations,
		State:       snap.State(r.State),
	}
}

// Failed reports whether the response carries an error.
func (r Response) Failed() bool {
	return r.Type == TypeError
}
