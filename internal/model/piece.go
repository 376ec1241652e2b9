// Package model provides data models for the application.
package model

import (
	"github.com/kyiku/tangram-back/internal/geometry"
)

// Rotation steps used by the client gestures.
const (
	// RotateStepContext is the angle applied by a context-menu or long-press rotation.
	RotateStepContext = 45
	// RotateStepDouble is the angle applied by a double-click rotation.
	RotateStepDouble = 90
)

// Piece is a single movable tile.
type Piece struct {
	Points   geometry.Polygon `json:"points"`
	Color    string           `json:"color"`
	Dragging bool             `json:"dragging"`
}

// NewPiece creates a Piece from level data. The points are copied so that
// editing the piece never touches the level definition.
func NewPiece(points geometry.Polygon, color string) *Piece {
	return &Piece{
		Points: points.Clone(),
		Color:  color,
	}
}

// Center returns the mean of the piece's vertices.
func (p *Piece) Center() geometry.Point {
	return p.Points.Centroid()
}

// Move translates the piece by (dx, dy). The move is undone and false is
// returned when the piece would then overlap any of others.
func (p *Piece) Move(dx, dy float64, others []*Piece) bool {
	original := p.Points.Clone()
	p.Points.Translate(dx, dy)

	for _, other := range others {
		if other == p {
			continue
		}
		if geometry.PolygonsOverlap(p.Points, other.Points) {
			p.Points = original
			return false
		}
	}
	return true
}

// ForceMove translates the piece without any collision check.
func (p *Piece) ForceMove(dx, dy float64) {
	p.Points.Translate(dx, dy)
}

// Rotate turns the piece about its center by deg degrees.
func (p *Piece) Rotate(deg float64) {
	p.Points.RotateAbout(p.Center(), deg)
}

// Shapes returns copies of the polygons of pieces, in order.
func Shapes(pieces []*Piece) []geometry.Polygon {
	out := make([]geometry.Polygon, len(pieces))
	for i, p := range pieces {
		out[i] = p.Points.Clone()
	}
	return out
}
