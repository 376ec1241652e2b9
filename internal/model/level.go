package model

import (
	"github.com/kyiku/tangram-back/internal/geometry"
)

// PieceDef is the static definition of a piece in level data.
type PieceDef struct {
	Points geometry.Polygon `json:"points"`
	Color  string           `json:"color"`
}

// Level describes one puzzle: the silhouette to fill and the pieces to fill it with.
type Level struct {
	LevelID    int              `json:"levelId"`
	Name       string           `json:"name"`
	Silhouette geometry.Polygon `json:"silhouette"`
	Pieces     []PieceDef       `json:"pieces"`
	Hint       string           `json:"hint,omitempty"`
}

// NewPieces builds fresh pieces for the level. Each call returns
// independent copies.
func (l *Level) NewPieces() []*Piece {
	pieces := make([]*Piece, len(l.Pieces))
	for i, def := range l.Pieces {
		pieces[i] = NewPiece(def.Points, def.Color)
	}
	return pieces
}

// Clone returns a deep copy of the level.
func (l *Level) Clone() *Level {
	cp := *l
	cp.Silhouette = l.Silhouette.Clone()
	cp.Pieces = make([]PieceDef, len(l.Pieces))
	for i, def := range l.Pieces {
		cp.Pieces[i] = PieceDef{Points: def.Points.Clone(), Color: def.Color}
	}
	return &cp
}
