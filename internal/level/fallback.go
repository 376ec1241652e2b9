package level

import (
	"github.com/kyiku/tangram-back/internal/geometry"
	"github.com/kyiku/tangram-back/internal/model"
)

// FallbackID is the id of the built-in level.
const FallbackID = 1

// Fallback returns the built-in level: a square cut along both diagonals.
func Fallback() *model.Level {
	tl := geometry.Point{X: 300, Y: 100}
	tr := geometry.Point{X: 500, Y: 100}
	br := geometry.Point{X: 500, Y: 300}
	bl := geometry.Point{X: 300, Y: 300}
	c := geometry.Point{X: 400, Y: 200}

	return &model.Level{
		LevelID:    FallbackID,
		Name:       "Square",
		Silhouette: geometry.Polygon{tl, tr, br, bl},
		Pieces: []model.PieceDef{
			{Points: geometry.Polygon{tl, tr, c}, Color: "#e74c3c"},
			{Points: geometry.Polygon{tr, br, c}, Color: "#3498db"},
			{Points: geometry.Polygon{br, bl, c}, Color: "#2ecc71"},
			{Points: geometry.Polygon{bl, tl, c}, Color: "#f1c40f"},
		},
	}
}
