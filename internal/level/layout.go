package level

import (
	"github.com/kyiku/tangram-back/internal/geometry"
	"github.com/kyiku/tangram-back/internal/model"
)

// Row layout constants.
const (
	rowBottomOffset = 120
	rowStartX       = 10
	rowSpacing      = 15
	rowGap          = 80
	rowMargin       = 20
)

// ArrangeInRow lays pieces out left to right along the bottom of the
// canvas, starting a new row above when the canvas width is exceeded.
// Pieces are moved without collision checks.
func ArrangeInRow(pieces []*model.Piece, width, height int) {
	startY := float64(height - rowBottomOffset)
	maxWidth := float64(width - rowMargin)

	x, y := float64(rowStartX), startY
	rowHeight := 0.0
	for _, p := range pieces {
		if len(p.Points) == 0 {
			continue
		}
		box := geometry.BoundingBox(p.Points)
		if x+box.Width > maxWidth && x > rowStartX {
			x = rowStartX
			y -= rowHeight + rowGap
			rowHeight = 0
		}

		c := box.Center()
		p.ForceMove(x+box.Width/2-c.X, y-c.Y)

		x += box.Width + rowSpacing
		rowHeight = max(rowHeight, box.Height)
	}
}

// Normalize scales and centres the pieces of lvl, as a group, into the
// bounding box of its silhouette.
func Normalize(lvl *model.Level) {
	if len(lvl.Silhouette) == 0 {
		return
	}
	var all []geometry.Point
	for _, def := range lvl.Pieces {
		all = append(all, def.Points...)
	}
	if len(all) == 0 {
		return
	}

	sil := geometry.BoundingBox(lvl.Silhouette)
	box := geometry.BoundingBox(all)
	if box.Width == 0 || box.Height == 0 {
		return
	}

	scale := min(sil.Width/box.Width, sil.Height/box.Height)
	offX := (sil.Width - box.Width*scale) / 2
	offY := (sil.Height - box.Height*scale) / 2
	for _, def := range lvl.Pieces {
		for i, pt := range def.Points {
			def.Points[i] = geometry.Point{
				X: sil.Min.X + offX + (pt.X-box.Min.X)*scale,
				Y: sil.Min.Y + offY + (pt.Y-box.Min.Y)*scale,
			}
		}
	}
}
