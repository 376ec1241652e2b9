// Package judge decides whether an arrangement solves a level and builds
// the progress messages shown to the player.
package judge

import (
	"fmt"
	"strings"

	"github.com/kyiku/tangram-back/internal/coverage"
	"github.com/kyiku/tangram-back/internal/geometry"
)

// DefaultTolerance is the pixel count below which uncovered and overlapped
// pixels are ignored by the win check.
const DefaultTolerance = 3000

// Status is the outcome class of a check.
type Status string

const (
	StatusSolved         Status = "solved"
	StatusOutside        Status = "outside"
	StatusNeedsCoverage  Status = "needs_coverage"
	StatusTooMuchOverlap Status = "too_much_overlap"
	StatusAlmost         Status = "almost"
	StatusInProgress     Status = "in_progress"
	StatusNoSilhouette   Status = "no_silhouette"
)

// Verdict is the result of a win or progress check.
type Verdict struct {
	Status    Status            `json:"status"`
	Solved    bool              `json:"solved"`
	Uncovered int               `json:"uncovered"`
	Overlap   int               `json:"overlap"`
	Tolerance int               `json:"tolerance"`
	Remaining int               `json:"remaining,omitempty"`
	Excess    int               `json:"excess,omitempty"`
	Markers   []geometry.Marker `json:"markers,omitempty"`
	Message   string            `json:"message"`
}

// Judge holds the canvas size and tolerances used for checks.
type Judge struct {
	Width          int
	Height         int
	Tolerance      int
	PointTolerance float64
}

// New creates a Judge. A non-positive tolerance falls back to DefaultTolerance.
func New(width, height, tolerance int) *Judge {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Judge{
		Width:          width,
		Height:         height,
		Tolerance:      tolerance,
		PointTolerance: geometry.DefaultTolerance,
	}
}

// AlmostMargin is how far over tolerance a single failing count may be
// while the other count passes for the verdict to read as almost done.
func (j *Judge) AlmostMargin() int {
	return max(j.Tolerance/10, 1)
}

// Markers lists every vertex and edge midpoint of every piece that lies
// outside the silhouette.
func (j *Judge) Markers(pieces []geometry.Polygon, silhouette geometry.Polygon) []geometry.Marker {
	if len(silhouette) == 0 || geometry.Contained(pieces, silhouette, j.PointTolerance) {
		return nil
	}
	var markers []geometry.Marker
	for i, piece := range pieces {
		markers = append(markers, geometry.OutsidePoints(i, piece, silhouette, j.PointTolerance)...)
	}
	return markers
}

// Evaluate runs the full win check. The containment check runs first and
// a failure skips rasterisation entirely.
func (j *Judge) Evaluate(pieces []geometry.Polygon, silhouette geometry.Polygon) Verdict {
	if len(silhouette) == 0 {
		return Verdict{Status: StatusNoSilhouette, Tolerance: j.Tolerance, Message: "レベルが読み込まれていません"}
	}
	if markers := j.Markers(pieces, silhouette); len(markers) > 0 {
		return Outside(markers, j.Tolerance)
	}
	return j.Grade(coverage.Compute(j.Width, j.Height, pieces, silhouette, true))
}

// Outside builds the verdict for pieces that leave the silhouette.
func Outside(markers []geometry.Marker, tolerance int) Verdict {
	return Verdict{
		Status:    StatusOutside,
		Tolerance: tolerance,
		Markers:   markers,
		Message:   "⚠️ シルエットからはみ出しているピースがあります",
	}
}

// Grade turns strict coverage counts into a verdict.
func (j *Judge) Grade(res coverage.Result) Verdict {
	tol := j.Tolerance
	v := Verdict{Uncovered: res.Uncovered, Overlap: res.Overlap, Tolerance: tol}

	switch {
	case res.Uncovered < tol && res.Overlap < tol:
		v.Status = StatusSolved
		v.Solved = true
		v.Message = "🎉 クリア！タングラムが完成しました"
	case res.Uncovered >= tol && res.Overlap < tol && res.Uncovered-tol+1 <= j.AlmostMargin(),
		res.Overlap >= tol && res.Uncovered < tol && res.Overlap-tol+1 <= j.AlmostMargin():
		v.Status = StatusAlmost
		v.Message = almostMessage(res)
	case res.Uncovered >= tol:
		v.Status = StatusNeedsCoverage
		v.Remaining = res.Uncovered - tol + 1
		v.Message = fmt.Sprintf("残り %d ピクセルを埋めてください (許容: %d)", v.Remaining, tol)
	default:
		v.Status = StatusTooMuchOverlap
		v.Excess = res.Overlap - tol + 1
		v.Message = fmt.Sprintf("⚠️ 重なりが多すぎます: %d ピクセル超過 (許容: %d)", v.Excess, tol)
	}
	return v
}

func almostMessage(res coverage.Result) string {
	var b strings.Builder
	b.WriteString("もう少しです！")
	if res.Uncovered > 0 {
		fmt.Fprintf(&b, " 未充填: %d ピクセル", res.Uncovered)
	}
	if res.Overlap > 0 {
		fmt.Fprintf(&b, " 重なり: %d ピクセル", res.Overlap)
	}
	return b.String()
}

// Feedback builds the live message shown after a piece is released. The
// lenient counts are reported; only an exact strict result with every
// piece inside the silhouette counts as solved.
func (j *Judge) Feedback(lenient, strict coverage.Result, markers []geometry.Marker) Verdict {
	v := Verdict{
		Uncovered: lenient.Uncovered,
		Overlap:   lenient.Overlap,
		Tolerance: j.Tolerance,
		Markers:   markers,
	}
	if strict.Uncovered == 0 && strict.Overlap == 0 && len(markers) == 0 {
		v.Status = StatusSolved
		v.Solved = true
		v.Message = "🎉 クリア！ピースがシルエットを重なりなく覆っています"
		return v
	}

	var parts []string
	if lenient.Uncovered > 0 {
		parts = append(parts, fmt.Sprintf("未充填 %d ピクセル", lenient.Uncovered))
	}
	if lenient.Overlap > 0 {
		parts = append(parts, fmt.Sprintf("重なり %d ピクセル", lenient.Overlap))
	}
	if len(markers) > 0 {
		parts = append(parts, fmt.Sprintf("はみ出し %d 点", len(markers)))
	}
	v.Status = StatusInProgress
	if len(parts) == 0 {
		v.Message = "もう少しです！"
		return v
	}
	v.Message = "⚠️ " + strings.Join(parts, "、")
	return v
}

// MarkerMessage describes outside markers during a drag. It is empty when
// there are none.
func MarkerMessage(markers []geometry.Marker) string {
	if len(markers) == 0 {
		return ""
	}
	return fmt.Sprintf("⚠️ %d 点がシルエットの外にあります", len(markers))
}
