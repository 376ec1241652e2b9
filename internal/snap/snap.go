// Package snap nudges pieces toward the silhouette by local search over a
// small grid of scale, rotation and vertex-to-boundary translations.
package snap

import (
	"github.com/kyiku/tangram-back/internal/geometry"
	"github.com/kyiku/tangram-back/internal/model"
)

// State is the optimizer state. A run starts Idle, spends its time
// Iterating and reports how it stopped.
type State string

const (
	StateIdle            State = "idle"
	StateIterating       State = "iterating"
	StateImproved        State = "improved"
	StateConverged       State = "converged"
	StateBudgetExhausted State = "budget_exhausted"
)

var (
	candidateScales = [...]float64{0.99, 1.00, 1.01}
	candidateAngles = [...]float64{0, 90, -90}
)

// Result is the outcome of one optimizer run.
type Result struct {
	Improved    bool               `json:"improved"`
	Pieces      []geometry.Polygon `json:"pieces"`
	Evaluations int                `json:"evaluations"`
	Iterations  int                `json:"iterations"`
	State       State              `json:"state"`
}

// Optimizer runs the snap search with a fixed scorer and options.
type Optimizer struct {
	scorer Scorer
	opts   Options
}

// New creates an Optimizer. Unset options take the defaults.
func New(scorer Scorer, opts Options) *Optimizer {
	return &Optimizer{scorer: scorer, opts: opts.WithDefaults()}
}

// Options returns the effective options.
func (o *Optimizer) Options() Options {
	return o.opts
}

// Run optimizes a private copy of pieces. The input is never modified;
// the returned Pieces are parallel to it.
func (o *Optimizer) Run(pieces []geometry.Polygon, silhouette geometry.Polygon) Result {
	work := make([]geometry.Polygon, len(pieces))
	for i, p := range pieces {
		work[i] = p.Clone()
	}
	res := o.search(work, silhouette, nil)
	res.Pieces = work
	return res
}

// RunInPlace optimizes live pieces, replacing each improved piece's
// polygon as soon as it is accepted.
func (o *Optimizer) RunInPlace(pieces []*model.Piece, silhouette geometry.Polygon) Result {
	work := make([]geometry.Polygon, len(pieces))
	for i, p := range pieces {
		work[i] = p.Points
	}
	res := o.search(work, silhouette, func(i int, poly geometry.Polygon) {
		pieces[i].Points = poly
	})
	res.Pieces = model.Shapes(pieces)
	return res
}

// search runs the iterations over work. commit, when set, is called for
// every accepted candidate.
func (o *Optimizer) search(work []geometry.Polygon, silhouette geometry.Polygon, commit func(int, geometry.Polygon)) Result {
	res := Result{State: StateIdle}
	if len(work) == 0 || len(silhouette) == 0 {
		res.State = StateConverged
		return res
	}

	exhausted := false
	for iter := 0; iter < o.opts.MaxIterations; iter++ {
		res.State = StateIterating
		res.Iterations++

		base := o.scorer.Score(work)
		if base == 0 {
			res.State = StateConverged
			return res
		}

		changed := false
		for i := range work {
			original := work[i]
			best, bestScore := original, base
			found := false

		vertices:
			for v := range original {
				target, dist := geometry.NearestPointOnBoundary(original[v], silhouette)
				if dist > o.opts.SnapThreshold {
					continue
				}
				for _, scale := range candidateScales {
					for _, angle := range candidateAngles {
						if res.Evaluations >= o.opts.OperationLimit {
							exhausted = true
							break vertices
						}
						cand := candidate(original, v, target, scale, angle)
						work[i] = cand
						score := o.scorer.Score(work)
						res.Evaluations++
						if score < bestScore {
							best, bestScore, found = cand, score, true
						}
					}
				}
			}

			work[i] = best
			if found {
				base = bestScore
				changed = true
				if commit != nil {
					commit(i, best)
				}
			}
			if exhausted {
				break
			}
		}

		if changed {
			res.Improved = true
		}
		if exhausted {
			res.State = StateBudgetExhausted
			return res
		}
		if !changed {
			res.State = StateConverged
			return res
		}
	}

	res.State = StateImproved
	return res
}

// candidate scales and rotates a copy of poly about its centroid, then
// translates it so vertex v lands on target.
func candidate(poly geometry.Polygon, v int, target geometry.Point, scale, angle float64) geometry.Polygon {
	cand := poly.Clone()
	c := cand.Centroid()
	cand.ScaleAbout(c, scale)
	cand.RotateAbout(c, angle)
	cand.Translate(target.X-cand[v].X, target.Y-cand[v].Y)
	return cand
}

// Optimize runs the default coverage-scored optimizer over a copy of pieces.
func Optimize(width, height int, pieces []geometry.Polygon, silhouette geometry.Polygon, opts Options) Result {
	return New(NewCoverageScorer(width, height, silhouette), opts).Run(pieces, silhouette)
}
