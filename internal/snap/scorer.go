package snap

import (
	"github.com/kyiku/tangram-back/internal/coverage"
	"github.com/kyiku/tangram-back/internal/geometry"
	"github.com/kyiku/tangram-back/internal/raster"
)

// Scorer computes the defect score of a full piece arrangement. Lower is better.
type Scorer interface {
	Score(pieces []geometry.Polygon) int
}

// CoverageScorer scores arrangements with the strict coverage classifier.
// The silhouette mask is rasterised once and the rasterizer buffers are
// reused between calls, so a CoverageScorer is not safe for concurrent use.
type CoverageScorer struct {
	width  int
	height int
	mask   []bool
	r      *raster.Rasterizer
}

// NewCoverageScorer prepares a scorer for silhouette on a width x height canvas.
func NewCoverageScorer(width, height int, silhouette geometry.Polygon) *CoverageScorer {
	r := raster.NewRasterizer(width, height)
	var mask []bool
	if len(silhouette) > 0 {
		mask = r.Occupancy(silhouette)
	}
	return &CoverageScorer{width: width, height: height, mask: mask, r: r}
}

// Score implements Scorer. With no silhouette every arrangement scores zero.
func (s *CoverageScorer) Score(pieces []geometry.Polygon) int {
	if s.mask == nil {
		return 0
	}
	counts := s.r.Census(pieces)
	return coverage.Classify(counts, s.mask, s.width, s.height, coverage.RadiusStrict).Score()
}
