package worker

import (
	"errors"
	"fmt"

	"github.com/kyiku/tangram-back/internal/coverage"
	"github.com/kyiku/tangram-back/internal/snap"
)

// MaxCanvasSide bounds the canvas size a request may ask for.
const MaxCanvasSide = 4096

var (
	// ErrInvalidCanvas is returned for non-positive or oversized canvases.
	ErrInvalidCanvas = errors.New("invalid canvas size")
	// ErrUnknownType is returned for unsupported request types.
	ErrUnknownType = errors.New("unknown request type")
)

// Engine executes requests. It holds no state, so one Engine can serve the
// synchronous path, the background goroutine and remote connections alike.
type Engine struct{}

// NewEngine creates a new Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Handle executes req and returns its response. Failures, including panics
// caused by malformed input, are reported as an error response.
func (e *Engine) Handle(req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = errorResponse(req.ID, fmt.Errorf("failed to handle %s request: %v", req.Type, r))
		}
	}()

	if req.Type == TypePing {
		return Response{Type: TypePong, ID: req.ID}
	}
	if err := validateCanvas(req.Width, req.Height); err != nil {
		return errorResponse(req.ID, err)
	}

	switch req.Type {
	case TypeCheck:
		res := coverage.Compute(req.Width, req.Height, Polygons(req.Pieces), req.Silhouette, req.Strict)
		return Response{
			Type:      TypeCheckResult,
			ID:        req.ID,
			Uncovered: res.Uncovered,
			Overlap:   res.Overlap,
			Width:     res.Width,
			Height:    res.Height,
			Overlay:   res.Overlay,
		}
	case TypeSnap:
		opts := snap.DefaultOptions()
		if req.Options != nil {
			opts = req.Options.WithDefaults()
		}
		res := snap.Optimize(req.Width, req.Height, Polygons(req.Pieces), req.Silhouette, opts)
		return Response{
			Type:        TypeSnapResult,
			ID:          req.ID,
			Width:       req.Width,
			Height:      req.Height,
			Improved:    res.Improved,
			Pieces:      ToShapes(res.Pieces),
			Evaluations: res.Evaluations,
			State:       string(res.State),
		}
	default:
		return errorResponse(req.ID, fmt.Errorf("%w: %q", ErrUnknownType, req.Type))
	}
}

func validateCanvas(width, height int) error {
	if width <= 0 || height <= 0 || width > MaxCanvasSide || height > MaxCanvasSide {
		return fmt.Errorf("%w: %dx%d", ErrInvalidCanvas, width, height)
	}
	return nil
}

func errorResponse(id uint64, err error) Response {
	return Response{Type: TypeError, ID: id, Error: err.Error()}
}
