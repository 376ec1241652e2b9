package coverage

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
)

// ErrNoOverlay is returned when a Result carries no overlay buffer.
var ErrNoOverlay = errors.New("no overlay available")

// Image wraps the overlay buffer, which holds non-premultiplied colours,
// in an *image.NRGBA without copying.
// Returns nil when there is no overlay.
func (r Result) Image() *image.NRGBA {
	if r.Overlay == nil || len(r.Overlay) != r.Width*r.Height*4 {
		return nil
	}
	return &image.NRGBA{
		Pix:    r.Overlay,
		Stride: r.Width * 4,
		Rect:   image.Rect(0, 0, r.Width, r.Height),
	}
}

// EncodePNG writes the overlay as a PNG image.
func (r Result) EncodePNG(w io.Writer) error {
	img := r.Image()
	if img == nil {
		return ErrNoOverlay
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode overlay: %w", err)
	}
	return nil
}
