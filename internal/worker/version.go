package worker

import "sync/atomic"

// Version is a generation counter. Every geometry-changing interaction
// bumps it; an asynchronous result is applied only while the version it
// captured is still current.
type Version struct {
	v atomic.Uint64
}

// Bump advances the version and returns the new value.
func (v *Version) Bump() uint64 {
	return v.v.Add(1)
}

// Current returns the live version.
func (v *Version) Current() uint64 {
	return v.v.Load()
}

// IsCurrent reports whether captured still equals the live version.
func (v *Version) IsCurrent(captured uint64) bool {
	return v.v.Load() == captured
}
