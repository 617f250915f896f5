package photom

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInsufficientFeatures: fewer than 3 usable star correspondences.
	ErrInsufficientFeatures = errors.New("insufficient features for registration")

	// ErrDegenerateGeometry: correspondences exist but the fit is
	// unusable (collinear stars, ill-conditioned system).
	ErrDegenerateGeometry = errors.New("degenerate geometry in registration fit")

	// ErrBudgetExceeded: the correspondence search blew through its
	// iteration cap. Deterministic, not transient - don't retry.
	ErrBudgetExceeded = errors.New("correspondence search exceeded iteration budget")
)

// A FrameError tags a per-frame failure with the frame it came from,
// so a bad exposure in the middle of a night's run can be identified
// rather than silently dropped.
type FrameError struct {
	Index int
	Time  time.Time
	Err   error
}

func (fe FrameError)Error() string {
	return fmt.Sprintf("frame %d (%s): %v", fe.Index, fe.Time.Format(time.RFC3339), fe.Err)
}

func (fe FrameError)Unwrap() error { return fe.Err }

// An OOBWarning records an aperture spilling off the pixel grid (or
// onto resampling fill). Photometry proceeds with what's in bounds;
// the reduced effective area is the caller's problem to judge.
type OOBWarning struct {
	Aperture string
	Missing  float64 // aperture area (px^2) that had no usable pixels under it
}

func (w OOBWarning)String() string {
	return fmt.Sprintf("aperture %s: %.2f px^2 outside usable grid", w.Aperture, w.Missing)
}
