package blink

import "errors"

// Failure kinds. Every error returned by the verifier wraps exactly one of
// these so callers can branch with errors.Is.
var (
	ErrLoad              = errors.New("page did not finish loading")
	ErrMarkerCount       = errors.New("unexpected colon marker count")
	ErrInvalidVisibility = errors.New("invalid colon visibility")
	ErrOutOfSync         = errors.New("colon markers out of sync")
	ErrLayout            = errors.New("colon marker is not a fixed-width box")
	ErrNoBlink           = errors.New("colons never toggled")
	ErrPhaseMismatch     = errors.New("colon visibility does not match seconds parity")
	ErrUnparseableClock  = errors.New("clock seconds could not be parsed")
	ErrLayoutShift       = errors.New("clock layout shifted across a tick")
)
