package races

import "errors"

// ErrRaceNotFound is returned when no race exists for the given id.
var ErrRaceNotFound = errors.New("race not found")

// ErrInvalidTransition is returned for an illegal race-state change,
// e.g. starting a finished race or pausing a pending one.
var ErrInvalidTransition = errors.New("invalid race state transition")

// ErrOpenStint is returned when finishing a race that still has an open
// stint. Nothing is force-ended; the caller must record or abandon the
// stint first.
var ErrOpenStint = errors.New("race has an open stint")

// ErrValidation marks malformed create/update input.
var ErrValidation = errors.New("validation failed")
