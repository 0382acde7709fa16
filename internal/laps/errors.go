package laps

import "errors"

// ErrLapNotFound is returned when no lap exists for the given id.
var ErrLapNotFound = errors.New("lap not found")

// ErrRaceNotRunning is returned when a stint is recorded against a race
// that is pending, paused or finished.
var ErrRaceNotRunning = errors.New("race is not running")

// ErrNoOpenStint is returned when there is no stint being timed on the
// race: either none was started, or a concurrent actor already recorded
// it.
var ErrNoOpenStint = errors.New("race has no open stint")

// ErrInvalidDuration is returned when a stint would have a non-positive
// duration.
var ErrInvalidDuration = errors.New("lap time must be positive")

// ErrInconsistentState signals that an aggregate rollback would go
// negative. This is a data-integrity fault, not a user error; repair
// with RecomputeDriverAggregates rather than retrying.
var ErrInconsistentState = errors.New("aggregates are inconsistent with lap history")

// ErrValidation marks malformed create/update input.
var ErrValidation = errors.New("validation failed")
