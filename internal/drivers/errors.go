package drivers

import "errors"

// ErrDriverNotFound is returned when no driver exists for the given id.
var ErrDriverNotFound = errors.New("driver not found")

// ErrValidation marks malformed create/update input.
var ErrValidation = errors.New("validation failed")
