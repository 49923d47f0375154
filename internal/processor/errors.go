package processor

import "errors"

var (
	// ErrEmptyInput means no qualifying file survived filtering.
	ErrEmptyInput = errors.New("no supported files found")
	// ErrToolSetup means the external PNG tools could not be prepared.
	ErrToolSetup = errors.New("failed to set up tools")
	// ErrInvalidConfig means a RunConfig value is out of range.
	ErrInvalidConfig = errors.New("invalid run config")
)
