package triplegraph

import (
	"errors"
	"fmt"
	"time"

	"github.com/bbiangul/triplegraph/parser"
)

var (
	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("triplegraph: invalid configuration")

	// ErrInputNotFound is returned when the input path does not exist.
	ErrInputNotFound = errors.New("triplegraph: input not found")

	// ErrOutputIsFile is returned when the output path is a regular file.
	ErrOutputIsFile = errors.New("triplegraph: output is a file")

	// ErrUnsupportedFormat is returned for input files no parser handles.
	ErrUnsupportedFormat = parser.ErrUnsupportedFormat

	// ErrUnknownBackend is returned for an unrecognized store backend.
	ErrUnknownBackend = errors.New("triplegraph: unknown backend")

	// ErrPhaseFailed matches every *PhaseError.
	ErrPhaseFailed = errors.New("triplegraph: phase failed")
)

// PhaseError reports the phase an import run failed in.
type PhaseError struct {
	Phase   string
	Elapsed time.Duration
	Err     error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("triplegraph: %s phase failed after %s: %v", e.Phase, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

func (e *PhaseError) Is(target error) bool { return target == ErrPhaseFailed }
