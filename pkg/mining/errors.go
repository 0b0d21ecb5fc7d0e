package mining

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
// These can be checked using errors.Is().
var (
	// ErrAlreadyMined indicates an extractor was asked to mine twice.
	ErrAlreadyMined = errors.New("mining: grammar already extracted by this extractor")

	// ErrNotMined indicates the result of an extractor was read before
	// extraction.
	ErrNotMined = errors.New("mining: grammar has not been extracted")

	// ErrMissingInput indicates a trace, state or coverage input is missing.
	ErrMissingInput = errors.New("mining: missing input")

	// ErrNoSource indicates a trace record whose source state cannot be
	// resolved.
	ErrNoSource = errors.New("mining: no source state")
)

// TraceError provides context for a malformed or unusable trace record.
type TraceError struct {
	// Line is the 1-based line number in the trace file, or 0 when unknown.
	Line int

	// Message describes what went wrong.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error returns a formatted error message.
func (e *TraceError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("mining: trace line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("mining: trace: %s", e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *TraceError) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether err is a precondition violation that must stop
// the pipeline.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAlreadyMined) ||
		errors.Is(err, ErrNotMined) ||
		errors.Is(err, ErrMissingInput) ||
		errors.Is(err, ErrNoSource)
}
