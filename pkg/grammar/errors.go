package grammar

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common conditions.
// These can be checked using errors.Is().
var (
	// ErrInvalidGrammar indicates a grammar violates a structural invariant.
	ErrInvalidGrammar = errors.New("grammar: invalid grammar")

	// ErrMalformedProduction indicates a production does not have the shape
	// a normalization step relies on.
	ErrMalformedProduction = errors.New("grammar: malformed production")

	// ErrDecode indicates a serialized grammar could not be decoded.
	ErrDecode = errors.New("grammar: decode failed")
)

// InvalidGrammarError lists the findings of a failed validity check.
type InvalidGrammarError struct {
	Findings []ValidationError
}

// Error returns a formatted error message.
func (e *InvalidGrammarError) Error() string {
	parts := make([]string, len(e.Findings))
	for i, f := range e.Findings {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("grammar: invalid grammar: %s", strings.Join(parts, "; "))
}

// Unwrap returns ErrInvalidGrammar.
func (e *InvalidGrammarError) Unwrap() error {
	return ErrInvalidGrammar
}

// DecodeError provides context for decoding failures.
type DecodeError struct {
	// Format is the serialization format ("json", "binary").
	Format string

	// Offset is the byte offset where decoding failed, or -1.
	Offset int

	// Message describes what went wrong.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error returns a formatted error message.
func (e *DecodeError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("grammar: decode %s at offset %d: %s", e.Format, e.Offset, e.Message)
	}
	return fmt.Sprintf("grammar: decode %s: %s", e.Format, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// Is reports whether the error matches the target.
func (e *DecodeError) Is(target error) bool {
	if target == ErrDecode {
		return true
	}
	return e.Cause != nil && errors.Is(e.Cause, target)
}

func newDecodeError(format string, offset int, message string, cause error) *DecodeError {
	return &DecodeError{
		Format:  format,
		Offset:  offset,
		Message: message,
		Cause:   cause,
	}
}
