package fuzzer

import "errors"

// Sentinel errors for common conditions.
// These can be checked using errors.Is().
var (
	// ErrInvalidGrammar indicates a fuzzer was constructed from a grammar
	// that fails the validity check.
	ErrInvalidGrammar = errors.New("fuzzer: invalid grammar")

	// ErrUnproductive indicates the start symbol cannot derive a finite
	// sequence of terminals.
	ErrUnproductive = errors.New("fuzzer: start symbol cannot derive a finite input")

	// ErrNoCandidate indicates the expansion search found no leaf and
	// alternative to expand. It implies a malformed grammar.
	ErrNoCandidate = errors.New("fuzzer: no expansion candidate")

	// ErrUnknownStrategy indicates a strategy name that is not registered.
	ErrUnknownStrategy = errors.New("fuzzer: unknown strategy")
)

// IsFatal reports whether err is a precondition violation or an internal
// consistency failure of the search.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidGrammar) ||
		errors.Is(err, ErrUnproductive) ||
		errors.Is(err, ErrNoCandidate)
}
