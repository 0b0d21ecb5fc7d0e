package orchestrator

import "errors"

// ErrBadConfidence indicates sampling parameters that cannot yield a
// sample size.
var ErrBadConfidence = errors.New("orchestrator: invalid sampling parameters")
