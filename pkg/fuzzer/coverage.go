package fuzzer

import (
	"sort"

	"github.com/blockberries/tracegram/pkg/grammar"
)

// Accumulator is the set of coverage units a fuzzer has produced. It is
// never reset between rounds, so successive rounds chase the units that
// are still missing. An accumulator may be handed to a new fuzzer to
// continue from the state of a previous one.
type Accumulator struct {
	covered map[grammar.Symbol]struct{}
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{covered: make(map[grammar.Symbol]struct{})}
}

// Add records s and reports whether it was new.
func (a *Accumulator) Add(s grammar.Symbol) bool {
	if _, ok := a.covered[s]; ok {
		return false
	}
	a.covered[s] = struct{}{}
	return true
}

// Has reports whether s has been covered.
func (a *Accumulator) Has(s grammar.Symbol) bool {
	_, ok := a.covered[s]
	return ok
}

// Len returns the number of covered units.
func (a *Accumulator) Len() int {
	return len(a.covered)
}

// Symbols returns the covered units, sorted.
func (a *Accumulator) Symbols() []grammar.Symbol {
	result := make([]grammar.Symbol, 0, len(a.covered))
	for s := range a.covered {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Snapshot is an immutable copy of an accumulator's state.
type Snapshot struct {
	covered []grammar.Symbol
}

// Len returns the number of units in the snapshot.
func (s Snapshot) Len() int {
	return len(s.covered)
}

// Snapshot captures the current state.
func (a *Accumulator) Snapshot() Snapshot {
	return Snapshot{covered: a.Symbols()}
}

// Restore replaces the current state with s.
func (a *Accumulator) Restore(s Snapshot) {
	a.covered = make(map[grammar.Symbol]struct{}, len(s.covered))
	for _, sym := range s.covered {
		a.covered[sym] = struct{}{}
	}
}
