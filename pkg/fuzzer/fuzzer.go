// Package fuzzer generates inputs from a grammar by growing expansion trees.
//
// Every fuzzer shares one expansion loop: starting from a tree holding the
// start symbol, it repeatedly picks an unexpanded leaf and one of its
// alternatives, attaches the alternative's symbols as children, and stops
// when no unexpanded leaf remains. Strategies differ only in how they pick
// and in what they record after each expansion.
//
// A fuzzer keeps the coverage units it has produced in an Accumulator that
// survives across calls to Fuzz, so guided strategies steer successive
// rounds toward units that are still missing.
package fuzzer

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/blockberries/tracegram/pkg/grammar"
)

// DefaultMaxExpansions bounds the guided part of a round.
const DefaultMaxExpansions = 2000

// Unit selects which symbols count as coverage.
type Unit int

const (
	// UnitTerminal counts every non-blank terminal.
	UnitTerminal Unit = iota

	// UnitNonTerminal counts every non-terminal other than start and
	// epsilon.
	UnitNonTerminal

	// UnitTarget counts only the target symbol.
	UnitTarget

	// UnitCode counts the code locations of a coverage grammar.
	UnitCode
)

func (u Unit) String() string {
	switch u {
	case UnitTerminal:
		return "terminal"
	case UnitNonTerminal:
		return "non-terminal"
	case UnitTarget:
		return "target"
	case UnitCode:
		return "code"
	default:
		return fmt.Sprintf("Unit(%d)", int(u))
	}
}

// Output selects which symbols of the final tree form the generated input.
type Output int

const (
	// OutputTerminals emits the non-blank terminal leaves, left to right,
	// except code-location markers.
	OutputTerminals Output = iota

	// OutputNonTerminals emits every non-terminal node in pre-order.
	OutputNonTerminals
)

// Options configures a fuzzer.
type Options struct {
	// Seed seeds the random source used for random choices.
	Seed int64

	// MaxExpansions is the number of expansions after which a round is
	// closed with minimal-cost alternatives. Zero means DefaultMaxExpansions.
	MaxExpansions int

	// Output selects the symbols returned by Fuzz.
	Output Output

	// Target is the symbol chased by the symbol-guided strategy.
	Target grammar.Symbol

	// Coverage is the accumulator to continue from. A new one is created
	// when nil.
	Coverage *Accumulator

	// Logger receives debug output. Defaults to the standard logger.
	Logger logrus.FieldLogger
}

// DefaultOptions returns the default fuzzer options.
func DefaultOptions() Options {
	return Options{
		MaxExpansions: DefaultMaxExpansions,
		Output:        OutputTerminals,
	}
}

// strategy is the selection policy plugged into the expansion loop.
type strategy interface {
	// choose picks a leaf among frontier and the index of one of its
	// alternatives.
	choose(f *Fuzzer, frontier []int) (id, alt int, err error)

	// onExpanded is called once per expansion with the new children.
	onExpanded(f *Fuzzer, id int, children []int)
}

// Fuzzer generates inputs from a grammar. A Fuzzer is not safe for
// concurrent use; run one instance per goroutine. The grammar it was built
// from must not be modified while the fuzzer is in use.
type Fuzzer struct {
	c        *compiled
	strategy strategy
	unit     Unit
	target   int
	opts     Options
	log      logrus.FieldLogger
	rng      *rand.Rand
	acc      *Accumulator
	tree     *tree
	rounds   int

	// codes are the code-location terminals of a coverage grammar, in
	// sorted order. They count as units under UnitCode and are never part
	// of a generated input.
	codes  []int
	isCode map[int]bool
}

func newFuzzer(g *grammar.Grammar, s strategy, unit Unit, opts Options) (*Fuzzer, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.MaxExpansions <= 0 {
		opts.MaxExpansions = DefaultMaxExpansions
	}
	if opts.Coverage == nil {
		opts.Coverage = NewAccumulator()
	}
	log := opts.Logger.WithField("seed", opts.Seed)

	c, err := compile(g, log)
	if err != nil {
		return nil, err
	}

	target := -1
	if unit == UnitTarget {
		if h, ok := c.handles[opts.Target]; ok && !c.nonTerminal[h] {
			target = h
		} else {
			log.WithField("target", opts.Target).Warn("target symbol is not a terminal of the grammar")
		}
	}

	return &Fuzzer{
		c:        c,
		strategy: s,
		unit:     unit,
		target:   target,
		opts:     opts,
		log:      log,
		rng:      rand.New(rand.NewSource(opts.Seed)),
		acc:      opts.Coverage,
	}, nil
}

// NewRandom creates a fuzzer that picks leaves and alternatives uniformly
// at random. It records terminal coverage without being steered by it.
func NewRandom(g *grammar.Grammar, opts Options) (*Fuzzer, error) {
	return newFuzzer(g, randomStrategy{}, UnitTerminal, opts)
}

// NewTerminalGuided creates a fuzzer steered toward terminals it has not
// produced yet.
func NewTerminalGuided(g *grammar.Grammar, opts Options) (*Fuzzer, error) {
	return newFuzzer(g, guidedStrategy{}, UnitTerminal, opts)
}

// NewCodeGuided creates a fuzzer steered toward non-terminals it has not
// produced yet.
func NewCodeGuided(g *grammar.Grammar, opts Options) (*Fuzzer, error) {
	return newFuzzer(g, guidedStrategy{}, UnitNonTerminal, opts)
}

// NewSymbolGuided creates a fuzzer steered toward opts.Target only.
func NewSymbolGuided(g *grammar.Grammar, opts Options) (*Fuzzer, error) {
	return newFuzzer(g, guidedStrategy{}, UnitTarget, opts)
}

// NewCoverageGuided fuzzes the coverage grammar of g, steered toward code
// locations it has not reached yet. Inputs hold the actions of g only.
func NewCoverageGuided(g *grammar.Grammar, opts Options) (*Fuzzer, error) {
	cg, err := grammar.ToCoverageGrammar(g)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGrammar, err)
	}
	opts.Output = OutputTerminals
	f, err := newFuzzer(cg, guidedStrategy{}, UnitCode, opts)
	if err != nil {
		return nil, err
	}
	f.markCodes(grammar.CodeLocations(g))
	return f, nil
}

// NewTargetGuided fuzzes the target grammar of g, steered toward the code
// location target. Inputs hold the actions of g only.
func NewTargetGuided(g *grammar.Grammar, target grammar.Symbol, opts Options) (*Fuzzer, error) {
	tg, err := grammar.ToTargetGrammar(g, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGrammar, err)
	}
	opts.Target = target
	opts.Output = OutputTerminals
	f, err := newFuzzer(tg, guidedStrategy{}, UnitTarget, opts)
	if err != nil {
		return nil, err
	}
	f.markCodes([]grammar.Symbol{target})
	return f, nil
}

func (f *Fuzzer) markCodes(locations []grammar.Symbol) {
	f.isCode = make(map[int]bool, len(locations))
	for _, s := range locations {
		if h, ok := f.c.handles[s]; ok && !f.c.nonTerminal[h] {
			f.codes = append(f.codes, h)
			f.isCode[h] = true
		}
	}
}

// Fuzz runs one round and returns the generated input. The coverage
// accumulator keeps growing across calls.
func (f *Fuzzer) Fuzz() ([]grammar.Symbol, error) {
	f.tree = newTree(f.c.start)
	before := f.acc.Len()

	steps := 0
	for frontier := f.tree.frontier(f.c); len(frontier) > 0; frontier = f.tree.frontier(f.c) {
		id, alt, err := f.next(frontier, steps)
		if err != nil {
			return nil, err
		}
		sym := f.tree.nodes[id].sym
		children := f.tree.expand(id, f.c.rules[sym][alt].values)
		f.strategy.onExpanded(f, id, children)
		steps++
	}
	f.rounds++

	f.log.WithFields(logrus.Fields{
		"round":      f.rounds,
		"expansions": steps,
		"covered":    f.acc.Len() - before,
		"missing":    len(f.NonCovered()),
	}).Debug("fuzzing round finished")
	return f.input(), nil
}

// next picks the expansion of a step. Past MaxExpansions the first leaf is
// closed with its cheapest alternative, so every round terminates.
func (f *Fuzzer) next(frontier []int, steps int) (int, int, error) {
	if steps < f.opts.MaxExpansions {
		return f.strategy.choose(f, frontier)
	}
	id := frontier[0]
	sym := f.tree.nodes[id].sym
	if len(f.c.rules[sym]) == 0 {
		return 0, 0, f.noCandidate(frontier)
	}
	return id, f.c.cheapest[sym], nil
}

func (f *Fuzzer) noCandidate(frontier []int) error {
	leaves := make([]int, len(frontier))
	for i, id := range frontier {
		leaves[i] = f.tree.nodes[id].sym
	}
	return fmt.Errorf("%w: leaves %v have no alternative", ErrNoCandidate, f.c.symbolsOf(leaves))
}

func (f *Fuzzer) input() []grammar.Symbol {
	keep := func(n node) bool {
		return !f.c.nonTerminal[n.sym] && f.c.symbols[n.sym] != grammar.Empty && !f.isCode[n.sym]
	}
	if f.opts.Output == OutputNonTerminals {
		keep = func(n node) bool { return f.c.nonTerminal[n.sym] }
	}
	return f.c.symbolsOf(f.tree.preorder(keep))
}

// isUnit reports whether the symbol with handle h counts as coverage.
func (f *Fuzzer) isUnit(h int) bool {
	switch f.unit {
	case UnitNonTerminal:
		return f.c.nonTerminal[h] && h != f.c.start && f.c.symbols[h] != grammar.Epsilon
	case UnitTarget:
		return h == f.target
	case UnitCode:
		return f.isCode[h]
	default:
		return !f.c.nonTerminal[h] && f.c.symbols[h] != grammar.Empty
	}
}

// gain returns the number of distinct units in values not covered yet.
func (f *Fuzzer) gain(values []int) int {
	gain := 0
	for i, v := range values {
		if !f.isUnit(v) || f.acc.Has(f.c.symbols[v]) || seenBefore(values[:i], v) {
			continue
		}
		gain++
	}
	return gain
}

func seenBefore(values []int, v int) bool {
	for _, w := range values {
		if w == v {
			return true
		}
	}
	return false
}

// record adds the units among children to the accumulator.
func (f *Fuzzer) record(children []int) {
	for _, id := range children {
		if sym := f.tree.nodes[id].sym; f.isUnit(sym) {
			f.acc.Add(f.c.symbols[sym])
		}
	}
}

// Unit returns the coverage unit of the fuzzer.
func (f *Fuzzer) Unit() Unit {
	return f.unit
}

// Rounds returns the number of completed rounds.
func (f *Fuzzer) Rounds() int {
	return f.rounds
}

// Coverage returns the accumulator of the fuzzer.
func (f *Fuzzer) Coverage() *Accumulator {
	return f.acc
}

// Vocabulary returns every unit the grammar can produce, sorted.
func (f *Fuzzer) Vocabulary() []grammar.Symbol {
	switch f.unit {
	case UnitNonTerminal:
		return f.c.symbolsOf(f.c.nonTerminals)
	case UnitTarget:
		if f.target < 0 {
			return nil
		}
		return []grammar.Symbol{f.c.symbols[f.target]}
	case UnitCode:
		return f.c.symbolsOf(f.codes)
	default:
		return f.c.symbolsOf(f.c.terminals)
	}
}

// Covered returns the vocabulary units produced so far, sorted.
func (f *Fuzzer) Covered() []grammar.Symbol {
	var result []grammar.Symbol
	for _, s := range f.Vocabulary() {
		if f.acc.Has(s) {
			result = append(result, s)
		}
	}
	return result
}

// NonCovered returns the vocabulary units not produced yet, sorted.
func (f *Fuzzer) NonCovered() []grammar.Symbol {
	var result []grammar.Symbol
	for _, s := range f.Vocabulary() {
		if !f.acc.Has(s) {
			result = append(result, s)
		}
	}
	return result
}
