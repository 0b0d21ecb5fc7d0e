package grammar

import (
	"sort"
	"strings"
)

// Coverage is a set of opaque identifiers, typically code locations, reached
// when a production is exercised.
type Coverage map[string]struct{}

// NewCoverage creates a coverage set holding ids.
func NewCoverage(ids ...string) Coverage {
	c := make(Coverage, len(ids))
	for _, id := range ids {
		c[id] = struct{}{}
	}
	return c
}

// Add inserts ids into the set.
func (c Coverage) Add(ids ...string) {
	for _, id := range ids {
		c[id] = struct{}{}
	}
}

// Has reports whether id is in the set.
func (c Coverage) Has(id string) bool {
	_, ok := c[id]
	return ok
}

// Union adds every id of other into c.
func (c Coverage) Union(other Coverage) {
	for id := range other {
		c[id] = struct{}{}
	}
}

// Sorted returns the ids in lexicographic order.
func (c Coverage) Sorted() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a copy of the set.
func (c Coverage) Clone() Coverage {
	clone := make(Coverage, len(c))
	for id := range c {
		clone[id] = struct{}{}
	}
	return clone
}

// Production is one alternative expansion of a non-terminal: an ordered list
// of symbols plus the coverage reached when it is taken. Identity is
// structural over the symbols only; coverage is not part of it.
type Production struct {
	values   []Symbol
	coverage Coverage
}

// NewProduction creates a production from symbols.
func NewProduction(values ...Symbol) Production {
	v := make([]Symbol, len(values))
	copy(v, values)
	return Production{values: v, coverage: make(Coverage)}
}

// P is a shorthand for NewProduction over string values.
func P(values ...string) Production {
	return NewProduction(Symbols(values...)...)
}

// WithCoverage returns a copy of p whose coverage also holds ids.
func (p Production) WithCoverage(ids ...string) Production {
	c := p.Coverage().Clone()
	c.Add(ids...)
	return Production{values: p.values, coverage: c}
}

// Values returns the symbols of the production. The slice must not be
// modified.
func (p Production) Values() []Symbol {
	return p.values
}

// Len returns the number of symbols.
func (p Production) Len() int {
	return len(p.values)
}

// Coverage returns the coverage set of the production. Within a Grammar the
// set is shared with the stored alternative.
func (p Production) Coverage() Coverage {
	if p.coverage == nil {
		return Coverage{}
	}
	return p.coverage
}

// Terminals returns the terminal symbols in order.
func (p Production) Terminals() []Symbol {
	var result []Symbol
	for _, s := range p.values {
		if s.IsTerminal() {
			result = append(result, s)
		}
	}
	return result
}

// NonTerminals returns the non-terminal symbols in order.
func (p Production) NonTerminals() []Symbol {
	var result []Symbol
	for _, s := range p.values {
		if s.IsNonTerminal() {
			result = append(result, s)
		}
	}
	return result
}

// IsEpsilon reports whether every value is the epsilon symbol.
func (p Production) IsEpsilon() bool {
	if len(p.values) == 0 {
		return false
	}
	for _, s := range p.values {
		if s != Epsilon {
			return false
		}
	}
	return true
}

// IsBlank reports whether the production only holds blank terminals.
func (p Production) IsBlank() bool {
	for _, s := range p.values {
		if !s.IsEmpty() {
			return false
		}
	}
	return true
}

// Contains reports whether sym occurs in the production.
func (p Production) Contains(sym Symbol) bool {
	for _, s := range p.values {
		if s == sym {
			return true
		}
	}
	return false
}

// Equal reports structural equality, ignoring coverage.
func (p Production) Equal(other Production) bool {
	if len(p.values) != len(other.values) {
		return false
	}
	for i := range p.values {
		if p.values[i] != other.values[i] {
			return false
		}
	}
	return true
}

// Key returns a string uniquely identifying the symbol sequence. Every
// symbol is terminated by a NUL byte, so keys order like the sequences.
func (p Production) Key() string {
	var sb strings.Builder
	for _, s := range p.values {
		sb.WriteString(string(s))
		sb.WriteByte(0)
	}
	return sb.String()
}

// Splice returns a copy of p where every occurrence of old is replaced by
// the symbols in with. Coverage is copied.
func (p Production) Splice(old Symbol, with []Symbol) Production {
	values := make([]Symbol, 0, len(p.values)+len(with))
	for _, s := range p.values {
		if s == old {
			values = append(values, with...)
		} else {
			values = append(values, s)
		}
	}
	return Production{values: values, coverage: p.Coverage().Clone()}
}

// Replace returns a copy of p where old is replaced by sym.
func (p Production) Replace(old, sym Symbol) Production {
	return p.Splice(old, []Symbol{sym})
}

// String renders the production as its concatenated values.
func (p Production) String() string {
	var sb strings.Builder
	for _, s := range p.values {
		sb.WriteString(string(s))
	}
	return sb.String()
}

// Less orders productions by rendered form, then by symbol sequence.
func (p Production) Less(other Production) bool {
	a, b := p.String(), other.String()
	if a != b {
		return a < b
	}
	return p.Key() < other.Key()
}

// SortProductions sorts productions in place using Less.
func SortProductions(ps []Production) {
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].Less(ps[j])
	})
}
