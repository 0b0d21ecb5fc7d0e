package grammar

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// Grammar maps non-terminal keys to their alternative productions. Keys and
// alternatives keep insertion order, which makes every normalization step
// deterministic.
//
// A Grammar is mutated through AddRule, Define and the normalization
// operations; once handed to a fuzzer it must be treated as read-only.
type Grammar struct {
	rules map[Symbol]*rule
	order []Symbol
	log   logrus.FieldLogger
}

// Rule is a key with its alternatives, used to build grammars in order.
type Rule struct {
	Key          Symbol
	Alternatives []Production
}

type rule struct {
	alts  []Production
	index map[string]int
}

func newRule() *rule {
	return &rule{index: make(map[string]int)}
}

// add inserts p, unioning coverage into an existing equal alternative.
func (r *rule) add(p Production) {
	key := p.Key()
	if i, ok := r.index[key]; ok {
		r.alts[i].coverage.Union(p.coverage)
		return
	}
	stored := Production{values: p.values, coverage: p.Coverage().Clone()}
	r.index[key] = len(r.alts)
	r.alts = append(r.alts, stored)
}

func (r *rule) sameAlternatives(other *rule) bool {
	if len(r.alts) != len(other.alts) {
		return false
	}
	for key := range r.index {
		if _, ok := other.index[key]; !ok {
			return false
		}
	}
	return true
}

// New creates a grammar bootstrapped with epsilon -> {""} and
// start -> {epsilon}.
func New() *Grammar {
	g := NewEmpty()
	g.Define(Epsilon, NewProduction(Empty))
	g.Define(Start, NewProduction(Epsilon))
	return g
}

// NewEmpty creates a grammar without any key.
func NewEmpty() *Grammar {
	return &Grammar{
		rules: make(map[Symbol]*rule),
		log:   logrus.StandardLogger(),
	}
}

// FromRules creates a grammar holding rules in the given order.
func FromRules(rules ...Rule) *Grammar {
	g := NewEmpty()
	for _, r := range rules {
		g.Define(r.Key, r.Alternatives...)
	}
	return g
}

// SetLogger sets the logger used for validity diagnostics.
func (g *Grammar) SetLogger(log logrus.FieldLogger) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	g.log = log
}

// Define creates key if absent and adds alternatives to it. Equal
// alternatives have their coverage unioned.
func (g *Grammar) Define(key Symbol, alts ...Production) {
	r := g.ensure(key)
	for _, p := range alts {
		r.add(p)
	}
}

func (g *Grammar) ensure(key Symbol) *rule {
	r, ok := g.rules[key]
	if !ok {
		r = newRule()
		g.rules[key] = r
		g.order = append(g.order, key)
	}
	return r
}

// AddRule inserts the production values under name, tagged with coverage.
// A structurally identical production has its coverage unioned in place.
// A new key is seeded with the epsilon alternative unless it is an action
// non-terminal, which starts empty.
func (g *Grammar) AddRule(name Symbol, values []Symbol, coverage ...string) {
	if _, ok := g.rules[name]; !ok {
		r := g.ensure(name)
		if !name.IsAction() {
			r.add(NewProduction(Epsilon))
		}
	}
	p := NewProduction(values...)
	p.coverage.Add(coverage...)
	g.rules[name].add(p)
}

// Get returns the alternatives of key, or nil when key is not defined.
// The returned slice must not be modified.
func (g *Grammar) Get(key Symbol) []Production {
	r, ok := g.rules[key]
	if !ok {
		return nil
	}
	return r.alts
}

// GetProduction returns the alternatives of a single-symbol production.
func (g *Grammar) GetProduction(p Production) []Production {
	if p.Len() != 1 {
		return nil
	}
	return g.Get(p.values[0])
}

// Has reports whether key is defined.
func (g *Grammar) Has(key Symbol) bool {
	_, ok := g.rules[key]
	return ok
}

// Keys returns the defined keys in insertion order.
func (g *Grammar) Keys() []Symbol {
	keys := make([]Symbol, len(g.order))
	copy(keys, g.order)
	return keys
}

// SortedKeys returns the defined keys in lexicographic order.
func (g *Grammar) SortedKeys() []Symbol {
	keys := g.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Len returns the number of keys.
func (g *Grammar) Len() int {
	return len(g.order)
}

// Remove deletes key and its alternatives. References to key are kept.
func (g *Grammar) Remove(key Symbol) {
	if _, ok := g.rules[key]; !ok {
		return
	}
	delete(g.rules, key)
	for i, k := range g.order {
		if k == key {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// Rules returns the grammar as ordered rules.
func (g *Grammar) Rules() []Rule {
	rules := make([]Rule, 0, len(g.order))
	for _, key := range g.order {
		rules = append(rules, Rule{Key: key, Alternatives: g.rules[key].alts})
	}
	return rules
}

// Clone returns a deep copy of the grammar.
func (g *Grammar) Clone() *Grammar {
	c := NewEmpty()
	c.log = g.log
	for _, key := range g.order {
		c.Define(key, g.rules[key].alts...)
	}
	return c
}

// Equal reports whether both grammars have the same keys and the same
// alternative sets, ignoring order and coverage.
func (g *Grammar) Equal(other *Grammar) bool {
	if g.Len() != other.Len() {
		return false
	}
	for key, r := range g.rules {
		o, ok := other.rules[key]
		if !ok || !r.sameAlternatives(o) {
			return false
		}
	}
	return true
}

// DefinedTerminals returns every distinct non-blank terminal used in a
// production, sorted.
func (g *Grammar) DefinedTerminals() []Symbol {
	seen := make(map[Symbol]bool)
	for _, key := range g.order {
		for _, p := range g.rules[key].alts {
			for _, s := range p.values {
				if s.IsTerminal() && !s.IsEmpty() {
					seen[s] = true
				}
			}
		}
	}
	return sortedSet(seen)
}

// DefinedNonTerminals returns every key and every non-terminal used in a
// production, sorted.
func (g *Grammar) DefinedNonTerminals() []Symbol {
	seen := make(map[Symbol]bool)
	for _, key := range g.order {
		seen[key] = true
		for _, p := range g.rules[key].alts {
			for _, s := range p.values {
				if s.IsNonTerminal() {
					seen[s] = true
				}
			}
		}
	}
	return sortedSet(seen)
}

// usedNonTerminals returns the non-terminals referenced by any production.
func (g *Grammar) usedNonTerminals() map[Symbol]bool {
	used := make(map[Symbol]bool)
	for _, key := range g.order {
		for _, p := range g.rules[key].alts {
			for _, s := range p.values {
				if s.IsNonTerminal() {
					used[s] = true
				}
			}
		}
	}
	return used
}

// reachable returns the keys reachable from start, using an explicit
// worklist.
func (g *Grammar) reachable(start Symbol) map[Symbol]bool {
	seen := map[Symbol]bool{start: true}
	work := []Symbol{start}
	for len(work) > 0 {
		current := work[len(work)-1]
		work = work[:len(work)-1]
		r, ok := g.rules[current]
		if !ok {
			continue
		}
		for _, p := range r.alts {
			for _, s := range p.values {
				if s.IsNonTerminal() && !seen[s] {
					seen[s] = true
					work = append(work, s)
				}
			}
		}
	}
	return seen
}

func sortedSet(set map[Symbol]bool) []Symbol {
	result := make([]Symbol, 0, len(set))
	for s := range set {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
