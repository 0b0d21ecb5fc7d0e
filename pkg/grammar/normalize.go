package grammar

import (
	"fmt"
)

// Step is a named normalization operation.
type Step struct {
	Name string
	Run  func(g *Grammar) error
}

// CleanupPipeline is the normalization applied to freshly mined grammars.
// Order matters: undefined references are removed before anything else
// dereferences keys, and equivalent keys are merged before unused keys are
// collected.
var CleanupPipeline = []Step{
	{Name: "removeNonExistingStates", Run: func(g *Grammar) error { g.RemoveNonExistingStates(); return nil }},
	{Name: "mergeEquivalentTransitions", Run: func(g *Grammar) error { g.MergeEquivalentTransitions(); return nil }},
	{Name: "removeTerminateActions", Run: func(g *Grammar) error { return g.RemoveTerminateActions() }},
	{Name: "removeSingleStateTransitions", Run: func(g *Grammar) error { g.RemoveSingleStateTransitions(); return nil }},
	{Name: "removeUnusedSymbols", Run: func(g *Grammar) error { g.RemoveUnusedSymbols(); return nil }},
}

// Normalize runs the steps in order and stops at the first error.
func (g *Grammar) Normalize(steps ...Step) error {
	for _, step := range steps {
		before := g.Len()
		if err := step.Run(g); err != nil {
			return fmt.Errorf("%s: %w", step.Name, err)
		}
		g.log.WithField("step", step.Name).Debugf("normalized: %d -> %d keys", before, g.Len())
	}
	return nil
}

// Cleanup runs CleanupPipeline.
func (g *Grammar) Cleanup() error {
	return g.Normalize(CleanupPipeline...)
}

// substitute rewrites every production referencing old so that old is
// replaced by with. Alternatives that become equal are merged.
func (g *Grammar) substitute(old Symbol, with []Symbol) {
	for _, key := range g.order {
		r := g.rules[key]
		touched := false
		for _, p := range r.alts {
			if p.Contains(old) {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}
		rebuilt := newRule()
		for _, p := range r.alts {
			if p.Contains(old) {
				p = p.Splice(old, with)
			}
			rebuilt.add(p)
		}
		g.rules[key] = rebuilt
	}
}

// RemoveNonExistingStates removes references to non-terminals that are not
// defined. A production left with only blank terminals is dropped, and a key
// left without alternatives is replaced by epsilon and removed.
func (g *Grammar) RemoveNonExistingStates() {
	var emptied []Symbol
	for _, key := range g.order {
		r := g.rules[key]
		touched := false
		for _, p := range r.alts {
			if g.hasUndefined(p) {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}

		rebuilt := newRule()
		for _, p := range r.alts {
			if !g.hasUndefined(p) {
				rebuilt.add(p)
				continue
			}
			values := make([]Symbol, 0, p.Len())
			for _, s := range p.values {
				if s.IsNonTerminal() && !g.Has(s) {
					continue
				}
				if s.IsEmpty() {
					continue
				}
				values = append(values, s)
			}
			if len(values) == 0 {
				continue
			}
			rebuilt.add(Production{values: values, coverage: p.Coverage().Clone()})
		}
		g.rules[key] = rebuilt
		if len(rebuilt.alts) == 0 {
			emptied = append(emptied, key)
		}
	}

	for _, key := range emptied {
		if key == Start || key == Epsilon {
			continue
		}
		g.substitute(key, []Symbol{Epsilon})
		g.Remove(key)
	}
}

func (g *Grammar) hasUndefined(p Production) bool {
	for _, s := range p.values {
		if s.IsNonTerminal() && !g.Has(s) {
			return true
		}
	}
	return false
}

// MergeEquivalentTransitions collapses keys with identical alternative sets
// into one representative and rewrites references to the collapsed keys.
// The representative is start or epsilon when part of the group, otherwise
// the first key in insertion order. Merging repeats until no two keys are
// equivalent.
func (g *Grammar) MergeEquivalentTransitions() {
	for {
		groups := make(map[string][]Symbol)
		var signatures []string
		for _, key := range g.order {
			sig := g.signature(key)
			if _, ok := groups[sig]; !ok {
				signatures = append(signatures, sig)
			}
			groups[sig] = append(groups[sig], key)
		}

		merged := false
		for _, sig := range signatures {
			keys := groups[sig]
			if len(keys) < 2 {
				continue
			}
			target := representative(keys)
			for _, key := range keys {
				if key == target || key == Start || key == Epsilon {
					continue
				}
				g.substitute(key, []Symbol{target})
				g.Remove(key)
				merged = true
			}
		}
		if !merged {
			return
		}
	}
}

func representative(keys []Symbol) Symbol {
	for _, key := range keys {
		if key == Start || key == Epsilon {
			return key
		}
	}
	return keys[0]
}

// signature identifies the alternative set of key independently of order.
func (g *Grammar) signature(key Symbol) string {
	alts := make([]Production, len(g.rules[key].alts))
	copy(alts, g.rules[key].alts)
	SortProductions(alts)
	sig := ""
	for _, p := range alts {
		sig += p.Key() + "\x01"
	}
	return sig
}

// RemoveTerminateActions replaces every terminate-action key by epsilon
// wherever it is referenced, then deletes it. A terminate key must have
// exactly one alternative.
func (g *Grammar) RemoveTerminateActions() error {
	var terminates []Symbol
	for _, key := range g.order {
		if key.IsTerminate() {
			terminates = append(terminates, key)
		}
	}

	for _, key := range terminates {
		if n := len(g.rules[key].alts); n != 1 {
			return fmt.Errorf("%w: terminate action %s has %d alternatives, want 1",
				ErrMalformedProduction, key, n)
		}
		g.substitute(key, []Symbol{Epsilon})
		g.Remove(key)
	}
	return nil
}

// RemoveSingleStateTransitions inlines every non-state key whose only
// alternative is a non-epsilon production: each reference to the key is
// replaced by that production's symbols and the key is deleted.
func (g *Grammar) RemoveSingleStateTransitions() {
	for _, key := range g.Keys() {
		if key.IsState() || key == Start || key == Epsilon {
			continue
		}
		r, ok := g.rules[key]
		if !ok || len(r.alts) != 1 {
			continue
		}
		only := r.alts[0]
		if only.IsEpsilon() || only.Contains(key) {
			continue
		}
		g.inline(key, only)
	}
}

// inline replaces references to key by the values of p, carrying p's
// coverage into every rewritten production, and removes key.
func (g *Grammar) inline(key Symbol, p Production) {
	for _, k := range g.order {
		if k == key {
			continue
		}
		r := g.rules[k]
		touched := false
		for _, alt := range r.alts {
			if alt.Contains(key) {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}
		rebuilt := newRule()
		for _, alt := range r.alts {
			if alt.Contains(key) {
				alt = alt.Splice(key, p.values)
				alt.coverage.Union(p.coverage)
			}
			rebuilt.add(alt)
		}
		g.rules[k] = rebuilt
	}
	g.Remove(key)
}

// RemoveUnusedSymbols removes keys other than start that no production
// references, until a pass removes nothing.
func (g *Grammar) RemoveUnusedSymbols() {
	for {
		used := g.usedNonTerminals()
		removed := false
		for _, key := range g.Keys() {
			if key == Start || used[key] {
				continue
			}
			g.Remove(key)
			removed = true
		}
		if !removed {
			return
		}
	}
}
