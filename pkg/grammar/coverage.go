package grammar

import "fmt"

// ToCoverageGrammar rewrites g so that code locations become terminals:
// every alternative is prefixed with its coverage ids, and keeps its own
// symbols so that a derivation still spells out the actions reaching those
// locations. Epsilon and blank alternatives are kept.
//
// The result is checked for validity; ErrInvalidGrammar is returned when
// the rewrite broke an invariant.
func ToCoverageGrammar(g *Grammar) (*Grammar, error) {
	return toCoverageGrammar(g, func(string) bool { return true })
}

// ToTargetGrammar is ToCoverageGrammar restricted to a single code location:
// only target is added as a terminal, every other coverage id is dropped.
func ToTargetGrammar(g *Grammar, target Symbol) (*Grammar, error) {
	return toCoverageGrammar(g, func(id string) bool { return id == string(target) })
}

func toCoverageGrammar(g *Grammar, keep func(id string) bool) (*Grammar, error) {
	result := NewEmpty()
	result.log = g.log
	for _, key := range g.order {
		result.Define(key)
		for _, p := range g.rules[key].alts {
			result.Define(key, coverageProduction(p, keep))
		}
	}

	if err := result.CheckValid(); err != nil {
		return nil, fmt.Errorf("coverage grammar: %w", err)
	}
	return result, nil
}

func coverageProduction(p Production, keep func(id string) bool) Production {
	if p.IsEpsilon() || p.IsBlank() {
		return NewProduction(p.values...)
	}

	var values []Symbol
	for _, id := range p.Coverage().Sorted() {
		if keep(id) {
			values = append(values, Symbol(id))
		}
	}
	values = append(values, p.values...)
	return NewProduction(values...)
}

// CodeLocations returns the coverage ids of all productions of g, sorted.
// They are the terminals a coverage grammar adds to g.
func CodeLocations(g *Grammar) []Symbol {
	set := make(map[Symbol]bool)
	for _, key := range g.order {
		for _, p := range g.rules[key].alts {
			for id := range p.Coverage() {
				set[Symbol(id)] = true
			}
		}
	}
	return sortedSet(set)
}
