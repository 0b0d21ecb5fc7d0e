package grammar

import (
	"fmt"
)

// FindingKind classifies a validity finding.
type FindingKind int

const (
	// FindingEmptyGrammar means the grammar has no keys or uses no
	// non-terminal at all.
	FindingEmptyGrammar FindingKind = iota
	// FindingEmptyExpansion means a key has no alternative.
	FindingEmptyExpansion
	// FindingTerminalKey means a key is a terminal symbol.
	FindingTerminalKey
	// FindingUnused means a key other than start is never referenced.
	FindingUnused
	// FindingUndefined means a referenced non-terminal is not a key.
	FindingUndefined
	// FindingUnreachable means a key cannot be reached from start.
	FindingUnreachable
)

func (k FindingKind) String() string {
	switch k {
	case FindingEmptyGrammar:
		return "empty grammar"
	case FindingEmptyExpansion:
		return "empty expansion"
	case FindingTerminalKey:
		return "terminal key"
	case FindingUnused:
		return "unused"
	case FindingUndefined:
		return "undefined"
	case FindingUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// ValidationError is a single validity finding.
type ValidationError struct {
	Kind    FindingKind
	Symbol  Symbol
	Message string
}

func (e ValidationError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("%s: %s", e.Symbol, e.Message)
	}
	return e.Message
}

// Unwrap allows errors.Is(err, ErrInvalidGrammar) on findings.
func (e ValidationError) Unwrap() error {
	return ErrInvalidGrammar
}

// Validator checks the structural invariants of a grammar.
type Validator struct {
	grammar *Grammar
	errors  []ValidationError
}

// NewValidator creates a new validator for g.
func NewValidator(g *Grammar) *Validator {
	return &Validator{grammar: g}
}

// Validate checks every invariant and returns the findings, grouped by kind
// and ordered by symbol within each group.
func (v *Validator) Validate() []ValidationError {
	v.errors = nil
	g := v.grammar

	defined := make(map[Symbol]bool, len(g.order))
	for _, key := range g.order {
		defined[key] = true
	}
	used := g.usedNonTerminals()

	// It must have keys and use at least one non-terminal
	if len(defined) == 0 {
		v.addError(FindingEmptyGrammar, "", "grammar defines no non-terminal")
		return v.errors
	}
	if len(used) == 0 {
		v.addError(FindingEmptyGrammar, "", "grammar uses no non-terminal")
	}

	for _, key := range g.SortedKeys() {
		if len(g.rules[key].alts) == 0 {
			v.addError(FindingEmptyExpansion, key, "expansion list empty")
		}
		if key.IsTerminal() {
			v.addError(FindingTerminalKey, key, "key is not a non-terminal")
		}
	}

	// Do not complain about start being unused
	if defined[Start] {
		used[Start] = true
	}

	for _, key := range g.SortedKeys() {
		if !used[key] {
			v.addError(FindingUnused, key, "defined but not used")
		}
	}
	for _, sym := range sortedSet(used) {
		if !defined[sym] {
			v.addError(FindingUndefined, sym, "used but not defined")
		}
	}

	reachable := g.reachable(Start)
	for _, key := range g.SortedKeys() {
		if !reachable[key] {
			v.addError(FindingUnreachable, key, fmt.Sprintf("unreachable from %s", Start))
		}
	}

	return v.errors
}

func (v *Validator) addError(kind FindingKind, sym Symbol, message string) {
	v.errors = append(v.errors, ValidationError{
		Kind:    kind,
		Symbol:  sym,
		Message: message,
	})
}

// HasErrors returns true if the last validation produced findings.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Validate is a convenience function that validates a grammar.
func Validate(g *Grammar) []ValidationError {
	return NewValidator(g).Validate()
}

// IsValid reports whether g satisfies every invariant. Each finding is
// logged as a warning; the grammar is never modified.
func (g *Grammar) IsValid() bool {
	findings := Validate(g)
	for _, f := range findings {
		g.log.WithField("symbol", string(f.Symbol)).Warn(f.Message)
	}
	return len(findings) == 0
}

// CheckValid returns nil for a valid grammar, and otherwise an error wrapping
// ErrInvalidGrammar that lists every finding.
func (g *Grammar) CheckValid() error {
	findings := Validate(g)
	if len(findings) == 0 {
		return nil
	}
	return &InvalidGrammarError{Findings: findings}
}
