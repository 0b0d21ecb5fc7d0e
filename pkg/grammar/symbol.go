// Package grammar provides the context-free grammar model used to describe
// GUI exploration traces: symbols, productions, normalization and validation.
package grammar

import "strings"

// Symbol is an atomic grammar token. Non-terminals are delimited by angle
// brackets ("<s00>"); every other value is a terminal.
type Symbol string

// Reserved symbols.
const (
	// Start is the root non-terminal of every grammar.
	Start Symbol = "<start>"

	// Epsilon marks a non-terminal that expands to nothing observable.
	Epsilon Symbol = "<empty>"

	// Empty is the blank terminal, the only expansion of Epsilon.
	Empty Symbol = ""
)

// Action names with special meaning in mined grammars.
const (
	ActionLaunch    = "LaunchApp"
	ActionBack      = "PressBack"
	ActionTerminate = "Terminate"
)

// NonTerminal wraps name in the non-terminal delimiters.
func NonTerminal(name string) Symbol {
	return Symbol("<" + name + ">")
}

// IsNonTerminal reports whether s is delimited by '<' and '>'.
func (s Symbol) IsNonTerminal() bool {
	return len(s) >= 2 && s[0] == '<' && s[len(s)-1] == '>'
}

// IsTerminal reports whether s is not a non-terminal.
func (s Symbol) IsTerminal() bool {
	return !s.IsNonTerminal()
}

// IsEmpty reports whether s is the blank terminal.
func (s Symbol) IsEmpty() bool {
	return s == Empty
}

// IsStart reports whether s is the start symbol.
func (s Symbol) IsStart() bool {
	return s == Start
}

// Name returns the symbol without its non-terminal delimiters.
func (s Symbol) Name() string {
	if s.IsNonTerminal() {
		return string(s[1 : len(s)-1])
	}
	return string(s)
}

// IsAction reports whether s is a non-terminal reifying an action, such as
// "<ClickEvent(s00.w01)>" or "<PressBack(s02)>".
func (s Symbol) IsAction() bool {
	return s.IsNonTerminal() && strings.Contains(string(s), "(")
}

// IsTerminate reports whether s is the non-terminal of a terminate action.
func (s Symbol) IsTerminate() bool {
	return s.IsNonTerminal() && strings.HasPrefix(s.Name(), ActionTerminate+"(")
}

// IsState reports whether s is a non-terminal standing for a GUI state, that
// is any non-terminal other than start, epsilon and action non-terminals.
func (s Symbol) IsState() bool {
	return s.IsNonTerminal() && s != Start && s != Epsilon && !s.IsAction()
}

// IsActionCall reports whether s is a terminal denoting an action invocation.
// Terminals without the call marker are filtering artifacts.
func (s Symbol) IsActionCall() bool {
	return s.IsTerminal() && strings.Contains(string(s), "(")
}

func (s Symbol) String() string {
	return string(s)
}

// Symbols converts a list of strings to symbols.
func Symbols(values ...string) []Symbol {
	result := make([]Symbol, len(values))
	for i, v := range values {
		result[i] = Symbol(v)
	}
	return result
}
