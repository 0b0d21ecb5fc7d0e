package grammar

import (
	"fmt"
	"strings"
)

// Statistics summarizes the size of a grammar.
type Statistics struct {
	// Rules is the number of keys.
	Rules int
	// Terminals is the number of distinct non-blank terminals.
	Terminals int
	// NonTerminals is the number of distinct non-terminals referenced by a
	// production.
	NonTerminals int
	// LargestRule is the largest number of alternatives of a single key.
	LargestRule int
}

// Stats computes the statistics of g.
func (g *Grammar) Stats() Statistics {
	s := Statistics{
		Rules:        g.Len(),
		Terminals:    len(g.DefinedTerminals()),
		NonTerminals: len(g.usedNonTerminals()),
	}
	for _, key := range g.order {
		if n := len(g.rules[key].alts); n > s.LargestRule {
			s.LargestRule = n
		}
	}
	return s
}

func (s Statistics) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Production rules %d\n", s.Rules)
	fmt.Fprintf(&sb, "Terminals %d\n", s.Terminals)
	fmt.Fprintf(&sb, "Non Terminals %d\n", s.NonTerminals)
	fmt.Fprintf(&sb, "Largest production rule %d\n", s.LargestRule)
	return sb.String()
}
