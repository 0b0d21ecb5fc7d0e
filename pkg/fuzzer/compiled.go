package fuzzer

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/blockberries/tracegram/pkg/grammar"
)

// unproductive is the cost of a symbol that cannot derive a finite input.
const unproductive = math.MaxInt32

// alternative is a production with its symbols replaced by handles.
type alternative struct {
	values  []int
	epsilon bool
}

// compiled is a read-only copy of a grammar with every symbol interned to
// an integer handle. Handles index all per-symbol tables.
type compiled struct {
	symbols     []grammar.Symbol
	handles     map[grammar.Symbol]int
	nonTerminal []bool
	rules       [][]alternative

	// cost is the number of expansions of the smallest finite derivation,
	// and cheapest the alternative that achieves it.
	cost     []int
	cheapest []int

	start      int
	depthBound int

	terminals    []int
	nonTerminals []int
}

func (c *compiled) intern(s grammar.Symbol) int {
	if h, ok := c.handles[s]; ok {
		return h
	}
	h := len(c.symbols)
	c.handles[s] = h
	c.symbols = append(c.symbols, s)
	c.nonTerminal = append(c.nonTerminal, s.IsNonTerminal())
	c.rules = append(c.rules, nil)
	return h
}

// compile interns g, computes minimal expansion costs and drops every
// alternative that cannot derive a finite input.
func compile(g *grammar.Grammar, log logrus.FieldLogger) (*compiled, error) {
	if err := g.CheckValid(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGrammar, err)
	}

	c := &compiled{handles: make(map[grammar.Symbol]int)}
	c.start = c.intern(grammar.Start)
	for _, rule := range g.Rules() {
		key := c.intern(rule.Key)
		alts := make([]alternative, 0, len(rule.Alternatives))
		for _, p := range rule.Alternatives {
			values := make([]int, p.Len())
			for i, s := range p.Values() {
				values[i] = c.intern(s)
			}
			alts = append(alts, alternative{values: values, epsilon: p.IsEpsilon()})
		}
		c.rules[key] = alts
	}

	nonTerminals := g.DefinedNonTerminals()
	c.depthBound = len(nonTerminals)
	for _, s := range nonTerminals {
		if s != grammar.Start && s != grammar.Epsilon {
			c.nonTerminals = append(c.nonTerminals, c.handles[s])
		}
	}
	for _, s := range g.DefinedTerminals() {
		c.terminals = append(c.terminals, c.handles[s])
	}

	c.computeCosts()
	if c.cost[c.start] == unproductive {
		return nil, ErrUnproductive
	}
	if dropped := c.pruneUnproductive(); dropped > 0 {
		log.WithField("dropped", dropped).Warn("ignoring alternatives without a finite derivation")
	}
	return c, nil
}

// computeCosts runs a fixpoint over all rules until no cost decreases.
func (c *compiled) computeCosts() {
	c.cost = make([]int, len(c.symbols))
	c.cheapest = make([]int, len(c.symbols))
	for h := range c.symbols {
		if c.nonTerminal[h] {
			c.cost[h] = unproductive
		}
	}

	for changed := true; changed; {
		changed = false
		for h, alts := range c.rules {
			for i, alt := range alts {
				if cost := c.altCost(alt); cost < c.cost[h] {
					c.cost[h] = cost
					c.cheapest[h] = i
					changed = true
				}
			}
		}
	}
}

func (c *compiled) altCost(alt alternative) int {
	total := 1
	for _, v := range alt.values {
		if c.cost[v] == unproductive {
			return unproductive
		}
		total += c.cost[v]
		if total >= unproductive {
			return unproductive - 1
		}
	}
	return total
}

// pruneUnproductive removes alternatives with an unproductive symbol and
// returns how many were removed.
func (c *compiled) pruneUnproductive() int {
	dropped := 0
	for h, alts := range c.rules {
		if alts == nil || c.cost[h] == unproductive {
			continue
		}
		kept := alts[:0:0]
		for _, alt := range alts {
			if c.altCost(alt) == unproductive {
				dropped++
				continue
			}
			kept = append(kept, alt)
		}
		c.rules[h] = kept
		for i, alt := range kept {
			if c.altCost(alt) == c.cost[h] {
				c.cheapest[h] = i
				break
			}
		}
	}
	return dropped
}

func (c *compiled) symbolsOf(handles []int) []grammar.Symbol {
	result := make([]grammar.Symbol, len(handles))
	for i, h := range handles {
		result[i] = c.symbols[h]
	}
	return result
}
