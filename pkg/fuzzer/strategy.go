package fuzzer

import "github.com/sirupsen/logrus"

// randomStrategy picks a leaf and one of its alternatives uniformly.
type randomStrategy struct{}

func (randomStrategy) choose(f *Fuzzer, frontier []int) (int, int, error) {
	id := frontier[f.rng.Intn(len(frontier))]
	alts := f.c.rules[f.tree.nodes[id].sym]
	if len(alts) == 0 {
		return 0, 0, f.noCandidate(frontier)
	}
	return id, f.rng.Intn(len(alts)), nil
}

func (randomStrategy) onExpanded(f *Fuzzer, _ int, children []int) {
	f.record(children)
}

// candidate is a hypothetical expansion: the leaf and alternative that
// would be chosen, and the symbols reached at the current search depth.
type candidate struct {
	node   int
	alt    int
	values []int
}

// origin identifies a non-terminal already explored below a choice.
type origin struct {
	node int
	alt  int
	sym  int
}

// guidedStrategy searches breadth-first below every leaf and alternative
// for new coverage and picks the choice that reaches the most of it at the
// shallowest depth.
type guidedStrategy struct{}

func (guidedStrategy) choose(f *Fuzzer, frontier []int) (int, int, error) {
	var level []candidate
	for _, id := range frontier {
		for i, alt := range f.c.rules[f.tree.nodes[id].sym] {
			level = append(level, candidate{node: id, alt: i, values: alt.values})
		}
	}
	switch len(level) {
	case 0:
		return 0, 0, f.noCandidate(frontier)
	case 1:
		return level[0].node, level[0].alt, nil
	}

	visited := make(map[origin]bool)
	for depth := 0; len(level) > 0; depth++ {
		best, bestGain := -1, 0
		for i, cand := range level {
			if gain := f.gain(cand.values); gain > bestGain {
				best, bestGain = i, gain
			}
		}
		if best >= 0 {
			chosen := level[best]
			f.log.WithFields(logrus.Fields{
				"key":   f.c.symbols[f.tree.nodes[chosen.node].sym],
				"depth": depth,
				"gain":  bestGain,
			}).Trace("expansion with new coverage")
			return chosen.node, chosen.alt, nil
		}
		if depth+1 >= f.c.depthBound {
			break
		}

		var next []candidate
		for _, cand := range level {
			for _, v := range cand.values {
				if !f.c.nonTerminal[v] {
					continue
				}
				key := origin{node: cand.node, alt: cand.alt, sym: v}
				if visited[key] {
					continue
				}
				visited[key] = true
				for _, alt := range f.c.rules[v] {
					next = append(next, candidate{node: cand.node, alt: cand.alt, values: alt.values})
				}
			}
		}
		level = next
	}

	return f.epsilonOrRandom(frontier)
}

func (guidedStrategy) onExpanded(f *Fuzzer, _ int, children []int) {
	f.record(children)
}

// epsilonOrRandom is the fallback when no choice leads to new coverage:
// a leaf with an epsilon alternative if there is one, else a random pair.
func (f *Fuzzer) epsilonOrRandom(frontier []int) (int, int, error) {
	type pair struct{ node, alt int }
	var pairs []pair
	for _, id := range frontier {
		for i, alt := range f.c.rules[f.tree.nodes[id].sym] {
			if alt.epsilon {
				pairs = append(pairs, pair{node: id, alt: i})
				break
			}
		}
	}
	if len(pairs) > 0 {
		p := pairs[f.rng.Intn(len(pairs))]
		return p.node, p.alt, nil
	}
	return randomStrategy{}.choose(f, frontier)
}
