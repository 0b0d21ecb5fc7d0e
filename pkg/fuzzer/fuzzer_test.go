package fuzzer

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/blockberries/tracegram/pkg/grammar"
)

func titleGrammar() *grammar.Grammar {
	return grammar.FromRules(
		grammar.Rule{Key: grammar.Start, Alternatives: []grammar.Production{grammar.P("<title>")}},
		grammar.Rule{Key: "<title>", Alternatives: []grammar.Production{grammar.P("<topic>", ": ", "<subtopic>")}},
		grammar.Rule{Key: "<topic>", Alternatives: []grammar.Production{
			grammar.P("Generating Software Tests"),
			grammar.P("<prefix>", "Fuzzing"),
			grammar.P("The Fuzzing Book"),
		}},
		grammar.Rule{Key: "<prefix>", Alternatives: []grammar.Production{
			grammar.P(""), grammar.P("The Art of "), grammar.P("The Joy of "),
		}},
		grammar.Rule{Key: "<subtopic>", Alternatives: []grammar.Production{grammar.P("Breaking Software")}},
	)
}

// appGrammar is a cleaned grammar as mined from a two-screen exploration.
func appGrammar() *grammar.Grammar {
	g := grammar.New()
	g.AddRule(grammar.Start, grammar.Symbols("<s00>"))
	g.AddRule("<s00>", grammar.Symbols("ClickEvent(w00)", "<s01>"), "101")
	g.AddRule("<s00>", grammar.Symbols("ClickEvent(w02)", "<empty>"), "105")
	g.AddRule("<s01>", grammar.Symbols("PressBack(s01)", "<s00>"), "104")
	g.AddRule("<s01>", grammar.Symbols("TextInsert(w01,hello)", "<s01>"), "103")
	return g
}

func cyclicGrammar() *grammar.Grammar {
	return grammar.FromRules(
		grammar.Rule{Key: grammar.Start, Alternatives: []grammar.Production{grammar.P("<a>")}},
		grammar.Rule{Key: "<a>", Alternatives: []grammar.Production{grammar.P("x", "<a>"), grammar.P("y")}},
	)
}

func join(input []grammar.Symbol) string {
	var sb strings.Builder
	for _, s := range input {
		sb.WriteString(string(s))
	}
	return sb.String()
}

func mustFuzz(t *testing.T, f *Fuzzer) []grammar.Symbol {
	t.Helper()
	input, err := f.Fuzz()
	if err != nil {
		t.Fatalf("Fuzz() = %v", err)
	}
	return input
}

func TestRandomFuzzerIsDeterministic(t *testing.T) {
	titles := map[string]bool{
		"Generating Software Tests: Breaking Software": true,
		"Fuzzing: Breaking Software":                   true,
		"The Art of Fuzzing: Breaking Software":        true,
		"The Joy of Fuzzing: Breaking Software":        true,
		"The Fuzzing Book: Breaking Software":          true,
	}

	opts := DefaultOptions()
	opts.Seed = 42
	first, err := NewRandom(titleGrammar(), opts)
	if err != nil {
		t.Fatalf("NewRandom() = %v", err)
	}
	second, err := NewRandom(titleGrammar(), opts)
	if err != nil {
		t.Fatalf("NewRandom() = %v", err)
	}

	for round := 0; round < 10; round++ {
		a, b := mustFuzz(t, first), mustFuzz(t, second)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("round %d: %v != %v", round, a, b)
		}
		if !titles[join(a)] {
			t.Errorf("round %d: unexpected title %q", round, join(a))
		}
	}
	if first.Rounds() != 10 {
		t.Errorf("Rounds() = %d, want 10", first.Rounds())
	}
}

func TestTerminalGuidedRounds(t *testing.T) {
	f, err := NewTerminalGuided(appGrammar(), DefaultOptions())
	if err != nil {
		t.Fatalf("NewTerminalGuided() = %v", err)
	}

	want := grammar.Symbols("ClickEvent(w00)", "PressBack(s01)", "ClickEvent(w02)")
	if got := mustFuzz(t, f); !reflect.DeepEqual(got, want) {
		t.Errorf("round 1 = %v, want %v", got, want)
	}
	if got, want := f.NonCovered(), grammar.Symbols("TextInsert(w01,hello)"); !reflect.DeepEqual(got, want) {
		t.Fatalf("NonCovered() after round 1 = %v, want %v", got, want)
	}

	want = grammar.Symbols("ClickEvent(w00)", "TextInsert(w01,hello)")
	if got := mustFuzz(t, f); !reflect.DeepEqual(got, want) {
		t.Errorf("round 2 = %v, want %v", got, want)
	}
	if got := f.NonCovered(); len(got) != 0 {
		t.Errorf("NonCovered() after round 2 = %v", got)
	}
	if got := len(f.Covered()); got != 4 {
		t.Errorf("Covered() has %d symbols, want 4", got)
	}
}

func TestGuidedMutuallyExclusiveTerminals(t *testing.T) {
	g := grammar.FromRules(
		grammar.Rule{Key: grammar.Start, Alternatives: []grammar.Production{grammar.P("<x>")}},
		grammar.Rule{Key: "<x>", Alternatives: []grammar.Production{grammar.P("A"), grammar.P("B"), grammar.P("C")}},
	)
	f, err := NewTerminalGuided(g, DefaultOptions())
	if err != nil {
		t.Fatalf("NewTerminalGuided() = %v", err)
	}

	rounds := 0
	for len(f.NonCovered()) > 0 {
		input := mustFuzz(t, f)
		rounds++
		if len(input) != 1 {
			t.Fatalf("round %d = %v, want a single terminal", rounds, input)
		}
		if rounds > 3 {
			t.Fatalf("still missing %v after %d rounds", f.NonCovered(), rounds)
		}
	}
	if rounds != 3 {
		t.Errorf("covered in %d rounds, want 3", rounds)
	}
}

func TestCodeGuidedCoversStates(t *testing.T) {
	f, err := NewCodeGuided(appGrammar(), DefaultOptions())
	if err != nil {
		t.Fatalf("NewCodeGuided() = %v", err)
	}
	if got, want := f.Vocabulary(), grammar.Symbols("<s00>", "<s01>"); !reflect.DeepEqual(got, want) {
		t.Fatalf("Vocabulary() = %v, want %v", got, want)
	}

	// Epsilon is not a unit, so the first round does not stop at <start>.
	want := grammar.Symbols("ClickEvent(w00)")
	if got := mustFuzz(t, f); !reflect.DeepEqual(got, want) {
		t.Errorf("Fuzz() = %v, want %v", got, want)
	}
	if missing := f.NonCovered(); len(missing) != 0 {
		t.Errorf("NonCovered() = %v", missing)
	}

	opts := DefaultOptions()
	opts.Output = OutputNonTerminals
	f, err = NewCodeGuided(appGrammar(), opts)
	if err != nil {
		t.Fatal(err)
	}
	input := mustFuzz(t, f)
	if len(input) == 0 || input[0] != grammar.Start {
		t.Fatalf("Fuzz() = %v, want to begin with %s", input, grammar.Start)
	}
	for _, s := range input {
		if !s.IsNonTerminal() {
			t.Fatalf("Fuzz() emitted terminal %q", s)
		}
	}
}

func TestSymbolGuided(t *testing.T) {
	opts := DefaultOptions()
	opts.Target = "TextInsert(w01,hello)"
	f, err := NewSymbolGuided(appGrammar(), opts)
	if err != nil {
		t.Fatalf("NewSymbolGuided() = %v", err)
	}

	want := grammar.Symbols("ClickEvent(w00)", "TextInsert(w01,hello)")
	if got := mustFuzz(t, f); !reflect.DeepEqual(got, want) {
		t.Errorf("Fuzz() = %v, want %v", got, want)
	}
	if got := f.Covered(); !reflect.DeepEqual(got, grammar.Symbols("TextInsert(w01,hello)")) {
		t.Errorf("Covered() = %v", got)
	}

	opts.Target = "ClickEvent(nowhere)"
	missing, err := NewSymbolGuided(appGrammar(), opts)
	if err != nil {
		t.Fatalf("NewSymbolGuided() = %v", err)
	}
	if v := missing.Vocabulary(); len(v) != 0 {
		t.Errorf("Vocabulary() = %v, want none for an unknown target", v)
	}
}

func TestCoverageGuided(t *testing.T) {
	f, err := NewCoverageGuided(appGrammar(), DefaultOptions())
	if err != nil {
		t.Fatalf("NewCoverageGuided() = %v", err)
	}
	if f.Unit() != UnitCode {
		t.Errorf("Unit() = %v, want %v", f.Unit(), UnitCode)
	}
	if got, want := f.Vocabulary(), grammar.Symbols("101", "103", "104", "105"); !reflect.DeepEqual(got, want) {
		t.Fatalf("Vocabulary() = %v, want %v", got, want)
	}

	// Inputs are the actions reaching the code locations, without the
	// locations themselves.
	rounds := [][]grammar.Symbol{
		grammar.Symbols("ClickEvent(w00)", "PressBack(s01)", "ClickEvent(w02)"),
		grammar.Symbols("ClickEvent(w00)", "TextInsert(w01,hello)"),
	}
	for i, want := range rounds {
		if got := mustFuzz(t, f); !reflect.DeepEqual(got, want) {
			t.Errorf("round %d = %v, want %v", i+1, got, want)
		}
	}
	if missing := f.NonCovered(); len(missing) != 0 {
		t.Errorf("NonCovered() = %v", missing)
	}
}

func TestTargetGuided(t *testing.T) {
	f, err := NewTargetGuided(appGrammar(), "103", DefaultOptions())
	if err != nil {
		t.Fatalf("NewTargetGuided() = %v", err)
	}
	if got := f.Vocabulary(); !reflect.DeepEqual(got, grammar.Symbols("103")) {
		t.Fatalf("Vocabulary() = %v, want [103]", got)
	}

	want := grammar.Symbols("ClickEvent(w00)", "TextInsert(w01,hello)")
	if got := mustFuzz(t, f); !reflect.DeepEqual(got, want) {
		t.Errorf("Fuzz() = %v, want %v", got, want)
	}
	if missing := f.NonCovered(); len(missing) != 0 {
		t.Errorf("NonCovered() = %v", missing)
	}
}

func TestFuzzTerminatesOnCycles(t *testing.T) {
	factories := map[string]Factory{
		"random":   NewRandom,
		"terminal": NewTerminalGuided,
		"code":     NewCodeGuided,
	}
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.MaxExpansions = 20
			f, err := factory(cyclicGrammar(), opts)
			if err != nil {
				t.Fatalf("factory() = %v", err)
			}
			for round := 0; round < 20; round++ {
				input := mustFuzz(t, f)
				if len(input) == 0 || input[len(input)-1] != "y" {
					t.Fatalf("round %d = %v, want x* y", round, input)
				}
				for _, s := range input[:len(input)-1] {
					if s != "x" {
						t.Fatalf("round %d = %v, want x* y", round, input)
					}
				}
			}
		})
	}
}

func TestClosingUsesCheapestAlternative(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxExpansions = 1
	f, err := NewRandom(cyclicGrammar(), opts)
	if err != nil {
		t.Fatalf("NewRandom() = %v", err)
	}
	for round := 0; round < 5; round++ {
		if got := mustFuzz(t, f); !reflect.DeepEqual(got, grammar.Symbols("y")) {
			t.Fatalf("round %d = %v, want [y]", round, got)
		}
	}
}

func TestCoverageMonotonic(t *testing.T) {
	for _, name := range []string{StrategyRandom, StrategyTerminal, StrategyCode} {
		t.Run(name, func(t *testing.T) {
			factory, err := Lookup(name)
			if err != nil {
				t.Fatal(err)
			}
			opts := DefaultOptions()
			opts.Seed = 7
			f, err := factory(appGrammar(), opts)
			if err != nil {
				t.Fatal(err)
			}

			covered, missing := len(f.Covered()), len(f.NonCovered())
			for round := 0; round < 10; round++ {
				mustFuzz(t, f)
				if c := len(f.Covered()); c < covered {
					t.Fatalf("round %d: covered shrank from %d to %d", round, covered, c)
				} else {
					covered = c
				}
				if m := len(f.NonCovered()); m > missing {
					t.Fatalf("round %d: missing grew from %d to %d", round, missing, m)
				} else {
					missing = m
				}
			}
		})
	}
}

func TestSnapshotRestore(t *testing.T) {
	f, err := NewTerminalGuided(appGrammar(), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	mustFuzz(t, f)
	snap := f.Coverage().Snapshot()
	if snap.Len() != 3 {
		t.Fatalf("snapshot has %d symbols, want 3", snap.Len())
	}

	mustFuzz(t, f)
	if len(f.NonCovered()) != 0 {
		t.Fatalf("NonCovered() = %v", f.NonCovered())
	}

	f.Coverage().Restore(snap)
	if got, want := f.NonCovered(), grammar.Symbols("TextInsert(w01,hello)"); !reflect.DeepEqual(got, want) {
		t.Errorf("NonCovered() after restore = %v, want %v", got, want)
	}
}

func TestSharedAccumulator(t *testing.T) {
	acc := NewAccumulator()
	opts := DefaultOptions()
	opts.Coverage = acc

	first, err := NewTerminalGuided(appGrammar(), opts)
	if err != nil {
		t.Fatal(err)
	}
	mustFuzz(t, first)

	second, err := NewTerminalGuided(appGrammar(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := second.NonCovered(), first.NonCovered(); !reflect.DeepEqual(got, want) {
		t.Errorf("NonCovered() = %v, want %v", got, want)
	}
	if acc.Add("ClickEvent(w00)") {
		t.Error("Add() reported a covered symbol as new")
	}
}

func TestFuzzerErrors(t *testing.T) {
	t.Run("invalid grammar", func(t *testing.T) {
		g := grammar.FromRules(grammar.Rule{Key: grammar.Start, Alternatives: []grammar.Production{grammar.P("<a>")}})
		_, err := NewRandom(g, DefaultOptions())
		if !errors.Is(err, ErrInvalidGrammar) || !errors.Is(err, grammar.ErrInvalidGrammar) {
			t.Errorf("NewRandom() = %v, want ErrInvalidGrammar", err)
		}
		if !IsFatal(err) {
			t.Error("invalid grammar should be fatal")
		}
	})

	t.Run("unproductive start", func(t *testing.T) {
		g := grammar.FromRules(
			grammar.Rule{Key: grammar.Start, Alternatives: []grammar.Production{grammar.P("<a>")}},
			grammar.Rule{Key: "<a>", Alternatives: []grammar.Production{grammar.P("x", "<a>")}},
		)
		if _, err := NewTerminalGuided(g, DefaultOptions()); !errors.Is(err, ErrUnproductive) {
			t.Errorf("NewTerminalGuided() = %v, want ErrUnproductive", err)
		}
	})

	t.Run("unproductive alternative", func(t *testing.T) {
		g := grammar.FromRules(
			grammar.Rule{Key: grammar.Start, Alternatives: []grammar.Production{grammar.P("<a>"), grammar.P("z")}},
			grammar.Rule{Key: "<a>", Alternatives: []grammar.Production{grammar.P("x", "<a>")}},
		)
		f, err := NewRandom(g, DefaultOptions())
		if err != nil {
			t.Fatalf("NewRandom() = %v", err)
		}
		for round := 0; round < 5; round++ {
			if got := mustFuzz(t, f); !reflect.DeepEqual(got, grammar.Symbols("z")) {
				t.Fatalf("round %d = %v, want [z]", round, got)
			}
		}
	})

	t.Run("no candidate", func(t *testing.T) {
		g := grammar.FromRules(
			grammar.Rule{Key: grammar.Start, Alternatives: []grammar.Production{grammar.P("<a>")}},
			grammar.Rule{Key: "<a>", Alternatives: []grammar.Production{grammar.P("x")}},
		)
		f, err := NewTerminalGuided(g, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		f.c.rules[f.c.handles["<a>"]] = nil
		if _, err := f.Fuzz(); !errors.Is(err, ErrNoCandidate) {
			t.Errorf("Fuzz() = %v, want ErrNoCandidate", err)
		}
	})
}

func TestCompileCosts(t *testing.T) {
	c, err := compile(titleGrammar(), nil)
	if err != nil {
		t.Fatal(err)
	}
	costs := map[grammar.Symbol]int{
		grammar.Start: 4,
		"<title>":     3,
		"<topic>":     1,
		"<prefix>":    1,
		"<subtopic>":  1,
	}
	for sym, want := range costs {
		if got := c.cost[c.handles[sym]]; got != want {
			t.Errorf("cost(%s) = %d, want %d", sym, got, want)
		}
	}
	if got := c.cheapest[c.handles["<topic>"]]; got != 0 {
		t.Errorf("cheapest(<topic>) = %d, want 0", got)
	}
	if c.depthBound != 5 {
		t.Errorf("depthBound = %d, want 5", c.depthBound)
	}
}

func TestRegistry(t *testing.T) {
	want := []string{StrategyCode, StrategyCoverage, StrategyRandom, StrategySymbol, StrategyTerminal}
	if got := Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	if _, err := Lookup("exhaustive"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("Lookup() = %v, want ErrUnknownStrategy", err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("MustLookup() of an unknown strategy should panic")
			}
		}()
		MustLookup("exhaustive")
	}()

	f, err := MustLookup(StrategyCode)(appGrammar(), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if f.Unit() != UnitNonTerminal {
		t.Errorf("Unit() = %v, want %v", f.Unit(), UnitNonTerminal)
	}
	for _, s := range mustFuzz(t, f) {
		if !s.IsActionCall() {
			t.Errorf("code strategy emitted %q, want action calls only", s)
		}
	}
}
