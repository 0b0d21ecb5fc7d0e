package fuzzer

import (
	"fmt"
	"sort"

	"github.com/blockberries/tracegram/pkg/grammar"
)

// Factory creates a fuzzer for a grammar.
type Factory func(g *grammar.Grammar, opts Options) (*Fuzzer, error)

// Strategy names registered by default.
const (
	StrategyRandom   = "random"
	StrategyTerminal = "terminal"
	StrategyCode     = "code"
	StrategyCoverage = "coverage"
	StrategySymbol   = "symbol"
)

// registry holds registered factories by strategy name.
var registry = make(map[string]Factory)

func init() {
	Register(StrategyRandom, NewRandom)
	Register(StrategyTerminal, NewTerminalGuided)
	Register(StrategyCode, NewCodeGuided)
	Register(StrategyCoverage, NewCoverageGuided)
	Register(StrategySymbol, NewSymbolGuided)
}

// Register registers a factory under name, replacing any previous one.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return factory, nil
}

// MustLookup is like Lookup but panics on error.
func MustLookup(name string) Factory {
	factory, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return factory
}

// Names returns all registered strategy names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
