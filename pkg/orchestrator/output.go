package orchestrator

import (
	"bufio"
	"io"
	"path/filepath"
	"strings"

	"github.com/blockberries/tracegram/internal/textutil"
	"github.com/blockberries/tracegram/pkg/fuzzer"
	"github.com/blockberries/tracegram/pkg/grammar"
)

// InputFileName returns the name of the file holding the inputs generated
// for seed.
func InputFileName(strategy string, seed int) string {
	prefix := "inputs"
	if strategy == fuzzer.StrategyCoverage {
		prefix = "coverageInputs"
	}
	return prefix + textutil.Pad(seed, 2) + ".txt"
}

// TargetFileName returns the path, relative to the output directory, of the
// inputs generated for the target with the given index and seed.
func TargetFileName(index, seed int) string {
	return filepath.Join("symbol_"+textutil.Pad(index, 3), "symbolInputs"+textutil.Pad(seed, 3)+".txt")
}

// isReplayable reports whether input holds at least one action invocation.
func isReplayable(input []grammar.Symbol) bool {
	for _, s := range input {
		if s.IsActionCall() {
			return true
		}
	}
	return false
}

// FormatInput renders one generated input as a line: the action
// invocations joined by a single space.
func FormatInput(input []grammar.Symbol) string {
	parts := make([]string, 0, len(input))
	for _, s := range input {
		if s.IsActionCall() {
			parts = append(parts, string(s))
		}
	}
	return strings.Join(parts, " ")
}

// WriteInputs writes one line per input.
func WriteInputs(w io.Writer, inputs [][]grammar.Symbol) error {
	bw := bufio.NewWriter(w)
	for _, input := range inputs {
		if _, err := bw.WriteString(FormatInput(input) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
