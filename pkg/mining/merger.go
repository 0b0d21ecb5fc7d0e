package mining

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/blockberries/tracegram/pkg/grammar"
)

// MergeReport holds diagnostic statistics of a merge.
type MergeReport struct {
	Inputs []grammar.Statistics
	Merged grammar.Statistics
}

func (r MergeReport) String() string {
	var sb strings.Builder
	sb.WriteString("Original grammars:\n")
	for i, s := range r.Inputs {
		fmt.Fprintf(&sb, "Grammar %d\n%s\n", i, s)
	}
	sb.WriteString("\nMerged grammar:\n")
	sb.WriteString(r.Merged.String())
	return sb.String()
}

// Merger unions grammars mined from different exploration runs.
type Merger struct {
	log logrus.FieldLogger
}

// NewMerger creates a merger logging to log, or to the standard logger when
// log is nil.
func NewMerger(log logrus.FieldLogger) *Merger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Merger{log: log}
}

// Merge returns the union of grammars. Structurally equal alternatives of a
// key are kept once with their coverage sets unioned. Keys keep the order in
// which they are first seen. The inputs are not modified.
func (m *Merger) Merge(grammars ...*grammar.Grammar) (*grammar.Grammar, MergeReport) {
	merged := grammar.NewEmpty()
	merged.SetLogger(m.log)

	report := MergeReport{Inputs: make([]grammar.Statistics, 0, len(grammars))}
	for i, g := range grammars {
		for _, rule := range g.Rules() {
			merged.Define(rule.Key, rule.Alternatives...)
		}
		stats := g.Stats()
		report.Inputs = append(report.Inputs, stats)
		m.log.WithFields(logrus.Fields{
			"grammar": i,
			"rules":   stats.Rules,
		}).Debug("merged grammar")
	}
	report.Merged = merged.Stats()
	return merged, report
}
