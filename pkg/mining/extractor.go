// Package mining extracts context-free grammars from GUI exploration traces
// and merges grammars mined from different runs.
package mining

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/blockberries/tracegram/internal/textutil"
	"github.com/blockberries/tracegram/pkg/grammar"
)

// launchQueueOffset is the distance between a launch action and the end of
// its action queue (enable wifi, close keyboard, end queue), whose coverage
// measurement covers the launch.
const launchQueueOffset = 3

// Options configures an Extractor.
type Options struct {
	// TranslateNames replaces raw state and widget ids by short sNN/wNN
	// names.
	TranslateNames bool

	// Classifier decides which states belong to the application. Defaults
	// to AllInApp.
	Classifier StateClassifier

	// Coverage tags productions with the code locations of their action.
	// Nil disables coverage.
	Coverage CoverageIndex

	// Logger receives warnings about skipped records.
	Logger logrus.FieldLogger
}

// DefaultOptions returns the default extraction options.
func DefaultOptions() Options {
	return Options{
		TranslateNames: true,
		Classifier:     AllInApp{},
		Logger:         logrus.StandardLogger(),
	}
}

// Extractor mines a grammar from one trace. An Extractor mines exactly once.
type Extractor struct {
	opts     Options
	log      logrus.FieldLogger
	grammar  *grammar.Grammar
	mapping  map[string]string // raw uuid -> short id
	counters map[string]int    // prefix -> ids handed out
	mined    bool
	err      error
}

// NewExtractor creates an extractor.
func NewExtractor(opts Options) *Extractor {
	if opts.Classifier == nil {
		opts.Classifier = AllInApp{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	g := grammar.New()
	g.SetLogger(opts.Logger)
	return &Extractor{
		opts:     opts,
		log:      opts.Logger,
		grammar:  g,
		mapping:  make(map[string]string),
		counters: make(map[string]int),
	}
}

// uuid returns the state or widget identity of a raw id ("uuid_suffix").
func uuid(raw string) string {
	id, _, _ := strings.Cut(raw, "_")
	return id
}

// shortID returns the symbol id of a raw id, assigning the next sNN/wNN
// name on first sight. An empty raw id has no symbol.
func (e *Extractor) shortID(raw, prefix string) string {
	id := uuid(raw)
	if id == "" {
		return ""
	}
	if short, ok := e.mapping[id]; ok {
		return short
	}
	short := id
	if e.opts.TranslateNames {
		short = prefix + textutil.Pad(e.counters[prefix], 2)
		e.counters[prefix]++
	}
	e.mapping[id] = short
	return short
}

func (e *Extractor) hasSymbol(raw string) bool {
	_, ok := e.mapping[uuid(raw)]
	return ok
}

func (e *Extractor) coverage(actionIndex int) []string {
	if e.opts.Coverage == nil {
		return nil
	}
	return e.opts.Coverage.For(actionIndex)
}

// resultSymbol returns the non-terminal a transition leads to: a state for
// application screens, epsilon for home screens and foreign screens.
func (e *Extractor) resultSymbol(rec Record) (grammar.Symbol, error) {
	var state string
	if rec.IsLaunch() {
		state = e.shortID(rec.Result, "s")
	} else {
		belongs, err := e.opts.Classifier.BelongsToApp(rec.Result)
		if err != nil {
			return "", err
		}
		if belongs {
			state = e.shortID(rec.Result, "s")
		}
	}
	if state == "" {
		return grammar.Epsilon, nil
	}
	home, err := e.opts.Classifier.IsHomeScreen(rec.Result)
	if err != nil {
		return "", err
	}
	if home {
		return grammar.Epsilon, nil
	}
	return grammar.NonTerminal(state), nil
}

// addTransition adds the productions of one record whose source state is
// source.
func (e *Extractor) addTransition(rec Record, source string) error {
	sourceID := e.shortID(source, "s")
	sourceSymbol := grammar.NonTerminal(sourceID)

	result, err := e.resultSymbol(rec)
	if err != nil {
		return err
	}

	widget := rec.Widget
	if widget != "null" {
		widget = e.shortID(widget, "w")
	}

	switch rec.Action {
	case grammar.ActionLaunch:
		e.grammar.AddRule(grammar.Start, []grammar.Symbol{result}, e.coverage(rec.Index+launchQueueOffset)...)

	case grammar.ActionBack:
		call := fmt.Sprintf("%s(%s)", rec.Action, sourceID)
		action := grammar.NonTerminal(call)
		e.grammar.AddRule(sourceSymbol, []grammar.Symbol{grammar.Symbol(call), action}, e.coverage(rec.Index)...)
		e.grammar.AddRule(action, []grammar.Symbol{result})

	case grammar.ActionTerminate:
		action := grammar.NonTerminal(fmt.Sprintf("%s(%s)", rec.Action, sourceID))
		e.grammar.AddRule(sourceSymbol, []grammar.Symbol{action})
		e.grammar.AddRule(action, []grammar.Symbol{grammar.Empty})

	default:
		call := fmt.Sprintf("%s(%s%s)", rec.Action, widget, rec.Payload)
		action := grammar.NonTerminal(fmt.Sprintf("%s(%s.%s%s)", rec.Action, sourceID, widget, rec.Payload))
		e.grammar.AddRule(sourceSymbol, []grammar.Symbol{grammar.Symbol(call), action}, e.coverage(rec.Index)...)
		e.grammar.AddRule(action, []grammar.Symbol{result})
	}
	return nil
}

// Extract mines the grammar of a trace, runs the cleanup pipeline and checks
// the result. Any failure abandons the extraction.
func (e *Extractor) Extract(records []Record) (*grammar.Grammar, error) {
	if e.mined {
		return nil, ErrAlreadyMined
	}
	e.mined = true

	g, err := e.extract(records)
	e.err = err
	return g, err
}

func (e *Extractor) extract(records []Record) (*grammar.Grammar, error) {
	previous := ""
	for _, rec := range records {
		if !rec.IsLaunch() && !rec.IsBack() {
			belongs, err := e.opts.Classifier.BelongsToApp(rec.Source)
			if err != nil {
				return nil, &TraceError{Line: rec.Line, Message: "classifying source state", Cause: err}
			}
			if !belongs {
				e.log.WithField("state", rec.Source).Warn("state does not belong to the app, ignoring it")
				continue
			}
		}

		// Pressed back right after the start.
		if rec.IsBack() && previous == "" {
			launch := Record{Action: grammar.ActionLaunch, Result: rec.Source, Index: rec.Index, Line: rec.Line}
			if err := e.addTransition(launch, ""); err != nil {
				return nil, &TraceError{Line: rec.Line, Message: "synthesizing launch", Cause: err}
			}
		}

		// A state already seen is used as is, otherwise continue from the
		// previous source.
		source := previous
		if e.hasSymbol(rec.Source) {
			source = rec.Source
		}
		if !rec.IsLaunch() && source == "" {
			return nil, &TraceError{
				Line:    rec.Line,
				Message: fmt.Sprintf("no source state identified for %s on %s", rec.Action, rec.Source),
				Cause:   ErrNoSource,
			}
		}

		if err := e.addTransition(rec, source); err != nil {
			return nil, &TraceError{Line: rec.Line, Message: rec.Action, Cause: err}
		}
		previous = source
	}

	if err := e.grammar.Cleanup(); err != nil {
		return nil, fmt.Errorf("mining: cleanup: %w", err)
	}
	if err := e.grammar.CheckValid(); err != nil {
		return nil, fmt.Errorf("mining: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"keys":    e.grammar.Len(),
		"symbols": len(e.mapping),
	}).Debug("grammar extracted")
	return e.grammar, nil
}

// ExtractDir reads the trace of a model directory and mines it.
func (e *Extractor) ExtractDir(modelDir string) (*grammar.Grammar, error) {
	if e.mined {
		return nil, ErrAlreadyMined
	}
	records, err := LoadTrace(modelDir)
	if err != nil {
		return nil, err
	}
	return e.Extract(records)
}

// Grammar returns the mined grammar, or the error that stopped extraction.
func (e *Extractor) Grammar() (*grammar.Grammar, error) {
	if !e.mined {
		return nil, ErrNotMined
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.grammar, nil
}

// Mapping returns the symbol table of the mined grammar: short id to raw
// id.
func (e *Extractor) Mapping() (map[string]string, error) {
	if !e.mined {
		return nil, ErrNotMined
	}
	result := make(map[string]string, len(e.mapping))
	for raw, short := range e.mapping {
		result[short] = raw
	}
	return result, nil
}
