package mining

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/tools/txtar"

	"github.com/blockberries/tracegram/pkg/grammar"
)

// extractArchive writes the files of a txtar archive below a temporary
// directory and returns it along with the archive.
func extractArchive(t *testing.T, name string) (string, *txtar.Archive) {
	t.Helper()
	ar, err := txtar.ParseFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("ParseFile(%s) = %v", name, err)
	}
	dir := t.TempDir()
	for _, f := range ar.Files {
		path := filepath.Join(dir, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir, ar
}

func archiveFile(t *testing.T, ar *txtar.Archive, name string) string {
	t.Helper()
	for _, f := range ar.Files {
		if f.Name == name {
			return string(f.Data)
		}
	}
	t.Fatalf("archive has no file %s", name)
	return ""
}

func extractFixture(t *testing.T, name string, opts Options, withCoverage bool) (*Extractor, *grammar.Grammar, *txtar.Archive) {
	t.Helper()
	dir, ar := extractArchive(t, name)
	modelDir := filepath.Join(dir, "model")

	statesDir, err := FindStatesDir(modelDir)
	if err != nil {
		t.Fatalf("FindStatesDir() = %v", err)
	}
	opts.Classifier = NewDirClassifier(statesDir, "")
	if withCoverage {
		index, err := LoadCoverageDir(filepath.Join(dir, "coverage"))
		if err != nil {
			t.Fatalf("LoadCoverageDir() = %v", err)
		}
		opts.Coverage = index
	}

	e := NewExtractor(opts)
	g, err := e.ExtractDir(modelDir)
	if err != nil {
		t.Fatalf("ExtractDir() = %v", err)
	}
	return e, g, ar
}

func TestExtractFixtures(t *testing.T) {
	tests := []struct {
		archive   string
		translate bool
		coverage  bool
	}{
		{"explore.txtar", true, true},
		{"permission.txtar", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.archive, func(t *testing.T) {
			opts := DefaultOptions()
			opts.TranslateNames = tt.translate
			e, g, ar := extractFixture(t, tt.archive, opts, tt.coverage)

			if got, want := grammar.FormatGrammar(g, true), archiveFile(t, ar, "want/grammar.txt"); got != want {
				t.Errorf("grammar =\n%s\nwant:\n%s", got, want)
			}

			mapping, err := e.Mapping()
			if err != nil {
				t.Fatalf("Mapping() = %v", err)
			}
			var table bytes.Buffer
			if err := WriteTranslationTable(&table, mapping); err != nil {
				t.Fatal(err)
			}
			if got, want := table.String(), archiveFile(t, ar, "want/translationTable.txt"); got != want {
				t.Errorf("translation table =\n%s\nwant:\n%s", got, want)
			}

			if err := g.CheckValid(); err != nil {
				t.Errorf("extracted grammar is invalid: %v", err)
			}
		})
	}
}

func TestExtractorMinesOnce(t *testing.T) {
	e := NewExtractor(DefaultOptions())
	if _, err := e.Grammar(); !errors.Is(err, ErrNotMined) {
		t.Errorf("Grammar() before extraction = %v, want ErrNotMined", err)
	}
	if _, err := e.Mapping(); !errors.Is(err, ErrNotMined) {
		t.Errorf("Mapping() before extraction = %v, want ErrNotMined", err)
	}

	records := []Record{{Source: "init_0", Action: grammar.ActionLaunch, Widget: "null", Result: "aaaa_1"}}
	if _, err := e.Extract(records); err != nil {
		t.Fatalf("Extract() = %v", err)
	}
	_, err := e.Extract(records)
	if !errors.Is(err, ErrAlreadyMined) {
		t.Fatalf("second Extract() = %v, want ErrAlreadyMined", err)
	}
	if !IsFatal(err) {
		t.Error("re-extraction must be fatal")
	}
	if _, err := e.ExtractDir(t.TempDir()); !errors.Is(err, ErrAlreadyMined) {
		t.Errorf("ExtractDir() after Extract = %v, want ErrAlreadyMined", err)
	}
}

func TestExtractNoSource(t *testing.T) {
	e := NewExtractor(DefaultOptions())
	records := []Record{{Source: "aaaa_1", Action: "ClickEvent", Widget: "w_1", Result: "bbbb_1", Line: 2}}

	_, err := e.Extract(records)
	if !errors.Is(err, ErrNoSource) {
		t.Fatalf("Extract() = %v, want ErrNoSource", err)
	}
	var traceErr *TraceError
	if !errors.As(err, &traceErr) || traceErr.Line != 2 {
		t.Errorf("expected TraceError on line 2, got %v", err)
	}
	if !IsFatal(err) {
		t.Error("missing source must be fatal")
	}
	if _, err := e.Grammar(); !errors.Is(err, ErrNoSource) {
		t.Errorf("Grammar() after failed extraction = %v", err)
	}
}

func TestExtractContinuesFromPreviousSource(t *testing.T) {
	e := NewExtractor(DefaultOptions())
	records := []Record{
		{Source: "init_0", Action: grammar.ActionLaunch, Widget: "null", Result: "aaaa_1"},
		{Source: "aaaa_1", Action: "ClickEvent", Widget: "btn_1", Result: "bbbb_1", Index: 1},
		{Source: "cccc_1", Action: "ClickEvent", Widget: "other_1", Result: "bbbb_1", Index: 2},
		{Source: "bbbb_1", Action: grammar.ActionBack, Widget: "null", Result: "aaaa_1", Index: 3},
	}

	g, err := e.Extract(records)
	if err != nil {
		t.Fatalf("Extract() = %v", err)
	}
	if _, ok := containsAlternative(g.Get("<s00>"), grammar.P("ClickEvent(w01)", "<s01>")); !ok {
		t.Errorf("<s00> alternatives = %v", g.Get("<s00>"))
	}

	mapping, _ := e.Mapping()
	for _, raw := range mapping {
		if raw == "cccc" {
			t.Error("an unresolved source must not receive a symbol")
		}
	}
}

type foreignClassifier map[string]bool

func (c foreignClassifier) IsHomeScreen(string) (bool, error) { return false, nil }

func (c foreignClassifier) BelongsToApp(state string) (bool, error) { return !c[state], nil }

func TestExtractSkipsForeignStates(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	opts := DefaultOptions()
	opts.Classifier = foreignClassifier{"ffff_1": true}
	opts.Logger = logger

	e := NewExtractor(opts)
	records := []Record{
		{Source: "init_0", Action: grammar.ActionLaunch, Widget: "null", Result: "aaaa_1"},
		{Source: "aaaa_1", Action: "ClickEvent", Widget: "share_1", Result: "ffff_1", Index: 1},
		{Source: "ffff_1", Action: "ClickEvent", Widget: "send_1", Result: "aaaa_1", Index: 2},
	}

	g, err := e.Extract(records)
	if err != nil {
		t.Fatalf("Extract() = %v", err)
	}
	if _, ok := containsAlternative(g.Get("<s00>"), grammar.P("ClickEvent(w00)", "<ClickEvent(s00.w00)>")); !ok {
		t.Errorf("<s00> alternatives = %v", g.Get("<s00>"))
	}
	if alts := g.Get("<ClickEvent(s00.w00)>"); len(alts) != 1 || !alts[0].IsEpsilon() {
		t.Errorf("foreign result should collapse to epsilon, got %v", alts)
	}

	mapping, _ := e.Mapping()
	for short, raw := range mapping {
		if raw == "ffff" || raw == "send" {
			t.Errorf("foreign state produced symbol %s -> %s", short, raw)
		}
	}

	warned := false
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Data["state"] == "ffff_1" {
			warned = true
		}
	}
	if !warned {
		t.Error("expected a warning for the skipped record")
	}
}

func TestExtractTerminate(t *testing.T) {
	e := NewExtractor(DefaultOptions())
	records := []Record{
		{Source: "init_0", Action: grammar.ActionLaunch, Widget: "null", Result: "aaaa_1"},
		{Source: "aaaa_1", Action: grammar.ActionTerminate, Widget: "null", Result: "aaaa_1", Index: 1},
	}

	g, err := e.Extract(records)
	if err != nil {
		t.Fatalf("Extract() = %v", err)
	}
	for _, key := range g.Keys() {
		if key.IsTerminate() {
			t.Errorf("terminate key %s survived", key)
		}
	}
	if alts := g.Get("<s00>"); len(alts) != 1 || !alts[0].IsEpsilon() {
		t.Errorf("<s00> alternatives = %v", alts)
	}
}

func TestExtractMissingTrace(t *testing.T) {
	e := NewExtractor(DefaultOptions())
	_, err := e.ExtractDir(t.TempDir())
	if !errors.Is(err, ErrMissingInput) {
		t.Fatalf("ExtractDir() = %v, want ErrMissingInput", err)
	}
	if !strings.Contains(err.Error(), "trace") {
		t.Errorf("error should mention the trace: %v", err)
	}
}

func containsAlternative(alts []grammar.Production, want grammar.Production) (grammar.Production, bool) {
	for _, p := range alts {
		if p.Equal(want) {
			return p, true
		}
	}
	return grammar.Production{}, false
}
