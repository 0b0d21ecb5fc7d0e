package mining

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blockberries/tracegram/pkg/grammar"
)

// Output file names.
const (
	GrammarFile             = "grammar.json"
	GrammarCoverageFile     = "grammarWithCoverage.json"
	TranslationFile         = "translationTable.txt"
	TranslationCoverageFile = "translationTableWithCoverage.txt"
	MergedGrammarFile       = "grammarMerged.json"
)

// WriteExtraction writes a mined grammar, with and without coverage, and its
// translation table into dir.
func WriteExtraction(dir string, g *grammar.Grammar, mapping map[string]string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var table bytes.Buffer
	if err := WriteTranslationTable(&table, mapping); err != nil {
		return err
	}

	files := []struct {
		name string
		data []byte
	}{
		{GrammarFile, grammar.EncodeJSON(g, false)},
		{GrammarCoverageFile, grammar.EncodeJSON(g, true)},
		{TranslationFile, table.Bytes()},
		{TranslationCoverageFile, table.Bytes()},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.name), f.data, 0o644); err != nil {
			return fmt.Errorf("mining: writing %s: %w", f.name, err)
		}
	}
	return nil
}

// WriteMerged writes a merged grammar into dir.
func WriteMerged(dir string, g *grammar.Grammar) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return grammar.WriteToFile(filepath.Join(dir, MergedGrammarFile), g, false)
}
