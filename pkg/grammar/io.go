package grammar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Writer renders grammars in a deterministic form: keys sorted
// lexicographically and each key's alternatives sorted.
type Writer struct {
	indent       string
	withCoverage bool
}

// NewWriter creates a new grammar writer.
func NewWriter() *Writer {
	return &Writer{
		indent: "  ",
	}
}

// SetIndent sets the indentation string used by WriteJSON (default is two
// spaces).
func (w *Writer) SetIndent(indent string) {
	w.indent = indent
}

// SetCoverage selects the "with coverage" variant of the output.
func (w *Writer) SetCoverage(withCoverage bool) {
	w.withCoverage = withCoverage
}

// sortedAlternatives returns a sorted copy of the alternatives of key.
func sortedAlternatives(g *Grammar, key Symbol) []Production {
	alts := make([]Production, len(g.Get(key)))
	copy(alts, g.Get(key))
	SortProductions(alts)
	return alts
}

// WriteText writes the human readable form, one key per line:
//
//	'<key>' : ['alt1', 'alt2']
func (w *Writer) WriteText(out io.Writer, g *Grammar) error {
	for _, key := range g.SortedKeys() {
		var parts []string
		for _, p := range sortedAlternatives(g, key) {
			part := "'" + p.String() + "'"
			if w.withCoverage && len(p.Coverage()) > 0 {
				part += " {" + strings.Join(p.Coverage().Sorted(), ", ") + "}"
			}
			parts = append(parts, part)
		}
		if _, err := fmt.Fprintf(out, "'%s' : [%s]\n", key, strings.Join(parts, ", ")); err != nil {
			return err
		}
	}
	return nil
}

type jsonAlternative struct {
	Expansion []string `json:"expansion"`
	Coverage  []string `json:"coverage"`
}

// WriteJSON writes the JSON object form. Each alternative is an array of
// symbol strings, or an object holding expansion and coverage when the
// coverage variant is selected.
func (w *Writer) WriteJSON(out io.Writer, g *Grammar) error {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, key := range g.SortedKeys() {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n" + w.indent)
		keyJSON, err := marshalJSON(string(key))
		if err != nil {
			return err
		}
		buf.Write(keyJSON)
		buf.WriteString(": [")
		for j, p := range sortedAlternatives(g, key) {
			if j > 0 {
				buf.WriteString(", ")
			}
			values := make([]string, p.Len())
			for k, s := range p.Values() {
				values[k] = string(s)
			}
			var altJSON []byte
			if w.withCoverage {
				altJSON, err = marshalJSON(jsonAlternative{Expansion: values, Coverage: p.Coverage().Sorted()})
			} else {
				altJSON, err = marshalJSON(values)
			}
			if err != nil {
				return err
			}
			buf.Write(altJSON)
		}
		buf.WriteString("]")
	}
	if g.Len() > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	_, err := out.Write(buf.Bytes())
	return err
}

// marshalJSON encodes v without escaping the non-terminal delimiters.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// FormatGrammar returns the text form of g.
func FormatGrammar(g *Grammar, withCoverage bool) string {
	var sb strings.Builder
	writer := NewWriter()
	writer.SetCoverage(withCoverage)
	_ = writer.WriteText(&sb, g) // Error can't happen with strings.Builder
	return sb.String()
}

// EncodeJSON returns the JSON form of g.
func EncodeJSON(g *Grammar, withCoverage bool) []byte {
	var buf bytes.Buffer
	writer := NewWriter()
	writer.SetCoverage(withCoverage)
	_ = writer.WriteJSON(&buf, g) // Error can't happen with bytes.Buffer
	return buf.Bytes()
}

// nonTerminalPattern splits plain-string alternatives into symbols.
var nonTerminalPattern = regexp.MustCompile(`<[^<> ]*>`)

// SplitExpansion splits a plain-string alternative such as
// "ClickEvent(w00)<s01>" into its symbols. An empty string yields the blank
// terminal.
func SplitExpansion(expansion string) []Symbol {
	var result []Symbol
	last := 0
	for _, loc := range nonTerminalPattern.FindAllStringIndex(expansion, -1) {
		if loc[0] > last {
			result = append(result, Symbol(expansion[last:loc[0]]))
		}
		result = append(result, Symbol(expansion[loc[0]:loc[1]]))
		last = loc[1]
	}
	if last < len(expansion) {
		result = append(result, Symbol(expansion[last:]))
	}
	if len(result) == 0 {
		result = []Symbol{Empty}
	}
	return result
}

// DecodeJSON parses the JSON object form. Alternatives may be arrays of
// symbols, objects with expansion and coverage, or plain strings whose
// non-terminals are recognized by their delimiters. Key order is preserved.
func DecodeJSON(data []byte) (*Grammar, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, newDecodeError("json", int(dec.InputOffset()), "reading object start", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, newDecodeError("json", int(dec.InputOffset()), "grammar must be a JSON object", nil)
	}

	g := NewEmpty()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, newDecodeError("json", int(dec.InputOffset()), "reading key", err)
		}
		key := Symbol(tok.(string))

		var raw []json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, newDecodeError("json", int(dec.InputOffset()),
				fmt.Sprintf("alternatives of %s", key), err)
		}

		g.Define(key)
		for _, elem := range raw {
			p, err := decodeAlternative(elem)
			if err != nil {
				return nil, newDecodeError("json", int(dec.InputOffset()),
					fmt.Sprintf("alternative of %s", key), err)
			}
			g.Define(key, p)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, newDecodeError("json", int(dec.InputOffset()), "reading object end", err)
	}
	return g, nil
}

func decodeAlternative(elem json.RawMessage) (Production, error) {
	trimmed := bytes.TrimSpace(elem)
	if len(trimmed) == 0 {
		return Production{}, fmt.Errorf("empty alternative")
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Production{}, err
		}
		return NewProduction(SplitExpansion(s)...), nil
	case '[':
		var values []string
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return Production{}, err
		}
		if len(values) == 0 {
			return Production{}, fmt.Errorf("alternative has no symbols")
		}
		return P(values...), nil
	case '{':
		var alt jsonAlternative
		if err := json.Unmarshal(trimmed, &alt); err != nil {
			return Production{}, err
		}
		if len(alt.Expansion) == 0 {
			return Production{}, fmt.Errorf("alternative has no symbols")
		}
		return P(alt.Expansion...).WithCoverage(alt.Coverage...), nil
	default:
		return Production{}, fmt.Errorf("unexpected alternative %s", string(trimmed))
	}
}

// LoadFile reads a grammar stored as JSON (.json, .txt) or in the binary
// form (.bin, .pb).
func LoadFile(path string) (*Grammar, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".bin", ".pb":
		return UnmarshalBinary(content)
	default:
		return DecodeJSON(content)
	}
}

// WriteToFile writes g to path; the format follows the extension as in
// LoadFile.
func WriteToFile(path string, g *Grammar, withCoverage bool) error {
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bin", ".pb":
		data = MarshalBinary(g)
	default:
		data = EncodeJSON(g, withCoverage)
	}
	return os.WriteFile(path, data, 0o644)
}
