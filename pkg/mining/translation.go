package mining

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// WriteTranslationTable writes the symbol table as "shortId;rawId" lines
// sorted by short id.
func WriteTranslationTable(w io.Writer, mapping map[string]string) error {
	shorts := make([]string, 0, len(mapping))
	for short := range mapping {
		shorts = append(shorts, short)
	}
	sort.Strings(shorts)

	bw := bufio.NewWriter(w)
	for _, short := range shorts {
		if _, err := fmt.Fprintf(bw, "%s;%s\n", short, mapping[short]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadTranslationTable parses a table written by WriteTranslationTable.
func ReadTranslationTable(r io.Reader) (map[string]string, error) {
	mapping := make(map[string]string)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		short, raw, ok := strings.Cut(line, ";")
		if !ok || short == "" {
			return nil, &TraceError{Line: lineNo, Message: fmt.Sprintf("malformed translation entry %q", line)}
		}
		mapping[short] = raw
	}
	return mapping, scanner.Err()
}
