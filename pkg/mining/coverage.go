package mining

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// statementsMarker identifies per-action statement coverage files.
const statementsMarker = "-statements-"

// CoverageIndex maps an action index to the code locations reached by that
// action.
type CoverageIndex map[int][]string

// For returns the code locations of an action, or nil.
func (c CoverageIndex) For(actionIndex int) []string {
	return c[actionIndex]
}

// Add records code locations for an action, keeping ids unique and sorted.
func (c CoverageIndex) Add(actionIndex int, ids ...string) {
	seen := make(map[string]bool, len(c[actionIndex])+len(ids))
	merged := make([]string, 0, len(c[actionIndex])+len(ids))
	for _, id := range append(c[actionIndex], ids...) {
		if !seen[id] {
			seen[id] = true
			merged = append(merged, id)
		}
	}
	sort.Strings(merged)
	c[actionIndex] = merged
}

// ParseCoverage reads a statement coverage file body: one reached location
// per line, the id being the field before the first ';'.
func ParseCoverage(r io.Reader) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, _, _ := strings.Cut(line, ";")
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, scanner.Err()
}

// CoverageFileIndex returns the action index encoded in a coverage file
// name such as "app-statements-12".
func CoverageFileIndex(name string) (int, bool) {
	if !strings.Contains(name, statementsMarker) {
		return 0, false
	}
	suffix := name[strings.LastIndex(name, "-")+1:]
	index, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return index, true
}

// LoadCoverageDir builds the coverage index from the statement files of a
// coverage directory. Files not named after an action are ignored.
func LoadCoverageDir(dir string) (CoverageIndex, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: coverage dir %s: %v", ErrMissingInput, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: coverage dir %s is not a directory", ErrMissingInput, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingInput, err)
	}

	index := make(CoverageIndex)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		actionIndex, ok := CoverageFileIndex(entry.Name())
		if !ok {
			continue
		}
		f, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMissingInput, err)
		}
		ids, err := ParseCoverage(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("mining: reading %s: %w", entry.Name(), err)
		}
		index.Add(actionIndex, ids...)
	}
	return index, nil
}
