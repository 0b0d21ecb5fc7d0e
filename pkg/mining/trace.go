package mining

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/blockberries/tracegram/internal/textutil"
	"github.com/blockberries/tracegram/pkg/grammar"
)

// Actions with a dedicated payload encoding.
const (
	actionTextInsert = "TextInsert"
	actionSwipe      = "Swipe"
)

// bookkeeping lists the framework actions that never become grammar content.
var bookkeeping = map[string]bool{
	"ActionQueue-START": true,
	"ActionQueue-End":   true,
	"EnableWifi":        true,
	"CloseKeyboard":     true,
	"Back":              true,
	"FetchGUI":          true,
}

// Record is one transition of an exploration trace.
type Record struct {
	// Source and Result are the raw state ids ("uuid_suffix").
	Source string
	Result string

	// Action is the action name, e.g. "ClickEvent" or "LaunchApp".
	Action string

	// Widget is the raw widget id, or "null".
	Widget string

	// Payload is the textual data embedded in the action symbol, already
	// prefixed with ',' (empty for most actions).
	Payload string

	// Index is the position of the action in the exploration, used to
	// correlate coverage.
	Index int

	// Line is the 1-based line number of the record in its trace.
	Line int
}

// IsLaunch reports whether the record launches the application.
func (r Record) IsLaunch() bool {
	return r.Action == grammar.ActionLaunch
}

// IsBack reports whether the record presses the back button.
func (r Record) IsBack() bool {
	return r.Action == grammar.ActionBack
}

// IsTerminate reports whether the record terminates the exploration.
func (r Record) IsTerminate() bool {
	return r.Action == grammar.ActionTerminate
}

// IsBookkeeping reports whether an action is a framework marker that is
// dropped before mining.
func IsBookkeeping(action, widget string) bool {
	if bookkeeping[action] {
		return true
	}
	return action == "LongClickEvent" && widget == "null"
}

// ParseRecord parses one semicolon-delimited trace line:
//
//	source;action;widget;result[;...][;payload];index[;screenshot]
//
// The action index is the last field, or the one before it when the last
// field is not an integer.
func ParseRecord(line string, lineNo int) (Record, error) {
	data := strings.Split(line, ";")
	if len(data) < 5 {
		return Record{}, &TraceError{
			Line:    lineNo,
			Message: fmt.Sprintf("expected at least 5 fields, got %d", len(data)),
		}
	}

	indexPos := len(data) - 1
	index, err := strconv.Atoi(strings.TrimSpace(data[indexPos]))
	if err != nil {
		indexPos--
		index, err = strconv.Atoi(strings.TrimSpace(data[indexPos]))
		if err != nil {
			return Record{}, &TraceError{Line: lineNo, Message: "no action index", Cause: err}
		}
	}

	rec := Record{
		Source: data[0],
		Action: data[1],
		Widget: data[2],
		Result: data[3],
		Index:  index,
		Line:   lineNo,
	}

	switch rec.Action {
	case actionTextInsert, actionSwipe:
		if indexPos-1 < 4 {
			return Record{}, &TraceError{
				Line:    lineNo,
				Message: fmt.Sprintf("%s without payload", rec.Action),
			}
		}
		payload := textutil.NormalizePayload(data[indexPos-1])
		if rec.Action == actionSwipe {
			payload = strings.ReplaceAll(payload, ",", ";")
			payload = strings.ReplaceAll(payload, " TO ", "TO")
		}
		rec.Payload = "," + payload
	}
	return rec, nil
}

// ReadTrace reads a trace file body. The first line is a header and is
// skipped, as are blank lines and bookkeeping actions.
func ReadTrace(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var records []Record
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if lineNo == 1 || strings.TrimSpace(line) == "" {
			continue
		}
		if fields := strings.SplitN(line, ";", 4); len(fields) >= 3 && IsBookkeeping(fields[1], fields[2]) {
			continue
		}
		rec, err := ParseRecord(line, lineNo)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mining: reading trace: %w", err)
	}
	return records, nil
}

// maxSearchDepth bounds the directory walks looking for model files.
const maxSearchDepth = 5

// findInModel returns the first path below root, in lexical order and at most
// maxSearchDepth levels deep, accepted by match.
func findInModel(root string, match func(path string, d fs.DirEntry) bool) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel != "." && strings.Count(rel, string(filepath.Separator))+1 > maxSearchDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path != root && match(path, d) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return found, nil
}

// FindTraceFile returns the first "*trace*.csv" file below modelDir.
func FindTraceFile(modelDir string) (string, error) {
	path, err := findInModel(modelDir, func(path string, d fs.DirEntry) bool {
		name := d.Name()
		return !d.IsDir() && strings.Contains(name, "trace") && strings.HasSuffix(name, ".csv")
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingInput, err)
	}
	if path == "" {
		return "", fmt.Errorf("%w: unable to find trace file in %s", ErrMissingInput, modelDir)
	}
	return path, nil
}

// LoadTrace finds and reads the trace file of a model directory.
func LoadTrace(modelDir string) ([]Record, error) {
	path, err := FindTraceFile(modelDir)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingInput, err)
	}
	defer f.Close()
	return ReadTrace(f)
}
