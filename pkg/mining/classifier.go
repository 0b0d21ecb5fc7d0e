package mining

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// permissionDialogMarker identifies system permission dialogs, which count
// as part of the application under test.
const permissionDialogMarker = "com.android.packageinstaller:id"

// StateClassifier decides which recorded states belong to the application
// under test.
type StateClassifier interface {
	// IsHomeScreen reports whether the raw state is a home/launcher screen.
	IsHomeScreen(state string) (bool, error)

	// BelongsToApp reports whether the raw state is part of the application
	// surface. Home screens never belong to the application.
	BelongsToApp(state string) (bool, error)
}

// AllInApp classifies every state as an application state.
type AllInApp struct{}

// IsHomeScreen always returns false.
func (AllInApp) IsHomeScreen(string) (bool, error) { return false, nil }

// BelongsToApp always returns true.
func (AllInApp) BelongsToApp(string) (bool, error) { return true, nil }

// DirClassifier classifies states from the per-state files of an
// exploration model: "<state>_HS.csv" marks a home screen and "<state>.csv"
// lists the widgets of the state.
type DirClassifier struct {
	dir        string
	appPackage string

	mu    sync.Mutex
	cache map[string]bool
}

// NewDirClassifier creates a classifier over a states directory. When
// appPackage is empty, the name of the directory containing statesDir is
// used, matching the model layout "<package>/states".
func NewDirClassifier(statesDir, appPackage string) *DirClassifier {
	if appPackage == "" {
		appPackage = filepath.Base(filepath.Dir(statesDir))
	}
	return &DirClassifier{
		dir:        statesDir,
		appPackage: appPackage,
		cache:      make(map[string]bool),
	}
}

// IsHomeScreen reports whether "<state>_HS.csv" exists.
func (c *DirClassifier) IsHomeScreen(state string) (bool, error) {
	_, err := os.Stat(filepath.Join(c.dir, state+"_HS.csv"))
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}

// BelongsToApp reports whether a line of "<state>.csv" mentions the
// application package or a permission dialog.
func (c *DirClassifier) BelongsToApp(state string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.cache[state]; ok {
		return v, nil
	}

	home, err := c.IsHomeScreen(state)
	if err != nil {
		return false, err
	}
	if home {
		c.cache[state] = false
		return false, nil
	}

	content, err := os.ReadFile(filepath.Join(c.dir, state+".csv"))
	if err != nil {
		return false, fmt.Errorf("%w: state %s: %v", ErrMissingInput, state, err)
	}
	belongs := bytes.Contains(content, []byte(c.appPackage)) ||
		bytes.Contains(content, []byte(permissionDialogMarker))
	c.cache[state] = belongs
	return belongs, nil
}

// FindStatesDir returns the first directory named "states" below modelDir.
func FindStatesDir(modelDir string) (string, error) {
	path, err := findInModel(modelDir, func(_ string, d fs.DirEntry) bool {
		return d.IsDir() && d.Name() == "states"
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingInput, err)
	}
	if path == "" {
		return "", fmt.Errorf("%w: unable to find state directory in %s", ErrMissingInput, modelDir)
	}
	return path, nil
}
