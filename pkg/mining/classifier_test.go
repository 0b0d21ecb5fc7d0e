package mining

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeStates(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "org.example.app", "states")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestDirClassifier(t *testing.T) {
	dir := writeStates(t, map[string]string{
		"app_1.csv":     "org.example.app:id/list;Click\n",
		"dialog_1.csv":  "com.android.packageinstaller:id/permission_allow_button\n",
		"browser_1.csv": "com.android.chrome:id/url_bar\n",
		"home_1.csv":    "org.example.app:id/shortcut\n",
		"home_1_HS.csv": "",
	})
	c := NewDirClassifier(dir, "")

	tests := []struct {
		state   string
		belongs bool
		home    bool
	}{
		{"app_1", true, false},
		{"dialog_1", true, false},
		{"browser_1", false, false},
		{"home_1", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			belongs, err := c.BelongsToApp(tt.state)
			if err != nil {
				t.Fatalf("BelongsToApp() = %v", err)
			}
			if belongs != tt.belongs {
				t.Errorf("BelongsToApp() = %v, want %v", belongs, tt.belongs)
			}
			home, err := c.IsHomeScreen(tt.state)
			if err != nil {
				t.Fatalf("IsHomeScreen() = %v", err)
			}
			if home != tt.home {
				t.Errorf("IsHomeScreen() = %v, want %v", home, tt.home)
			}
		})
	}
}

func TestDirClassifierExplicitPackage(t *testing.T) {
	dir := writeStates(t, map[string]string{"s_1.csv": "com.other.app:id/x\n"})
	if belongs, _ := NewDirClassifier(dir, "").BelongsToApp("s_1"); belongs {
		t.Error("state of another package classified as in-app")
	}
	if belongs, _ := NewDirClassifier(dir, "com.other.app").BelongsToApp("s_1"); !belongs {
		t.Error("explicit package not honoured")
	}
}

func TestDirClassifierMissingState(t *testing.T) {
	c := NewDirClassifier(writeStates(t, nil), "")
	if _, err := c.BelongsToApp("unknown_1"); !errors.Is(err, ErrMissingInput) {
		t.Errorf("BelongsToApp() = %v, want ErrMissingInput", err)
	}
}

func TestFindStatesDir(t *testing.T) {
	dir := writeStates(t, nil)
	root := filepath.Dir(filepath.Dir(dir))

	got, err := FindStatesDir(root)
	if err != nil {
		t.Fatalf("FindStatesDir() = %v", err)
	}
	if got != dir {
		t.Errorf("FindStatesDir() = %s, want %s", got, dir)
	}

	if _, err := FindStatesDir(t.TempDir()); !errors.Is(err, ErrMissingInput) {
		t.Errorf("FindStatesDir(empty) = %v, want ErrMissingInput", err)
	}
}

func TestAllInApp(t *testing.T) {
	var c StateClassifier = AllInApp{}
	if belongs, err := c.BelongsToApp("x"); !belongs || err != nil {
		t.Errorf("BelongsToApp() = %v, %v", belongs, err)
	}
	if home, err := c.IsHomeScreen("x"); home || err != nil {
		t.Errorf("IsHomeScreen() = %v, %v", home, err)
	}
}
