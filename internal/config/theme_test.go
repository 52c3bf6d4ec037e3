package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeTheme(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "colours.txt")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write theme: %v", err)
	}
	return path
}

func TestLoadThemeMergesOverDefaults(t *testing.T) {
	path := writeTheme(t, "accent #ff00ff\n\n# a comment\nbackground #000000\n")

	theme, err := LoadTheme(path)
	if err != nil {
		t.Fatalf("LoadTheme: %v", err)
	}

	want := DefaultTheme()
	want["accent"] = "#ff00ff"
	want["background"] = "#000000"
	if diff := cmp.Diff(want, theme); diff != "" {
		t.Errorf("theme mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadThemeRejectsMalformedLine(t *testing.T) {
	path := writeTheme(t, "accent\n")
	if _, err := LoadTheme(path); err == nil {
		t.Error("expected error for line without value")
	}
}

func TestColourFallsBack(t *testing.T) {
	theme := Theme{}
	if got := theme.Colour("accent"); got != DefaultTheme()["accent"] {
		t.Errorf("Colour(accent) = %q, want default", got)
	}
	if got := theme.Colour("no-such-token"); got != "#ffffff" {
		t.Errorf("Colour(no-such-token) = %q, want #ffffff", got)
	}
}
