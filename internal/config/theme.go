package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Theme maps colour token names to CSS colour values for the panel UI. The
// tokens come from a plain-text file with one "name value" pair per line.
type Theme map[string]string

// DefaultTheme returns the built-in colour tokens used when no theme file is
// supplied or a token is missing from the supplied file.
func DefaultTheme() Theme {
	return Theme{
		"background":  "#2b2b2b",
		"primary":     "#f2f5fa",
		"secondary":   "#a3a7b0",
		"tertiary":    "#787f8c",
		"accent":      "#00b4c8",
		"grid-colour": "#43454a",
	}
}

// LoadTheme reads a theme file and merges it over the defaults. Blank lines
// and lines starting with '#' are skipped. A malformed line is an error so a
// truncated file does not silently drop tokens.
func LoadTheme(path string) (Theme, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open theme file: %w", err)
	}
	defer f.Close()

	theme := DefaultTheme()

	scan := bufio.NewScanner(f)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, " ")
		if !ok || strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("theme file %s line %d: expected \"name value\", got %q", path, lineNo, line)
		}
		theme[name] = strings.TrimSpace(value)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read theme file: %w", err)
	}

	return theme, nil
}

// Colour returns the value for a token, falling back to the default palette
// and finally to white so lookups never produce an empty CSS value.
func (t Theme) Colour(name string) string {
	if v, ok := t[name]; ok && v != "" {
		return v
	}
	if v, ok := DefaultTheme()[name]; ok {
		return v
	}
	return "#ffffff"
}
