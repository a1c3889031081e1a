package substitution

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/language"
)

const separator = "::"

// Filename returns the substitutions filename for a language pair, using base codes.
func Filename(sourceLang, targetLang string) string {
	return "substitutions." + normalizeLanguageCode(sourceLang) + "-" + normalizeLanguageCode(targetLang) + ".json"
}

// FindInAncestors walks up from startDir looking for a substitutions file.
func FindInAncestors(fs afero.Fs, startDir, sourceLang, targetLang string) string {
	filename := Filename(sourceLang, targetLang)
	dir := startDir
	for {
		candidate := filepath.Join(dir, filename)
		if ok, _ := afero.Exists(fs, candidate); ok {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Load reads a JSON object or "before::after" lines.
func Load(fs afero.Fs, path string) (Map, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read substitutions: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var m Map
		if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
			return nil, fmt.Errorf("failed to parse substitutions %s: %w", path, err)
		}
		return m, nil
	}

	return Parse(strings.Split(trimmed, "\n"))
}

// Parse reads "before::after" entries. Blank lines and # comments are skipped.
func Parse(lines []string) (Map, error) {
	m := make(Map)
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		before, after, ok := strings.Cut(line, separator)
		if !ok || strings.TrimSpace(before) == "" {
			return nil, fmt.Errorf("invalid substitution on line %d: %q", i+1, line)
		}
		m[strings.TrimSpace(before)] = strings.TrimSpace(after)
	}
	return m, nil
}

// Save writes m as indented JSON.
func Save(fs afero.Fs, path string, m Map) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, data, 0o644)
}

func normalizeLanguageCode(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	base, _ := tag.Base()
	return base.String()
}
