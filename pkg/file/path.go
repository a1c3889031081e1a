package file

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
)

// LanguageSibling returns the path of the translated sibling of a subtitle,
// e.g. "movie.en.srt" with lang "zh" becomes "movie.zh.srt".
func LanguageSibling(path, lang string) string {
	if path == "" || lang == "" {
		return path
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	if inner := filepath.Ext(base); len(inner) > 1 {
		if _, err := language.Parse(inner[1:]); err == nil {
			base = strings.TrimSuffix(base, inner)
		}
	}
	if ext == "" {
		ext = ".srt"
	}
	return base + "." + lang + ext
}
