package substitution

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Match filters the map to entries whose key appears in any of texts.
// Matching is case-sensitive.
func Match(m Map, texts []string) MatchResult {
	matched := make(Map)
	for before, after := range m {
		for _, text := range texts {
			if strings.Contains(text, before) {
				matched[before] = after
				break
			}
		}
	}
	return MatchResult{Matched: matched}
}

// Substitutions applies a Map to text.
type Substitutions struct {
	mode    Mode
	entries []entry
}

type entry struct {
	before string
	after  string
	word   *regexp.Regexp
}

func New(m Map, mode Mode) *Substitutions {
	if mode == "" {
		mode = ModeAuto
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		if k != "" {
			keys = append(keys, k)
		}
	}
	// longer keys first so "New York City" wins over "New York"
	sort.Slice(keys, func(i, j int) bool {
		if len([]rune(keys[i])) != len([]rune(keys[j])) {
			return len([]rune(keys[i])) > len([]rune(keys[j]))
		}
		return keys[i] < keys[j]
	})

	s := &Substitutions{mode: mode}
	for _, k := range keys {
		s.entries = append(s.entries, entry{
			before: k,
			after:  m[k],
			word:   regexp.MustCompile(`(?:^|\b)` + regexp.QuoteMeta(k) + `(?:\b|$)`),
		})
	}
	return s
}

func (s *Substitutions) Empty() bool {
	return s == nil || len(s.entries) == 0
}

func (s *Substitutions) Mode() Mode {
	return s.mode
}

// Apply rewrites text and returns the replacements that took effect.
func (s *Substitutions) Apply(text string) (string, Map) {
	if s.Empty() || text == "" {
		return text, nil
	}

	whole := s.mode == ModeWholeWords || (s.mode == ModeAuto && !containsCJK(text))

	var applied Map
	for _, e := range s.entries {
		var out string
		if whole {
			out = e.word.ReplaceAllLiteralString(text, e.after)
		} else {
			out = strings.ReplaceAll(text, e.before, e.after)
		}
		if out != text {
			if applied == nil {
				applied = make(Map)
			}
			applied[e.before] = e.after
			text = out
		}
	}
	return text, applied
}

// ApplyAll rewrites every text, merging the replacements that took effect.
func (s *Substitutions) ApplyAll(texts []string) ([]string, Map) {
	out := make([]string, len(texts))
	var applied Map
	for i, text := range texts {
		var m Map
		out[i], m = s.Apply(text)
		for k, v := range m {
			if applied == nil {
				applied = make(Map)
			}
			applied[k] = v
		}
	}
	return out, applied
}

func containsCJK(text string) bool {
	for _, r := range text {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) {
			return true
		}
	}
	return false
}
