package substitution

import (
	"fmt"
	"strings"
)

// Map maps text to its replacement.
type Map map[string]string

// Mode controls how keys match inside text.
type Mode string

const (
	ModeAuto         Mode = "auto"
	ModeWholeWords   Mode = "whole_words"
	ModePartialWords Mode = "partial_words"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeWholeWords:
		return ModeWholeWords, nil
	case ModePartialWords:
		return ModePartialWords, nil
	default:
		return "", fmt.Errorf("unknown substitution mode %q", s)
	}
}

// MatchResult holds entries that matched against input texts.
type MatchResult struct {
	Matched Map
}
