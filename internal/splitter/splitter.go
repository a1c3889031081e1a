package splitter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/MimeLyc/scene-sub-translator/internal/subtitle"
)

const (
	DefaultMinGap        = 50 * time.Millisecond
	DefaultMinSplitChars = 4
	DefaultDialogMarker  = "- "
)

var markupRe = regexp.MustCompile(`</?[a-zA-Z][^<>]*>|\{\\[^{}]*\}`)

// breakSequence is a text pattern at which a line may be split.
// keep is the number of runes of the pattern that stay with the left half.
type breakSequence struct {
	pattern string
	keep    int
}

// Splitter breaks lines that run longer than MaxDuration.
type Splitter struct {
	MaxDuration   time.Duration
	MinDuration   time.Duration
	MinSplitChars int
	MinGap        time.Duration

	sequences [][]breakSequence
}

func New(maxDuration, minDuration time.Duration, minSplitChars int, minGap time.Duration, dialogMarker string) *Splitter {
	if minSplitChars <= 0 {
		minSplitChars = DefaultMinSplitChars
	}
	if minGap <= 0 {
		minGap = DefaultMinGap
	}
	if dialogMarker == "" {
		dialogMarker = DefaultDialogMarker
	}
	return &Splitter{
		MaxDuration:   maxDuration,
		MinDuration:   minDuration,
		MinSplitChars: minSplitChars,
		MinGap:        minGap,
		sequences:     breakSequences(dialogMarker),
	}
}

// breakSequences lists split candidates from strongest to weakest.
func breakSequences(dialogMarker string) [][]breakSequence {
	return [][]breakSequence{
		{{pattern: "\n"}},
		{{pattern: dialogMarker}},
		{
			{pattern: ". ", keep: 1}, {pattern: "! ", keep: 1}, {pattern: "? ", keep: 1},
			{pattern: "… ", keep: 1}, {pattern: ".\" ", keep: 2},
			{pattern: "。", keep: 1}, {pattern: "！", keep: 1}, {pattern: "？", keep: 1},
			{pattern: "…", keep: 1}, {pattern: "؟ ", keep: 1}, {pattern: "। ", keep: 1},
		},
		{
			{pattern: ", ", keep: 1}, {pattern: "; ", keep: 1}, {pattern: ": ", keep: 1},
			{pattern: "，", keep: 1}, {pattern: "、", keep: 1}, {pattern: "；", keep: 1}, {pattern: "：", keep: 1},
		},
		{{pattern: "   "}},
	}
}

// Enabled reports whether splitting is configured.
func (s *Splitter) Enabled() bool {
	return s.MaxDuration > 0
}

// Split returns line unchanged when it fits MaxDuration or cannot be broken,
// otherwise the pieces numbered from line.Number.
func (s *Splitter) Split(line subtitle.Line) []subtitle.Line {
	pieces := s.split(line)
	for i := range pieces {
		pieces[i].Number = line.Number + i
	}
	return pieces
}

// SplitAll splits every line. Numbers are left for the caller to resequence.
func (s *Splitter) SplitAll(lines []subtitle.Line) []subtitle.Line {
	if !s.Enabled() {
		return lines
	}
	out := make([]subtitle.Line, 0, len(lines))
	for _, line := range lines {
		out = append(out, s.Split(line)...)
	}
	return out
}

func (s *Splitter) split(line subtitle.Line) []subtitle.Line {
	if !s.Enabled() || line.Duration() <= s.MaxDuration || markupRe.MatchString(line.Text) {
		return []subtitle.Line{line}
	}

	text := []rune(line.Text)
	index, ok := s.bestBreak(line, text)
	if !ok {
		return []subtitle.Line{line}
	}

	left, right := s.divide(line, text, index)
	return append(s.split(left), s.split(right)...)
}

// bestBreak picks the most central qualifying break of the strongest sequence class.
func (s *Splitter) bestBreak(line subtitle.Line, text []rune) (int, bool) {
	length := len(text)
	lo, hi := s.MinSplitChars, length-s.MinSplitChars
	if lo > hi {
		return 0, false
	}

	for _, class := range s.sequences {
		bestIndex := -1
		bestScore := 0.0
		for pos := 0; pos < length; pos++ {
			for _, seq := range class {
				if !hasRunePrefix(text[pos:], seq.pattern) {
					continue
				}
				index := pos + seq.keep
				if index < lo || index > hi {
					continue
				}
				score := s.score(line, index, length)
				if score > bestScore {
					bestScore = score
					bestIndex = index
				}
			}
		}
		if bestIndex >= 0 {
			return bestIndex, true
		}
	}
	return 0, false
}

// score is 1 at the midpoint and falls to 0 at either end. Breaks that would
// leave a piece shorter than MinDuration score 0.
func (s *Splitter) score(line subtitle.Line, index, length int) float64 {
	total := line.Duration()
	leftDuration := proportion(total, index, length)
	rightDuration := proportion(total, length-index, length)
	if leftDuration-s.MinGap < s.MinDuration || rightDuration < s.MinDuration {
		return 0
	}

	ratio := float64(index) / float64(length)
	diff := ratio - 0.5
	if diff < 0 {
		diff = -diff
	}
	return 1 - diff*2
}

func (s *Splitter) divide(line subtitle.Line, text []rune, index int) (subtitle.Line, subtitle.Line) {
	leftDuration := ProportionalDuration(line, index, s.MinDuration)
	rightDuration := line.Duration() - leftDuration

	left := line
	left.Text = strings.TrimSpace(string(text[:index]))
	left.EndTime = line.EndTime - (rightDuration + s.MinGap)
	left.TranslatedText = ""

	right := line
	right.Text = strings.TrimSpace(string(text[index:]))
	right.StartTime = line.EndTime - rightDuration
	right.TranslatedText = ""

	return left, right
}

// ProportionalDuration is the share of line's duration covered by chars runes,
// raised to at least minDuration. chars must be smaller than the text length.
func ProportionalDuration(line subtitle.Line, chars int, minDuration time.Duration) time.Duration {
	length := len([]rune(line.Text))
	if chars < 0 || chars >= length {
		panic(fmt.Sprintf("splitter: proportion of %d chars out of range for %d char line", chars, length))
	}
	d := proportion(line.Duration(), chars, length)
	if d < minDuration {
		return minDuration
	}
	return d
}

func proportion(total time.Duration, chars, length int) time.Duration {
	return time.Duration(float64(total) * float64(chars) / float64(length))
}

func hasRunePrefix(text []rune, pattern string) bool {
	i := 0
	for _, r := range pattern {
		if i >= len(text) || text[i] != r {
			return false
		}
		i++
	}
	return true
}
