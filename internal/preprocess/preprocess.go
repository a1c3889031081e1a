package preprocess

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/MimeLyc/scene-sub-translator/internal/subtitle"
)

const DefaultDialogMarker = "- "

var whitespaceRunRe = regexp.MustCompile(`[ \t\x{3000}]{3,}`)

// Options selects which normalisation steps run.
type Options struct {
	WhitespaceToNewline bool
	FullWidthComma      string
	BreakDialog         bool
	NormaliseDialog     bool
	DialogMarker        string
}

// Preprocessor rewrites line text before splitting and batching.
type Preprocessor struct {
	opts Options
}

func New(opts Options) *Preprocessor {
	if opts.DialogMarker == "" {
		opts.DialogMarker = DefaultDialogMarker
	}
	return &Preprocessor{opts: opts}
}

// Preprocess returns line with normalised text. Timing and number are untouched.
func (p *Preprocessor) Preprocess(line subtitle.Line) subtitle.Line {
	line.Text = p.ProcessText(line.Text)
	return line
}

func (p *Preprocessor) PreprocessAll(lines []subtitle.Line) []subtitle.Line {
	out := make([]subtitle.Line, len(lines))
	for i, line := range lines {
		out[i] = p.Preprocess(line)
	}
	return out
}

func (p *Preprocessor) ProcessText(text string) string {
	text = strings.TrimSpace(text)

	if p.opts.WhitespaceToNewline && !strings.Contains(text, "\n") {
		text = p.whitespaceToNewline(text)
	}

	if p.opts.BreakDialog && !strings.Contains(text, "\n") {
		text = p.breakDialog(text)
	}

	if p.opts.NormaliseDialog && strings.Contains(text, "\n") {
		text = p.normaliseDialog(text)
	}

	return text
}

func (p *Preprocessor) whitespaceToNewline(text string) string {
	replaced := whitespaceRunRe.ReplaceAllString(text, "\n")
	if p.opts.FullWidthComma != "" {
		replaced = strings.ReplaceAll(replaced, p.opts.FullWidthComma, "\n")
	}
	if replaced == text {
		return text
	}
	return joinNonEmpty(strings.Split(replaced, "\n"))
}

// breakDialog puts each dialog marker that follows punctuation on its own line.
func (p *Preprocessor) breakDialog(text string) string {
	marker := p.opts.DialogMarker
	if !strings.Contains(text, marker) {
		return text
	}

	var parts []string
	rest := text
	offset := 0
	for {
		idx := strings.Index(rest[offset:], marker)
		if idx < 0 {
			break
		}
		pos := offset + idx
		if pos > 0 && followsPunctuation(rest[:pos]) {
			parts = append(parts, rest[:pos])
			rest = rest[pos:]
			offset = len(marker)
			continue
		}
		offset = pos + len(marker)
	}
	if len(parts) == 0 {
		return text
	}
	parts = append(parts, rest)
	return joinNonEmpty(parts)
}

func (p *Preprocessor) normaliseDialog(text string) string {
	marker := p.opts.DialogMarker
	trimmedMarker := strings.TrimSpace(marker)

	lines := strings.Split(text, "\n")
	marked := make([]bool, len(lines))
	count := 0
	laterMarked := false
	for i, line := range lines {
		if strings.HasPrefix(line, marker) || (trimmedMarker != "" && line == trimmedMarker) {
			marked[i] = true
			count++
			if i > 0 {
				laterMarked = true
			}
		}
	}
	if count == 0 || count == len(lines) {
		return text
	}

	for i, line := range lines {
		switch {
		case laterMarked && !marked[i]:
			lines[i] = marker + line
		case !laterMarked && marked[i]:
			lines[i] = stripMarker(line, marker, trimmedMarker)
		}
	}
	return joinNonEmpty(lines)
}

// stripMarker removes every leading marker from line, so "- - x" becomes "x".
func stripMarker(line, marker, trimmedMarker string) string {
	for {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, marker):
			line = line[len(marker):]
		case trimmedMarker != "" && line == trimmedMarker:
			return ""
		default:
			return line
		}
	}
}

// followsPunctuation reports whether the last non-space rune of s is neither a letter nor a digit.
func followsPunctuation(s string) bool {
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	if s == "" {
		return false
	}
	r := []rune(s)
	last := r[len(r)-1]
	return !unicode.IsLetter(last) && !unicode.IsDigit(last)
}

func joinNonEmpty(parts []string) string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, "\n")
}
