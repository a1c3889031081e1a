package validator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/scene-sub-translator/internal/subtitle"
)

// Kind identifies a class of validation problem.
type Kind int

const (
	NoTranslation Kind = iota
	UnmatchedLines
	EmptyLines
	LineTooLong
	TooManyNewlines
	UntranslatedLines
)

func (k Kind) String() string {
	switch k {
	case NoTranslation:
		return "NoTranslation"
	case UnmatchedLines:
		return "UnmatchedLines"
	case EmptyLines:
		return "EmptyLines"
	case LineTooLong:
		return "LineTooLong"
	case TooManyNewlines:
		return "TooManyNewlines"
	case UntranslatedLines:
		return "UntranslatedLines"
	default:
		return "Unknown"
	}
}

// Error aggregates every line that failed one check.
type Error struct {
	Kind    Kind
	Message string
	Lines   []int
}

func (e *Error) Error() string {
	if len(e.Lines) == 0 {
		return e.Message
	}
	numbers := make([]string, len(e.Lines))
	for i, n := range e.Lines {
		numbers[i] = fmt.Sprint(n)
	}
	return fmt.Sprintf("%s (lines %s)", e.Message, strings.Join(numbers, ", "))
}

// IsKind reports whether err is a validation error of kind k.
func IsKind(err error, k Kind) bool {
	var verr *Error
	return errors.As(err, &verr) && verr.Kind == k
}

// Validator checks translated lines against configured limits.
type Validator struct {
	MaxCharacters int
	MaxNewlines   int
}

func New(maxCharacters, maxNewlines int) Validator {
	return Validator{MaxCharacters: maxCharacters, MaxNewlines: maxNewlines}
}

// Validate checks translated lines on their own. A line with number 0 counts as unmatched.
func (v Validator) Validate(translated []subtitle.Line) []error {
	return v.check(nil, translated)
}

// ValidateBatch also matches translated lines to originals and reports originals left untranslated.
func (v Validator) ValidateBatch(originals, translated []subtitle.Line) []error {
	if originals == nil {
		originals = []subtitle.Line{}
	}
	return v.check(originals, translated)
}

func (v Validator) check(originals, translated []subtitle.Line) []error {
	if len(translated) == 0 {
		errs := []error{&Error{Kind: NoTranslation, Message: "Failed to extract any translations"}}
		if len(originals) > 0 {
			errs = append(errs, untranslated(numbersOf(originals)))
		}
		return errs
	}

	var sources map[int]bool
	if originals != nil {
		sources = make(map[int]bool, len(originals))
		for _, line := range originals {
			sources[line.Number] = true
		}
	}

	var unmatched, empty, tooLong, tooManyNewlines []int
	matched := make(map[int]bool, len(translated))
	for _, line := range translated {
		if line.Number <= 0 || (sources != nil && !sources[line.Number]) {
			unmatched = append(unmatched, line.Number)
			continue
		}
		matched[line.Number] = true

		text := strings.TrimSpace(line.Text)
		if text == "" {
			empty = append(empty, line.Number)
			continue
		}
		if v.MaxCharacters > 0 && len([]rune(text)) > v.MaxCharacters {
			tooLong = append(tooLong, line.Number)
		}
		if v.MaxNewlines > 0 && strings.Count(text, "\n") > v.MaxNewlines {
			tooManyNewlines = append(tooManyNewlines, line.Number)
		}
	}

	var errs []error
	if len(unmatched) > 0 {
		errs = append(errs, &Error{
			Kind:    UnmatchedLines,
			Message: fmt.Sprintf("%d translations could not be matched with a source line", len(unmatched)),
			Lines:   sorted(unmatched),
		})
	}
	if len(empty) > 0 {
		errs = append(errs, &Error{
			Kind:    EmptyLines,
			Message: fmt.Sprintf("%d translations returned a blank line", len(empty)),
			Lines:   sorted(empty),
		})
	}
	if len(tooLong) > 0 {
		errs = append(errs, &Error{
			Kind:    LineTooLong,
			Message: fmt.Sprintf("One or more lines exceeded %d characters", v.MaxCharacters),
			Lines:   sorted(tooLong),
		})
	}
	if len(tooManyNewlines) > 0 {
		errs = append(errs, &Error{
			Kind:    TooManyNewlines,
			Message: fmt.Sprintf("One or more lines contain more than %d line breaks", v.MaxNewlines),
			Lines:   sorted(tooManyNewlines),
		})
	}

	var missing []int
	for _, line := range originals {
		if !matched[line.Number] {
			missing = append(missing, line.Number)
		}
	}
	if len(missing) > 0 {
		errs = append(errs, untranslated(missing))
	}

	return errs
}

func untranslated(numbers []int) *Error {
	return &Error{
		Kind:    UntranslatedLines,
		Message: fmt.Sprintf("%d lines were not translated", len(numbers)),
		Lines:   sorted(numbers),
	}
}

func numbersOf(lines []subtitle.Line) []int {
	out := make([]int, len(lines))
	for i, line := range lines {
		out[i] = line.Number
	}
	return out
}

func sorted(numbers []int) []int {
	out := append([]int(nil), numbers...)
	sort.Ints(out)
	return out
}
