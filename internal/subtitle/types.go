package subtitle

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Reader loads a subtitle file into an ordered line list.
type Reader interface {
	Read(path string) (*File, error)
}

// Writer serializes a line list back to a subtitle file.
type Writer interface {
	Write(path string, subtitle *File) error
}

// Line is a single timed cue.
type Line struct {
	Number         int           `json:"number"`
	StartTime      time.Duration `json:"start"`
	EndTime        time.Duration `json:"end"`
	Text           string        `json:"text"`
	TranslatedText string        `json:"translation,omitempty"`
}

func (l Line) Duration() time.Duration {
	return l.EndTime - l.StartTime
}

// IsEmpty reports whether the cue has no text to translate.
func (l Line) IsEmpty() bool {
	return strings.TrimSpace(l.Text) == ""
}

func (l Line) IsTranslated() bool {
	return l.TranslatedText != ""
}

// OutputText is the translation, or the original text when there is none.
func (l Line) OutputText() string {
	if l.TranslatedText != "" {
		return l.TranslatedText
	}
	return l.Text
}

func (l Line) String() string {
	return fmt.Sprintf("#%d %s --> %s %q", l.Number, FormatTimestamp(l.StartTime), FormatTimestamp(l.EndTime), l.Text)
}

type File struct {
	Path     string
	Lines    []Line
	Language language.Tag
	Format   string // e.g. SRT
}

// FormatTimestamp renders d as an SRT timestamp (00:00:00,000).
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, milliseconds)
}
