package translator

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/MimeLyc/scene-sub-translator/internal/scene"
	"github.com/MimeLyc/scene-sub-translator/internal/subtitle"
)

const (
	originalMarker    = "Original>"
	translationMarker = "Translation>"
)

var (
	blockHeaderRe = regexp.MustCompile(`(?m)^[ \t]*#(\d*)[ \t]*$`)
	tagRes        = map[string]*regexp.Regexp{
		"summary":    regexp.MustCompile(`(?is)<summary>(.*?)</summary>`),
		"scene":      regexp.MustCompile(`(?is)<scene>(.*?)</scene>`),
		"synopsis":   regexp.MustCompile(`(?is)<synopsis>(.*?)</synopsis>`),
		"characters": regexp.MustCompile(`(?is)<characters>(.*?)</characters>`),
		"names":      regexp.MustCompile(`(?is)<names>(.*?)</names>`),
	}
	tagOrder = []string{"summary", "scene", "synopsis", "characters", "names"}
)

// ExtractTags fills the round's structured fields from its raw text and
// returns the text with the tags removed.
func ExtractTags(round *scene.Round) string {
	body := round.Text
	for _, name := range tagOrder {
		re := tagRes[name]
		var value string
		if m := re.FindStringSubmatch(body); m != nil {
			value = strings.TrimSpace(m[1])
		}
		body = re.ReplaceAllString(body, "")

		if value == "" {
			continue
		}
		switch name {
		case "summary":
			round.Summary = value
		case "scene":
			round.Scene = value
		case "synopsis":
			round.Synopsis = value
		case "characters":
			round.Characters = splitList(value)
		case "names":
			round.Names = splitList(value)
		}
	}
	return strings.TrimSpace(body)
}

// ParseTranslation reads "#N ... Translation>" blocks. A block without a
// number yields a line with Number 0. Text before the first block is ignored.
func ParseTranslation(body string) []subtitle.Line {
	headers := blockHeaderRe.FindAllStringSubmatchIndex(body, -1)
	lines := make([]subtitle.Line, 0, len(headers))

	for i, h := range headers {
		end := len(body)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		number, _ := strconv.Atoi(body[h[2]:h[3]])
		text := blockTranslation(body[h[1]:end])
		lines = append(lines, subtitle.Line{Number: number, Text: text})
	}
	return lines
}

func blockTranslation(block string) string {
	if idx := strings.Index(block, translationMarker); idx >= 0 {
		return strings.TrimSpace(block[idx+len(translationMarker):])
	}
	block = strings.TrimSpace(block)
	if strings.HasPrefix(block, originalMarker) {
		// an original with no translation section
		return ""
	}
	return block
}

func splitList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool { return r == '\n' || r == ',' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(f), "-"))
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
