package subtitle

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/spf13/afero"
	"golang.org/x/text/language"
)

var srtTimeRe = regexp.MustCompile(`(\d{1,2}):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d{1,2}):(\d{2}):(\d{2})[,.](\d{3})`)

// SRTReader reads SRT files from an afero filesystem.
type SRTReader struct {
	fs afero.Fs
}

func NewReader(fs afero.Fs) *SRTReader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &SRTReader{fs: fs}
}

func (r *SRTReader) Read(path string) (*File, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".srt") {
		return nil, fmt.Errorf("only SRT format subtitle files are supported: %s", path)
	}

	f, err := r.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open subtitle file: %w", err)
	}
	defer f.Close()

	return ParseSRT(f, path)
}

// ReadSRTBytes parses SRT content already held in memory.
func ReadSRTBytes(data []byte, path string) (*File, error) {
	return ParseSRT(bytes.NewReader(data), path)
}

// ParseSRT reads SRT blocks from r. Blocks without a usable index or timing are skipped.
func ParseSRT(r io.Reader, path string) (*File, error) {
	var lines []Line
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	current := Line{}
	state := "index" // index, time, text
	var textLines []string
	first := true

	flush := func() {
		if len(textLines) > 0 {
			current.Text = strings.Join(textLines, "\n")
			lines = append(lines, current)
		}
		current = Line{}
		textLines = nil
	}

	for scanner.Scan() {
		raw := scanner.Text()
		if first {
			raw = strings.TrimPrefix(raw, "\ufeff")
			first = false
		}
		line := strings.TrimSpace(raw)

		switch state {
		case "index":
			if line == "" {
				continue
			}
			number, err := strconv.Atoi(line)
			if err != nil {
				continue
			}
			current.Number = number
			state = "time"

		case "time":
			if line == "" {
				continue
			}
			start, end, err := parseSRTTime(line)
			if err != nil {
				return nil, fmt.Errorf("failed to parse time of line %d: %w", current.Number, err)
			}
			current.StartTime = start
			current.EndTime = end
			state = "text"

		case "text":
			if line == "" {
				flush()
				state = "index"
				continue
			}
			textLines = append(textLines, line)
		}
	}
	if state == "text" {
		flush()
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle file: %w", err)
	}

	return &File{
		Path:     path,
		Lines:    lines,
		Language: DetectLanguage(lines),
		Format:   "SRT",
	}, nil
}

func parseSRTTime(s string) (time.Duration, time.Duration, error) {
	m := srtTimeRe.FindStringSubmatch(s)
	if len(m) != 9 {
		return 0, 0, fmt.Errorf("invalid time format: %s", s)
	}

	parse := func(h, min, sec, ms string) time.Duration {
		hv, _ := strconv.Atoi(h)
		mv, _ := strconv.Atoi(min)
		sv, _ := strconv.Atoi(sec)
		msv, _ := strconv.Atoi(ms)
		return time.Duration(hv)*time.Hour +
			time.Duration(mv)*time.Minute +
			time.Duration(sv)*time.Second +
			time.Duration(msv)*time.Millisecond
	}

	return parse(m[1], m[2], m[3], m[4]), parse(m[5], m[6], m[7], m[8]), nil
}

// DetectLanguage returns the most common language across lines, or language.Und.
func DetectLanguage(lines []Line) language.Tag {
	if len(lines) == 0 {
		return language.Und
	}

	counts := make(map[string]int)
	order := make([]string, 0)
	for _, line := range lines {
		info := whatlanggo.Detect(line.Text)
		if !info.IsReliable() && len([]rune(line.Text)) < 8 {
			continue
		}
		code := info.Lang.Iso6391()
		if code == "" {
			continue
		}
		if _, ok := counts[code]; !ok {
			order = append(order, code)
		}
		counts[code]++
	}

	var top string
	var topCount int
	for _, code := range order {
		if counts[code] > topCount {
			top = code
			topCount = counts[code]
		}
	}
	if top == "" {
		return language.Und
	}

	tag, err := language.Parse(top)
	if err != nil {
		return language.Und
	}
	return tag
}
