package scene

import (
	"fmt"
	"sort"
	"time"

	"github.com/MimeLyc/scene-sub-translator/internal/subtitle"
)

// State tracks a batch through a translation attempt.
type State string

const (
	StatePending    State = "pending"
	StateRequested  State = "requested"
	StateValidated  State = "validated"
	StateInvalid    State = "invalid"
	StateRetrying   State = "retrying"
	StateTranslated State = "translated"
	StateFailed     State = "failed"
)

// Prompt is the request text that produced a Round.
type Prompt struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// Round is the result of one external translation call.
type Round struct {
	Text       string   `json:"text"`
	Prompt     Prompt   `json:"prompt"`
	Summary    string   `json:"summary,omitempty"`
	Scene      string   `json:"scene,omitempty"`
	Synopsis   string   `json:"synopsis,omitempty"`
	Characters []string `json:"characters,omitempty"`
	Names      []string `json:"names,omitempty"`

	FinishReason      string `json:"finish_reason,omitempty"`
	ReachedTokenLimit bool   `json:"reached_token_limit,omitempty"`
	QuotaReached      bool   `json:"quota_reached,omitempty"`
	PromptTokens      int    `json:"prompt_tokens,omitempty"`
	OutputTokens      int    `json:"output_tokens,omitempty"`
	Model             string `json:"model,omitempty"`
}

// Batch is the unit of work sent in one request.
// Translated holds lines whose Text is the translation, matched to Originals by Number.
type Batch struct {
	Scene       int
	Number      int
	State       State
	Originals   []subtitle.Line
	Translated  []subtitle.Line
	Summary     string
	Context     map[string]any
	Errors      []error
	Translation *Round
}

func NewBatch(sceneNumber, number int) *Batch {
	return &Batch{
		Scene:   sceneNumber,
		Number:  number,
		State:   StatePending,
		Context: make(map[string]any),
	}
}

func (b *Batch) LineCount() int {
	return len(b.Originals)
}

// AllTranslated reports whether every original with text has a translation.
// Empty cues are never sent, so they never hold the batch back.
func (b *Batch) AllTranslated() bool {
	return len(b.Originals) > 0 && len(b.Untranslated()) == 0
}

func (b *Batch) AnyTranslated() bool {
	return len(b.Translated) > 0
}

func (b *Batch) HasErrors() bool {
	return len(b.Errors) > 0
}

func (b *Batch) Start() time.Duration {
	if len(b.Originals) == 0 {
		return 0
	}
	return b.Originals[0].StartTime
}

func (b *Batch) End() time.Duration {
	if len(b.Originals) == 0 {
		return 0
	}
	return b.Originals[len(b.Originals)-1].EndTime
}

func (b *Batch) SetContext(key string, value any) {
	if b.Context == nil {
		b.Context = make(map[string]any)
	}
	b.Context[key] = value
}

func (b *Batch) GetContext(key string) (any, bool) {
	v, ok := b.Context[key]
	return v, ok
}

// MergeTranslations folds lines into Translated by number, replacing existing
// entries. Lines that do not match an original are ignored. It returns the
// number of lines merged.
func (b *Batch) MergeTranslations(lines []subtitle.Line) int {
	index := make(map[int]int, len(b.Originals))
	for i, line := range b.Originals {
		index[line.Number] = i
	}

	byNumber := make(map[int]subtitle.Line, len(b.Translated)+len(lines))
	for _, line := range b.Translated {
		byNumber[line.Number] = line
	}

	merged := 0
	for _, line := range lines {
		i, ok := index[line.Number]
		if !ok {
			continue
		}
		orig := b.Originals[i]
		byNumber[line.Number] = subtitle.Line{
			Number:    orig.Number,
			StartTime: orig.StartTime,
			EndTime:   orig.EndTime,
			Text:      line.Text,
		}
		b.Originals[i].TranslatedText = line.Text
		merged++
	}

	translated := make([]subtitle.Line, 0, len(byNumber))
	for _, orig := range b.Originals {
		if line, ok := byNumber[orig.Number]; ok {
			translated = append(translated, line)
		}
	}
	b.Translated = translated
	return merged
}

// Untranslated lists the numbers of non-empty originals with no translation.
func (b *Batch) Untranslated() []int {
	done := make(map[int]bool, len(b.Translated))
	for _, line := range b.Translated {
		done[line.Number] = true
	}
	var missing []int
	for _, line := range b.Originals {
		if !line.IsEmpty() && !done[line.Number] {
			missing = append(missing, line.Number)
		}
	}
	return missing
}

func (b *Batch) String() string {
	return fmt.Sprintf("scene %d batch %d", b.Scene, b.Number)
}

// Scene is a time-gap delimited group of batches.
type Scene struct {
	Number  int
	Batches []*Batch
	Summary string
	Context map[string]any
}

func NewScene(number int) *Scene {
	return &Scene{Number: number, Context: make(map[string]any)}
}

func (s *Scene) LineCount() int {
	n := 0
	for _, b := range s.Batches {
		n += b.LineCount()
	}
	return n
}

func (s *Scene) AllTranslated() bool {
	for _, b := range s.Batches {
		if !b.AllTranslated() {
			return false
		}
	}
	return len(s.Batches) > 0
}

func (s *Scene) GetBatch(number int) *Batch {
	for _, b := range s.Batches {
		if b.Number == number {
			return b
		}
	}
	return nil
}

func (s *Scene) SetContext(key string, value any) {
	if s.Context == nil {
		s.Context = make(map[string]any)
	}
	s.Context[key] = value
}

// Document is the ordered scene list of one subtitle file.
type Document struct {
	Scenes []*Scene
}

func NewDocument(scenes []*Scene) *Document {
	d := &Document{Scenes: scenes}
	d.Renumber()
	return d
}

func (d *Document) SceneCount() int {
	return len(d.Scenes)
}

func (d *Document) LineCount() int {
	n := 0
	for _, s := range d.Scenes {
		n += s.LineCount()
	}
	return n
}

func (d *Document) GetScene(number int) *Scene {
	for _, s := range d.Scenes {
		if s.Number == number {
			return s
		}
	}
	return nil
}

func (d *Document) GetBatch(sceneNumber, batchNumber int) *Batch {
	s := d.GetScene(sceneNumber)
	if s == nil {
		return nil
	}
	return s.GetBatch(batchNumber)
}

// Batches returns every batch in document order.
func (d *Document) Batches() []*Batch {
	var out []*Batch
	for _, s := range d.Scenes {
		out = append(out, s.Batches...)
	}
	return out
}

// Lines returns all original lines in order, carrying their translations.
func (d *Document) Lines() []subtitle.Line {
	out := make([]subtitle.Line, 0, d.LineCount())
	for _, b := range d.Batches() {
		out = append(out, b.Originals...)
	}
	return out
}

// Renumber restores 1-based contiguous scene and batch numbers.
func (d *Document) Renumber() {
	for i, s := range d.Scenes {
		s.Number = i + 1
		for j, b := range s.Batches {
			b.Scene = s.Number
			b.Number = j + 1
		}
	}
}

// RenumberLines resequences line numbers across the document starting at 1.
func (d *Document) RenumberLines() {
	next := 1
	for _, b := range d.Batches() {
		mapping := make(map[int]int, len(b.Originals))
		for i := range b.Originals {
			mapping[b.Originals[i].Number] = next
			b.Originals[i].Number = next
			next++
		}
		for i := range b.Translated {
			b.Translated[i].Number = mapping[b.Translated[i].Number]
		}
	}
}

func sortLines(lines []subtitle.Line) {
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Number < lines[j].Number })
}
