package scene

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/scene-sub-translator/internal/subtitle"
)

var (
	ErrSceneNotFound = errors.New("scene not found")
	ErrBatchNotFound = errors.New("batch not found")
	ErrNotSequential = errors.New("numbers must be consecutive")
)

// MergeScenes folds consecutive scenes into the first of them. Nothing is
// changed unless every scene exists.
func (d *Document) MergeScenes(numbers []int) error {
	if len(numbers) < 2 {
		return nil
	}
	numbers, err := checkSequential(numbers)
	if err != nil {
		return err
	}

	scenes := make([]*Scene, 0, len(numbers))
	for _, n := range numbers {
		s := d.GetScene(n)
		if s == nil {
			return fmt.Errorf("%w: %d", ErrSceneNotFound, n)
		}
		scenes = append(scenes, s)
	}

	first := scenes[0]
	var summaries []string
	if first.Summary != "" {
		summaries = append(summaries, first.Summary)
	}
	for _, s := range scenes[1:] {
		first.Batches = append(first.Batches, s.Batches...)
		if s.Summary != "" {
			summaries = append(summaries, s.Summary)
		}
		for k, v := range s.Context {
			first.SetContext(k, v)
		}
	}
	first.Summary = strings.Join(summaries, "\n")

	drop := make(map[*Scene]bool, len(scenes)-1)
	for _, s := range scenes[1:] {
		drop[s] = true
	}
	kept := d.Scenes[:0]
	for _, s := range d.Scenes {
		if !drop[s] {
			kept = append(kept, s)
		}
	}
	d.Scenes = kept
	d.Renumber()
	return nil
}

// MergeBatches folds consecutive batches of one scene into the first of them.
// Nothing is changed unless every batch exists.
func (d *Document) MergeBatches(sceneNumber int, numbers []int) error {
	if len(numbers) < 2 {
		return nil
	}
	numbers, err := checkSequential(numbers)
	if err != nil {
		return err
	}

	s := d.GetScene(sceneNumber)
	if s == nil {
		return fmt.Errorf("%w: %d", ErrSceneNotFound, sceneNumber)
	}
	batches := make([]*Batch, 0, len(numbers))
	for _, n := range numbers {
		b := s.GetBatch(n)
		if b == nil {
			return fmt.Errorf("%w: scene %d batch %d", ErrBatchNotFound, sceneNumber, n)
		}
		batches = append(batches, b)
	}

	first := batches[0]
	var summaries []string
	if first.Summary != "" {
		summaries = append(summaries, first.Summary)
	}
	for _, b := range batches[1:] {
		first.Originals = append(first.Originals, b.Originals...)
		first.Translated = append(first.Translated, b.Translated...)
		first.Errors = append(first.Errors, b.Errors...)
		if b.Summary != "" {
			summaries = append(summaries, b.Summary)
		}
		for k, v := range b.Context {
			first.SetContext(k, v)
		}
	}
	sortLines(first.Originals)
	sortLines(first.Translated)
	first.Summary = strings.Join(summaries, "\n")
	first.Translation = nil
	first.State = stateAfterEdit(first)

	drop := make(map[*Batch]bool, len(batches)-1)
	for _, b := range batches[1:] {
		drop[b] = true
	}
	kept := s.Batches[:0]
	for _, b := range s.Batches {
		if !drop[b] {
			kept = append(kept, b)
		}
	}
	s.Batches = kept
	d.Renumber()
	return nil
}

// SplitBatch moves the lines from lineNumber onward into a new batch placed
// directly after the original.
func (d *Document) SplitBatch(sceneNumber, batchNumber, lineNumber int) error {
	s := d.GetScene(sceneNumber)
	if s == nil {
		return fmt.Errorf("%w: %d", ErrSceneNotFound, sceneNumber)
	}
	b := s.GetBatch(batchNumber)
	if b == nil {
		return fmt.Errorf("%w: scene %d batch %d", ErrBatchNotFound, sceneNumber, batchNumber)
	}

	at := -1
	for i, line := range b.Originals {
		if line.Number == lineNumber {
			at = i
			break
		}
	}
	if at <= 0 {
		return fmt.Errorf("line %d cannot start a new batch in %s", lineNumber, b)
	}

	next := NewBatch(sceneNumber, batchNumber+1)
	next.Originals = append([]subtitle.Line(nil), b.Originals[at:]...)
	b.Originals = b.Originals[:at]

	var keep, move []subtitle.Line
	for _, line := range b.Translated {
		if line.Number >= lineNumber {
			move = append(move, line)
		} else {
			keep = append(keep, line)
		}
	}
	b.Translated = keep
	next.Translated = move
	b.Translation = nil
	b.State = stateAfterEdit(b)
	next.State = stateAfterEdit(next)

	batches := make([]*Batch, 0, len(s.Batches)+1)
	for _, existing := range s.Batches {
		batches = append(batches, existing)
		if existing == b {
			batches = append(batches, next)
		}
	}
	s.Batches = batches
	d.Renumber()
	return nil
}

// SplitScene moves the batches from batchNumber onward into a new scene.
func (d *Document) SplitScene(sceneNumber, batchNumber int) error {
	s := d.GetScene(sceneNumber)
	if s == nil {
		return fmt.Errorf("%w: %d", ErrSceneNotFound, sceneNumber)
	}

	at := -1
	for i, b := range s.Batches {
		if b.Number == batchNumber {
			at = i
			break
		}
	}
	if at <= 0 {
		return fmt.Errorf("batch %d cannot start a new scene after scene %d", batchNumber, sceneNumber)
	}

	next := NewScene(sceneNumber + 1)
	next.Batches = append([]*Batch(nil), s.Batches[at:]...)
	s.Batches = s.Batches[:at]

	scenes := make([]*Scene, 0, len(d.Scenes)+1)
	for _, existing := range d.Scenes {
		scenes = append(scenes, existing)
		if existing == s {
			scenes = append(scenes, next)
		}
	}
	d.Scenes = scenes
	d.Renumber()
	return nil
}

func stateAfterEdit(b *Batch) State {
	if b.AllTranslated() {
		return StateTranslated
	}
	return StatePending
}

// checkSequential returns numbers sorted, or an error when they leave a gap.
func checkSequential(numbers []int) ([]int, error) {
	sorted := append([]int(nil), numbers...)
	sort.Ints(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1]+1 {
			return nil, fmt.Errorf("%w: %v", ErrNotSequential, numbers)
		}
	}
	return sorted, nil
}
