package project

import (
	"errors"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/scene-sub-translator/internal/scene"
	"github.com/MimeLyc/scene-sub-translator/internal/subtitle"
)

// Snapshot is the JSON form of a project.
type Snapshot struct {
	ID             string          `json:"id"`
	SourcePath     string          `json:"source_path"`
	SourceLanguage string          `json:"source_language,omitempty"`
	TargetLanguage string          `json:"target_language,omitempty"`
	Scenes         []SceneSnapshot `json:"scenes"`
	SavedAt        time.Time       `json:"saved_at"`
}

type SceneSnapshot struct {
	Number  int             `json:"number"`
	Summary string          `json:"summary,omitempty"`
	Context map[string]any  `json:"context,omitempty"`
	Batches []BatchSnapshot `json:"batches"`
}

type BatchSnapshot struct {
	Number      int             `json:"number"`
	State       scene.State     `json:"state"`
	Originals   []subtitle.Line `json:"originals"`
	Translated  []subtitle.Line `json:"translated,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	Context     map[string]any  `json:"context,omitempty"`
	Errors      []string        `json:"errors,omitempty"`
	Translation *scene.Round    `json:"translation,omitempty"`
}

// Snapshot captures the current project state.
func (p *Project) Snapshot() *Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := &Snapshot{
		ID:         p.ID,
		SourcePath: p.SourcePath,
		Scenes:     make([]SceneSnapshot, 0, len(p.doc.Scenes)),
		SavedAt:    time.Now().UTC(),
	}
	if p.SourceLanguage != language.Und {
		snap.SourceLanguage = p.SourceLanguage.String()
	}
	if p.TargetLanguage != language.Und {
		snap.TargetLanguage = p.TargetLanguage.String()
	}

	for _, s := range p.doc.Scenes {
		ss := SceneSnapshot{
			Number:  s.Number,
			Summary: s.Summary,
			Context: copyContext(s.Context),
			Batches: make([]BatchSnapshot, 0, len(s.Batches)),
		}
		for _, b := range s.Batches {
			bs := BatchSnapshot{
				Number:     b.Number,
				State:      b.State,
				Originals:  append([]subtitle.Line(nil), b.Originals...),
				Translated: append([]subtitle.Line(nil), b.Translated...),
				Summary:    b.Summary,
				Context:    copyContext(b.Context),
			}
			for _, err := range b.Errors {
				bs.Errors = append(bs.Errors, err.Error())
			}
			if b.Translation != nil {
				round := *b.Translation
				bs.Translation = &round
			}
			ss.Batches = append(ss.Batches, bs)
		}
		snap.Scenes = append(snap.Scenes, ss)
	}
	return snap
}

// Restore replaces the project state with snap. Errors come back as plain
// errors carrying the stored message.
func (p *Project) Restore(snap *Snapshot) {
	scenes := make([]*scene.Scene, 0, len(snap.Scenes))
	for _, ss := range snap.Scenes {
		s := scene.NewScene(ss.Number)
		s.Summary = ss.Summary
		for k, v := range ss.Context {
			s.SetContext(k, v)
		}
		for _, bs := range ss.Batches {
			b := scene.NewBatch(ss.Number, bs.Number)
			b.State = bs.State
			if b.State == "" || b.State == scene.StateRequested || b.State == scene.StateRetrying {
				b.State = scene.StatePending
			}
			b.Originals = append([]subtitle.Line(nil), bs.Originals...)
			b.Translated = append([]subtitle.Line(nil), bs.Translated...)
			b.Summary = bs.Summary
			for k, v := range bs.Context {
				b.SetContext(k, v)
			}
			for _, msg := range bs.Errors {
				b.Errors = append(b.Errors, errors.New(msg))
			}
			if bs.Translation != nil {
				round := *bs.Translation
				b.Translation = &round
			}
			s.Batches = append(s.Batches, b)
		}
		scenes = append(scenes, s)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.ID = snap.ID
	p.SourcePath = snap.SourcePath
	p.SourceLanguage = parseTag(snap.SourceLanguage)
	p.TargetLanguage = parseTag(snap.TargetLanguage)
	p.doc = &scene.Document{Scenes: scenes}
	p.dirty.Store(false)
}

func copyContext(ctx map[string]any) map[string]any {
	if len(ctx) == 0 {
		return nil
	}
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}

func parseTag(s string) language.Tag {
	if s == "" {
		return language.Und
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und
	}
	return tag
}
