// Package project keeps a segmented subtitle document together with its
// persistence and autosave schedule.
package project

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"

	"github.com/MimeLyc/scene-sub-translator/internal/config"
	"github.com/MimeLyc/scene-sub-translator/internal/preprocess"
	"github.com/MimeLyc/scene-sub-translator/internal/scene"
	"github.com/MimeLyc/scene-sub-translator/internal/splitter"
	"github.com/MimeLyc/scene-sub-translator/internal/subtitle"
	"github.com/MimeLyc/scene-sub-translator/internal/translator"
	"github.com/MimeLyc/scene-sub-translator/pkg/icron"
	"github.com/MimeLyc/scene-sub-translator/pkg/log"
)

var ErrNoStore = errors.New("project has no store")

// Project is one subtitle file being translated.
type Project struct {
	ID             string
	SourcePath     string
	SourceLanguage language.Tag
	TargetLanguage language.Tag

	mu    sync.Mutex
	doc   *scene.Document
	dirty atomic.Bool

	store Store
	saves singleflight.Group

	cronMu sync.Mutex
	cron   *cron.Cron
}

type Option func(*Project)

func WithStore(s Store) Option {
	return func(p *Project) { p.store = s }
}

func WithLanguages(source, target language.Tag) Option {
	return func(p *Project) {
		p.SourceLanguage = source
		p.TargetLanguage = target
	}
}

// ID derives a stable project id from the source path.
func ID(sourcePath string) string {
	if abs, err := filepath.Abs(sourcePath); err == nil {
		sourcePath = abs
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+sourcePath)).String()
}

// New segments lines into a fresh project.
func New(sourcePath string, lines []subtitle.Line, seg config.SegmentConfig, opts ...Option) *Project {
	p := &Project{
		ID:         ID(sourcePath),
		SourcePath: sourcePath,
		doc:        Segment(lines, seg),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.dirty.Store(true)
	return p
}

// Segment preprocesses, splits, renumbers and batches lines.
func Segment(lines []subtitle.Line, seg config.SegmentConfig) *scene.Document {
	pre := preprocess.New(preprocess.Options{
		WhitespaceToNewline: seg.WhitespaceToNewline,
		FullWidthComma:      seg.FullWidthComma,
		BreakDialog:         seg.BreakDialog,
		NormaliseDialog:     seg.NormaliseDialog,
		DialogMarker:        seg.DialogMarker,
	})
	lines = pre.PreprocessAll(lines)

	split := splitter.New(seg.MaxLineDuration, seg.MinLineDuration, seg.MinSplitChars, seg.MinGap, seg.DialogMarker)
	lines = split.SplitAll(lines)
	for i := range lines {
		lines[i].Number = i + 1
	}

	batcher := scene.NewBatcher(seg.SceneThreshold, seg.BatchThreshold, seg.MinBatchSize, seg.MaxBatchSize)
	doc := scene.NewDocument(batcher.Batch(lines))
	log.Debug("Segmented %d lines into %d scenes", len(lines), doc.SceneCount())
	return doc
}

// Document returns the underlying document. Hold Locker while reading it
// during a run.
func (p *Project) Document() *scene.Document {
	return p.doc
}

// Locker is the lock shared with the orchestrator.
func (p *Project) Locker() sync.Locker {
	return &p.mu
}

func (p *Project) Dirty() bool {
	return p.dirty.Load()
}

func (p *Project) MarkDirty() {
	p.dirty.Store(true)
}

// AttachEvents marks the project dirty whenever a batch or scene completes.
func (p *Project) AttachEvents(events *translator.Events) {
	events.OnBatchTranslated(func(*scene.Batch) { p.MarkDirty() })
	events.OnSceneTranslated(func(*scene.Scene) { p.MarkDirty() })
}

// Lines returns the current lines with their translations.
func (p *Project) Lines() []subtitle.Line {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Lines()
}

// Save writes a snapshot to the store. Concurrent calls share one write.
func (p *Project) Save(ctx context.Context) error {
	if p.store == nil {
		return ErrNoStore
	}
	_, err, _ := p.saves.Do(p.ID, func() (any, error) {
		p.dirty.Store(false)
		snap := p.Snapshot()
		if err := p.store.SaveProject(ctx, &Record{
			ID:         p.ID,
			SourcePath: p.SourcePath,
			Snapshot:   snap,
			UpdatedAt:  snap.SavedAt,
		}); err != nil {
			p.dirty.Store(true)
			return nil, fmt.Errorf("save project %s: %w", p.ID, err)
		}
		log.Debug("Saved project %s", p.ID)
		return nil, nil
	})
	return err
}

// Load restores a saved project for sourcePath from store.
func Load(ctx context.Context, store Store, sourcePath string) (*Project, error) {
	rec, err := store.LoadProject(ctx, ID(sourcePath))
	if err != nil {
		return nil, err
	}
	if rec.Snapshot == nil {
		return nil, fmt.Errorf("project %s has no snapshot", rec.ID)
	}
	return FromSnapshot(rec.Snapshot, WithStore(store)), nil
}

// FromSnapshot rebuilds a project from snap.
func FromSnapshot(snap *Snapshot, opts ...Option) *Project {
	p := &Project{}
	for _, opt := range opts {
		opt(p)
	}
	p.Restore(snap)
	return p
}

// Edit runs fn on the document under the project lock and marks the project
// dirty when fn succeeds.
func (p *Project) Edit(fn func(doc *scene.Document) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := fn(p.doc); err != nil {
		return err
	}
	p.dirty.Store(true)
	return nil
}

// StartAutosave saves the project on spec whenever it is dirty.
func (p *Project) StartAutosave(spec string) error {
	if p.store == nil {
		return ErrNoStore
	}
	p.cronMu.Lock()
	defer p.cronMu.Unlock()
	if p.cron != nil {
		return fmt.Errorf("autosave already running")
	}

	c := cron.New(cron.WithParser(icron.Parser))
	if _, err := c.AddFunc(spec, p.autosave); err != nil {
		return fmt.Errorf("invalid autosave spec %q: %w", spec, err)
	}
	c.Start()
	p.cron = c
	if info, err := icron.GetTriggerInfo(spec, time.Now()); err == nil {
		log.Info("Autosave enabled for %s (%s), first save in %v", p.SourcePath, spec, info.TimeUntilNext.Round(time.Second))
	}
	return nil
}

func (p *Project) autosave() {
	if !p.Dirty() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.Save(ctx); err != nil {
		log.Warn("Autosave failed: %v", err)
	}
}

// Close stops autosave and writes any unsaved changes.
func (p *Project) Close(ctx context.Context) error {
	p.cronMu.Lock()
	if p.cron != nil {
		<-p.cron.Stop().Done()
		p.cron = nil
	}
	p.cronMu.Unlock()

	if p.store != nil && p.Dirty() {
		return p.Save(ctx)
	}
	return nil
}
