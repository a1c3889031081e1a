package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/text/language"

	"github.com/MimeLyc/scene-sub-translator/internal/config"
	"github.com/MimeLyc/scene-sub-translator/internal/project"
	"github.com/MimeLyc/scene-sub-translator/internal/provider"
	"github.com/MimeLyc/scene-sub-translator/internal/substitution"
	"github.com/MimeLyc/scene-sub-translator/internal/subtitle"
	"github.com/MimeLyc/scene-sub-translator/internal/translator"
	"github.com/MimeLyc/scene-sub-translator/internal/validator"
	"github.com/MimeLyc/scene-sub-translator/pkg/file"
	"github.com/MimeLyc/scene-sub-translator/pkg/log"
)

// Observer is called once the project and orchestrator for a request exist,
// before translation starts.
type Observer func(p *project.Project, events *translator.Events)

// Request describes one file translation.
type Request struct {
	InputPath  string
	OutputPath string
	// TargetLanguage overrides the configured target when set.
	TargetLanguage language.Tag
	Run            translator.RunOptions
	Observe        Observer
}

// FileTranslator reads a subtitle file, translates it scene by scene and
// writes the result next to it.
type FileTranslator struct {
	cfg      *config.Config
	fs       afero.Fs
	reader   subtitle.Reader
	writer   subtitle.Writer
	client   translator.Client
	store    project.Store
	registry *provider.Registry
	handler  translator.ErrorHandler
}

type Option func(*FileTranslator)

func WithFs(fs afero.Fs) Option {
	return func(t *FileTranslator) { t.fs = fs }
}

// WithClient bypasses the provider registry.
func WithClient(c translator.Client) Option {
	return func(t *FileTranslator) { t.client = c }
}

func WithStore(s project.Store) Option {
	return func(t *FileTranslator) { t.store = s }
}

func WithRegistry(r *provider.Registry) Option {
	return func(t *FileTranslator) { t.registry = r }
}

func NewFileTranslator(cfg *config.Config, opts ...Option) (*FileTranslator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	t := &FileTranslator{
		cfg:      cfg,
		fs:       afero.NewOsFs(),
		registry: provider.DefaultRegistry(),
		handler:  translator.NewDefaultErrorHandler(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.reader = subtitle.NewReader(t.fs)
	t.writer = subtitle.NewWriter(t.fs)

	if t.client == nil {
		client, err := t.registry.New(ProviderConfig(cfg))
		if err != nil {
			return nil, translator.NewErrorWithCause(translator.ErrTranslationImpossible, "failed to create translation client", err)
		}
		t.client = client
	}
	return t, nil
}

// TranslateFile translates in to out using the configured run options.
// An empty out writes next to in, tagged with the target language.
func (t *FileTranslator) TranslateFile(ctx context.Context, in, out string) (*Result, error) {
	return t.Translate(ctx, Request{
		InputPath:  in,
		OutputPath: out,
		Run:        RunOptions(t.cfg),
	})
}

// Translate runs req: read, detect language, load or create the project,
// translate, write, save.
func (t *FileTranslator) Translate(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()

	target := req.TargetLanguage
	if target == language.Und {
		target = t.cfg.Translate.TargetLanguage
	}
	out := req.OutputPath
	if out == "" {
		out = OutputPath(req.InputPath, target)
	}

	sub, err := t.reader.Read(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.InputPath, err)
	}
	if len(sub.Lines) == 0 {
		return nil, translator.NewError(translator.ErrTranslationImpossible, "subtitle file has no lines").
			WithContext("file", req.InputPath)
	}

	source := t.cfg.Translate.SourceLanguage
	if source == language.Und {
		source = sub.Language
	}
	log.Info("Translating %s (%d lines) from %s to %s", req.InputPath, len(sub.Lines), LanguageName(source), LanguageName(target))

	p, err := t.openProject(ctx, req, sub, source, target)
	if err != nil {
		return nil, err
	}

	subs, err := t.loadSubstitutions(req.InputPath, source, target)
	if err != nil {
		return nil, err
	}

	events := translator.NewEvents()
	p.AttachEvents(events)
	if req.Observe != nil {
		req.Observe(p, events)
	}
	o := translator.NewOrchestrator(t.client, Settings(t.cfg, source, target),
		translator.WithValidator(validator.New(t.cfg.Validation.MaxCharacters, t.cfg.Validation.MaxNewlines)),
		translator.WithSubstitutions(subs),
		translator.WithEvents(events),
		translator.WithLocker(p.Locker()),
	)

	if t.store != nil && t.cfg.Project.Autosave && !req.Run.Preview {
		if err := p.StartAutosave(t.cfg.Project.AutosaveSpec); err != nil {
			log.Warn("Autosave disabled: %v", err)
		}
	}

	report, runErr := o.TranslateDocument(ctx, p.Document(), req.Run)
	if runErr != nil && ctx.Err() != nil && !translator.IsAborted(runErr) {
		runErr = translator.NewErrorWithCause(translator.ErrAborted, "translation aborted", ctx.Err())
	}

	result := &Result{
		InputPath:      req.InputPath,
		OutputPath:     out,
		ProjectID:      p.ID,
		SourceLanguage: source,
		TargetLanguage: target,
		Report:         report,
	}

	if runErr == nil && !req.Run.Preview {
		if err := t.writer.Write(out, &subtitle.File{
			Path:     out,
			Lines:    p.Lines(),
			Language: target,
			Format:   sub.Format,
		}); err != nil {
			runErr = fmt.Errorf("write %s: %w", out, err)
		} else {
			result.Written = true
		}
	}

	if t.store != nil && !req.Run.Preview {
		saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := p.Close(saveCtx); err != nil {
			log.Error("Failed to save project %s: %v", p.ID, err)
		}
		cancel()
	}

	result.Duration = time.Since(started)
	result.log()
	if runErr != nil {
		t.handler.Handle(runErr)
	}
	return result, runErr
}

// openProject restores the saved project on resume or reparse, otherwise
// segments the file afresh.
func (t *FileTranslator) openProject(ctx context.Context, req Request, sub *subtitle.File, source, target language.Tag) (*project.Project, error) {
	opts := []project.Option{project.WithLanguages(source, target)}
	if t.store != nil {
		opts = append(opts, project.WithStore(t.store))
	}

	if t.store != nil && (req.Run.Resume || req.Run.Reparse) {
		p, err := project.Load(ctx, t.store, req.InputPath)
		switch {
		case err == nil:
			log.Info("Resuming project %s", p.ID)
			p.TargetLanguage = target
			return p, nil
		case errors.Is(err, project.ErrProjectNotFound):
			log.Info("No saved project for %s, starting fresh", req.InputPath)
		default:
			return nil, fmt.Errorf("load project: %w", err)
		}
	}

	return project.New(req.InputPath, sub.Lines, t.cfg.Segment, opts...), nil
}

// loadSubstitutions merges the configured file, a file found next to the
// input and inline entries. Inline entries win.
func (t *FileTranslator) loadSubstitutions(inputPath string, source, target language.Tag) (*substitution.Substitutions, error) {
	return buildSubstitutions(t.fs, t.cfg.Translate, filepath.Dir(inputPath), source, target)
}

// OutputPath returns the default output path for in.
func OutputPath(in string, target language.Tag) string {
	base, _ := target.Base()
	return file.LanguageSibling(in, base.String())
}
