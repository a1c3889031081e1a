package service

import (
	"context"
	"fmt"

	"golang.org/x/text/language"

	"github.com/MimeLyc/scene-sub-translator/internal/jobs"
	"github.com/MimeLyc/scene-sub-translator/internal/project"
	"github.com/MimeLyc/scene-sub-translator/internal/scene"
	"github.com/MimeLyc/scene-sub-translator/internal/translator"
)

// ProjectRecorder is told which project a job is working on.
type ProjectRecorder interface {
	SetProjectID(jobID, projectID string)
}

// JobExecutor runs queued jobs through t and feeds progress back to the queue.
func (t *FileTranslator) JobExecutor(rec ProjectRecorder) jobs.Executor {
	return func(ctx context.Context, job *jobs.TranslationJob, progress jobs.ProgressFunc) error {
		req, err := requestForJob(job)
		if err != nil {
			return err
		}
		req.Observe = func(p *project.Project, events *translator.Events) {
			if rec != nil {
				rec.SetProjectID(job.ID, p.ID)
			}
			trackProgress(p, events, progress)
		}

		_, err = t.Translate(ctx, req)
		return err
	}
}

func requestForJob(job *jobs.TranslationJob) (Request, error) {
	opts := job.Payload.Options
	req := Request{
		InputPath:  job.Payload.InputPath,
		OutputPath: job.Payload.OutputPath,
		Run: translator.RunOptions{
			Preview:  opts.Preview,
			Resume:   opts.Resume,
			Reparse:  opts.Reparse,
			MaxLines: opts.MaxLines,
		},
	}
	if opts.TargetLanguage != "" {
		tag, err := language.Parse(opts.TargetLanguage)
		if err != nil {
			return Request{}, fmt.Errorf("invalid target language %q: %w", opts.TargetLanguage, err)
		}
		req.TargetLanguage = tag
	}
	return req, nil
}

// trackProgress counts batches as they complete.
func trackProgress(p *project.Project, events *translator.Events, progress jobs.ProgressFunc) {
	if progress == nil {
		return
	}
	var current jobs.Progress

	events.OnPreprocessed(func(scenes []*scene.Scene) {
		lock := p.Locker()
		lock.Lock()
		current = jobs.Progress{Scenes: len(scenes)}
		for _, s := range scenes {
			for _, b := range s.Batches {
				current.Batches++
				current.Lines += b.LineCount()
				current.TranslatedLines += len(b.Translated)
			}
		}
		lock.Unlock()
		progress(current)
	})
	events.OnBatchTranslated(func(*scene.Batch) {
		lock := p.Locker()
		lock.Lock()
		current.DoneBatches++
		current.TranslatedLines = countTranslated(p.Document())
		lock.Unlock()
		progress(current)
	})
}

func countTranslated(doc *scene.Document) int {
	n := 0
	for _, b := range doc.Batches() {
		n += len(b.Translated)
	}
	return n
}
