package translator

import (
	"context"

	"github.com/MimeLyc/scene-sub-translator/internal/scene"
	"github.com/MimeLyc/scene-sub-translator/internal/subtitle"
)

// Request is one batch translation request.
type Request struct {
	Scene   int
	Batch   int
	Prompt  scene.Prompt
	Lines   []subtitle.Line
	Context map[string]any
}

// Client sends translation requests to a provider. Transport retries and
// rate limiting belong to the client; content signals come back on the Round.
type Client interface {
	RequestTranslation(ctx context.Context, req Request) (*scene.Round, error)
	RequestRetranslation(ctx context.Context, prior *scene.Round, errs []error) (*scene.Round, error)
	SupportsParallelRequests() bool
}

// Settings are fixed for the lifetime of an Orchestrator.
type Settings struct {
	SourceLanguage      string
	TargetLanguage      string
	Instructions        string
	Synopsis            string
	Characters          []string
	Names               []string
	MaxContextSummaries int
	StopOnError         bool
	RetryOnError        bool
	MaxConcurrentScenes int
}

// RunOptions select the mode of a single run.
type RunOptions struct {
	// Preview segments and builds context without sending requests.
	Preview bool
	// Resume skips batches that are already fully translated.
	Resume bool
	// Reparse re-reads each batch's stored response instead of requesting a new one.
	Reparse bool
	// MaxLines caps the number of lines sent across the document. Zero means no cap.
	MaxLines int
}

// BatchRef identifies a batch and its outstanding errors.
type BatchRef struct {
	Scene  int      `json:"scene"`
	Batch  int      `json:"batch"`
	Errors []string `json:"errors,omitempty"`
}

// Report summarises a run.
type Report struct {
	Scenes            int        `json:"scenes"`
	Batches           int        `json:"batches"`
	Lines             int        `json:"lines"`
	TranslatedLines   int        `json:"translated_lines"`
	UntranslatedLines []int      `json:"untranslated_lines,omitempty"`
	FailedBatches     []BatchRef `json:"failed_batches,omitempty"`
	Aborted           bool       `json:"aborted"`
}

// NewReport summarises the current state of doc.
func NewReport(doc *scene.Document) *Report {
	r := &Report{Scenes: doc.SceneCount()}
	for _, b := range doc.Batches() {
		r.Batches++
		r.Lines += b.LineCount()
		r.TranslatedLines += len(b.Translated)
		r.UntranslatedLines = append(r.UntranslatedLines, b.Untranslated()...)
		if b.State == scene.StateFailed || b.HasErrors() {
			ref := BatchRef{Scene: b.Scene, Batch: b.Number}
			for _, err := range b.Errors {
				ref.Errors = append(ref.Errors, err.Error())
			}
			r.FailedBatches = append(r.FailedBatches, ref)
		}
	}
	return r
}
