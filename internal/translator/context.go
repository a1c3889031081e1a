package translator

import (
	"fmt"

	"github.com/MimeLyc/scene-sub-translator/internal/scene"
)

// Context keys stored on batches and passed to clients.
const (
	ContextSynopsis          = "synopsis"
	ContextCharacters        = "characters"
	ContextNames             = "names"
	ContextHistory           = "history"
	ContextScene             = "scene"
	ContextPreviousBatch     = "previous_batch"
	ContextSubstitutions     = "substitutions"
	ContextRetranslatedLines = "retranslated_lines"
	ContextTruncatedRetry    = "truncated_retry"
)

const previousBatchTail = 3

// runningContext carries narrative state from one batch to the next.
type runningContext struct {
	maxSummaries int
	summaries    []string
	synopsis     string
	characters   []string
	names        []string
	sceneSummary string
	previous     *scene.Batch
}

func newRunningContext(settings Settings) *runningContext {
	return &runningContext{
		maxSummaries: settings.MaxContextSummaries,
		synopsis:     settings.Synopsis,
		characters:   append([]string(nil), settings.Characters...),
		names:        append([]string(nil), settings.Names...),
	}
}

func (rc *runningContext) startScene(s *scene.Scene) {
	rc.sceneSummary = s.Summary
}

func (rc *runningContext) addSummary(label, summary string) {
	if summary == "" || rc.maxSummaries <= 0 {
		return
	}
	rc.summaries = append(rc.summaries, fmt.Sprintf("%s: %s", label, summary))
	if over := len(rc.summaries) - rc.maxSummaries; over > 0 {
		rc.summaries = rc.summaries[over:]
	}
}

// absorb takes what a batch learned into the running context.
func (rc *runningContext) absorb(b *scene.Batch) {
	rc.previous = b
	if b.Summary != "" {
		rc.addSummary(fmt.Sprintf("Scene %d batch %d", b.Scene, b.Number), b.Summary)
	}
	if b.Translation == nil {
		return
	}
	if b.Translation.Scene != "" {
		rc.sceneSummary = b.Translation.Scene
	}
	if b.Translation.Synopsis != "" {
		rc.synopsis = b.Translation.Synopsis
	}
	rc.characters = mergeUnique(rc.characters, b.Translation.Characters)
	rc.names = mergeUnique(rc.names, b.Translation.Names)
}

// values renders the context for a request. The previous batch is only
// used for prompt continuity.
func (rc *runningContext) values() map[string]any {
	v := make(map[string]any)
	if rc.synopsis != "" {
		v[ContextSynopsis] = rc.synopsis
	}
	if len(rc.characters) > 0 {
		v[ContextCharacters] = append([]string(nil), rc.characters...)
	}
	if len(rc.names) > 0 {
		v[ContextNames] = append([]string(nil), rc.names...)
	}
	if len(rc.summaries) > 0 {
		v[ContextHistory] = append([]string(nil), rc.summaries...)
	}
	if rc.sceneSummary != "" {
		v[ContextScene] = rc.sceneSummary
	}
	if rc.previous != nil {
		lines := rc.previous.Originals
		if len(lines) > previousBatchTail {
			lines = lines[len(lines)-previousBatchTail:]
		}
		tail := make([]string, 0, len(lines))
		for _, line := range lines {
			tail = append(tail, line.OutputText())
		}
		v[ContextPreviousBatch] = tail
	}
	return v
}

func mergeUnique(base, extra []string) []string {
	if len(extra) == 0 {
		return base
	}
	seen := make(map[string]bool, len(base)+len(extra))
	for _, s := range base {
		seen[s] = true
	}
	for _, s := range extra {
		if s != "" && !seen[s] {
			base = append(base, s)
			seen[s] = true
		}
	}
	return base
}
