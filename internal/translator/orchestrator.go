package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/scene-sub-translator/internal/scene"
	"github.com/MimeLyc/scene-sub-translator/internal/substitution"
	"github.com/MimeLyc/scene-sub-translator/internal/subtitle"
	"github.com/MimeLyc/scene-sub-translator/internal/validator"
	"github.com/MimeLyc/scene-sub-translator/pkg/log"
)

// Orchestrator drives batches through request, validation and retry.
type Orchestrator struct {
	client    Client
	settings  Settings
	validator validator.Validator
	subs      *substitution.Substitutions
	events    *Events
	lock      sync.Locker

	aborted atomic.Bool
}

type Option func(*Orchestrator)

func WithValidator(v validator.Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

func WithSubstitutions(s *substitution.Substitutions) Option {
	return func(o *Orchestrator) { o.subs = s }
}

func WithEvents(e *Events) Option {
	return func(o *Orchestrator) { o.events = e }
}

// WithLocker shares the document lock with other readers such as autosave.
func WithLocker(l sync.Locker) Option {
	return func(o *Orchestrator) { o.lock = l }
}

func NewOrchestrator(client Client, settings Settings, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:   client,
		settings: settings,
		events:   NewEvents(),
		lock:     &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Events() *Events {
	return o.events
}

// Abort asks the run to stop at the next check point.
func (o *Orchestrator) Abort() {
	o.aborted.Store(true)
}

func (o *Orchestrator) Aborted() bool {
	return o.aborted.Load()
}

func (o *Orchestrator) checkAbort(ctx context.Context) error {
	if o.aborted.Load() {
		return NewError(ErrAborted, "translation aborted")
	}
	if err := ctx.Err(); err != nil {
		return NewErrorWithCause(ErrAborted, "translation aborted", err)
	}
	return nil
}

// TranslateDocument translates every scene in order and returns a report of
// the document state, also when the run ends with an error.
func (o *Orchestrator) TranslateDocument(ctx context.Context, doc *scene.Document, run RunOptions) (*Report, error) {
	err := o.translateDocument(ctx, doc, run)

	o.lock.Lock()
	report := NewReport(doc)
	o.lock.Unlock()
	report.Aborted = IsAborted(err)

	if err != nil {
		return report, err
	}
	log.Info("Translated %d of %d lines (%d failed batches)", report.TranslatedLines, report.Lines, len(report.FailedBatches))
	return report, nil
}

func (o *Orchestrator) translateDocument(ctx context.Context, doc *scene.Document, run RunOptions) error {
	if err := o.checkAbort(ctx); err != nil {
		return err
	}

	o.events.emitPreprocessed(doc.Scenes)

	budget := newLineBudget(run.MaxLines)

	if o.parallel(run) {
		return o.translateScenesParallel(ctx, doc.Scenes, run)
	}

	rc := newRunningContext(o.settings)
	for _, s := range doc.Scenes {
		if err := o.checkAbort(ctx); err != nil {
			return err
		}
		if budget.exhausted() {
			log.Info("Line limit of %d reached, stopping", run.MaxLines)
			break
		}
		if err := o.translateScene(ctx, s, nil, rc, budget, run); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) parallel(run RunOptions) bool {
	return o.settings.MaxConcurrentScenes > 1 &&
		run.MaxLines <= 0 &&
		!run.Preview &&
		o.client != nil &&
		o.client.SupportsParallelRequests()
}

// translateScenesParallel runs scenes concurrently. Each scene keeps its own
// running context so batch order within a scene is unchanged.
func (o *Orchestrator) translateScenesParallel(ctx context.Context, scenes []*scene.Scene, run RunOptions) error {
	log.Info("Translating %d scenes with up to %d concurrent requests", len(scenes), o.settings.MaxConcurrentScenes)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.settings.MaxConcurrentScenes)
	budget := newLineBudget(0)

	for _, s := range scenes {
		g.Go(func() error {
			if err := o.checkAbort(gctx); err != nil {
				return err
			}
			return o.translateScene(gctx, s, nil, newRunningContext(o.settings), budget, run)
		})
	}
	return g.Wait()
}

// TranslateScene translates the listed batches of one scene, or all of them when batchNumbers is empty.
func (o *Orchestrator) TranslateScene(ctx context.Context, doc *scene.Document, sceneNumber int, batchNumbers []int, run RunOptions) error {
	s := doc.GetScene(sceneNumber)
	if s == nil {
		return fmt.Errorf("%w: %d", scene.ErrSceneNotFound, sceneNumber)
	}
	if err := o.checkAbort(ctx); err != nil {
		return err
	}
	return o.translateScene(ctx, s, batchNumbers, newRunningContext(o.settings), newLineBudget(run.MaxLines), run)
}

func (o *Orchestrator) translateScene(ctx context.Context, s *scene.Scene, batchNumbers []int, rc *runningContext, budget *lineBudget, run RunOptions) error {
	o.lock.Lock()
	rc.startScene(s)
	batches := selectBatches(s, batchNumbers)
	o.lock.Unlock()

	for _, b := range batches {
		if err := o.checkAbort(ctx); err != nil {
			return err
		}
		if budget.exhausted() {
			break
		}

		if run.Resume && o.allTranslated(b) {
			log.Debug("Skipping %s, already translated", b)
			o.lock.Lock()
			rc.absorb(b)
			o.lock.Unlock()
			continue
		}

		err := o.translateBatch(ctx, b, rc, budget, run)
		if err != nil && IsFatal(err) {
			return err
		}

		o.lock.Lock()
		rc.absorb(b)
		o.lock.Unlock()
		o.events.emitBatchTranslated(b)

		if err != nil {
			if o.settings.StopOnError {
				log.Error("Stopping after failure in %s: %v", b, err)
				return err
			}
			log.Warn("Failed to translate %s: %v", b, err)
		}
	}

	o.lock.Lock()
	if summary := bestSummary(rc.sceneSummary, lastSummary(batches)); summary != "" {
		s.Summary = summary
	}
	o.lock.Unlock()
	o.events.emitSceneTranslated(s)
	return nil
}

// TranslateBatch runs a single batch outside a document run, using only the
// configured synopsis and characters as context.
func (o *Orchestrator) TranslateBatch(ctx context.Context, b *scene.Batch, run RunOptions) error {
	if err := o.checkAbort(ctx); err != nil {
		return err
	}
	return o.translateBatch(ctx, b, newRunningContext(o.settings), newLineBudget(run.MaxLines), run)
}

func (o *Orchestrator) translateBatch(ctx context.Context, b *scene.Batch, rc *runningContext, budget *lineBudget, run RunOptions) error {
	o.lock.Lock()
	lines := budget.take(nonEmpty(b.Originals))
	if len(lines) == 0 {
		if len(nonEmpty(b.Originals)) == 0 {
			b.State = scene.StateTranslated
			b.Errors = nil
		}
		o.lock.Unlock()
		return nil
	}

	lines, applied := o.substituteSource(lines)
	if len(applied) > 0 {
		b.SetContext(ContextSubstitutions, applied)
	}
	values := rc.values()
	for k, v := range values {
		b.SetContext(k, v)
	}
	stored := b.Translation
	sceneNumber, batchNumber := b.Scene, b.Number
	o.lock.Unlock()

	if run.Preview {
		log.Info("Preview %s: %d lines", b, len(lines))
		return nil
	}

	var round *scene.Round
	if run.Reparse {
		if stored == nil {
			log.Debug("No stored response for %s, nothing to reparse", b)
			return nil
		}
		round = stored
	} else {
		log.Info("Translating %s (%d lines)", b, len(lines))
		o.setState(b, scene.StateRequested)

		req := Request{
			Scene:   sceneNumber,
			Batch:   batchNumber,
			Prompt:  BuildPrompt(o.settings, sceneNumber, batchNumber, lines, values),
			Lines:   lines,
			Context: values,
		}
		var err error
		round, err = o.request(ctx, b, req)
		if err != nil {
			return err
		}
	}

	o.processRound(b, round, lines)

	o.lock.Lock()
	errs := b.Errors
	o.lock.Unlock()

	if len(errs) > 0 && o.settings.RetryOnError && !run.Reparse {
		if err := o.retranslate(ctx, b, round, lines); err != nil {
			return err
		}
	}

	o.lock.Lock()
	defer o.lock.Unlock()
	if len(b.Errors) > 0 {
		b.State = scene.StateFailed
		return NewError(ErrValidation, joinErrors(b.Errors)).
			WithContext("scene", b.Scene).
			WithContext("batch", b.Number)
	}
	b.State = scene.StateTranslated
	return nil
}

// request sends a translation and handles quota and truncation signals.
func (o *Orchestrator) request(ctx context.Context, b *scene.Batch, req Request) (*scene.Round, error) {
	round, err := o.send(ctx, b, req)
	if err != nil {
		return nil, err
	}

	if round.ReachedTokenLimit {
		log.Warn("Hit the generation limit on %s, retrying without context", b)
		o.lock.Lock()
		b.SetContext(ContextTruncatedRetry, true)
		o.lock.Unlock()

		req.Context = nil
		req.Prompt = BuildPrompt(o.settings, req.Scene, req.Batch, req.Lines, nil)
		round, err = o.send(ctx, b, req)
		if err != nil {
			return nil, err
		}
		if round.ReachedTokenLimit {
			o.markFailed(b, errors.New("response truncated twice"))
			return nil, NewError(ErrTruncated, "too many tokens in translation").
				WithContext("scene", b.Scene).
				WithContext("batch", b.Number)
		}
	}
	return round, nil
}

func (o *Orchestrator) send(ctx context.Context, b *scene.Batch, req Request) (*scene.Round, error) {
	round, err := o.client.RequestTranslation(ctx, req)
	if abortErr := o.checkAbort(ctx); abortErr != nil {
		return nil, abortErr
	}
	if err != nil {
		o.markFailed(b, err)
		return nil, WrapError(err, ErrTranslationImpossible, fmt.Sprintf("translation request failed for %s", b))
	}
	if round == nil {
		o.markFailed(b, errors.New("no response"))
		return nil, NewError(ErrNoResponse, fmt.Sprintf("no translation returned for %s", b))
	}
	if round.QuotaReached {
		o.markFailed(b, errors.New("quota exhausted"))
		return nil, NewError(ErrTranslationImpossible, "quota exhausted").
			WithContext("scene", b.Scene).
			WithContext("batch", b.Number)
	}
	return round, nil
}

// processRound parses round into b and validates it against the requested lines.
func (o *Orchestrator) processRound(b *scene.Batch, round *scene.Round, lines []subtitle.Line) {
	o.lock.Lock()
	defer o.lock.Unlock()

	body := ExtractTags(round)
	matched, unmatched := o.matchLines(lines, ParseTranslation(body))

	b.Translation = round
	clearTranslations(b, lines)
	b.MergeTranslations(matched)
	if round.Summary != "" {
		b.Summary = round.Summary
	}

	b.Errors = o.validator.ValidateBatch(lines, append(translatedFor(b, lines), unmatched...))
	if len(b.Errors) > 0 {
		b.State = scene.StateInvalid
	} else {
		b.State = scene.StateValidated
	}
}

// retranslate sends one corrective request and merges whatever it fixes.
func (o *Orchestrator) retranslate(ctx context.Context, b *scene.Batch, prior *scene.Round, lines []subtitle.Line) error {
	o.lock.Lock()
	errs := append([]error(nil), b.Errors...)
	b.State = scene.StateRetrying
	o.lock.Unlock()

	log.Warn("Errors detected in %s, requesting retranslation: %s", b, joinErrors(errs))

	round, err := o.client.RequestRetranslation(ctx, prior, errs)
	if abortErr := o.checkAbort(ctx); abortErr != nil {
		return abortErr
	}
	if err != nil {
		o.markFailed(b, err)
		return WrapError(err, ErrTranslationImpossible, fmt.Sprintf("retranslation request failed for %s", b))
	}
	if round == nil {
		log.Warn("Retranslation of %s returned nothing", b)
		return nil
	}
	if round.QuotaReached {
		o.markFailed(b, errors.New("quota exhausted"))
		return NewError(ErrTranslationImpossible, "quota exhausted").
			WithContext("scene", b.Scene).
			WithContext("batch", b.Number)
	}

	o.lock.Lock()
	defer o.lock.Unlock()

	if round.ReachedTokenLimit {
		log.Warn("Retranslation of %s hit the generation limit, keeping the partial result", b)
		b.SetContext(ContextTruncatedRetry, true)
	}

	body := ExtractTags(round)
	matched, stillUnmatched := o.matchLines(lines, ParseTranslation(body))
	if len(matched) == 0 {
		log.Info("Retranslation of %s did not produce a useful result", b)
		return nil
	}

	retranslated := make([]string, 0, len(matched))
	for _, line := range matched {
		retranslated = append(retranslated, fmt.Sprintf("%d. %s", line.Number, line.Text))
	}
	b.SetContext(ContextRetranslatedLines, retranslated)
	b.MergeTranslations(matched)
	if round.Summary != "" {
		b.Summary = round.Summary
	}

	b.Errors = o.validator.ValidateBatch(lines, append(translatedFor(b, lines), stillUnmatched...))
	if len(b.Errors) == 0 {
		log.Info("Retranslation of %s passed validation", b)
	}
	return nil
}

// matchLines splits parsed lines into those answering a request line (with
// output substitutions applied) and the rest.
func (o *Orchestrator) matchLines(requested, parsed []subtitle.Line) (matched, unmatched []subtitle.Line) {
	want := make(map[int]bool, len(requested))
	for _, line := range requested {
		want[line.Number] = true
	}
	for _, line := range parsed {
		if line.Number == 0 || !want[line.Number] {
			unmatched = append(unmatched, line)
			continue
		}
		if !o.subs.Empty() {
			line.Text, _ = o.subs.Apply(line.Text)
		}
		matched = append(matched, line)
	}
	return matched, unmatched
}

func (o *Orchestrator) substituteSource(lines []subtitle.Line) ([]subtitle.Line, substitution.Map) {
	if o.subs.Empty() {
		return lines, nil
	}
	out := make([]subtitle.Line, len(lines))
	applied := make(substitution.Map)
	for i, line := range lines {
		var m substitution.Map
		line.Text, m = o.subs.Apply(line.Text)
		for k, v := range m {
			applied[k] = v
		}
		out[i] = line
	}
	return out, applied
}

func (o *Orchestrator) allTranslated(b *scene.Batch) bool {
	o.lock.Lock()
	defer o.lock.Unlock()
	return b.AllTranslated()
}

func (o *Orchestrator) setState(b *scene.Batch, state scene.State) {
	o.lock.Lock()
	b.State = state
	o.lock.Unlock()
}

func (o *Orchestrator) markFailed(b *scene.Batch, err error) {
	o.lock.Lock()
	b.State = scene.StateFailed
	b.Errors = []error{err}
	o.lock.Unlock()
}

func selectBatches(s *scene.Scene, numbers []int) []*scene.Batch {
	if len(numbers) == 0 {
		return append([]*scene.Batch(nil), s.Batches...)
	}
	want := make(map[int]bool, len(numbers))
	for _, n := range numbers {
		want[n] = true
	}
	var out []*scene.Batch
	for _, b := range s.Batches {
		if want[b.Number] {
			out = append(out, b)
		}
	}
	return out
}

func nonEmpty(lines []subtitle.Line) []subtitle.Line {
	out := make([]subtitle.Line, 0, len(lines))
	for _, line := range lines {
		if !line.IsEmpty() {
			out = append(out, line)
		}
	}
	return out
}

// clearTranslations drops earlier translations of the lines about to be replaced.
func clearTranslations(b *scene.Batch, lines []subtitle.Line) {
	drop := make(map[int]bool, len(lines))
	for _, line := range lines {
		drop[line.Number] = true
	}
	kept := b.Translated[:0]
	for _, line := range b.Translated {
		if !drop[line.Number] {
			kept = append(kept, line)
		}
	}
	b.Translated = kept
	for i := range b.Originals {
		if drop[b.Originals[i].Number] {
			b.Originals[i].TranslatedText = ""
		}
	}
}

func translatedFor(b *scene.Batch, lines []subtitle.Line) []subtitle.Line {
	want := make(map[int]bool, len(lines))
	for _, line := range lines {
		want[line.Number] = true
	}
	var out []subtitle.Line
	for _, line := range b.Translated {
		if want[line.Number] {
			out = append(out, line)
		}
	}
	return out
}

func bestSummary(candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

func lastSummary(batches []*scene.Batch) string {
	for i := len(batches) - 1; i >= 0; i-- {
		if batches[i].Summary != "" {
			return batches[i].Summary
		}
	}
	return ""
}

func joinErrors(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// lineBudget caps the number of lines sent across a run.
type lineBudget struct {
	mu        sync.Mutex
	limited   bool
	remaining int
}

func newLineBudget(max int) *lineBudget {
	return &lineBudget{limited: max > 0, remaining: max}
}

func (lb *lineBudget) exhausted() bool {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.limited && lb.remaining <= 0
}

func (lb *lineBudget) take(lines []subtitle.Line) []subtitle.Line {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if !lb.limited {
		return lines
	}
	if len(lines) > lb.remaining {
		lines = lines[:lb.remaining]
	}
	lb.remaining -= len(lines)
	return lines
}
