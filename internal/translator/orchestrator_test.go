package translator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/scene-sub-translator/internal/scene"
	"github.com/MimeLyc/scene-sub-translator/internal/substitution"
	"github.com/MimeLyc/scene-sub-translator/internal/subtitle"
	"github.com/MimeLyc/scene-sub-translator/internal/validator"
)

type mockClient struct {
	mock.Mock
	parallel bool
}

type roundFunc func(Request) *scene.Round

func (m *mockClient) RequestTranslation(ctx context.Context, req Request) (*scene.Round, error) {
	args := m.Called(ctx, req)
	if fn, ok := args.Get(0).(roundFunc); ok {
		return fn(req), args.Error(1)
	}
	round, _ := args.Get(0).(*scene.Round)
	return round, args.Error(1)
}

func (m *mockClient) RequestRetranslation(ctx context.Context, prior *scene.Round, errs []error) (*scene.Round, error) {
	args := m.Called(ctx, prior, errs)
	round, _ := args.Get(0).(*scene.Round)
	return round, args.Error(1)
}

func (m *mockClient) SupportsParallelRequests() bool {
	return m.parallel
}

// reply renders a well-formed response for lines, translating with fn.
func reply(lines []subtitle.Line, fn func(string) string, tags string) *scene.Round {
	var b strings.Builder
	for _, line := range lines {
		fmt.Fprintf(&b, "#%d\nOriginal>\n%s\nTranslation>\n%s\n\n", line.Number, line.Text, fn(line.Text))
	}
	b.WriteString(tags)
	return &scene.Round{Text: b.String(), FinishReason: "stop"}
}

func upper(s string) string { return strings.ToUpper(s) }

func echo(tags string) roundFunc {
	return func(req Request) *scene.Round {
		return reply(req.Lines, upper, tags)
	}
}

// buildDocument makes scenes of batches with the given line counts.
func buildDocument(t *testing.T, scenes ...[]int) *scene.Document {
	t.Helper()
	var out []*scene.Scene
	number := 1
	start := time.Duration(0)
	for si, batches := range scenes {
		s := scene.NewScene(si + 1)
		for bi, count := range batches {
			b := scene.NewBatch(si+1, bi+1)
			for i := 0; i < count; i++ {
				b.Originals = append(b.Originals, subtitle.Line{
					Number:    number,
					StartTime: start,
					EndTime:   start + time.Second,
					Text:      fmt.Sprintf("line %d", number),
				})
				number++
				start += 2 * time.Second
			}
			s.Batches = append(s.Batches, b)
		}
		out = append(out, s)
	}
	return scene.NewDocument(out)
}

func testSettings() Settings {
	return Settings{
		TargetLanguage:      "Chinese",
		MaxContextSummaries: 3,
		RetryOnError:        true,
	}
}

func newTestOrchestrator(client Client, settings Settings, opts ...Option) *Orchestrator {
	opts = append([]Option{WithValidator(validator.New(40, 2))}, opts...)
	return NewOrchestrator(client, settings, opts...)
}

func TestTranslateDocumentHappyPath(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("RequestTranslation", mock.Anything, mock.Anything).
		Return(echo("<summary>Batch summary</summary>\n<scene>Scene so far</scene>"), nil)

	doc := buildDocument(t, []int{2, 2}, []int{1})
	o := newTestOrchestrator(client, testSettings())

	var events []string
	o.Events().OnPreprocessed(func(s []*scene.Scene) { events = append(events, fmt.Sprintf("preprocessed:%d", len(s))) })
	o.Events().OnBatchTranslated(func(b *scene.Batch) { events = append(events, "batch:"+b.String()) })
	o.Events().OnSceneTranslated(func(s *scene.Scene) { events = append(events, fmt.Sprintf("scene:%d", s.Number)) })

	report, err := o.TranslateDocument(context.Background(), doc, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"preprocessed:2",
		"batch:scene 1 batch 1",
		"batch:scene 1 batch 2",
		"scene:1",
		"batch:scene 2 batch 1",
		"scene:2",
	}, events)

	assert.Equal(t, 5, report.Lines)
	assert.Equal(t, 5, report.TranslatedLines)
	assert.Empty(t, report.FailedBatches)
	assert.Empty(t, report.UntranslatedLines)

	for _, b := range doc.Batches() {
		assert.True(t, b.AllTranslated())
		assert.Equal(t, scene.StateTranslated, b.State)
		assert.Equal(t, "Batch summary", b.Summary)
		assert.Contains(t, b.Translation.Text, "<summary>")
		assert.Equal(t, "Scene so far", b.Translation.Scene)
	}
	assert.Equal(t, "LINE 1", doc.Lines()[0].TranslatedText)
	assert.Equal(t, "Scene so far", doc.GetScene(1).Summary)

	calls := client.Calls
	require.Len(t, calls, 3)
	first := calls[0].Arguments.Get(1).(Request)
	second := calls[1].Arguments.Get(1).(Request)
	assert.NotContains(t, first.Context, ContextHistory)
	assert.Equal(t, []string{"Scene 1 batch 1: Batch summary"}, second.Context[ContextHistory])
	assert.Equal(t, []string{"LINE 1", "LINE 2"}, second.Context[ContextPreviousBatch])
	assert.Contains(t, second.Prompt.User, "Previously:")
	assert.Contains(t, second.Prompt.User, "#3\nOriginal>\nline 3\nTranslation>\n")
}

func TestEmptyLinesAreNotSent(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("RequestTranslation", mock.Anything, mock.Anything).Return(echo(""), nil)

	doc := buildDocument(t, []int{3})
	doc.GetBatch(1, 1).Originals[1].Text = "   "

	o := newTestOrchestrator(client, testSettings())
	_, err := o.TranslateDocument(context.Background(), doc, RunOptions{})
	require.NoError(t, err)

	req := client.Calls[0].Arguments.Get(1).(Request)
	require.Len(t, req.Lines, 2)
	assert.Equal(t, 1, req.Lines[0].Number)
	assert.Equal(t, 3, req.Lines[1].Number)
	assert.NotContains(t, req.Prompt.User, "#2\n")
	assert.Equal(t, scene.StateTranslated, doc.GetBatch(1, 1).State)
}

func TestEmptyLinesDoNotBlockResume(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("RequestTranslation", mock.Anything, mock.Anything).Return(echo(""), nil)

	doc := buildDocument(t, []int{3})
	doc.GetBatch(1, 1).Originals[1].Text = ""

	o := newTestOrchestrator(client, testSettings())
	report, err := o.TranslateDocument(context.Background(), doc, RunOptions{})
	require.NoError(t, err)
	assert.True(t, doc.GetBatch(1, 1).AllTranslated())
	assert.Empty(t, report.UntranslatedLines)

	_, err = o.TranslateDocument(context.Background(), doc, RunOptions{Resume: true})
	require.NoError(t, err)
	client.AssertNumberOfCalls(t, "RequestTranslation", 1)
}

func TestBatchOfOnlyEmptyLinesIsSkipped(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	doc := buildDocument(t, []int{1})
	doc.GetBatch(1, 1).Originals[0].Text = ""

	_, err := newTestOrchestrator(client, testSettings()).TranslateDocument(context.Background(), doc, RunOptions{})
	require.NoError(t, err)
	client.AssertNotCalled(t, "RequestTranslation", mock.Anything, mock.Anything)
}

func TestSubstitutionsApplyBothWays(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("RequestTranslation", mock.Anything, mock.Anything).Return(roundFunc(func(req Request) *scene.Round {
		return reply(req.Lines, func(s string) string { return s + " Mister" }, "")
	}), nil)

	doc := buildDocument(t, []int{2})
	subs := substitution.New(substitution.Map{"line": "row", "Mister": "Mr."}, substitution.ModeWholeWords)

	o := newTestOrchestrator(client, testSettings(), WithSubstitutions(subs))
	_, err := o.TranslateDocument(context.Background(), doc, RunOptions{})
	require.NoError(t, err)

	req := client.Calls[0].Arguments.Get(1).(Request)
	assert.Equal(t, "row 1", req.Lines[0].Text)

	b := doc.GetBatch(1, 1)
	assert.Equal(t, "line 1", b.Originals[0].Text)
	assert.Equal(t, "row 1 Mr.", b.Translated[0].Text)
	assert.Equal(t, substitution.Map{"line": "row"}, b.Context[ContextSubstitutions])
}

func TestQuotaExhaustionIsFatal(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("RequestTranslation", mock.Anything, mock.Anything).
		Return(&scene.Round{QuotaReached: true}, nil).Once()

	doc := buildDocument(t, []int{2, 2}, []int{2})
	o := newTestOrchestrator(client, testSettings())

	report, err := o.TranslateDocument(context.Background(), doc, RunOptions{})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrTranslationImpossible))
	assert.True(t, IsFatal(err))
	assert.False(t, report.Aborted)

	client.AssertNumberOfCalls(t, "RequestTranslation", 1)
	client.AssertNotCalled(t, "RequestRetranslation", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, scene.StateFailed, doc.GetBatch(1, 1).State)
	assert.Equal(t, scene.StatePending, doc.GetBatch(1, 2).State)
	assert.Equal(t, scene.StatePending, doc.GetBatch(2, 1).State)
}

func TestClientErrorIsFatal(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("RequestTranslation", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("401 unauthorized"))

	doc := buildDocument(t, []int{1, 1})
	_, err := newTestOrchestrator(client, testSettings()).TranslateDocument(context.Background(), doc, RunOptions{})

	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrTranslationImpossible))
	assert.Contains(t, err.Error(), "401 unauthorized")
	client.AssertNumberOfCalls(t, "RequestTranslation", 1)
}

func TestTruncationRetriesOnceWithoutContext(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("RequestTranslation", mock.Anything, mock.Anything).
		Return(&scene.Round{Text: "#1\nTranslation>\ncut", ReachedTokenLimit: true, FinishReason: "length"}, nil).Once()
	client.On("RequestTranslation", mock.Anything, mock.Anything).Return(echo(""), nil)

	settings := testSettings()
	settings.Synopsis = "A story"
	doc := buildDocument(t, []int{2})

	_, err := newTestOrchestrator(client, settings).TranslateDocument(context.Background(), doc, RunOptions{})
	require.NoError(t, err)

	require.Len(t, client.Calls, 2)
	first := client.Calls[0].Arguments.Get(1).(Request)
	second := client.Calls[1].Arguments.Get(1).(Request)
	assert.Equal(t, "A story", first.Context[ContextSynopsis])
	assert.Contains(t, first.Prompt.User, "Synopsis: A story")
	assert.Nil(t, second.Context)
	assert.NotContains(t, second.Prompt.User, "=== CONTEXT ===")

	b := doc.GetBatch(1, 1)
	assert.True(t, b.AllTranslated())
	assert.Equal(t, true, b.Context[ContextTruncatedRetry])
}

func TestSecondTruncationIsFatal(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("RequestTranslation", mock.Anything, mock.Anything).
		Return(&scene.Round{ReachedTokenLimit: true}, nil)

	doc := buildDocument(t, []int{2, 2})
	_, err := newTestOrchestrator(client, testSettings()).TranslateDocument(context.Background(), doc, RunOptions{})

	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrTruncated))
	assert.True(t, IsFatal(err))
	client.AssertNumberOfCalls(t, "RequestTranslation", 2)
	assert.Equal(t, scene.StateFailed, doc.GetBatch(1, 1).State)
}

func TestRetryThenSuccess(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	first := &scene.Round{Text: "#1\nTranslation>\nA\n\n#2\nTranslation>\nB\n\n#3\nTranslation>\nC\n\n#98\nTranslation>\nD\n\n#99\nTranslation>\nE\n"}
	client.On("RequestTranslation", mock.Anything, mock.Anything).Return(first, nil)
	client.On("RequestRetranslation", mock.Anything, first, mock.Anything).
		Return(&scene.Round{Text: "#4\nTranslation>\nD\n\n#5\nTranslation>\nE\n"}, nil)

	doc := buildDocument(t, []int{5})
	_, err := newTestOrchestrator(client, testSettings()).TranslateDocument(context.Background(), doc, RunOptions{})
	require.NoError(t, err)

	b := doc.GetBatch(1, 1)
	assert.Len(t, b.Translated, len(b.Originals))
	assert.Empty(t, b.Errors)
	assert.Equal(t, scene.StateTranslated, b.State)
	assert.Equal(t, []string{"4. D", "5. E"}, b.Context[ContextRetranslatedLines])

	errs := client.Calls[1].Arguments.Get(2).([]error)
	require.NotEmpty(t, errs)
	assert.True(t, validator.IsKind(errs[0], validator.UnmatchedLines))
	assert.Equal(t, []int{98, 99}, errs[0].(*validator.Error).Lines)
}

func TestRetranslationQuotaFailsBatch(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	first := &scene.Round{Text: "#1\nTranslation>\nA\n"}
	client.On("RequestTranslation", mock.Anything, mock.Anything).Return(first, nil)
	client.On("RequestRetranslation", mock.Anything, first, mock.Anything).
		Return(&scene.Round{QuotaReached: true}, nil)

	doc := buildDocument(t, []int{2})
	_, err := newTestOrchestrator(client, testSettings()).TranslateDocument(context.Background(), doc, RunOptions{})
	require.Error(t, err)
	assert.True(t, IsFatal(err))

	b := doc.GetBatch(1, 1)
	assert.Equal(t, scene.StateFailed, b.State)
	require.Len(t, b.Errors, 1)
	assert.Equal(t, "quota exhausted", b.Errors[0].Error())
}

func TestTruncatedRetranslationIsRecorded(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	first := &scene.Round{Text: "#1\nTranslation>\nA\n"}
	client.On("RequestTranslation", mock.Anything, mock.Anything).Return(first, nil)
	client.On("RequestRetranslation", mock.Anything, first, mock.Anything).
		Return(&scene.Round{Text: "#2\nTranslation>\nB\n", ReachedTokenLimit: true}, nil)

	doc := buildDocument(t, []int{2})
	_, err := newTestOrchestrator(client, testSettings()).TranslateDocument(context.Background(), doc, RunOptions{})
	require.NoError(t, err)

	b := doc.GetBatch(1, 1)
	assert.Equal(t, true, b.Context[ContextTruncatedRetry])
	assert.Equal(t, scene.StateTranslated, b.State)
	assert.Equal(t, "B", b.Translated[1].Text)
}

func TestRetryNewEntriesWin(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	first := &scene.Round{Text: "#1\nTranslation>\nA line that is much too long for the configured limit\n\n#2\nTranslation>\nB\n"}
	client.On("RequestTranslation", mock.Anything, mock.Anything).Return(first, nil)
	client.On("RequestRetranslation", mock.Anything, first, mock.Anything).
		Return(&scene.Round{Text: "#1\nTranslation>\nShort A\n"}, nil)

	doc := buildDocument(t, []int{2})
	_, err := newTestOrchestrator(client, testSettings()).TranslateDocument(context.Background(), doc, RunOptions{})
	require.NoError(t, err)

	b := doc.GetBatch(1, 1)
	assert.Equal(t, "Short A", b.Translated[0].Text)
	assert.Equal(t, "B", b.Translated[1].Text)
}

func TestValidationFailureWithoutRetryContinues(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("RequestTranslation", mock.Anything, mock.Anything).
		Return(&scene.Round{Text: "#1\nTranslation>\nonly one\n"}, nil).Once()
	client.On("RequestTranslation", mock.Anything, mock.Anything).Return(echo(""), nil)

	settings := testSettings()
	settings.RetryOnError = false
	doc := buildDocument(t, []int{2, 2})

	var batchEvents int
	o := newTestOrchestrator(client, settings)
	o.Events().OnBatchTranslated(func(*scene.Batch) { batchEvents++ })

	report, err := o.TranslateDocument(context.Background(), doc, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, batchEvents)

	failed := doc.GetBatch(1, 1)
	assert.Equal(t, scene.StateFailed, failed.State)
	require.Len(t, failed.Errors, 1)
	assert.True(t, validator.IsKind(failed.Errors[0], validator.UntranslatedLines))
	assert.True(t, doc.GetBatch(1, 2).AllTranslated())

	assert.Equal(t, []int{2}, report.UntranslatedLines)
	require.Len(t, report.FailedBatches, 1)
	assert.Equal(t, BatchRef{Scene: 1, Batch: 1, Errors: []string{"1 lines were not translated (lines 2)"}}, report.FailedBatches[0])
	client.AssertNotCalled(t, "RequestRetranslation", mock.Anything, mock.Anything, mock.Anything)
}

func TestStopOnErrorEndsRun(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("RequestTranslation", mock.Anything, mock.Anything).
		Return(&scene.Round{Text: "nothing useful"}, nil)
	client.On("RequestRetranslation", mock.Anything, mock.Anything, mock.Anything).
		Return(&scene.Round{Text: "still nothing"}, nil)

	settings := testSettings()
	settings.StopOnError = true
	doc := buildDocument(t, []int{2, 2})

	_, err := newTestOrchestrator(client, settings).TranslateDocument(context.Background(), doc, RunOptions{})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrValidation))
	client.AssertNumberOfCalls(t, "RequestTranslation", 1)
	client.AssertNumberOfCalls(t, "RequestRetranslation", 1)
	assert.Equal(t, scene.StatePending, doc.GetBatch(1, 2).State)
}

func TestMaxLinesBudget(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("RequestTranslation", mock.Anything, mock.Anything).Return(echo(""), nil)

	doc := buildDocument(t, []int{2, 2}, []int{2})
	settings := testSettings()
	settings.RetryOnError = false

	var scenesDone []int
	o := newTestOrchestrator(client, settings)
	o.Events().OnSceneTranslated(func(s *scene.Scene) { scenesDone = append(scenesDone, s.Number) })

	_, err := o.TranslateDocument(context.Background(), doc, RunOptions{MaxLines: 3})
	require.NoError(t, err)

	require.Len(t, client.Calls, 2)
	assert.Len(t, client.Calls[0].Arguments.Get(1).(Request).Lines, 2)
	assert.Len(t, client.Calls[1].Arguments.Get(1).(Request).Lines, 1)
	assert.Equal(t, []int{1}, scenesDone)
	assert.Empty(t, doc.GetBatch(2, 1).Translated)
}

func TestResumeSkipsTranslatedBatches(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("RequestTranslation", mock.Anything, mock.Anything).Return(echo(""), nil)

	doc := buildDocument(t, []int{2, 2})
	done := doc.GetBatch(1, 1)
	done.MergeTranslations([]subtitle.Line{{Number: 1, Text: "x"}, {Number: 2, Text: "y"}})
	done.Summary = "earlier"

	_, err := newTestOrchestrator(client, testSettings()).TranslateDocument(context.Background(), doc, RunOptions{Resume: true})
	require.NoError(t, err)

	require.Len(t, client.Calls, 1)
	req := client.Calls[0].Arguments.Get(1).(Request)
	assert.Equal(t, 3, req.Lines[0].Number)
	assert.Equal(t, []string{"Scene 1 batch 1: earlier"}, req.Context[ContextHistory])
	assert.Equal(t, "x", done.Translated[0].Text)
}

func TestReparseUsesStoredResponse(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	doc := buildDocument(t, []int{2})
	b := doc.GetBatch(1, 1)
	b.Translation = &scene.Round{Text: "#1\nTranslation>\nuno\n\n#2\nTranslation>\ndos\n<summary>stored</summary>"}

	_, err := newTestOrchestrator(client, testSettings()).TranslateDocument(context.Background(), doc, RunOptions{Reparse: true})
	require.NoError(t, err)

	client.AssertNotCalled(t, "RequestTranslation", mock.Anything, mock.Anything)
	assert.True(t, b.AllTranslated())
	assert.Equal(t, "dos", b.Translated[1].Text)
	assert.Equal(t, "stored", b.Summary)
}

func TestPreviewSendsNothing(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	doc := buildDocument(t, []int{2, 1}, []int{3})

	var batches, scenes int
	o := newTestOrchestrator(client, testSettings())
	o.Events().OnBatchTranslated(func(*scene.Batch) { batches++ })
	o.Events().OnSceneTranslated(func(*scene.Scene) { scenes++ })

	report, err := o.TranslateDocument(context.Background(), doc, RunOptions{Preview: true})
	require.NoError(t, err)

	client.AssertNotCalled(t, "RequestTranslation", mock.Anything, mock.Anything)
	assert.Equal(t, 3, batches)
	assert.Equal(t, 2, scenes)
	assert.Equal(t, 0, report.TranslatedLines)
	assert.Len(t, report.UntranslatedLines, 6)
}

func TestAbortAfterRequest(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	doc := buildDocument(t, []int{1, 1})
	o := newTestOrchestrator(client, testSettings())

	client.On("RequestTranslation", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { o.Abort() }).
		Return(echo(""), nil)

	report, err := o.TranslateDocument(context.Background(), doc, RunOptions{})
	require.Error(t, err)
	assert.True(t, IsAborted(err))
	assert.True(t, report.Aborted)
	client.AssertNumberOfCalls(t, "RequestTranslation", 1)
	assert.Empty(t, doc.GetBatch(1, 1).Translated)
}

func TestCancelledContextAborts(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestOrchestrator(client, testSettings()).TranslateDocument(ctx, buildDocument(t, []int{1}), RunOptions{})
	require.Error(t, err)
	assert.True(t, IsAborted(err))
	client.AssertNotCalled(t, "RequestTranslation", mock.Anything, mock.Anything)
}

func TestParallelScenesKeepEventOrderPerScene(t *testing.T) {
	t.Parallel()

	client := &mockClient{parallel: true}
	client.On("RequestTranslation", mock.Anything, mock.Anything).Return(echo("<summary>s</summary>"), nil)

	doc := buildDocument(t, []int{2, 2, 2}, []int{2, 2}, []int{1}, []int{3, 3})
	settings := testSettings()
	settings.MaxConcurrentScenes = 3

	var mu sync.Mutex
	seen := make(map[int][]string)
	o := newTestOrchestrator(client, settings)
	o.Events().OnBatchTranslated(func(b *scene.Batch) {
		mu.Lock()
		defer mu.Unlock()
		seen[b.Scene] = append(seen[b.Scene], fmt.Sprintf("batch %d", b.Number))
	})
	o.Events().OnSceneTranslated(func(s *scene.Scene) {
		mu.Lock()
		defer mu.Unlock()
		seen[s.Number] = append(seen[s.Number], "scene")
	})

	report, err := o.TranslateDocument(context.Background(), doc, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, report.Lines, report.TranslatedLines)

	for _, s := range doc.Scenes {
		want := make([]string, 0, len(s.Batches)+1)
		for _, b := range s.Batches {
			want = append(want, fmt.Sprintf("batch %d", b.Number))
		}
		want = append(want, "scene")
		assert.Equal(t, want, seen[s.Number])
	}
}

func TestTranslateSceneSelectsBatches(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("RequestTranslation", mock.Anything, mock.Anything).Return(echo(""), nil)

	doc := buildDocument(t, []int{1, 1, 1})
	o := newTestOrchestrator(client, testSettings())

	require.NoError(t, o.TranslateScene(context.Background(), doc, 1, []int{2}, RunOptions{}))
	assert.False(t, doc.GetBatch(1, 1).AnyTranslated())
	assert.True(t, doc.GetBatch(1, 2).AllTranslated())
	assert.False(t, doc.GetBatch(1, 3).AnyTranslated())

	err := o.TranslateScene(context.Background(), doc, 9, nil, RunOptions{})
	assert.ErrorIs(t, err, scene.ErrSceneNotFound)
}

func TestTranslateBatchStandalone(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("RequestTranslation", mock.Anything, mock.Anything).Return(echo(""), nil)

	doc := buildDocument(t, []int{2})
	b := doc.GetBatch(1, 1)
	require.NoError(t, newTestOrchestrator(client, testSettings()).TranslateBatch(context.Background(), b, RunOptions{}))
	assert.True(t, b.AllTranslated())
}

func TestRunningContextBoundsSummaries(t *testing.T) {
	t.Parallel()

	rc := newRunningContext(Settings{MaxContextSummaries: 2, Characters: []string{"Ann"}})
	for i := 1; i <= 4; i++ {
		b := scene.NewBatch(1, i)
		b.Summary = fmt.Sprintf("s%d", i)
		b.Translation = &scene.Round{Characters: []string{"Ann", fmt.Sprintf("C%d", i)}}
		rc.absorb(b)
	}

	v := rc.values()
	assert.Equal(t, []string{"Scene 1 batch 3: s3", "Scene 1 batch 4: s4"}, v[ContextHistory])
	assert.Equal(t, []string{"Ann", "C1", "C2", "C3", "C4"}, v[ContextCharacters])
	assert.Equal(t, []string{}, v[ContextPreviousBatch])
}
