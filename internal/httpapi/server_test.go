package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/scene-sub-translator/internal/config"
	"github.com/MimeLyc/scene-sub-translator/internal/jobs"
	"github.com/MimeLyc/scene-sub-translator/internal/project"
	"github.com/MimeLyc/scene-sub-translator/internal/scene"
	"github.com/MimeLyc/scene-sub-translator/internal/subtitle"
)

type memProjectStore struct {
	mu      sync.Mutex
	records map[string][]byte
}

func newMemProjectStore() *memProjectStore {
	return &memProjectStore{records: make(map[string][]byte)}
}

func (m *memProjectStore) SaveProject(_ context.Context, rec *project.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.records[rec.ID] = data
	m.mu.Unlock()
	return nil
}

func (m *memProjectStore) LoadProject(_ context.Context, id string) (*project.Record, error) {
	m.mu.Lock()
	data, ok := m.records[id]
	m.mu.Unlock()
	if !ok {
		return nil, project.ErrProjectNotFound
	}
	var rec project.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func sampleRecord() *project.Record {
	return &project.Record{
		ID:         "proj-1",
		SourcePath: "/subs/show.en.srt",
		Snapshot: &project.Snapshot{
			ID:             "proj-1",
			SourcePath:     "/subs/show.en.srt",
			SourceLanguage: "en",
			TargetLanguage: "de",
			Scenes: []project.SceneSnapshot{{
				Number:  1,
				Summary: "Greetings",
				Batches: []project.BatchSnapshot{{
					Number: 1,
					State:  scene.StateFailed,
					Originals: []subtitle.Line{
						{Number: 1, StartTime: time.Second, EndTime: 2 * time.Second, Text: "Hello"},
						{Number: 2, StartTime: 3 * time.Second, EndTime: 4 * time.Second, Text: "World"},
					},
					Translated: []subtitle.Line{
						{Number: 1, StartTime: time.Second, EndTime: 2 * time.Second, Text: "Hallo"},
					},
					Errors: []string{"line 2 missing"},
				}},
			}},
		},
	}
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *jobs.Queue) {
	t.Helper()
	queue := jobs.NewQueue(1, nil)
	return NewServer(queue, opts...), queue
}

func do(t *testing.T, srv *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CreateJob(t *testing.T) {
	srv, queue := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/jobs", map[string]any{
		"input_path":      "/subs/show.en.srt",
		"target_language": "de",
		"resume":          true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Created bool                `json:"created"`
		Job     jobs.TranslationJob `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Created)
	assert.Equal(t, "api", resp.Job.Source)
	assert.Equal(t, "/subs/show.en.srt|de", resp.Job.DedupeKey)
	assert.Equal(t, "/subs/show.en.srt", resp.Job.Payload.InputPath)
	assert.Equal(t, "de", resp.Job.Payload.Options.TargetLanguage)
	assert.True(t, resp.Job.Payload.Options.Resume)

	rec = do(t, srv, http.MethodPost, "/api/jobs", map[string]any{
		"input_path":      "/subs/show.en.srt",
		"target_language": "de",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, queue.List(), 1)

	rec = do(t, srv, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []jobs.TranslationJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
}

func TestServer_CreateJob_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{name: "missing input", body: map[string]any{"target_language": "de"}},
		{name: "bad language", body: map[string]any{"input_path": "/a.srt", "target_language": "not a tag"}},
		{name: "negative max lines", body: map[string]any{"input_path": "/a.srt", "max_lines": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/jobs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_CancelJob(t *testing.T) {
	srv, queue := newTestServer(t)
	job, _ := queue.Enqueue(jobs.EnqueueRequest{Source: "api", DedupeKey: "a", Payload: jobs.JobPayload{InputPath: "/a.srt"}})

	rec := do(t, srv, http.MethodDelete, "/api/jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got, _ := queue.Get(job.ID)
	assert.Equal(t, jobs.StatusAborted, got.Status)

	rec = do(t, srv, http.MethodDelete, "/api/jobs/"+job.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/api/jobs/job-404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_JobDetail(t *testing.T) {
	store := newMemProjectStore()
	require.NoError(t, store.SaveProject(context.Background(), sampleRecord()))
	srv, queue := newTestServer(t, WithProjectStore(store))

	job, _ := queue.Enqueue(jobs.EnqueueRequest{Source: "api", Payload: jobs.JobPayload{InputPath: "/subs/show.en.srt"}})

	rec := do(t, srv, http.MethodGet, "/api/jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail jobDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Empty(t, detail.Preview)

	queue.SetProjectID(job.ID, "proj-1")
	rec = do(t, srv, http.MethodGet, "/api/jobs/"+job.ID+"?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	require.Len(t, detail.Preview, 1)
	assert.Equal(t, "Hello", detail.Preview[0].Original)
	assert.Equal(t, "Hallo", detail.Preview[0].Translation)
	assert.Equal(t, 2, detail.Progress.TotalLines)
	assert.Equal(t, 1, detail.Progress.TranslatedLines)
	assert.InDelta(t, 50.0, detail.Progress.Percent, 0.001)

	rec = do(t, srv, http.MethodGet, "/api/jobs/job-404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Project(t *testing.T) {
	store := newMemProjectStore()
	require.NoError(t, store.SaveProject(context.Background(), sampleRecord()))
	srv, _ := newTestServer(t, WithProjectStore(store))

	rec := do(t, srv, http.MethodGet, "/api/projects/proj-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp projectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "/subs/show.en.srt", resp.SourcePath)
	assert.Equal(t, 2, resp.TotalLines)
	require.Len(t, resp.Scenes, 1)
	require.Len(t, resp.Scenes[0].Batches, 1)
	assert.Equal(t, scene.StateFailed, resp.Scenes[0].Batches[0].State)
	assert.Equal(t, "00:00:01,000", resp.Scenes[0].Batches[0].Start)
	assert.Equal(t, "00:00:04,000", resp.Scenes[0].Batches[0].End)

	rec = do(t, srv, http.MethodGet, "/api/projects/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	bare, _ := newTestServer(t)
	rec = do(t, bare, http.MethodGet, "/api/projects/proj-1", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_UpdateProjectLines(t *testing.T) {
	store := newMemProjectStore()
	require.NoError(t, store.SaveProject(context.Background(), sampleRecord()))
	srv, _ := newTestServer(t, WithProjectStore(store))

	rec := do(t, srv, http.MethodPut, "/api/projects/proj-1/lines", map[string]any{
		"lines": []map[string]any{{"number": 2, "translation": "Welt"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	saved, err := store.LoadProject(context.Background(), "proj-1")
	require.NoError(t, err)
	batch := saved.Snapshot.Scenes[0].Batches[0]
	assert.Equal(t, scene.StateTranslated, batch.State)
	assert.Empty(t, batch.Errors)
	require.Len(t, batch.Translated, 2)
	assert.Equal(t, "Welt", batch.Translated[1].Text)
	assert.Equal(t, 3*time.Second, batch.Translated[1].StartTime)

	rec = do(t, srv, http.MethodPut, "/api/projects/proj-1/lines", map[string]any{
		"lines": []map[string]any{{"number": 9, "translation": "x"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPut, "/api/projects/proj-1/lines", map[string]any{"lines": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_RestructureProject(t *testing.T) {
	store := newMemProjectStore()
	require.NoError(t, store.SaveProject(context.Background(), sampleRecord()))
	srv, _ := newTestServer(t, WithProjectStore(store))
	load := func() *project.Snapshot {
		saved, err := store.LoadProject(context.Background(), "proj-1")
		require.NoError(t, err)
		return saved.Snapshot
	}

	rec := do(t, srv, http.MethodPost, "/api/projects/proj-1/structure", map[string]any{
		"op": "split_batch", "scene": 1, "batch": 1, "line": 2,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	snap := load()
	require.Len(t, snap.Scenes[0].Batches, 2)
	assert.Equal(t, scene.StateTranslated, snap.Scenes[0].Batches[0].State)
	assert.Equal(t, scene.StatePending, snap.Scenes[0].Batches[1].State)
	assert.Equal(t, 2, snap.Scenes[0].Batches[1].Originals[0].Number)

	rec = do(t, srv, http.MethodPost, "/api/projects/proj-1/structure", map[string]any{
		"op": "split_scene", "scene": 1, "batch": 2,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	snap = load()
	require.Len(t, snap.Scenes, 2)
	assert.Equal(t, 2, snap.Scenes[1].Number)

	rec = do(t, srv, http.MethodPost, "/api/projects/proj-1/structure", map[string]any{
		"op": "merge_scenes", "scenes": []int{1, 2},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	snap = load()
	require.Len(t, snap.Scenes, 1)
	require.Len(t, snap.Scenes[0].Batches, 2)

	rec = do(t, srv, http.MethodPost, "/api/projects/proj-1/structure", map[string]any{
		"op": "merge_batches", "scene": 1, "batches": []int{1, 2},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	snap = load()
	require.Len(t, snap.Scenes[0].Batches, 1)
	assert.Len(t, snap.Scenes[0].Batches[0].Originals, 2)

	for _, body := range []map[string]any{
		{"op": "split_batch", "scene": 1, "batch": 1, "line": 1},
		{"op": "merge_scenes", "scenes": []int{1, 2}},
		{"op": "merge_batches", "scene": 1, "batches": []int{1}},
		{"op": "shuffle"},
	} {
		rec = do(t, srv, http.MethodPost, "/api/projects/proj-1/structure", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %v", body)
	}
	assert.Len(t, load().Scenes[0].Batches[0].Originals, 2)

	rec = do(t, srv, http.MethodPost, "/api/projects/missing/structure", map[string]any{"op": "split_scene"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_UpdateProjectLines_BusyProject(t *testing.T) {
	store := newMemProjectStore()
	require.NoError(t, store.SaveProject(context.Background(), sampleRecord()))
	srv, queue := newTestServer(t, WithProjectStore(store))

	started := make(chan struct{})
	release := make(chan struct{})
	queue.Start(func(ctx context.Context, job *jobs.TranslationJob, _ jobs.ProgressFunc) error {
		queue.SetProjectID(job.ID, "proj-1")
		close(started)
		<-release
		return nil
	})
	defer queue.Stop()
	defer close(release)

	queue.Enqueue(jobs.EnqueueRequest{Source: "api", Payload: jobs.JobPayload{InputPath: "/subs/show.en.srt"}})
	<-started

	rec := do(t, srv, http.MethodPut, "/api/projects/proj-1/lines", map[string]any{
		"lines": []map[string]any{{"number": 2, "translation": "Welt"}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_Settings(t *testing.T) {
	settingsStore, err := config.NewRuntimeSettingsStore(filepath.Join(t.TempDir(), "settings.json"), config.RuntimeSettings{
		LLMProvider:    "openrouter",
		LLMAPIURL:      "https://openrouter.ai/api/v1",
		LLMAPIKey:      "sk-secret-1234",
		LLMModel:       "openai/gpt-4o-mini",
		TargetLanguage: "zh",
	})
	require.NoError(t, err)
	srv, _ := newTestServer(t, WithRuntimeSettingsStore(settingsStore))

	rec := do(t, srv, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got config.RuntimeSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "**********1234", got.LLMAPIKey)

	got.LLMModel = "anthropic/claude-3.5-sonnet"
	got.TargetLanguage = "de"
	rec = do(t, srv, http.MethodPut, "/api/settings", got)
	require.Equal(t, http.StatusOK, rec.Code)

	current, err := settingsStore.GetRuntimeSettings()
	require.NoError(t, err)
	assert.Equal(t, "sk-secret-1234", current.LLMAPIKey)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", current.LLMModel)
	assert.Equal(t, "de", current.TargetLanguage)

	got.TargetLanguage = ""
	rec = do(t, srv, http.MethodPut, "/api/settings", got)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	bare, _ := newTestServer(t)
	rec = do(t, bare, http.MethodGet, "/api/settings", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_JobStream(t *testing.T) {
	srv, queue := newTestServer(t, WithStreamInterval(10*time.Millisecond))
	queue.Enqueue(jobs.EnqueueRequest{Source: "api", Payload: jobs.JobPayload{InputPath: "/a.srt"}})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/jobs/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	event, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: jobs\n", event)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))

	var list []jobs.TranslationJob
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "/a.srt", list[0].Payload.InputPath)
}

func TestServer_CORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, WithAllowedOrigins([]string{"http://localhost:5173"}))

	req := httptest.NewRequest(http.MethodOptions, "/api/jobs", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
