package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/scene-sub-translator/internal/config"
	"github.com/MimeLyc/scene-sub-translator/internal/jobs"
	"github.com/MimeLyc/scene-sub-translator/internal/project"
	"github.com/MimeLyc/scene-sub-translator/internal/subtitle"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "scene-sub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_JobsRoundTrip(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()
	job := &jobs.TranslationJob{
		ID:        "job-1",
		Source:    "api",
		DedupeKey: "a.srt|de",
		Payload: jobs.JobPayload{
			InputPath:  "/media/a.srt",
			OutputPath: "/media/a.de.srt",
			Options:    jobs.JobOptions{TargetLanguage: "de", Resume: true, MaxLines: 20},
		},
		Status:    jobs.StatusPending,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	job.Status = jobs.StatusRunning
	job.Progress = jobs.Progress{Batches: 3, DoneBatches: 1}
	job.ProjectID = "p-1"
	require.NoError(t, store.UpsertJob(ctx, job))

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, job.ID, all[0].ID)
	assert.Equal(t, jobs.StatusRunning, all[0].Status)
	assert.Equal(t, job.Payload, all[0].Payload)
	assert.Equal(t, job.Progress, all[0].Progress)
	assert.Equal(t, "p-1", all[0].ProjectID)

	require.NoError(t, store.DeleteJob(ctx, job.ID))
	all, err = store.LoadJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLiteStore_ProjectRoundTrip(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()

	lines := []subtitle.Line{
		{Number: 1, StartTime: 0, EndTime: 2 * time.Second, Text: "Hello"},
		{Number: 2, StartTime: 3 * time.Second, EndTime: 5 * time.Second, Text: "World"},
	}
	seg := config.SegmentConfig{SceneThreshold: 30 * time.Second, BatchThreshold: 7 * time.Second, MinBatchSize: 1, MaxBatchSize: 10}
	p := project.New("/media/a.srt", lines, seg, project.WithStore(store))
	p.Document().Scenes[0].Batches[0].MergeTranslations([]subtitle.Line{{Number: 1, Text: "Hallo"}})
	require.NoError(t, p.Save(ctx))

	// a second save replaces the first
	p.Document().Scenes[0].Batches[0].MergeTranslations([]subtitle.Line{{Number: 2, Text: "Welt"}})
	require.NoError(t, p.Save(ctx))

	loaded, err := project.Load(ctx, store, "/media/a.srt")
	require.NoError(t, err)
	assert.Equal(t, p.ID, loaded.ID)
	got := loaded.Lines()
	require.Len(t, got, 2)
	assert.Equal(t, "Hallo", got[0].TranslatedText)
	assert.Equal(t, "Welt", got[1].TranslatedText)
	assert.Equal(t, 3*time.Second, got[1].StartTime)

	_, err = store.LoadProject(ctx, "missing")
	assert.ErrorIs(t, err, project.ErrProjectNotFound)

	require.NoError(t, store.DeleteProject(ctx, p.ID))
	_, err = store.LoadProject(ctx, p.ID)
	assert.ErrorIs(t, err, project.ErrProjectNotFound)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "scene-sub.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.UpsertJob(context.Background(), &jobs.TranslationJob{
		ID: "job-7", Source: "cli", Status: jobs.StatusSuccess,
		Payload:   jobs.JobPayload{InputPath: "x.srt"},
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	all, err := reopened.LoadJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "job-7", all[0].ID)
}

func TestMigrationVersion(t *testing.T) {
	assert.Equal(t, 1, migrationVersion("001_init.sql"))
	assert.Equal(t, 12, migrationVersion("12"))
	assert.Equal(t, 0, migrationVersion("init.sql"))
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	_, err := NewSQLiteStore(" ")
	assert.Error(t, err)
}
