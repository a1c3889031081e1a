package jobs

import "context"

// Store keeps jobs across restarts. Progress is not persisted; a job found
// running on load is queued again with Resume set.
type Store interface {
	LoadJobs(ctx context.Context) ([]*TranslationJob, error)
	UpsertJob(ctx context.Context, job *TranslationJob) error
	// DeleteJob is called when finished jobs are pruned.
	DeleteJob(ctx context.Context, jobID string) error
}
