package jobs

import (
	"errors"
	"time"
)

// ErrAborted marks a job stopped by Cancel.
var ErrAborted = errors.New("job aborted")

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusAborted Status = "aborted"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusAborted
}

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   JobPayload
}

// JobOptions select the run mode for one file.
type JobOptions struct {
	TargetLanguage string `json:"target_language,omitempty"`
	Preview        bool   `json:"preview,omitempty"`
	Resume         bool   `json:"resume,omitempty"`
	Reparse        bool   `json:"reparse,omitempty"`
	MaxLines       int    `json:"max_lines,omitempty"`
}

type JobPayload struct {
	InputPath  string     `json:"input_path"`
	OutputPath string     `json:"output_path"`
	Options    JobOptions `json:"options"`
}

// Progress counts finished work inside a running job.
type Progress struct {
	Scenes          int `json:"scenes"`
	Batches         int `json:"batches"`
	DoneBatches     int `json:"done_batches"`
	Lines           int `json:"lines"`
	TranslatedLines int `json:"translated_lines"`
}

type TranslationJob struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	DedupeKey string     `json:"dedupe_key"`
	Payload   JobPayload `json:"payload"`
	Status    Status     `json:"status"`
	Progress  Progress   `json:"progress"`
	ProjectID string     `json:"project_id,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
