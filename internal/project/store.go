package project

import (
	"context"
	"errors"
	"time"
)

var ErrProjectNotFound = errors.New("project not found")

// Record is a stored project snapshot.
type Record struct {
	ID         string
	SourcePath string
	Snapshot   *Snapshot
	UpdatedAt  time.Time
}

// Store persists project snapshots.
type Store interface {
	SaveProject(ctx context.Context, rec *Record) error
	// LoadProject returns ErrProjectNotFound when id is unknown.
	LoadProject(ctx context.Context, id string) (*Record, error)
}
