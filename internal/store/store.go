// Package store persists run records: one row per run, one row per item
// outcome. The engine works without a store; configurations opt in via
// config.store.path.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("run not found")

// Record is one item's persisted outcome.
type Record struct {
	Loader   string
	Item     string
	Status   string
	Step     string
	Cause    string
	Duration time.Duration
}

// Counts summarizes a finished run.
type Counts struct {
	Succeeded int
	Skipped   int
	Failed    int
	Cancelled int
}

// Run is a persisted run summary.
type Run struct {
	ID       string
	Started  time.Time
	Ended    time.Time
	Counts   Counts
	Finished bool
}

// Store persists runs and their item records.
type Store interface {
	CreateRun(id string, started time.Time) error
	AddRecord(runID string, rec Record) error
	FinishRun(id string, ended time.Time, counts Counts) error
	GetRun(id string) (*Run, error)
	ListRecords(runID string) ([]Record, error)
	Close() error
}
