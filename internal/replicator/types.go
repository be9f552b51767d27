// Package replicator implements incremental one-way table replication from
// a source database to a target database.
package replicator

import (
	"time"
)

// TableDescriptor describes a source table as seen on this run.
// It is read fresh every run and never persisted.
type TableDescriptor struct {
	Name   string
	Engine string
	// PrimaryKey is the first primary key column, filled lazily.
	PrimaryKey string
}

// HasEngine reports whether the source has a storage engine for the table.
// Views and other engine-less objects are not replicated.
func (d TableDescriptor) HasEngine() bool {
	return d.Engine != ""
}

// Checkpoint is the persisted sync progress of one table on the target.
type Checkpoint struct {
	ID              int64
	TableName       string
	AddedAt         time.Time
	LastSyncedAt    time.Time
	CursorColumn    string
	LastCursorValue int64
	TotalRowsSynced int64
}

// Outcome is the result classification of one table within a run.
type Outcome string

const (
	OutcomeBootstrapped  Outcome = "bootstrapped"
	OutcomeCaughtUp      Outcome = "caught-up"
	OutcomeUpToDate      Outcome = "up-to-date"
	OutcomeSkippedEngine Outcome = "skipped-no-engine"
	OutcomeSkippedNoPK   Outcome = "skipped-no-primary-key"
	OutcomeFailed        Outcome = "failed"
)

// Skipped reports whether the table was intentionally not replicated.
func (o Outcome) Skipped() bool {
	return o == OutcomeSkippedEngine || o == OutcomeSkippedNoPK
}

// TableResult is the per-table outcome of a run.
type TableResult struct {
	Table        string
	Outcome      Outcome
	CursorColumn string
	// StartCursor and EndCursor are the checkpoint values before and after.
	StartCursor int64
	EndCursor   int64
	RowsApplied int64
	Batches     int
	Duration    time.Duration
	Err         error
}

// RunResult aggregates a whole run.
type RunResult struct {
	RunID       string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Tables      []TableResult
}

// Failed reports whether any table failed.
func (r *RunResult) Failed() bool {
	return r.FailedCount() > 0
}

// FailedCount returns the number of failed tables.
func (r *RunResult) FailedCount() int {
	n := 0
	for _, t := range r.Tables {
		if t.Outcome == OutcomeFailed {
			n++
		}
	}
	return n
}

// RowsApplied returns the total rows written across all tables.
func (r *RunResult) RowsApplied() int64 {
	var n int64
	for _, t := range r.Tables {
		n += t.RowsApplied
	}
	return n
}

// Counts returns the number of tables per outcome.
func (r *RunResult) Counts() map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, t := range r.Tables {
		counts[t.Outcome]++
	}
	return counts
}
