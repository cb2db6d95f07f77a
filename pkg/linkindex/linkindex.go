// Package linkindex implements the durable link index (C2): the
// bidirectional identity mapping between two sides of a sync job, their
// cursors and fail counters, conflicts, run logs, and job disablement.
package linkindex

import (
	"context"
	"errors"
	"time"

	"github.com/scottthesecond/syncframe/pkg/record"
)

// ErrNotFound is returned by lookups that find nothing, matching the
// teacher's position.ErrPositionNotFound sentinel-error idiom.
var ErrNotFound = errors.New("linkindex: not found")

// Tuple identifies one record on one side of a job: the adapter and table
// it lives in, plus the record's id in that adapter's own namespace.
type Tuple struct {
	Adapter string
	Table   string
	ID      string
}

// Link is one installed bidirectional binding.
type Link struct {
	Src        Tuple
	Dest       Tuple
	LastSyncTS time.Time
}

// Conflict is created only under the manual conflict policy.
type Conflict struct {
	ConflictID string
	JobID      string
	Src        Tuple
	Dest       Tuple
	SrcPayload record.Record
	DestPayload record.Record
	DetectedAt time.Time
}

// RunStatus classifies the outcome of one cycle.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// RunSummary is one append-only row describing a completed (or aborted)
// cycle.
type RunSummary struct {
	RunID      string
	JobID      string
	StartedAt  time.Time
	EndedAt    time.Time
	Status     RunStatus
	SummaryJSON string
}

// Store is the link index contract. Implementations must make UpsertLink
// atomic with respect to concurrent readers (spec invariant: a reader
// either sees the old binding or the new one, never a half-update) and
// must maintain link symmetry (a lookup from either side yields the
// other) along with the no-half-links invariant when a tuple is rebound.
//
// The backing store is expected to be single-writer per job; v1 makes no
// multi-writer safety guarantees.
type Store interface {
	// UpsertLink atomically installs or replaces a bidirectional binding
	// between src and dest, breaking any previous binding that touched
	// either tuple.
	UpsertLink(ctx context.Context, src, dest Tuple) error

	// FindDest returns the destination id linked to src, or ErrNotFound.
	FindDest(ctx context.Context, src Tuple) (string, error)
	// FindSource returns the source id linked to dest, or ErrNotFound.
	FindSource(ctx context.Context, dest Tuple) (string, error)

	// LoadCursor returns the saved cursor for (job, adapter, table), or
	// the null cursor if none has been saved yet.
	LoadCursor(ctx context.Context, jobID, adapter, table string) (record.Cursor, error)
	// SaveCursor upserts the cursor token, overwriting any prior value.
	SaveCursor(ctx context.Context, jobID, adapter, table string, cursor record.Cursor) error

	IsJobDisabled(ctx context.Context, jobID string) (bool, error)
	SetJobDisabled(ctx context.Context, jobID string, at time.Time) error

	IncrementFailCount(ctx context.Context, jobID, adapter, table string) (int, error)
	ResetFailCount(ctx context.Context, jobID, adapter, table string) error
	GetFailCount(ctx context.Context, jobID, adapter, table string) (int, error)

	InsertConflict(ctx context.Context, c Conflict) error
	GetConflicts(ctx context.Context, jobID string) ([]Conflict, error)
	ResolveConflict(ctx context.Context, conflictID string) error

	InsertRun(ctx context.Context, run RunSummary) error
}
