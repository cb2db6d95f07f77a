package dedup

import (
	"context"
	"time"

	"github.com/scottthesecond/syncframe/pkg/linkindex"
	"github.com/scottthesecond/syncframe/pkg/record"
)

// ConflictSituation describes a record changed on both sides in the same
// cycle, the input to a ConflictResolver.
type ConflictSituation struct {
	JobID       string
	Src         linkindex.Tuple
	Dest        linkindex.Tuple
	SrcPayload  record.Record
	DestPayload record.Record
}

// Resolution is the resolver's verdict: either skip the push (the
// destination's version prevails, or the conflict was recorded for
// manual handling) or proceed (the zero value — push the source's
// version).
type Resolution struct {
	Skip             bool
	ConflictRecorded bool
}

// ConflictResolver decides what happens to a record changed on both
// sides in the same cycle. Modeled on
// other_examples/c0deZ3R0-go-sync-kit__conflict.go's
// ConflictResolver.Resolve(ctx, Conflict) shape.
type ConflictResolver interface {
	Resolve(ctx context.Context, situation ConflictSituation) (Resolution, error)
}

// LastWriterWinsResolver implements the last_writer_wins policy (the
// default): extract an updatedAt-class timestamp from both payloads via
// the fixed field-name priority list; if either side lacks one, the
// source wins; otherwise the side with the newer (or tied) timestamp
// wins, tie going to the source.
type LastWriterWinsResolver struct{}

func (LastWriterWinsResolver) Resolve(ctx context.Context, s ConflictSituation) (Resolution, error) {
	srcTS, srcOK := record.ExtractTimestamp(s.SrcPayload)
	destTS, destOK := record.ExtractTimestamp(s.DestPayload)

	if !srcOK || !destOK {
		return Resolution{Skip: false}, nil
	}
	if srcTS.Before(destTS) {
		return Resolution{Skip: true}, nil
	}
	return Resolution{Skip: false}, nil
}

// ManualResolver implements the manual policy: every true conflict is
// recorded in the link index and the push is skipped; an operator
// resolves it out-of-band via Store.ResolveConflict.
type ManualResolver struct {
	Store linkindex.Store
	Now   func() time.Time // overridable for tests
}

// NewManualResolver returns a ManualResolver backed by store.
func NewManualResolver(store linkindex.Store) *ManualResolver {
	return &ManualResolver{Store: store, Now: time.Now}
}

func (m *ManualResolver) Resolve(ctx context.Context, s ConflictSituation) (Resolution, error) {
	conflict := linkindex.Conflict{
		ConflictID:  newConflictID(s.JobID, s.Src, s.Dest),
		JobID:       s.JobID,
		Src:         s.Src,
		Dest:        s.Dest,
		SrcPayload:  s.SrcPayload,
		DestPayload: s.DestPayload,
		DetectedAt:  m.Now(),
	}
	if err := m.Store.InsertConflict(ctx, conflict); err != nil {
		return Resolution{}, err
	}
	return Resolution{Skip: true, ConflictRecorded: true}, nil
}

// ConflictPolicy names which resolver a job config selects.
type ConflictPolicy string

const (
	PolicyLastWriterWins ConflictPolicy = "last_writer_wins"
	PolicyManual         ConflictPolicy = "manual"
)

// NewResolver builds the resolver named by policy. store is only used by
// the manual policy.
func NewResolver(policy ConflictPolicy, store linkindex.Store) ConflictResolver {
	switch policy {
	case PolicyManual:
		return NewManualResolver(store)
	default:
		return LastWriterWinsResolver{}
	}
}
