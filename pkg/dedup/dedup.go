// Package dedup implements transform & dedup (C4): mapping records across
// a direction, detecting echoes via the link index, and resolving
// conflicts between the two sides' concurrent changes.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scottthesecond/syncframe/pkg/linkindex"
	"github.com/scottthesecond/syncframe/pkg/mapper"
	"github.com/scottthesecond/syncframe/pkg/record"
)

// PushedSet is the shared per-cycle echo guard: both direction passes of
// one cycle (A->B and then B->A) share a single instance so a record just
// pushed in one pass is never pushed back in the other.
type PushedSet struct {
	mu sync.Mutex
	m  map[string]struct{}
}

// NewPushedSet returns an empty set, to be constructed once per cycle.
func NewPushedSet() *PushedSet {
	return &PushedSet{m: make(map[string]struct{})}
}

func (p *PushedSet) has(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[id]
	return ok
}

func (p *PushedSet) add(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[id] = struct{}{}
}

// Params describes one direction's pass through Transform.
type Params struct {
	JobID string
	Src   linkindex.Tuple // Adapter/Table only; ID is set per record below
	Dest  linkindex.Tuple

	Mapper   mapper.Mapper
	Store    linkindex.Store
	Pushed   *PushedSet
	Resolver ConflictResolver
}

// Stats accumulates the non-fatal outcomes of one Transform call, for the
// engine's run summary.
type Stats struct {
	MapperErrors      []error
	ConflictsRecorded int
	Skipped           int
}

// Transform runs the §4.4 algorithm for one direction: src is the
// changeset just pulled from the source side, dest is the destination
// side's own changeset from the same cycle (used only for conflict
// detection — records pulled from dest in this cycle that might collide
// with a source-side update to the same linked pair). It returns the
// changeset ready to push to dest, and the map of source id to
// destination id that should become new links once the push succeeds.
func Transform(ctx context.Context, src, dest record.ChangeSet, p Params) (record.ChangeSet, map[string]string, Stats, error) {
	destUpsertsByID := make(map[string]record.Record, len(dest.Upserts))
	for _, r := range dest.Upserts {
		destUpsertsByID[r.ID] = r
	}

	var mapped record.ChangeSet
	linkMap := make(map[string]string)
	var stats Stats

	for _, srcRec := range src.Upserts {
		if p.Pushed.has(srcRec.ID) {
			stats.Skipped++
			continue
		}

		destRec, err := p.Mapper.ToDest(srcRec)
		if err != nil {
			stats.MapperErrors = append(stats.MapperErrors,
				fmt.Errorf("dedup: map %s: %w", srcRec.ID, err))
			continue
		}

		existingSrc, err := p.Store.FindSource(ctx, tupleWithID(p.Dest, destRec.ID))
		if err != nil && !errors.Is(err, linkindex.ErrNotFound) {
			return mapped, nil, stats, fmt.Errorf("dedup: findSource: %w", err)
		}
		if err == nil && existingSrc == srcRec.ID {
			// destRec was originally created from srcRec; this is our own
			// write reflected back. Skip without advancing pushedThisCycle
			// accounting beyond marking srcRec handled.
			p.Pushed.add(srcRec.ID)
			stats.Skipped++
			continue
		}

		existingDest, err := p.Store.FindDest(ctx, tupleWithID(p.Src, srcRec.ID))
		if err != nil && !errors.Is(err, linkindex.ErrNotFound) {
			return mapped, nil, stats, fmt.Errorf("dedup: findDest: %w", err)
		}

		if err == nil {
			// Already linked; check for a true conflict (dest also changed
			// the same record in this cycle).
			destUpsert, destAlsoChanged := destUpsertsByID[existingDest]
			if destAlsoChanged {
				situation := ConflictSituation{
					JobID:       p.JobID,
					Src:         tupleWithID(p.Src, srcRec.ID),
					Dest:        tupleWithID(p.Dest, existingDest),
					SrcPayload:  srcRec,
					DestPayload: destUpsert,
				}
				resolution, err := p.Resolver.Resolve(ctx, situation)
				if err != nil {
					return mapped, nil, stats, fmt.Errorf("dedup: resolve conflict: %w", err)
				}
				if resolution.ConflictRecorded {
					stats.ConflictsRecorded++
				}
				if resolution.Skip {
					stats.Skipped++
					p.Pushed.add(srcRec.ID)
					continue
				}
			}

			destRec.ID = existingDest
			mapped.Upserts = append(mapped.Upserts, destRec)
			linkMap[srcRec.ID] = existingDest
		} else {
			mapped.Upserts = append(mapped.Upserts, destRec)
			linkMap[srcRec.ID] = destRec.ID
		}

		p.Pushed.add(srcRec.ID)
	}

	for _, srcID := range src.Deletes {
		if p.Pushed.has(srcID) {
			stats.Skipped++
			continue
		}
		existingDest, err := p.Store.FindDest(ctx, tupleWithID(p.Src, srcID))
		if errors.Is(err, linkindex.ErrNotFound) {
			p.Pushed.add(srcID)
			continue
		}
		if err != nil {
			return mapped, nil, stats, fmt.Errorf("dedup: findDest for delete: %w", err)
		}
		mapped.Deletes = append(mapped.Deletes, existingDest)
		p.Pushed.add(srcID)
	}

	if len(stats.MapperErrors) > 0 {
		log.Warn().Str("job_id", p.JobID).Int("count", len(stats.MapperErrors)).
			Msg("mapper errors encountered during transform")
	}

	return mapped, linkMap, stats, nil
}

func tupleWithID(side linkindex.Tuple, id string) linkindex.Tuple {
	return linkindex.Tuple{Adapter: side.Adapter, Table: side.Table, ID: id}
}

// newConflictID produces a unique, human-legible conflict identifier.
// No uuid dependency is pulled in for this — the teacher's own conflict
// handling paths (pkg/transform/engine.go's rule ids) are plain strings.
func newConflictID(jobID string, src, dest linkindex.Tuple) string {
	return fmt.Sprintf("%s:%s:%s:%d", jobID, src.ID, dest.ID, time.Now().UnixNano())
}
