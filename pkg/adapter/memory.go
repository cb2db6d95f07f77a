package adapter

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/scottthesecond/syncframe/pkg/record"
)

type logEntry struct {
	seq     int
	id      string
	deleted bool
	fields  map[string]any
}

// InMemoryAdapter is the reference Adapter implementation spec §6 calls
// for: "In-memory implementations exist for tests." It models a remote
// collection as an append-only log of upserts/deletes; GetUpdates(cursor)
// replays everything after cursor, collapsed to one entry per id. Pushes
// made via ApplyChanges land in the same log, so a later GetUpdates call
// from the same adapter observes its own side's writes — the mechanism
// that makes the engine's echo guards observable in tests.
type InMemoryAdapter struct {
	mu  sync.Mutex
	log []logEntry
	seq int

	applyFailuresRemaining int
	applyFailureErr        error

	getUpdatesCalls []record.Cursor
}

// NewInMemoryAdapter returns an empty adapter.
func NewInMemoryAdapter() *InMemoryAdapter {
	return &InMemoryAdapter{}
}

// Put simulates an external client upserting a record directly in the
// remote collection (as opposed to the engine pushing one via
// ApplyChanges).
func (a *InMemoryAdapter) Put(rec record.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	a.log = append(a.log, logEntry{seq: a.seq, id: rec.ID, fields: rec.Fields})
}

// Delete simulates an external client deleting a record directly.
func (a *InMemoryAdapter) Delete(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	a.log = append(a.log, logEntry{seq: a.seq, id: id, deleted: true})
}

// FailApplyNTimes makes the next n calls to ApplyChanges return err;
// the call after that succeeds normally. Used by the retry and
// auto-disable scenario tests.
func (a *InMemoryAdapter) FailApplyNTimes(n int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applyFailuresRemaining = n
	a.applyFailureErr = err
}

// FailApplyAlways makes every future call to ApplyChanges return err.
func (a *InMemoryAdapter) FailApplyAlways(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applyFailuresRemaining = -1
	a.applyFailureErr = err
}

// Records returns a snapshot of the adapter's current live state
// (upserts minus deletes), for test assertions.
func (a *InMemoryAdapter) Records() map[string]record.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.materialize(len(a.log))
}

// GetUpdatesCalls returns every cursor this adapter's GetUpdates was
// invoked with, in call order — the spying hook scenario 9 needs.
func (a *InMemoryAdapter) GetUpdatesCalls() []record.Cursor {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]record.Cursor, len(a.getUpdatesCalls))
	copy(out, a.getUpdatesCalls)
	return out
}

func (a *InMemoryAdapter) GetUpdates(ctx context.Context, cursor record.Cursor) (record.ChangeSet, record.Cursor, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.getUpdatesCalls = append(a.getUpdatesCalls, cursor)

	from := 0
	if cursor.Valid {
		n, err := strconv.Atoi(cursor.Value)
		if err != nil {
			return record.ChangeSet{}, cursor, fmt.Errorf("adapter: bad cursor %q: %w", cursor.Value, err)
		}
		from = n
	}

	var cs record.ChangeSet
	upsertIndex := make(map[string]int)
	deleteIndex := make(map[string]int)

	for _, e := range a.log {
		if e.seq <= from {
			continue
		}
		if e.deleted {
			if idx, ok := upsertIndex[e.id]; ok {
				cs.Upserts = append(cs.Upserts[:idx], cs.Upserts[idx+1:]...)
				delete(upsertIndex, e.id)
				reindexAfterRemoval(upsertIndex, idx)
			}
			if _, ok := deleteIndex[e.id]; !ok {
				deleteIndex[e.id] = len(cs.Deletes)
				cs.Deletes = append(cs.Deletes, e.id)
			}
			continue
		}
		if idx, ok := deleteIndex[e.id]; ok {
			cs.Deletes = append(cs.Deletes[:idx], cs.Deletes[idx+1:]...)
			delete(deleteIndex, e.id)
			reindexAfterRemoval(deleteIndex, idx)
		}
		rec := record.Record{ID: e.id, Fields: e.fields}
		if idx, ok := upsertIndex[e.id]; ok {
			cs.Upserts[idx] = rec
		} else {
			upsertIndex[e.id] = len(cs.Upserts)
			cs.Upserts = append(cs.Upserts, rec)
		}
	}

	next := record.NewCursor(strconv.Itoa(a.seq))
	return cs, next, nil
}

func reindexAfterRemoval(index map[string]int, removed int) {
	for id, i := range index {
		if i > removed {
			index[id] = i - 1
		}
	}
}

func (a *InMemoryAdapter) ApplyChanges(ctx context.Context, changes record.ChangeSet) error {
	a.mu.Lock()
	if a.applyFailuresRemaining != 0 {
		err := a.applyFailureErr
		if a.applyFailuresRemaining > 0 {
			a.applyFailuresRemaining--
		}
		a.mu.Unlock()
		return err
	}
	a.mu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rec := range changes.Upserts {
		a.seq++
		a.log = append(a.log, logEntry{seq: a.seq, id: rec.ID, fields: rec.Fields})
	}
	for _, id := range changes.Deletes {
		a.seq++
		a.log = append(a.log, logEntry{seq: a.seq, id: id, deleted: true})
	}
	return nil
}

func (a *InMemoryAdapter) SerializeCursor(cursor record.Cursor) string {
	if !cursor.Valid {
		return ""
	}
	return cursor.Value
}

// materialize replays the log up to (and including) index upTo-1 into a
// current-state map. Caller must hold a.mu.
func (a *InMemoryAdapter) materialize(upTo int) map[string]record.Record {
	out := make(map[string]record.Record)
	for _, e := range a.log[:upTo] {
		if e.deleted {
			delete(out, e.id)
			continue
		}
		out[e.id] = record.Record{ID: e.id, Fields: e.fields}
	}
	return out
}
