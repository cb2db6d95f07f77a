package linkindex

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scottthesecond/syncframe/pkg/record"
)

type cursorKey struct {
	jobID, adapter, table string
}

// MemoryStore is an in-memory Store used by the scenario test suite and
// by callers that don't need durability. All state lives behind a single
// sync.RWMutex, matching the mutex-guarded map idiom used throughout the
// teacher's pkg/transform.EngineMetrics.
type MemoryStore struct {
	mu sync.RWMutex

	// links is a symmetric, undirected binding: a linked pair (a, b) is
	// stored as both links[a]=b and links[b]=a, so a lookup succeeds
	// regardless of which tuple plays "src" or "dest" for the querying
	// pass — the A->B and B->A halves of a cycle see the same link.
	links map[Tuple]Tuple

	cursors    map[cursorKey]record.Cursor
	failCounts map[cursorKey]int
	disabled   map[string]time.Time

	conflicts map[string]Conflict
	runs      []RunSummary
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		links:      make(map[Tuple]Tuple),
		cursors:    make(map[cursorKey]record.Cursor),
		failCounts: make(map[cursorKey]int),
		disabled:   make(map[string]time.Time),
		conflicts:  make(map[string]Conflict),
	}
}

func (m *MemoryStore) UpsertLink(ctx context.Context, src, dest Tuple) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Break any previous binding touching either tuple (no half-links).
	if prev, ok := m.links[src]; ok {
		delete(m.links, prev)
	}
	if prev, ok := m.links[dest]; ok {
		delete(m.links, prev)
	}
	delete(m.links, src)
	delete(m.links, dest)

	m.links[src] = dest
	m.links[dest] = src
	return nil
}

func (m *MemoryStore) FindDest(ctx context.Context, src Tuple) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dest, ok := m.links[src]
	if !ok {
		return "", ErrNotFound
	}
	return dest.ID, nil
}

func (m *MemoryStore) FindSource(ctx context.Context, dest Tuple) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.links[dest]
	if !ok {
		return "", ErrNotFound
	}
	return src.ID, nil
}

func (m *MemoryStore) LoadCursor(ctx context.Context, jobID, adapter, table string) (record.Cursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cursors[cursorKey{jobID, adapter, table}]
	if !ok {
		return record.NilCursor, nil
	}
	return c, nil
}

func (m *MemoryStore) SaveCursor(ctx context.Context, jobID, adapter, table string, cursor record.Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[cursorKey{jobID, adapter, table}] = cursor
	return nil
}

func (m *MemoryStore) IsJobDisabled(ctx context.Context, jobID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.disabled[jobID]
	return ok, nil
}

func (m *MemoryStore) SetJobDisabled(ctx context.Context, jobID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled[jobID] = at
	log.Warn().Str("job_id", jobID).Time("disabled_at", at).Msg("job disabled")
	return nil
}

func (m *MemoryStore) IncrementFailCount(ctx context.Context, jobID, adapter, table string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cursorKey{jobID, adapter, table}
	m.failCounts[key]++
	return m.failCounts[key], nil
}

func (m *MemoryStore) ResetFailCount(ctx context.Context, jobID, adapter, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failCounts, cursorKey{jobID, adapter, table})
	return nil
}

func (m *MemoryStore) GetFailCount(ctx context.Context, jobID, adapter, table string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failCounts[cursorKey{jobID, adapter, table}], nil
}

func (m *MemoryStore) InsertConflict(ctx context.Context, c Conflict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts[c.ConflictID] = c
	return nil
}

func (m *MemoryStore) GetConflicts(ctx context.Context, jobID string) ([]Conflict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Conflict
	for _, c := range m.conflicts {
		if c.JobID == jobID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryStore) ResolveConflict(ctx context.Context, conflictID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conflicts, conflictID)
	return nil
}

func (m *MemoryStore) InsertRun(ctx context.Context, run RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

// Runs returns a snapshot of every inserted run, for test assertions.
func (m *MemoryStore) Runs() []RunSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RunSummary, len(m.runs))
	copy(out, m.runs)
	return out
}
