package linkindex

import (
	"context"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottthesecond/syncframe/pkg/record"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := OpenSQLStore(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.db.Exec(Schema(DriverSQLite))
	require.NoError(t, err)
	return store
}

func TestSQLStore_UpsertLink_Symmetric(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	src := tuple("sideA", "a1")
	dest := tuple("sideB", "b1")
	require.NoError(t, store.UpsertLink(ctx, src, dest))

	gotDest, err := store.FindDest(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, "b1", gotDest)

	gotSrc, err := store.FindSource(ctx, dest)
	require.NoError(t, err)
	assert.Equal(t, "a1", gotSrc)
}

func TestSQLStore_FindDest_NotFound(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	_, err := store.FindDest(ctx, tuple("sideA", "missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_UpsertLink_ReplacesPreviousBinding(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	srcA := tuple("sideA", "a1")
	oldDest := tuple("sideB", "b1")
	newDest := tuple("sideB", "b2")

	require.NoError(t, store.UpsertLink(ctx, srcA, oldDest))
	require.NoError(t, store.UpsertLink(ctx, srcA, newDest))

	_, err := store.FindSource(ctx, oldDest)
	assert.ErrorIs(t, err, ErrNotFound, "the old destination must not remain reachable")

	gotSrc, err := store.FindSource(ctx, newDest)
	require.NoError(t, err)
	assert.Equal(t, "a1", gotSrc)
}

func TestSQLStore_CursorRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	c, err := store.LoadCursor(ctx, "job1", "sideA", "records")
	require.NoError(t, err)
	assert.Equal(t, record.NilCursor, c)

	require.NoError(t, store.SaveCursor(ctx, "job1", "sideA", "records", record.NewCursor("1")))
	require.NoError(t, store.SaveCursor(ctx, "job1", "sideA", "records", record.NewCursor("2")))

	c, err = store.LoadCursor(ctx, "job1", "sideA", "records")
	require.NoError(t, err)
	assert.Equal(t, record.NewCursor("2"), c)
}

func TestSQLStore_FailCountAndDisablement(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	n, err := store.IncrementFailCount(ctx, "job1", "sideA", "records")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.IncrementFailCount(ctx, "job1", "sideA", "records")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.ResetFailCount(ctx, "job1", "sideA", "records"))
	count, err := store.GetFailCount(ctx, "job1", "sideA", "records")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	disabled, err := store.IsJobDisabled(ctx, "job1")
	require.NoError(t, err)
	assert.False(t, disabled)

	require.NoError(t, store.SetJobDisabled(ctx, "job1", time.Now()))
	disabled, err = store.IsJobDisabled(ctx, "job1")
	require.NoError(t, err)
	assert.True(t, disabled)
}

func TestSQLStore_ConflictLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	c := Conflict{
		ConflictID:  "c1",
		JobID:       "job1",
		Src:         tuple("sideA", "a1"),
		Dest:        tuple("sideB", "b1"),
		SrcPayload:  record.Record{ID: "a1", Fields: map[string]any{"name": "Ada"}},
		DestPayload: record.Record{ID: "b1", Fields: map[string]any{"name": "Grace"}},
		DetectedAt:  time.Now(),
	}
	require.NoError(t, store.InsertConflict(ctx, c))

	conflicts, err := store.GetConflicts(ctx, "job1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "Ada", conflicts[0].SrcPayload.Fields["name"])
	assert.Equal(t, "Grace", conflicts[0].DestPayload.Fields["name"])

	require.NoError(t, store.ResolveConflict(ctx, "c1"))
	conflicts, err = store.GetConflicts(ctx, "job1")
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestSQLStore_InsertRun(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	now := time.Now()
	require.NoError(t, store.InsertRun(ctx, RunSummary{
		RunID:       "r1",
		JobID:       "job1",
		StartedAt:   now,
		EndedAt:     now.Add(time.Second),
		Status:      RunSuccess,
		SummaryJSON: `{"upserts_a_to_b":1}`,
	}))

	var count int
	require.NoError(t, store.db.Get(&count, "SELECT COUNT(*) FROM runs WHERE run_id = 'r1'"))
	assert.Equal(t, 1, count)
}
