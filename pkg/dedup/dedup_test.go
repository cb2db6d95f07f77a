package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottthesecond/syncframe/pkg/linkindex"
	"github.com/scottthesecond/syncframe/pkg/mapper"
	"github.com/scottthesecond/syncframe/pkg/record"
)

func identityMapper() mapper.Mapper {
	return mapper.NewFieldCopyMapper(map[string]string{})
}

func sideA() linkindex.Tuple { return linkindex.Tuple{Adapter: "sideA", Table: "records"} }
func sideB() linkindex.Tuple { return linkindex.Tuple{Adapter: "sideB", Table: "records"} }

// ===== New Record Tests =====

func TestTransform_NewRecordCreatesLink(t *testing.T) {
	store := linkindex.NewMemoryStore()
	ctx := context.Background()

	src := record.ChangeSet{Upserts: []record.Record{{ID: "a1", Fields: map[string]any{"updatedAt": int64(100)}}}}
	dest := record.ChangeSet{}

	mapped, linkMap, stats, err := Transform(ctx, src, dest, Params{
		JobID:    "job1",
		Src:      sideA(),
		Dest:     sideB(),
		Mapper:   identityMapper(),
		Store:    store,
		Pushed:   NewPushedSet(),
		Resolver: LastWriterWinsResolver{},
	})

	require.NoError(t, err)
	require.Len(t, mapped.Upserts, 1)
	assert.Equal(t, "a1", mapped.Upserts[0].ID)
	assert.Equal(t, "a1", linkMap["a1"])
	assert.Empty(t, stats.MapperErrors)
}

// ===== Echo Guard Tests =====

func TestTransform_IntraCycleEchoGuardSkips(t *testing.T) {
	store := linkindex.NewMemoryStore()
	ctx := context.Background()
	pushed := NewPushedSet()
	pushed.add("a1")

	src := record.ChangeSet{Upserts: []record.Record{{ID: "a1", Fields: map[string]any{}}}}

	mapped, linkMap, stats, err := Transform(ctx, src, record.ChangeSet{}, Params{
		JobID: "job1", Src: sideA(), Dest: sideB(),
		Mapper: identityMapper(), Store: store, Pushed: pushed,
		Resolver: LastWriterWinsResolver{},
	})

	require.NoError(t, err)
	assert.Empty(t, mapped.Upserts)
	assert.Empty(t, linkMap)
	assert.Equal(t, 1, stats.Skipped)
}

func TestTransform_CrossCycleEchoGuardSkips(t *testing.T) {
	store := linkindex.NewMemoryStore()
	ctx := context.Background()

	// The B-side record "a1" was originally created from A's "a1": the link
	// index says findSource(sideB, "a1") == "a1", and because the mapper is
	// identity, destRec.ID == "a1".
	require.NoError(t, store.UpsertLink(ctx,
		linkindex.Tuple{Adapter: "sideA", Table: "records", ID: "a1"},
		linkindex.Tuple{Adapter: "sideB", Table: "records", ID: "a1"}))

	src := record.ChangeSet{Upserts: []record.Record{{ID: "a1", Fields: map[string]any{}}}}

	mapped, linkMap, _, err := Transform(ctx, src, record.ChangeSet{}, Params{
		JobID: "job1", Src: sideA(), Dest: sideB(),
		Mapper: identityMapper(), Store: store, Pushed: NewPushedSet(),
		Resolver: LastWriterWinsResolver{},
	})

	require.NoError(t, err)
	assert.Empty(t, mapped.Upserts)
	assert.Empty(t, linkMap)
}

// ===== Delete Tests =====

func TestTransform_DeletePropagatesWhenLinked(t *testing.T) {
	store := linkindex.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertLink(ctx,
		linkindex.Tuple{Adapter: "sideA", Table: "records", ID: "a1"},
		linkindex.Tuple{Adapter: "sideB", Table: "records", ID: "b1"}))

	src := record.ChangeSet{Deletes: []string{"a1"}}

	mapped, _, _, err := Transform(ctx, src, record.ChangeSet{}, Params{
		JobID: "job1", Src: sideA(), Dest: sideB(),
		Mapper: identityMapper(), Store: store, Pushed: NewPushedSet(),
		Resolver: LastWriterWinsResolver{},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, mapped.Deletes)
}

func TestTransform_DeleteSkippedWhenNeverLinked(t *testing.T) {
	store := linkindex.NewMemoryStore()
	ctx := context.Background()
	src := record.ChangeSet{Deletes: []string{"a1"}}

	mapped, _, _, err := Transform(ctx, src, record.ChangeSet{}, Params{
		JobID: "job1", Src: sideA(), Dest: sideB(),
		Mapper: identityMapper(), Store: store, Pushed: NewPushedSet(),
		Resolver: LastWriterWinsResolver{},
	})

	require.NoError(t, err)
	assert.Empty(t, mapped.Deletes)
}

// ===== Conflict Resolution Tests =====

func TestTransform_LWW_DestNewerSkipsSourcePush(t *testing.T) {
	store := linkindex.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertLink(ctx,
		linkindex.Tuple{Adapter: "sideA", Table: "records", ID: "a1"},
		linkindex.Tuple{Adapter: "sideB", Table: "records", ID: "b1"}))

	src := record.ChangeSet{Upserts: []record.Record{
		{ID: "a1", Fields: map[string]any{"updatedAt": int64(2000)}},
	}}
	dest := record.ChangeSet{Upserts: []record.Record{
		{ID: "b1", Fields: map[string]any{"updatedAt": int64(3000)}},
	}}

	mapped, linkMap, stats, err := Transform(ctx, src, dest, Params{
		JobID: "job1", Src: sideA(), Dest: sideB(),
		Mapper: identityMapper(), Store: store, Pushed: NewPushedSet(),
		Resolver: LastWriterWinsResolver{},
	})

	require.NoError(t, err)
	assert.Empty(t, mapped.Upserts)
	assert.Empty(t, linkMap)
	assert.Equal(t, 1, stats.Skipped)
}

func TestTransform_LWW_TieGoesToSource(t *testing.T) {
	store := linkindex.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertLink(ctx,
		linkindex.Tuple{Adapter: "sideA", Table: "records", ID: "a1"},
		linkindex.Tuple{Adapter: "sideB", Table: "records", ID: "b1"}))

	src := record.ChangeSet{Upserts: []record.Record{
		{ID: "a1", Fields: map[string]any{"updatedAt": int64(2000)}},
	}}
	dest := record.ChangeSet{Upserts: []record.Record{
		{ID: "b1", Fields: map[string]any{"updatedAt": int64(2000)}},
	}}

	mapped, linkMap, _, err := Transform(ctx, src, dest, Params{
		JobID: "job1", Src: sideA(), Dest: sideB(),
		Mapper: identityMapper(), Store: store, Pushed: NewPushedSet(),
		Resolver: LastWriterWinsResolver{},
	})

	require.NoError(t, err)
	require.Len(t, mapped.Upserts, 1)
	assert.Equal(t, "b1", mapped.Upserts[0].ID)
	assert.Equal(t, "b1", linkMap["a1"])
}

func TestTransform_ManualPolicyRecordsConflictAndSkips(t *testing.T) {
	store := linkindex.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertLink(ctx,
		linkindex.Tuple{Adapter: "sideA", Table: "records", ID: "a1"},
		linkindex.Tuple{Adapter: "sideB", Table: "records", ID: "b1"}))

	src := record.ChangeSet{Upserts: []record.Record{
		{ID: "a1", Fields: map[string]any{"updatedAt": int64(2000)}},
	}}
	dest := record.ChangeSet{Upserts: []record.Record{
		{ID: "b1", Fields: map[string]any{"updatedAt": int64(3000)}},
	}}

	resolver := NewManualResolver(store)
	resolver.Now = func() time.Time { return time.Unix(0, 0) }

	mapped, linkMap, stats, err := Transform(ctx, src, dest, Params{
		JobID: "job1", Src: sideA(), Dest: sideB(),
		Mapper: identityMapper(), Store: store, Pushed: NewPushedSet(),
		Resolver: resolver,
	})

	require.NoError(t, err)
	assert.Empty(t, mapped.Upserts)
	assert.Empty(t, linkMap)
	assert.Equal(t, 1, stats.ConflictsRecorded)

	conflicts, err := store.GetConflicts(ctx, "job1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
}

func TestTransform_NoConflictWhenDestUnchanged(t *testing.T) {
	store := linkindex.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertLink(ctx,
		linkindex.Tuple{Adapter: "sideA", Table: "records", ID: "a1"},
		linkindex.Tuple{Adapter: "sideB", Table: "records", ID: "b1"}))

	src := record.ChangeSet{Upserts: []record.Record{
		{ID: "a1", Fields: map[string]any{"updatedAt": int64(2000)}},
	}}

	mapped, linkMap, _, err := Transform(ctx, src, record.ChangeSet{}, Params{
		JobID: "job1", Src: sideA(), Dest: sideB(),
		Mapper: identityMapper(), Store: store, Pushed: NewPushedSet(),
		Resolver: LastWriterWinsResolver{},
	})

	require.NoError(t, err)
	require.Len(t, mapped.Upserts, 1)
	assert.Equal(t, "b1", linkMap["a1"])
}

// ===== Mapper Error Tests =====

type failingMapper struct{}

func (failingMapper) ToDest(record.Record) (record.Record, error)   { return record.Record{}, assertErr }
func (failingMapper) ToSource(record.Record) (record.Record, error) { return record.Record{}, assertErr }

var assertErr = assertError("mapper exploded")

type assertError string

func (e assertError) Error() string { return string(e) }

func TestTransform_MapperErrorIsNonFatal(t *testing.T) {
	store := linkindex.NewMemoryStore()
	ctx := context.Background()
	src := record.ChangeSet{Upserts: []record.Record{{ID: "a1"}}}

	mapped, linkMap, stats, err := Transform(ctx, src, record.ChangeSet{}, Params{
		JobID: "job1", Src: sideA(), Dest: sideB(),
		Mapper: failingMapper{}, Store: store, Pushed: NewPushedSet(),
		Resolver: LastWriterWinsResolver{},
	})

	require.NoError(t, err)
	assert.Empty(t, mapped.Upserts)
	assert.Empty(t, linkMap)
	require.Len(t, stats.MapperErrors, 1)
}
