// Package record defines the wire-level data model shared by adapters,
// mappers, the link index, and the sync engine: records, changesets, and
// the opaque cursor token.
package record

// Record is one item in a remote collection. Fields is opaque to the
// core; only mappers and the conflict resolver's timestamp lookup ever
// look inside it.
type Record struct {
	ID     string
	Fields map[string]any
}

// Clone returns a deep-enough copy for safe mutation by a mapper; Fields
// values are not recursively cloned, matching the teacher's own shallow
// map-copy idiom in pkg/transform/engine.go.
func (r Record) Clone() Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{ID: r.ID, Fields: fields}
}

// ChangeSet is the unit returned by GetUpdates and consumed by
// ApplyChanges. Upserts and Deletes are disjoint; iteration order must be
// preserved by callers that care about it (see dedup's ordering guarantee).
type ChangeSet struct {
	Upserts []Record
	Deletes []string
}

// Empty reports whether the changeset carries no work.
func (c ChangeSet) Empty() bool {
	return len(c.Upserts) == 0 && len(c.Deletes) == 0
}

// Cursor is an opaque, adapter-defined marker of "observed up to here."
// A Cursor with Valid == false represents the null cursor ("initial
// sync"); the engine never interprets Value.
type Cursor struct {
	Value string
	Valid bool
}

// NilCursor is the null cursor requesting an initial snapshot.
var NilCursor = Cursor{}

// NewCursor wraps a non-null token.
func NewCursor(token string) Cursor {
	return Cursor{Value: token, Valid: true}
}
