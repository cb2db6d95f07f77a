// Package adapter defines the uniform pull/push contract over a remote
// collection (C1) and ships an in-memory reference implementation plus a
// handful of concrete adapters exercising real backends.
package adapter

import (
	"context"

	"github.com/scottthesecond/syncframe/pkg/record"
)

// Adapter represents one remote collection. Implementations must make
// GetUpdates monotonic: repeated calls with the same cursor return a
// superset of the previous result until the cursor advances, and never
// return changes older than cursor. ApplyChanges must be idempotent.
//
// Any error returned by either method is treated uniformly by the engine
// as retryable; v1 does not distinguish error subclasses.
type Adapter interface {
	// GetUpdates returns every change observed since cursor, and a new
	// cursor that advances past them. A null cursor (cursor.Valid ==
	// false) requests the initial snapshot.
	GetUpdates(ctx context.Context, cursor record.Cursor) (record.ChangeSet, record.Cursor, error)

	// ApplyChanges idempotently creates/updates changes.Upserts and
	// deletes changes.Deletes.
	ApplyChanges(ctx context.Context, changes record.ChangeSet) error

	// SerializeCursor renders cursor as a string the link index can store
	// and round-trip.
	SerializeCursor(cursor record.Cursor) string
}
