package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scottthesecond/syncframe/pkg/record"
)

func TestJoin(t *testing.T) {
	assert.Equal(t, "", join(nil))
	assert.Equal(t, "id", join([]string{"id"}))
	assert.Equal(t, "id, name, age", join([]string{"id", "name", "age"}))
}

func TestDupAssignments_ExcludesIDColumn(t *testing.T) {
	got := dupAssignments([]string{"id", "name", "age"}, "id")
	assert.Equal(t, "name = VALUES(name), age = VALUES(age)", got)
}

func TestDupAssignments_AllColumnsAreID(t *testing.T) {
	assert.Equal(t, "", dupAssignments([]string{"id"}, "id"))
}

func TestConflictAssignments_ExcludesIDColumn(t *testing.T) {
	got := conflictAssignments([]string{"id", "name", "age"}, "id")
	assert.Equal(t, "name = excluded.name, age = excluded.age", got)
}

func TestSQLAdapter_SerializeCursor(t *testing.T) {
	a := &SQLAdapter{}
	assert.Equal(t, "", a.SerializeCursor(record.NilCursor))
	assert.Equal(t, "tok", a.SerializeCursor(record.NewCursor("tok")))
}
