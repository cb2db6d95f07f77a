package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottthesecond/syncframe/pkg/record"
)

// ===== FieldCopyMapper Tests =====

func TestFieldCopyMapper_ToDestRenamesFields(t *testing.T) {
	m := NewFieldCopyMapper(map[string]string{"Name": "name", "Updated": "updatedAt"})

	dest, err := m.ToDest(record.Record{ID: "a1", Fields: map[string]any{
		"name":      "Ada",
		"updatedAt": int64(100),
		"extra":     "keep",
	}})
	require.NoError(t, err)

	assert.Equal(t, "Ada", dest.Fields["Name"])
	assert.Equal(t, int64(100), dest.Fields["Updated"])
	assert.Equal(t, "keep", dest.Fields["extra"])
	assert.Equal(t, "a1", dest.ID)
}

func TestFieldCopyMapper_ToSourceIsInverse(t *testing.T) {
	m := NewFieldCopyMapper(map[string]string{"Name": "name"})

	src, err := m.ToSource(record.Record{ID: "b1", Fields: map[string]any{"Name": "Ada"}})
	require.NoError(t, err)
	assert.Equal(t, "Ada", src.Fields["name"])
}
