package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===== ExtractTimestamp =====

func TestExtractTimestamp_PriorityOrder(t *testing.T) {
	r := Record{ID: "a1", Fields: map[string]any{
		"lastModified": "2024-01-01T00:00:00Z",
		"updatedAt":    int64(1700000000000),
	}}

	ts, ok := ExtractTimestamp(r)
	require.True(t, ok)
	assert.Equal(t, time.UnixMilli(1700000000000), ts)
}

func TestExtractTimestamp_ISO8601(t *testing.T) {
	r := Record{ID: "a1", Fields: map[string]any{
		"updated_at": "2024-03-15T10:30:00Z",
	}}

	ts, ok := ExtractTimestamp(r)
	require.True(t, ok)
	assert.Equal(t, 2024, ts.Year())
	assert.Equal(t, time.March, ts.Month())
}

func TestExtractTimestamp_EpochMsAsString(t *testing.T) {
	r := Record{ID: "a1", Fields: map[string]any{
		"modifiedAt": "1700000000000",
	}}

	ts, ok := ExtractTimestamp(r)
	require.True(t, ok)
	assert.Equal(t, time.UnixMilli(1700000000000), ts)
}

func TestExtractTimestamp_NativeTime(t *testing.T) {
	want := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	r := Record{ID: "a1", Fields: map[string]any{"updatedAt": want}}

	ts, ok := ExtractTimestamp(r)
	require.True(t, ok)
	assert.True(t, want.Equal(ts))
}

func TestExtractTimestamp_Absent(t *testing.T) {
	r := Record{ID: "a1", Fields: map[string]any{"name": "unrelated"}}

	_, ok := ExtractTimestamp(r)
	assert.False(t, ok)
}

func TestExtractTimestamp_UnparseableValueFallsThroughToAbsent(t *testing.T) {
	r := Record{ID: "a1", Fields: map[string]any{"updatedAt": []int{1, 2, 3}}}

	_, ok := ExtractTimestamp(r)
	assert.False(t, ok)
}
