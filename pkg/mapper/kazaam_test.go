package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottthesecond/syncframe/pkg/record"
)

const shiftFullNameToName = `[{"operation":"shift","spec":{"fullName":"name"}}]`
const shiftNameToFullName = `[{"operation":"shift","spec":{"name":"fullName"}}]`

func TestNewKazaamMapper_CompilesBothDirections(t *testing.T) {
	_, err := NewKazaamMapper(shiftFullNameToName, shiftNameToFullName)
	require.NoError(t, err)
}

func TestNewKazaamMapper_RejectsMalformedSpec(t *testing.T) {
	_, err := NewKazaamMapper("not json", shiftNameToFullName)
	assert.Error(t, err)
}

func TestKazaamMapper_ToDestAppliesShift(t *testing.T) {
	m, err := NewKazaamMapper(shiftFullNameToName, shiftNameToFullName)
	require.NoError(t, err)

	dest, err := m.ToDest(record.Record{ID: "a1", Fields: map[string]any{"name": "Ada Lovelace"}})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", dest.Fields["fullName"])
	assert.Equal(t, "a1", dest.ID, "id falls through unchanged when the shift spec doesn't target it")
}

func TestKazaamMapper_ToSourceIsTheInverseSpec(t *testing.T) {
	m, err := NewKazaamMapper(shiftFullNameToName, shiftNameToFullName)
	require.NoError(t, err)

	src, err := m.ToSource(record.Record{ID: "b1", Fields: map[string]any{"fullName": "Ada Lovelace"}})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", src.Fields["name"])
}

func TestKazaamMapper_SpecCanOverrideID(t *testing.T) {
	spec := `[{"operation":"shift","spec":{"id":"externalId","name":"name"}}]`
	m, err := NewKazaamMapper(spec, shiftNameToFullName)
	require.NoError(t, err)

	dest, err := m.ToDest(record.Record{ID: "a1", Fields: map[string]any{
		"externalId": "dest-99",
		"name":       "Ada",
	}})
	require.NoError(t, err)
	assert.Equal(t, "dest-99", dest.ID, "a shift spec targeting \"id\" overrides the passthrough source id")
}
