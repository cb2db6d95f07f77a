package adapter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottthesecond/syncframe/pkg/record"
)

func TestKafkaEnvelope_UpsertRoundTrip(t *testing.T) {
	env := kafkaEnvelope{ID: "a1", Fields: map[string]any{"name": "Ada"}}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	var got kafkaEnvelope
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "a1", got.ID)
	assert.False(t, got.Deleted)
	assert.Equal(t, "Ada", got.Fields["name"])
}

func TestKafkaEnvelope_TombstoneCarriesNoFields(t *testing.T) {
	env := kafkaEnvelope{ID: "a1", Deleted: true}
	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"fields"`)

	var got kafkaEnvelope
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, got.Deleted)
	assert.Empty(t, got.Fields)
}

func TestKafkaAdapter_SerializeCursor(t *testing.T) {
	a := &KafkaAdapter{}
	assert.Equal(t, "", a.SerializeCursor(record.NilCursor))
	assert.Equal(t, "42", a.SerializeCursor(record.NewCursor("42")))
}
