package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scottthesecond/syncframe/pkg/record"
)

func TestElasticsearchAdapter_SerializeCursor(t *testing.T) {
	a := &ElasticsearchAdapter{}
	assert.Equal(t, "", a.SerializeCursor(record.NilCursor))
	assert.Equal(t, "2026-01-01T00:00:00Z", a.SerializeCursor(record.NewCursor("2026-01-01T00:00:00Z")))
}
