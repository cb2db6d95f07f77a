package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/scottthesecond/syncframe/pkg/record"
)

func TestMustParse_ValidRFC3339Nano(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := mustParse(ts.Format(time.RFC3339Nano))
	assert.True(t, ts.Equal(got))
}

func TestMustParse_InvalidReturnsZeroValue(t *testing.T) {
	assert.True(t, mustParse("not-a-timestamp").IsZero())
}

func TestMongoAdapter_SerializeCursor(t *testing.T) {
	a := &MongoAdapter{}
	assert.Equal(t, "", a.SerializeCursor(record.NilCursor))
	assert.Equal(t, "tok", a.SerializeCursor(record.NewCursor("tok")))
}
