package ulid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsValidAndUnique(t *testing.T) {
	a := New()
	b := New()

	assert.Len(t, a, 26)
	assert.True(t, IsValid(a))
	assert.NotEqual(t, a, b)
}

func TestMonotonicWithinMillisecond(t *testing.T) {
	ts := time.Now()
	a := NewFromTime(ts)
	b := NewFromTime(ts)
	assert.Less(t, a, b, "same-millisecond ids must stay ordered")
}

func TestTimeRoundTrip(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	id := NewFromTime(ts)

	got, err := Time(id)
	require.NoError(t, err)
	assert.Equal(t, ts.UnixMilli(), got.UnixMilli())
}

func TestIsValidRejectsGarbage(t *testing.T) {
	assert.False(t, IsValid("not-a-ulid"))
	assert.False(t, IsValid(""))

	_, err := Parse("!!!!")
	assert.Error(t, err)
}
