package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetAndIsSet(t *testing.T) {
	b := New(10)
	assert.False(t, b.IsSet(3))
	b.Set(3)
	assert.True(t, b.IsSet(3))
	assert.Equal(t, 1, b.Count())
}

func TestOutOfRangeIsIgnored(t *testing.T) {
	b := New(4)
	b.Set(-1)
	b.Set(4)
	assert.Equal(t, 0, b.Count())
	assert.False(t, b.IsSet(4))
}

func TestMissingAscendingOrder(t *testing.T) {
	b := New(5)
	b.Set(1)
	b.Set(3)

	want := []uint16{0, 2, 4}
	assert.Equal(t, want, b.Missing())
}

func TestMissingEmptyWhenFull(t *testing.T) {
	b := New(3)
	for i := 0; i < 3; i++ {
		b.Set(i)
	}
	assert.Empty(t, b.Missing())
	assert.Equal(t, 3, b.Count())
}
