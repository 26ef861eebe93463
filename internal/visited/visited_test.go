package visited

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisitedSet(t *testing.T) {
	v := New(10)

	assert.False(t, v.Visited(1))
	assert.False(t, v.Visited(5))

	assert.True(t, v.Visit(1))
	assert.False(t, v.Visit(1))
	assert.True(t, v.Visited(1))
	assert.False(t, v.Visited(5))

	v.Visit(5)
	assert.Equal(t, 2, v.Count())

	v.Reset()
	assert.False(t, v.Visited(1))
	assert.False(t, v.Visited(5))
	assert.Equal(t, 0, v.Count())

	v.Visit(1)
	v.Visit(150) // grows
	assert.True(t, v.Visited(150))
	assert.True(t, v.Visited(1))
}

func TestVisitedSet_EnsureCapacity(t *testing.T) {
	v := New(2)
	v.EnsureCapacity(1000)
	assert.False(t, v.Visited(999))
	v.Visit(999)
	assert.True(t, v.Visited(999))
}
