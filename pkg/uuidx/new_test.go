package uuidx

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	id := New()
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.NotEqual(t, id, New(), "consecutive ids should differ")
}

func TestNewString_Ordering(t *testing.T) {
	// v7 ids embed a millisecond timestamp, so ids minted in sequence
	// sort lexicographically. The store's message keys rely on this.
	a := NewString()
	b := NewString()
	assert.LessOrEqual(t, a, b)
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(NewString()))
	assert.False(t, IsValid("not-a-uuid"))
	assert.False(t, IsValid(""))
}
