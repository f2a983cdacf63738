package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUUIDint64Unique(t *testing.T) {
	seen := make(map[int64]struct{})
	for i := 0; i < 1000; i++ {
		id := UUIDint64()
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
	}
}

func TestUUIDstr(t *testing.T) {
	a := UUIDstr()
	b := UUIDstr()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
