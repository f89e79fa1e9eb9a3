package uuid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quillbooks/quillbooks/internal/uuid"
)

func TestNewIsUniqueAndValid(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := uuid.New()
		assert.True(t, uuid.Valid(id))
		assert.False(t, seen[id], "duplicate uuid %s", id)
		seen[id] = true
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	assert.False(t, uuid.Valid(""))
	assert.False(t, uuid.Valid("not-a-uuid"))
}
