package modules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTombstones(t *testing.T) {
	ts := NewTombstones(0)

	assert.False(t, ts.Deleted("doc-1"))
	ts.Mark("doc-1")
	assert.True(t, ts.Deleted("doc-1"))
	assert.False(t, ts.Deleted("doc-2"))
}

func TestTombstones_Expire(t *testing.T) {
	ts := NewTombstones(10 * time.Millisecond)
	ts.Mark("doc-1")

	assert.Eventually(t, func() bool { return !ts.Deleted("doc-1") }, time.Second, 5*time.Millisecond)
}
