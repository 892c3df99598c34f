package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionStore_SequenceMonotonic(t *testing.T) {
	var s SessionStore

	_, ok := s.Sequence()
	assert.False(t, ok)

	assert.True(t, s.Observe(5))
	assert.False(t, s.Observe(3))
	assert.False(t, s.Observe(5))

	seq, ok := s.Sequence()
	assert.True(t, ok)
	assert.EqualValues(t, 5, seq)

	assert.True(t, s.Observe(6))
	seq, _ = s.Sequence()
	assert.EqualValues(t, 6, seq)
}

func TestSessionStore_ZeroSequenceCounts(t *testing.T) {
	var s SessionStore
	assert.True(t, s.Observe(0))
	s.SetIdentity("abc", "")
	assert.True(t, s.Resumable())
}

func TestSessionStore_Resumable(t *testing.T) {
	var s SessionStore
	assert.False(t, s.Resumable())

	s.SetIdentity("abc", "wss://resume.example.com")
	assert.False(t, s.Resumable(), "id without sequence")

	s.Observe(10)
	assert.True(t, s.Resumable())
	assert.Equal(t, "abc", s.ID())
	assert.Equal(t, "wss://resume.example.com", s.ResumeURL())

	s.Clear()
	assert.False(t, s.Resumable())
	assert.Empty(t, s.ID())
	_, ok := s.Sequence()
	assert.False(t, ok)

	// After a clear, lower sequence numbers from a new session are accepted.
	assert.True(t, s.Observe(1))
}

func TestSessionStore_SnapshotRestore(t *testing.T) {
	var s SessionStore
	s.SetIdentity("abc", "wss://resume.example.com")
	s.Observe(42)

	snap := s.Snapshot()
	assert.True(t, snap.Resumable())
	assert.EqualValues(t, 42, *snap.Sequence)

	s.Observe(43)
	assert.EqualValues(t, 42, *snap.Sequence, "snapshot must not alias the store")

	var restored SessionStore
	restored.Restore(snap)
	seq, ok := restored.Sequence()
	assert.True(t, ok)
	assert.EqualValues(t, 42, seq)
	assert.Equal(t, "abc", restored.ID())
	assert.True(t, restored.Resumable())

	restored.Restore(Session{ID: "only-id"})
	assert.False(t, restored.Resumable())
}
