package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	r := NewSessionRegistry()

	r.Begin("c1")
	require.True(t, r.Live("c1"))
	sess, ok := r.Get("c1")
	require.True(t, ok)
	assert.Equal(t, StateUnauthenticated, sess.State)

	r.SetAuthenticated("c1", "alice", "alice@example.com")
	sess, _ = r.Get("c1")
	assert.Equal(t, StateAuthenticated, sess.State)
	assert.Equal(t, "alice", sess.Username)
	assert.Equal(t, 1, r.AuthenticatedCount())

	r.Drop("c1")
	assert.False(t, r.Live("c1"))
	assert.Equal(t, 0, r.AuthenticatedCount())
}

func TestSetGuestClearsIdentity(t *testing.T) {
	r := NewSessionRegistry()
	r.Begin("c1")
	r.SetAuthenticated("c1", "alice", "alice@example.com")

	r.SetGuest("c1")

	sess, _ := r.Get("c1")
	assert.Equal(t, StateGuest, sess.State)
	assert.Empty(t, sess.Username)
	assert.Empty(t, sess.Email)
	assert.Equal(t, 0, r.AuthenticatedCount())
}

func TestMarkOnboardedOnlyOnce(t *testing.T) {
	r := NewSessionRegistry()
	r.Begin("c1")

	assert.True(t, r.MarkOnboarded("c1"))
	assert.False(t, r.MarkOnboarded("c1"))
	assert.False(t, r.MarkOnboarded("unknown"))
}

func TestGetReturnsCopy(t *testing.T) {
	r := NewSessionRegistry()
	r.Begin("c1")

	sess, _ := r.Get("c1")
	sess.Username = "mutated"

	fresh, _ := r.Get("c1")
	assert.Empty(t, fresh.Username)
}
