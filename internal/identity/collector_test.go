package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	roles []string
	users []string
	err   error
}

func (p *recordingPublisher) PublishRoleChanged(_ context.Context, roleName string) error {
	if p.err != nil {
		return p.err
	}
	p.roles = append(p.roles, roleName)
	return nil
}

func (p *recordingPublisher) PublishUserChanged(_ context.Context, userKey string) error {
	if p.err != nil {
		return p.err
	}
	p.users = append(p.users, userKey)
	return nil
}

func TestCollectorDedup(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub)

	c.MarkRole("Admin")
	c.MarkRole("admin")
	c.MarkRole("ADMIN ")
	require.Equal(t, 1, c.Pending())

	require.NoError(t, c.Flush(context.Background()))
	assert.Equal(t, []string{"admin"}, pub.roles)

	// A second flush with no new marks publishes nothing.
	require.NoError(t, c.Flush(context.Background()))
	assert.Len(t, pub.roles, 1)
}

func TestCollectorMarksUsersAndRolesIndependently(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub)

	c.MarkRole("editor")
	c.MarkUser("user-1")
	c.MarkUser("user-1")
	c.MarkUser("user-2")

	require.NoError(t, c.Flush(context.Background()))
	assert.Equal(t, []string{"editor"}, pub.roles)
	assert.ElementsMatch(t, []string{"user-1", "user-2"}, pub.users)
	assert.Zero(t, c.Pending())
}

func TestCollectorIgnoresEmptyKeys(t *testing.T) {
	c := NewCollector(&recordingPublisher{})
	c.MarkRole("  ")
	c.MarkUser("")
	assert.Zero(t, c.Pending())
}

func TestCollectorFlushFailureKeepsSet(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	c := NewCollector(pub)
	c.MarkRole("admin")

	err := c.Flush(context.Background())
	require.Error(t, err)
	// The dirty set is still owed once publishing recovers.
	assert.Equal(t, 1, c.Pending())

	pub.err = nil
	require.NoError(t, c.Flush(context.Background()))
	assert.Equal(t, []string{"admin"}, pub.roles)
	assert.Zero(t, c.Pending())
}
