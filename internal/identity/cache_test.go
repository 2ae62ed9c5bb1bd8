package identity

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoleCache(t *testing.T) (*RoleCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRoleCache(client), mr
}

func TestRoleCacheRefreshOverwrites(t *testing.T) {
	cache, _ := newRoleCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Refresh(ctx, "Admin", []string{"allow:*:course:*", "deny:delete:course:abc"}))

	record, ok, err := cache.Get(ctx, "admin")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "admin", record.RoleName)
	assert.Equal(t, []string{"allow:*:course:*", "deny:delete:course:abc"}, record.Permissions)

	// A refresh with the permission removed must leave nothing of the old
	// record behind.
	require.NoError(t, cache.Refresh(ctx, "Admin", nil))
	record, ok, err = cache.Get(ctx, "ADMIN")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, record.Permissions)
}

func TestRoleCacheMiss(t *testing.T) {
	cache, _ := newRoleCache(t)
	_, ok, err := cache.Get(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoleCacheCorruptRecordIsDroppedAsMiss(t *testing.T) {
	cache, mr := newRoleCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(cache.Key("admin"), "{not json"))

	_, ok, err := cache.Get(ctx, "admin")
	require.NoError(t, err)
	assert.False(t, ok)
	// The poisoned key must be gone so the next refresh rebuilds it.
	assert.False(t, mr.Exists(cache.Key("admin")))
}

func TestRoleCacheDelete(t *testing.T) {
	cache, mr := newRoleCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Refresh(ctx, "admin", []string{"allow:read:course:*"}))
	require.NoError(t, cache.Delete(ctx, "admin"))
	assert.False(t, mr.Exists(cache.Key("admin")))
}
