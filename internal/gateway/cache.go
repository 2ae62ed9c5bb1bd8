// Package gateway implements the edge side of the authorization subsystem:
// per-request resolution of a user's permissions through a cache-aside lookup
// against the identity service, and injection of the resolved identity into
// trusted headers for downstream services.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/permissions"
)

const userCacheKeyPrefix = "auth:users:"

// ResolvedPermissions is a user's identity as resolved by the edge: role
// names plus the effective encoded permission list.
type ResolvedPermissions struct {
	UserID      string   `json:"user_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// PermissionSet decodes the encoded list into an evaluable set, dropping any
// malformed entry.
func (r ResolvedPermissions) PermissionSet() *permissions.Set {
	set, _ := permissions.ParseSet(r.Permissions)
	return set
}

// PermissionsCache stores resolved user permissions in Redis with a TTL that
// bounds staleness. A record that fails to decode is deleted and treated as a
// miss.
type PermissionsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPermissionsCache wraps a Redis client.
func NewPermissionsCache(client *redis.Client, ttl time.Duration) *PermissionsCache {
	return &PermissionsCache{client: client, ttl: ttl}
}

// Key derives the cache key for a user.
func (c *PermissionsCache) Key(userKey string) string {
	return userCacheKeyPrefix + strings.TrimSpace(userKey)
}

// Get fetches a cached resolution. ok is false on miss.
func (c *PermissionsCache) Get(ctx context.Context, userKey string) (ResolvedPermissions, bool, error) {
	key := c.Key(userKey)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return ResolvedPermissions{}, false, nil
	}
	if err != nil {
		return ResolvedPermissions{}, false, fmt.Errorf("gateway: cache get: %w", err)
	}
	var record ResolvedPermissions
	if err := json.Unmarshal(payload, &record); err != nil {
		_ = c.client.Del(ctx, key).Err()
		return ResolvedPermissions{}, false, nil
	}
	return record, true, nil
}

// Set stores a resolution under the configured TTL.
func (c *PermissionsCache) Set(ctx context.Context, userKey string, record ResolvedPermissions) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("gateway: cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.Key(userKey), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("gateway: cache set: %w", err)
	}
	return nil
}

// Invalidate drops a user's entry. Used by the invalidation worker when the
// user's permissions change.
func (c *PermissionsCache) Invalidate(ctx context.Context, userKey string) error {
	if err := c.client.Del(ctx, c.Key(userKey)).Err(); err != nil {
		return fmt.Errorf("gateway: cache invalidate: %w", err)
	}
	return nil
}
