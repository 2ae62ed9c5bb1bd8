package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const roleCacheKeyPrefix = "auth:roles:"

// CachedRolePermissions is the denormalized record stored per role in the
// shared cache. It is a read accelerator, never a source of truth.
type CachedRolePermissions struct {
	RoleName    string   `json:"roleName"`
	Permissions []string `json:"permissions"`
}

// RoleCache reads and overwrites per-role permission records in Redis.
// Records are always replaced whole; no merge path exists, so a removed
// permission can never survive a refresh.
type RoleCache struct {
	client *redis.Client
}

// NewRoleCache wraps a Redis client.
func NewRoleCache(client *redis.Client) *RoleCache {
	return &RoleCache{client: client}
}

// Key derives the deterministic cache key for a role name.
func (c *RoleCache) Key(roleName string) string {
	return roleCacheKeyPrefix + strings.ToLower(strings.TrimSpace(roleName))
}

// Get fetches the cached record. A missing key reports ok=false; a record
// that fails to decode is deleted and likewise reported as a miss, so the
// next refresh rebuilds it.
func (c *RoleCache) Get(ctx context.Context, roleName string) (CachedRolePermissions, bool, error) {
	key := c.Key(roleName)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return CachedRolePermissions{}, false, nil
	}
	if err != nil {
		return CachedRolePermissions{}, false, fmt.Errorf("identity: role cache get: %w", err)
	}
	var record CachedRolePermissions
	if err := json.Unmarshal(payload, &record); err != nil {
		_ = c.client.Del(ctx, key).Err()
		return CachedRolePermissions{}, false, nil
	}
	return record, true, nil
}

// Refresh overwrites the role's record with the full recomputed permission
// list, unconditionally replacing any prior value.
func (c *RoleCache) Refresh(ctx context.Context, roleName string, encoded []string) error {
	if encoded == nil {
		encoded = []string{}
	}
	record := CachedRolePermissions{
		RoleName:    strings.ToLower(strings.TrimSpace(roleName)),
		Permissions: encoded,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("identity: role cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.Key(roleName), payload, 0).Err(); err != nil {
		return fmt.Errorf("identity: role cache set: %w", err)
	}
	return nil
}

// Delete drops the role's record entirely, used when the role itself is gone.
func (c *RoleCache) Delete(ctx context.Context, roleName string) error {
	if err := c.client.Del(ctx, c.Key(roleName)).Err(); err != nil {
		return fmt.Errorf("identity: role cache del: %w", err)
	}
	return nil
}
