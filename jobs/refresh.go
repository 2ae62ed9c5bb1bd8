package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/identity"
)

// RolePermissionsStore reads a role's current permissions from the source of
// truth.
type RolePermissionsStore interface {
	RolePermissions(ctx context.Context, roleName string) ([]string, error)
}

// UserCacheInvalidator drops a user's entry from the edge permission cache.
// Implemented by gateway.PermissionsCache.
type UserCacheInvalidator interface {
	Invalidate(ctx context.Context, userKey string) error
}

// RoleRefreshJob is the cache writer: on every role event it recomputes the
// role's full permission list from the store and overwrites the shared record.
// Recomputation makes out-of-order delivery converge; there is no diff path.
type RoleRefreshJob struct {
	store   RolePermissionsStore
	cache   *identity.RoleCache
	logger  *slog.Logger
	metrics *Metrics
}

// NewRoleRefreshJob constructs the handler.
func NewRoleRefreshJob(store RolePermissionsStore, cache *identity.RoleCache, logger *slog.Logger, metrics *Metrics) *RoleRefreshJob {
	return &RoleRefreshJob{store: store, cache: cache, logger: logger, metrics: metrics}
}

// Handle processes TaskRolePermissionsChanged tasks.
func (j *RoleRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	return j.metrics.Track(JobRoleRefresh).End(j.handle(ctx, t))
}

func (j *RoleRefreshJob) handle(ctx context.Context, t *asynq.Task) error {
	var payload RoleRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RoleName == "" {
		return asynq.SkipRetry
	}

	encoded, err := j.store.RolePermissions(ctx, payload.RoleName)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			// Role gone: its record must not linger.
			return j.cache.Delete(ctx, payload.RoleName)
		}
		return err
	}
	if err := j.cache.Refresh(ctx, payload.RoleName, encoded); err != nil {
		return err
	}
	if j.logger != nil {
		j.logger.Info("role cache refreshed",
			slog.String("role", payload.RoleName), slog.Int("permissions", len(encoded)))
	}
	return nil
}

// UserRefreshJob drops the user's edge cache entry so the next request
// recomputes it lazily through the cache-aside path.
type UserRefreshJob struct {
	cache   UserCacheInvalidator
	logger  *slog.Logger
	metrics *Metrics
}

// NewUserRefreshJob constructs the handler.
func NewUserRefreshJob(cache UserCacheInvalidator, logger *slog.Logger, metrics *Metrics) *UserRefreshJob {
	return &UserRefreshJob{cache: cache, logger: logger, metrics: metrics}
}

// Handle processes TaskUserPermissionsChanged tasks.
func (j *UserRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	return j.metrics.Track(JobUserRefresh).End(j.handle(ctx, t))
}

func (j *UserRefreshJob) handle(ctx context.Context, t *asynq.Task) error {
	var payload UserRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.UserKey == "" {
		return asynq.SkipRetry
	}
	if err := j.cache.Invalidate(ctx, payload.UserKey); err != nil {
		return err
	}
	if j.logger != nil {
		j.logger.Info("user permissions invalidated", slog.String("user", payload.UserKey))
	}
	return nil
}
