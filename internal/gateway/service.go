package gateway

import (
	"context"
	"log/slog"
)

// UserPermissionsService is the cache-aside composition the gateway runs per
// request: cache hit wins, a miss is recomputed from the identity service and
// populated with a TTL, and a source failure propagates so the caller can
// fail closed instead of treating the user as permissionless.
type UserPermissionsService struct {
	cache  *PermissionsCache
	source Source
	logger *slog.Logger
}

// NewUserPermissionsService composes cache and source.
func NewUserPermissionsService(cache *PermissionsCache, source Source, logger *slog.Logger) *UserPermissionsService {
	return &UserPermissionsService{cache: cache, source: source, logger: logger}
}

// Resolve returns the user's current permissions. A cache read failure is
// logged and treated as a miss; a source failure is never converted into an
// empty set. A cancelled resolution does not populate the cache.
func (s *UserPermissionsService) Resolve(ctx context.Context, userID string) (ResolvedPermissions, error) {
	record, ok, err := s.cache.Get(ctx, userID)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("permissions cache read failed", slog.String("user", userID), slog.Any("error", err))
		}
	} else if ok {
		return record, nil
	}

	resolved, err := s.source.Fetch(ctx, userID)
	if err != nil {
		return ResolvedPermissions{}, err
	}
	if ctx.Err() != nil {
		return ResolvedPermissions{}, ctx.Err()
	}

	if err := s.cache.Set(ctx, userID, resolved); err != nil && s.logger != nil {
		// Serving fresh data matters more than caching it.
		s.logger.Warn("permissions cache populate failed", slog.String("user", userID), slog.Any("error", err))
	}
	return resolved, nil
}
