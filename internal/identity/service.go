package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/permissions"
)

// ErrInvalidCredentials indicates login failure. Deliberately the same error
// for an unknown email and a wrong password.
var ErrInvalidCredentials = errors.New("identity: invalid credentials")

// UserPermissionsView is the lookup API response: a user's role names and
// effective encoded permissions.
type UserPermissionsView struct {
	UserID      string   `json:"user_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Service orchestrates identity mutations through the unit of work and serves
// permission lookups, optionally accelerated by the role cache.
type Service struct {
	uow       *UnitOfWork
	store     Store
	roleCache *RoleCache
	logger    *slog.Logger
}

// NewService constructs a Service. roleCache may be nil; lookups then read
// the store directly.
func NewService(uow *UnitOfWork, store Store, roleCache *RoleCache, logger *slog.Logger) *Service {
	return &Service{uow: uow, store: store, roleCache: roleCache, logger: logger}
}

// CreateRole creates a new role.
func (s *Service) CreateRole(ctx context.Context, name string) (*Role, error) {
	var created *Role
	err := s.uow.Execute(ctx, func(ctx context.Context, w *Work) error {
		role, err := NewRole(name)
		if err != nil {
			return err
		}
		if err := w.Store.InsertRole(ctx, role); err != nil {
			return fmt.Errorf("identity: insert role: %w", err)
		}
		w.Track(role)
		created = role
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GrantRolePermission adds a permission to a role. Granting a permission the
// role already holds is a no-op.
func (s *Service) GrantRolePermission(ctx context.Context, roleName string, p permissions.Permission) error {
	return s.uow.Execute(ctx, func(ctx context.Context, w *Work) error {
		role, err := w.Store.GetRole(ctx, roleName)
		if err != nil {
			return err
		}
		if !role.AddPermission(p) {
			return nil
		}
		if err := w.Store.InsertRolePermission(ctx, role.ID, p.Encode()); err != nil {
			return fmt.Errorf("identity: insert role permission: %w", err)
		}
		w.Track(role)
		return nil
	})
}

// RevokeRolePermission removes a permission from a role. Revoking an absent
// permission is a no-op.
func (s *Service) RevokeRolePermission(ctx context.Context, roleName string, p permissions.Permission) error {
	return s.uow.Execute(ctx, func(ctx context.Context, w *Work) error {
		role, err := w.Store.GetRole(ctx, roleName)
		if err != nil {
			return err
		}
		if !role.RemovePermission(p) {
			return nil
		}
		if err := w.Store.DeleteRolePermission(ctx, role.ID, p.Encode()); err != nil {
			return fmt.Errorf("identity: delete role permission: %w", err)
		}
		w.Track(role)
		return nil
	})
}

// AssignUserRole grants a role membership to a user.
func (s *Service) AssignUserRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	return s.uow.Execute(ctx, func(ctx context.Context, w *Work) error {
		if _, err := w.Store.GetRole(ctx, roleName); err != nil {
			return err
		}
		user, err := w.Store.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if !user.AddRole(roleName) {
			return nil
		}
		if err := w.Store.InsertUserRole(ctx, user.ID, roleName); err != nil {
			return fmt.Errorf("identity: insert user role: %w", err)
		}
		w.Track(user)
		return nil
	})
}

// RemoveUserRole revokes a role membership from a user.
func (s *Service) RemoveUserRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	return s.uow.Execute(ctx, func(ctx context.Context, w *Work) error {
		user, err := w.Store.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if !user.RemoveRole(roleName) {
			return nil
		}
		if err := w.Store.DeleteUserRole(ctx, user.ID, roleName); err != nil {
			return fmt.Errorf("identity: delete user role: %w", err)
		}
		w.Track(user)
		return nil
	})
}

// GrantUserPermission adds a direct permission to a user.
func (s *Service) GrantUserPermission(ctx context.Context, userID uuid.UUID, p permissions.Permission) error {
	return s.uow.Execute(ctx, func(ctx context.Context, w *Work) error {
		user, err := w.Store.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if !user.AddPermission(p) {
			return nil
		}
		if err := w.Store.InsertUserPermission(ctx, user.ID, p.Encode()); err != nil {
			return fmt.Errorf("identity: insert user permission: %w", err)
		}
		w.Track(user)
		return nil
	})
}

// RevokeUserPermission removes a direct permission from a user.
func (s *Service) RevokeUserPermission(ctx context.Context, userID uuid.UUID, p permissions.Permission) error {
	return s.uow.Execute(ctx, func(ctx context.Context, w *Work) error {
		user, err := w.Store.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if !user.RemovePermission(p) {
			return nil
		}
		if err := w.Store.DeleteUserPermission(ctx, user.ID, p.Encode()); err != nil {
			return fmt.Errorf("identity: delete user permission: %w", err)
		}
		w.Track(user)
		return nil
	})
}

// ReplaceUserPermissions applies a bulk grant/revoke atomically, raising one
// UserPermissionsUpdated event for the entries that actually changed.
func (s *Service) ReplaceUserPermissions(ctx context.Context, userID uuid.UUID, added, removed []permissions.Permission) error {
	return s.uow.Execute(ctx, func(ctx context.Context, w *Work) error {
		user, err := w.Store.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		before := user.DirectPermissions().Encoded()
		if !user.ReplacePermissions(added, removed) {
			return nil
		}
		prior := make(map[string]struct{}, len(before))
		for _, token := range before {
			prior[token] = struct{}{}
		}
		for _, p := range removed {
			if _, ok := prior[p.Encode()]; !ok {
				continue
			}
			if err := w.Store.DeleteUserPermission(ctx, user.ID, p.Encode()); err != nil {
				return fmt.Errorf("identity: delete user permission: %w", err)
			}
		}
		for _, p := range added {
			if !user.DirectPermissions().Contains(p) {
				continue
			}
			if err := w.Store.InsertUserPermission(ctx, user.ID, p.Encode()); err != nil {
				return fmt.Errorf("identity: insert user permission: %w", err)
			}
		}
		w.Track(user)
		return nil
	})
}

// UserPermissions computes the lookup API response: the user's roles plus the
// union of direct and role permissions. Role permission lists come from the
// role cache when present; a cache miss falls through to the store without
// populating (only the cache writer mutates the cache).
func (s *Service) UserPermissions(ctx context.Context, userID uuid.UUID) (UserPermissionsView, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return UserPermissionsView{}, err
	}

	effective := user.DirectPermissions().Union(nil)
	for _, roleName := range user.Roles() {
		tokens, err := s.rolePermissionTokens(ctx, roleName)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return UserPermissionsView{}, err
		}
		roleSet, parseErrs := permissions.ParseSet(tokens)
		s.logParseErrors(roleName, parseErrs)
		effective = effective.Union(roleSet)
	}

	return UserPermissionsView{
		UserID:      user.ID.String(),
		Roles:       user.Roles(),
		Permissions: effective.Encoded(),
	}, nil
}

// RolePermissions returns the encoded permissions of a role, always from the
// source of truth. The cache writer uses this to recompute records.
func (s *Service) RolePermissions(ctx context.Context, roleName string) ([]string, error) {
	return s.store.RolePermissions(ctx, roleName)
}

// Authenticate verifies credentials and returns the user with its effective
// permissions, ready for token issuance.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*AuthUser, UserPermissionsView, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, UserPermissionsView{}, ErrInvalidCredentials
		}
		return nil, UserPermissionsView{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, UserPermissionsView{}, ErrInvalidCredentials
	}
	view, err := s.UserPermissions(ctx, user.ID)
	if err != nil {
		return nil, UserPermissionsView{}, err
	}
	return user, view, nil
}

func (s *Service) rolePermissionTokens(ctx context.Context, roleName string) ([]string, error) {
	if s.roleCache != nil {
		record, ok, err := s.roleCache.Get(ctx, roleName)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("role cache read failed", slog.String("role", roleName), slog.Any("error", err))
			}
		} else if ok {
			return record.Permissions, nil
		}
	}
	return s.store.RolePermissions(ctx, roleName)
}

func (s *Service) logParseErrors(roleName string, errs []error) {
	if s.logger == nil {
		return
	}
	for _, err := range errs {
		s.logger.Warn("dropping malformed stored permission",
			slog.String("role", roleName), slog.Any("error", err))
	}
}
