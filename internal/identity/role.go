package identity

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/permissions"
)

// ErrRoleNameRequired indicates an empty role name.
var ErrRoleNameRequired = errors.New("identity: role name required")

// Role groups permissions under a case-insensitive unique name. Mutations are
// idempotent and raise domain events into an append-only buffer drained by the
// unit of work after a successful commit.
type Role struct {
	ID    uuid.UUID
	Name  string
	perms *permissions.Set

	events []Event
}

// NewRole creates a role and raises RoleCreated. The name is stored lower
// cased; uniqueness is enforced by the store.
func NewRole(name string) (*Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, ErrRoleNameRequired
	}
	r := &Role{
		ID:    uuid.New(),
		Name:  name,
		perms: permissions.NewSet(),
	}
	r.raise(RoleCreated{eventMeta: newEventMeta(), RoleID: r.ID, RoleName: r.Name})
	return r, nil
}

// RehydrateRole reconstructs a role from the store without raising events.
func RehydrateRole(id uuid.UUID, name string, perms *permissions.Set) *Role {
	if perms == nil {
		perms = permissions.NewSet()
	}
	return &Role{ID: id, Name: strings.ToLower(name), perms: perms}
}

// AddPermission grants a permission. Granting one that is already present is
// a no-op and raises nothing.
func (r *Role) AddPermission(p permissions.Permission) bool {
	if !r.perms.Add(p) {
		return false
	}
	r.raise(RolePermissionAdded{eventMeta: newEventMeta(), RoleID: r.ID, RoleName: r.Name, Permission: p})
	return true
}

// RemovePermission revokes a permission. Revoking one that is absent is a
// no-op and raises nothing.
func (r *Role) RemovePermission(p permissions.Permission) bool {
	if !r.perms.Remove(p) {
		return false
	}
	r.raise(RolePermissionRemoved{eventMeta: newEventMeta(), RoleID: r.ID, RoleName: r.Name, Permission: p})
	return true
}

// Permissions returns the role's current permission set.
func (r *Role) Permissions() *permissions.Set { return r.perms }

// Events returns the pending domain events in raise order.
func (r *Role) Events() []Event { return r.events }

// ClearEvents empties the buffer. Called by the unit of work after dispatch.
func (r *Role) ClearEvents() { r.events = nil }

func (r *Role) raise(ev Event) { r.events = append(r.events, ev) }
