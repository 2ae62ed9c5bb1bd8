package identity

import (
	"strings"

	"github.com/google/uuid"

	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/permissions"
)

// AuthUser is the principal aggregate: an external identity-provider
// reference plus directly-granted permissions and role memberships. Its
// effective permission set is the union of direct permissions and the
// permissions of every assigned role.
type AuthUser struct {
	ID           uuid.UUID
	Subject      string // external identity-provider reference
	Email        string
	PasswordHash string

	perms *permissions.Set
	roles map[string]struct{}

	events []Event
}

// RehydrateUser reconstructs a user from the store without raising events.
func RehydrateUser(id uuid.UUID, subject, email, passwordHash string, perms *permissions.Set, roles []string) *AuthUser {
	if perms == nil {
		perms = permissions.NewSet()
	}
	u := &AuthUser{
		ID:           id,
		Subject:      subject,
		Email:        email,
		PasswordHash: passwordHash,
		perms:        perms,
		roles:        make(map[string]struct{}, len(roles)),
	}
	for _, role := range roles {
		u.roles[strings.ToLower(role)] = struct{}{}
	}
	return u
}

// AddRole assigns a role membership. Assigning an already-held role is a
// no-op.
func (u *AuthUser) AddRole(roleName string) bool {
	roleName = strings.ToLower(strings.TrimSpace(roleName))
	if _, ok := u.roles[roleName]; ok || roleName == "" {
		return false
	}
	u.roles[roleName] = struct{}{}
	u.raise(UserRoleAdded{eventMeta: newEventMeta(), UserID: u.ID, RoleName: roleName})
	return true
}

// RemoveRole removes a role membership. Removing an absent role is a no-op.
func (u *AuthUser) RemoveRole(roleName string) bool {
	roleName = strings.ToLower(strings.TrimSpace(roleName))
	if _, ok := u.roles[roleName]; !ok {
		return false
	}
	delete(u.roles, roleName)
	u.raise(UserRoleRemoved{eventMeta: newEventMeta(), UserID: u.ID, RoleName: roleName})
	return true
}

// AddPermission grants a direct permission. Duplicate grants are no-ops.
func (u *AuthUser) AddPermission(p permissions.Permission) bool {
	if !u.perms.Add(p) {
		return false
	}
	u.raise(UserPermissionAdded{eventMeta: newEventMeta(), UserID: u.ID, Permission: p})
	return true
}

// RemovePermission revokes a direct permission. Revoking an absent one is a
// no-op.
func (u *AuthUser) RemovePermission(p permissions.Permission) bool {
	if !u.perms.Remove(p) {
		return false
	}
	u.raise(UserPermissionRemoved{eventMeta: newEventMeta(), UserID: u.ID, Permission: p})
	return true
}

// ReplacePermissions applies a bulk add/remove in one step and raises a single
// UserPermissionsUpdated event carrying only the entries that actually
// changed. Returns false when nothing changed.
func (u *AuthUser) ReplacePermissions(added, removed []permissions.Permission) bool {
	var addedApplied, removedApplied []permissions.Permission
	for _, p := range removed {
		if u.perms.Remove(p) {
			removedApplied = append(removedApplied, p)
		}
	}
	for _, p := range added {
		if u.perms.Add(p) {
			addedApplied = append(addedApplied, p)
		}
	}
	if len(addedApplied) == 0 && len(removedApplied) == 0 {
		return false
	}
	u.raise(UserPermissionsUpdated{
		eventMeta: newEventMeta(),
		UserID:    u.ID,
		Added:     addedApplied,
		Removed:   removedApplied,
	})
	return true
}

// DirectPermissions returns the user's directly-granted permissions.
func (u *AuthUser) DirectPermissions() *permissions.Set { return u.perms }

// Roles returns the user's role names, unordered.
func (u *AuthUser) Roles() []string {
	out := make([]string, 0, len(u.roles))
	for role := range u.roles {
		out = append(out, role)
	}
	return out
}

// HasRole reports whether the user holds the role.
func (u *AuthUser) HasRole(roleName string) bool {
	_, ok := u.roles[strings.ToLower(roleName)]
	return ok
}

// Events returns the pending domain events in raise order.
func (u *AuthUser) Events() []Event { return u.events }

// ClearEvents empties the buffer. Called by the unit of work after dispatch.
func (u *AuthUser) ClearEvents() { u.events = nil }

func (u *AuthUser) raise(ev Event) { u.events = append(u.events, ev) }
