package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/permissions"
)

// Event kinds. The dispatcher routes on these tags instead of runtime type
// inspection.
const (
	KindRoleCreated            = "role.created"
	KindRolePermissionAdded    = "role.permission_added"
	KindRolePermissionRemoved  = "role.permission_removed"
	KindUserRoleAdded          = "user.role_added"
	KindUserRoleRemoved        = "user.role_removed"
	KindUserPermissionAdded    = "user.permission_added"
	KindUserPermissionRemoved  = "user.permission_removed"
	KindUserPermissionsUpdated = "user.permissions_updated"
)

// Event is a fact raised by an aggregate mutation. Events carry everything a
// downstream projection needs so handlers never re-read the aggregate.
type Event interface {
	Kind() string
	EventID() uuid.UUID
	OccurredAt() time.Time
}

type eventMeta struct {
	ID uuid.UUID
	At time.Time
}

func newEventMeta() eventMeta {
	return eventMeta{ID: uuid.New(), At: time.Now().UTC()}
}

func (m eventMeta) EventID() uuid.UUID    { return m.ID }
func (m eventMeta) OccurredAt() time.Time { return m.At }

// RoleCreated is raised when a new role comes into existence.
type RoleCreated struct {
	eventMeta
	RoleID   uuid.UUID
	RoleName string
}

func (RoleCreated) Kind() string { return KindRoleCreated }

// RolePermissionAdded is raised when a permission is granted to a role.
type RolePermissionAdded struct {
	eventMeta
	RoleID     uuid.UUID
	RoleName   string
	Permission permissions.Permission
}

func (RolePermissionAdded) Kind() string { return KindRolePermissionAdded }

// RolePermissionRemoved is raised when a permission is revoked from a role.
type RolePermissionRemoved struct {
	eventMeta
	RoleID     uuid.UUID
	RoleName   string
	Permission permissions.Permission
}

func (RolePermissionRemoved) Kind() string { return KindRolePermissionRemoved }

// UserRoleAdded is raised when a user gains a role membership.
type UserRoleAdded struct {
	eventMeta
	UserID   uuid.UUID
	RoleName string
}

func (UserRoleAdded) Kind() string { return KindUserRoleAdded }

// UserRoleRemoved is raised when a user loses a role membership.
type UserRoleRemoved struct {
	eventMeta
	UserID   uuid.UUID
	RoleName string
}

func (UserRoleRemoved) Kind() string { return KindUserRoleRemoved }

// UserPermissionAdded is raised when a user gains a direct permission.
type UserPermissionAdded struct {
	eventMeta
	UserID     uuid.UUID
	Permission permissions.Permission
}

func (UserPermissionAdded) Kind() string { return KindUserPermissionAdded }

// UserPermissionRemoved is raised when a user loses a direct permission.
type UserPermissionRemoved struct {
	eventMeta
	UserID     uuid.UUID
	Permission permissions.Permission
}

func (UserPermissionRemoved) Kind() string { return KindUserPermissionRemoved }

// UserPermissionsUpdated is raised by the bulk replace operation and carries
// both sides of the change.
type UserPermissionsUpdated struct {
	eventMeta
	UserID  uuid.UUID
	Added   []permissions.Permission
	Removed []permissions.Permission
}

func (UserPermissionsUpdated) Kind() string { return KindUserPermissionsUpdated }
