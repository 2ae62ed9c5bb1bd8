package identity

import (
	"context"
	"fmt"
	"log/slog"
)

// EventHandler reacts to a domain event within the unit of work that raised it.
// Handlers may perform I/O; an error fails the whole dispatch, which in turn
// prevents the collector flush.
type EventHandler func(ctx context.Context, ev Event, c *Collector) error

// Dispatcher is an explicit kind-to-handlers registry built once at process
// start. There is no runtime type scanning: every handler is registered by
// event kind.
type Dispatcher struct {
	handlers map[string][]EventHandler
	logger   *slog.Logger
}

// NewDispatcher constructs an empty registry.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]EventHandler),
		logger:   logger,
	}
}

// Register appends a handler for the given event kind. Registration order is
// dispatch order.
func (d *Dispatcher) Register(kind string, h EventHandler) {
	if kind == "" || h == nil {
		return
	}
	d.handlers[kind] = append(d.handlers[kind], h)
}

// Dispatch runs every handler registered for the event's kind, in
// registration order. An event with no handlers is logged and skipped, not an
// error.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event, c *Collector) error {
	hs, ok := d.handlers[ev.Kind()]
	if !ok {
		if d.logger != nil {
			d.logger.Debug("no handler for domain event", slog.String("kind", ev.Kind()))
		}
		return nil
	}
	for _, h := range hs {
		if err := h(ctx, ev, c); err != nil {
			return fmt.Errorf("identity: dispatch %s: %w", ev.Kind(), err)
		}
	}
	return nil
}

// RegisterInvalidationHandlers wires the standard projection: every mutation
// that can change a role's or user's effective permissions marks the owning
// key dirty so the collector refreshes it exactly once per unit of work.
func RegisterInvalidationHandlers(d *Dispatcher) {
	markRole := func(ctx context.Context, ev Event, c *Collector) error {
		switch e := ev.(type) {
		case RoleCreated:
			c.MarkRole(e.RoleName)
		case RolePermissionAdded:
			c.MarkRole(e.RoleName)
		case RolePermissionRemoved:
			c.MarkRole(e.RoleName)
		}
		return nil
	}
	markUser := func(ctx context.Context, ev Event, c *Collector) error {
		switch e := ev.(type) {
		case UserRoleAdded:
			c.MarkUser(e.UserID.String())
		case UserRoleRemoved:
			c.MarkUser(e.UserID.String())
		case UserPermissionAdded:
			c.MarkUser(e.UserID.String())
		case UserPermissionRemoved:
			c.MarkUser(e.UserID.String())
		case UserPermissionsUpdated:
			c.MarkUser(e.UserID.String())
		}
		return nil
	}

	d.Register(KindRoleCreated, markRole)
	d.Register(KindRolePermissionAdded, markRole)
	d.Register(KindRolePermissionRemoved, markRole)
	d.Register(KindUserRoleAdded, markUser)
	d.Register(KindUserRoleRemoved, markUser)
	d.Register(KindUserPermissionAdded, markUser)
	d.Register(KindUserPermissionRemoved, markUser)
	d.Register(KindUserPermissionsUpdated, markUser)
}
