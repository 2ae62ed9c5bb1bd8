package identity

import (
	"context"
	"fmt"
	"strings"
)

// Publisher turns collected dirty keys into integration events. The events
// carry only the key; consumers recompute state from the source of truth.
type Publisher interface {
	PublishRoleChanged(ctx context.Context, roleName string) error
	PublishUserChanged(ctx context.Context, userKey string) error
}

// Collector batches cache-refresh signals within one unit of work,
// deduplicated by key. One collector exists per unit of work; instances are
// never shared across requests.
type Collector struct {
	publisher Publisher
	roles     map[string]struct{}
	users     map[string]struct{}
}

// NewCollector constructs an empty collector.
func NewCollector(publisher Publisher) *Collector {
	return &Collector{
		publisher: publisher,
		roles:     make(map[string]struct{}),
		users:     make(map[string]struct{}),
	}
}

// MarkRole records that the role's cached permissions must be refreshed.
// Duplicate marks collapse into one.
func (c *Collector) MarkRole(roleName string) {
	roleName = strings.ToLower(strings.TrimSpace(roleName))
	if roleName == "" {
		return
	}
	c.roles[roleName] = struct{}{}
}

// MarkUser records that the user's cached permissions must be refreshed.
// Duplicate marks collapse into one.
func (c *Collector) MarkUser(userKey string) {
	userKey = strings.TrimSpace(userKey)
	if userKey == "" {
		return
	}
	c.users[userKey] = struct{}{}
}

// Flush publishes exactly one integration event per marked key, then clears
// the sets. The unit of work calls this once after a successful commit and
// never after a failed one, so a failed transaction cannot drop a refresh that
// is still owed on retry.
func (c *Collector) Flush(ctx context.Context) error {
	for role := range c.roles {
		if err := c.publisher.PublishRoleChanged(ctx, role); err != nil {
			return fmt.Errorf("identity: publish role change %q: %w", role, err)
		}
	}
	for user := range c.users {
		if err := c.publisher.PublishUserChanged(ctx, user); err != nil {
			return fmt.Errorf("identity: publish user change %q: %w", user, err)
		}
	}
	c.roles = make(map[string]struct{})
	c.users = make(map[string]struct{})
	return nil
}

// Pending reports how many keys are currently marked.
func (c *Collector) Pending() int { return len(c.roles) + len(c.users) }
