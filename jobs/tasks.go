// Package jobs carries the integration-event pipeline between the identity
// service and the shared permission cache: task definitions, the publishing
// client and the worker that recomputes cache records.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue name for invalidation jobs.
	QueueDefault = "default"
	// TaskRolePermissionsChanged signals that a role's cached permissions
	// must be recomputed. The payload names the role only; the new state is
	// always read back from the source of truth.
	TaskRolePermissionsChanged = "authz:role:refresh"
	// TaskUserPermissionsChanged signals that a user's edge cache entry must
	// be dropped.
	TaskUserPermissionsChanged = "authz:user:refresh"
)

// RoleRefreshPayload identifies the role to recompute.
type RoleRefreshPayload struct {
	RoleName string `json:"role_name"`
}

// UserRefreshPayload identifies the user whose edge entry to invalidate.
type UserRefreshPayload struct {
	UserKey string `json:"user_key"`
}

// NewRoleRefreshTask constructs an Asynq task for a role change.
func NewRoleRefreshTask(roleName string) (*asynq.Task, error) {
	data, err := json.Marshal(RoleRefreshPayload{RoleName: roleName})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRolePermissionsChanged, data), nil
}

// NewUserRefreshTask constructs an Asynq task for a user change.
func NewUserRefreshTask(userKey string) (*asynq.Task, error) {
	data, err := json.Marshal(UserRefreshPayload{UserKey: userKey})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskUserPermissionsChanged, data), nil
}

// Client publishes integration events to the queue. It satisfies
// identity.Publisher.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq-backed publisher.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// PublishRoleChanged enqueues one role refresh event.
func (c *Client) PublishRoleChanged(ctx context.Context, roleName string) error {
	task, err := NewRoleRefreshTask(roleName)
	if err != nil {
		return fmt.Errorf("jobs: build role refresh task: %w", err)
	}
	if _, err := c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		return fmt.Errorf("jobs: enqueue role refresh: %w", err)
	}
	return nil
}

// PublishUserChanged enqueues one user refresh event.
func (c *Client) PublishUserChanged(ctx context.Context, userKey string) error {
	task, err := NewUserRefreshTask(userKey)
	if err != nil {
		return fmt.Errorf("jobs: build user refresh task: %w", err)
	}
	if _, err := c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		return fmt.Errorf("jobs: enqueue user refresh: %w", err)
	}
	return nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
