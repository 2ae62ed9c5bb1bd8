// Package permissions holds the canonical permission representation shared by
// the identity service, the gateway and every downstream service: a four part
// (effect, action, resource, resource id) value with a stable string encoding
// and an allow/deny evaluator over sets of such values.
package permissions

import "strings"

// Effect is the outcome a permission carries.
type Effect string

// Known effects. There is no wildcard effect.
const (
	Allow Effect = "allow"
	Deny  Effect = "deny"
)

// Action is the operation being authorized.
type Action string

// Known actions. ActionAny matches every action during evaluation.
const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionAny    Action = wildcard
)

// Resource is the category of object being acted on.
type Resource string

// Known resources. ResourceAny matches every resource during evaluation.
const (
	ResourceCourse     Resource = "course"
	ResourceLesson     Resource = "lesson"
	ResourceUser       Resource = "user"
	ResourceEnrollment Resource = "enrollment"
	ResourceAny        Resource = wildcard
)

// wildcard is the encoded marker for "any" in the action, resource and
// resource id segments.
const wildcard = "*"

// Permission is an immutable authorization rule. The zero value is not valid;
// construct through New or Parse.
type Permission struct {
	Effect     Effect
	Action     Action
	Resource   Resource
	ResourceID string
}

// New builds a permission. An empty resource id means "any instance" and is
// normalized to the wildcard marker so that the encoded form never carries an
// empty segment.
func New(effect Effect, action Action, resource Resource, resourceID string) Permission {
	resourceID = strings.ToLower(strings.TrimSpace(resourceID))
	if resourceID == "" {
		resourceID = wildcard
	}
	return Permission{
		Effect:     effect,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
	}
}

// Encode renders the permission as the canonical four segment token, e.g.
// "allow:read:course:*".
func (p Permission) Encode() string {
	id := p.ResourceID
	if id == "" {
		id = wildcard
	}
	return strings.Join([]string{
		string(p.Effect),
		string(p.Action),
		string(p.Resource),
		strings.ToLower(id),
	}, segmentSeparator)
}

// String implements fmt.Stringer using the encoded form.
func (p Permission) String() string { return p.Encode() }
