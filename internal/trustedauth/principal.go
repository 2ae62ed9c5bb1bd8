// Package trustedauth reconstructs a request principal from headers set by
// the gateway. Its correctness rests on a network-level invariant: only the
// gateway may set these headers, and the gateway strips any value arriving
// from outside the trusted boundary before they reach a downstream service.
package trustedauth

import (
	"context"

	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/permissions"
)

// Trusted header names, gateway to downstream.
const (
	HeaderSubject    = "X-Auth-Subject"
	HeaderRole       = "X-Auth-Role"
	HeaderPermission = "X-Auth-Permission"
)

// Principal is the identity a request acts as. A zero Subject means
// anonymous; anonymous principals carry an empty permission set and so fail
// every check by default-deny.
type Principal struct {
	Subject     string
	Roles       []string
	Permissions *permissions.Set
}

// Anonymous reports whether the request carried no identity.
func (p *Principal) Anonymous() bool {
	return p == nil || p.Subject == ""
}

// Allows evaluates a permission query against the principal's set.
func (p *Principal) Allows(action permissions.Action, resource permissions.Resource, resourceID string) bool {
	if p == nil || p.Permissions == nil {
		return false
	}
	return p.Permissions.Evaluate(action, resource, resourceID) == permissions.DecisionAllow
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal, or nil when the request is
// anonymous.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
