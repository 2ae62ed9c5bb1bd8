package permissions

import (
	"errors"
	"fmt"
	"strings"
)

const (
	segmentSeparator = ":"
	segmentCount     = 4
)

// ErrMalformed indicates a token that is not four non-empty colon separated
// segments.
var ErrMalformed = errors.New("permissions: malformed token")

// ErrUnknownEnumerant indicates a segment that is not a known effect, action
// or resource name.
var ErrUnknownEnumerant = errors.New("permissions: unknown enumerant")

// Parse decodes an encoded permission token. Decoding is total: every failure
// is reported as a typed error, never a panic, so callers can drop a bad entry
// and keep going.
func Parse(token string) (Permission, error) {
	segments := strings.Split(strings.ToLower(strings.TrimSpace(token)), segmentSeparator)
	if len(segments) != segmentCount {
		return Permission{}, fmt.Errorf("%w: %q", ErrMalformed, token)
	}
	for _, seg := range segments {
		if seg == "" {
			return Permission{}, fmt.Errorf("%w: %q", ErrMalformed, token)
		}
	}

	effect, err := parseEffect(segments[0])
	if err != nil {
		return Permission{}, err
	}
	action, err := parseAction(segments[1])
	if err != nil {
		return Permission{}, err
	}
	resource, err := parseResource(segments[2])
	if err != nil {
		return Permission{}, err
	}

	return Permission{
		Effect:     effect,
		Action:     action,
		Resource:   resource,
		ResourceID: segments[3],
	}, nil
}

func parseEffect(s string) (Effect, error) {
	switch Effect(s) {
	case Allow, Deny:
		return Effect(s), nil
	}
	// The effect segment has no wildcard form.
	return "", fmt.Errorf("%w: effect %q", ErrUnknownEnumerant, s)
}

func parseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionAny:
		return Action(s), nil
	}
	return "", fmt.Errorf("%w: action %q", ErrUnknownEnumerant, s)
}

func parseResource(s string) (Resource, error) {
	switch Resource(s) {
	case ResourceCourse, ResourceLesson, ResourceUser, ResourceEnrollment, ResourceAny:
		return Resource(s), nil
	}
	return "", fmt.Errorf("%w: resource %q", ErrUnknownEnumerant, s)
}
