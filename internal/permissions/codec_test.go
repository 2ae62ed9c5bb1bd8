package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	cases := []struct {
		name string
		perm Permission
		want string
	}{
		{
			name: "concrete",
			perm: New(Deny, ActionDelete, ResourceLesson, "123"),
			want: "deny:delete:lesson:123",
		},
		{
			name: "wildcard action and id",
			perm: New(Allow, ActionAny, ResourceCourse, "*"),
			want: "allow:*:course:*",
		},
		{
			name: "empty id means any",
			perm: New(Allow, ActionRead, ResourceUser, ""),
			want: "allow:read:user:*",
		},
		{
			name: "id lower cased",
			perm: New(Allow, ActionRead, ResourceCourse, "ABC"),
			want: "allow:read:course:abc",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.perm.Encode())
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	effects := []Effect{Allow, Deny}
	actions := []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionAny}
	resources := []Resource{ResourceCourse, ResourceLesson, ResourceUser, ResourceEnrollment, ResourceAny}
	ids := []string{"*", "abc", "42"}

	for _, effect := range effects {
		for _, action := range actions {
			for _, resource := range resources {
				for _, id := range ids {
					perm := New(effect, action, resource, id)
					decoded, err := Parse(perm.Encode())
					require.NoError(t, err, "token %q", perm.Encode())
					assert.Equal(t, perm, decoded)
				}
			}
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"allow",
		"allow:read:course",
		"allow:read:course:abc:extra",
		"allow:read:course:",
		"allow::course:abc",
	}
	for _, token := range cases {
		_, err := Parse(token)
		assert.ErrorIs(t, err, ErrMalformed, "token %q", token)
	}
}

func TestParseRejectsUnknownEnumerants(t *testing.T) {
	cases := []string{
		"grant:read:course:abc",
		"*:read:course:abc",
		"allow:fly:course:abc",
		"allow:read:planet:abc",
	}
	for _, token := range cases {
		_, err := Parse(token)
		assert.ErrorIs(t, err, ErrUnknownEnumerant, "token %q", token)
	}
}

func TestParseNormalizesCase(t *testing.T) {
	decoded, err := Parse("Allow:READ:Course:AbC")
	require.NoError(t, err)
	assert.Equal(t, New(Allow, ActionRead, ResourceCourse, "abc"), decoded)
}
