package trustedauth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/permissions"
)

func TestFromHeadersAnonymous(t *testing.T) {
	p, err := FromHeaders(http.Header{}, nil)
	require.NoError(t, err)
	assert.Nil(t, p, "no subject header means anonymous, not an error")
}

func TestFromHeadersEmptySubjectIsMalformed(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderSubject, "   ")
	_, err := FromHeaders(h, nil)
	assert.ErrorIs(t, err, ErrAuthenticationMalformed)
}

func TestFromHeadersDropsOnlyBadPermissionEntries(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderSubject, "user-1")
	h.Add(HeaderRole, "Admin")
	h.Add(HeaderPermission, "allow:read:course:*")
	h.Add(HeaderPermission, "totally-broken")
	h.Add(HeaderPermission, "deny:delete:course:abc")

	p, err := FromHeaders(h, nil)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "user-1", p.Subject)
	assert.Equal(t, []string{"admin"}, p.Roles)
	assert.Equal(t, 2, p.Permissions.Len(), "the two valid entries are honored")
	assert.True(t, p.Allows(permissions.ActionRead, permissions.ResourceCourse, "any"))
	assert.False(t, p.Allows(permissions.ActionDelete, permissions.ResourceCourse, "abc"))
}

func TestMiddlewareAnonymousPassesThrough(t *testing.T) {
	var seen *Principal
	handler := Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
	}))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/courses", nil))

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Nil(t, seen)
}

func TestMiddlewareMalformedSubjectRejected(t *testing.T) {
	handler := Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	req.Header.Set(HeaderSubject, "")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestRequirePermission(t *testing.T) {
	router := chi.NewRouter()
	router.Use(Middleware(nil))
	router.With(RequirePermission(permissions.ActionDelete, permissions.ResourceCourse)).
		Delete("/courses/{id}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

	do := func(headers map[string][]string, path string) int {
		req := httptest.NewRequest(http.MethodDelete, path, nil)
		for name, values := range headers {
			for _, v := range values {
				req.Header.Add(name, v)
			}
		}
		res := httptest.NewRecorder()
		router.ServeHTTP(res, req)
		return res.Code
	}

	granted := map[string][]string{
		HeaderSubject:    {"user-1"},
		HeaderPermission: {"allow:*:course:*", "deny:delete:course:abc"},
	}

	assert.Equal(t, http.StatusNoContent, do(granted, "/courses/xyz"))
	assert.Equal(t, http.StatusForbidden, do(granted, "/courses/abc"), "deny wins over the wildcard allow")

	// Anonymous requests are evaluated against an empty set: default deny.
	assert.Equal(t, http.StatusForbidden, do(nil, "/courses/xyz"))
}
