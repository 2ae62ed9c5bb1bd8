package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/tokens"
	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/trustedauth"
)

func newMiddleware(t *testing.T, source Source) (Middleware, *tokens.Issuer) {
	t.Helper()
	cache, _ := newCache(t, time.Minute)
	issuer, err := tokens.NewIssuer("secret", "course-platform", time.Hour)
	require.NoError(t, err)
	return Middleware{
		Resolver: NewUserPermissionsService(cache, source, nil),
		Verifier: issuer,
	}, issuer
}

func TestMiddlewareInjectsResolvedHeaders(t *testing.T) {
	source := &stubSource{resolved: ResolvedPermissions{
		UserID:      "user-1",
		Roles:       []string{"admin"},
		Permissions: []string{"allow:*:course:*", "deny:delete:course:abc"},
	}}
	mw, issuer := newMiddleware(t, source)

	var forwarded http.Header
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwarded = r.Header.Clone()
	}))

	token, err := issuer.Issue("user-1", "user@example.com", []string{"stale-role"}, []string{"allow:read:user:*"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	// Spoofed inbound trusted headers must never survive the boundary.
	req.Header.Set(trustedauth.HeaderSubject, "attacker")
	req.Header.Add(trustedauth.HeaderPermission, "allow:*:*:*")

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "user-1", forwarded.Get(trustedauth.HeaderSubject))
	assert.Equal(t, []string{"admin"}, forwarded.Values(trustedauth.HeaderRole))
	// The freshly resolved set is forwarded, not the token's snapshot.
	assert.Equal(t,
		[]string{"allow:*:course:*", "deny:delete:course:abc"},
		forwarded.Values(trustedauth.HeaderPermission))
}

func TestMiddlewareStripsHeadersForAnonymous(t *testing.T) {
	mw, _ := newMiddleware(t, &stubSource{})

	var forwarded http.Header
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwarded = r.Header.Clone()
	}))

	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	req.Header.Set(trustedauth.HeaderSubject, "attacker")

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Empty(t, forwarded.Values(trustedauth.HeaderSubject))
}

func TestMiddlewareRejectsInvalidToken(t *testing.T) {
	mw, _ := newMiddleware(t, &stubSource{})
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestMiddlewareFailsClosedWhenSourceUnavailable(t *testing.T) {
	mw, issuer := newMiddleware(t, &stubSource{err: ErrSourceUnavailable})
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	token, err := issuer.Issue("user-1", "", nil, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	assert.Equal(t, http.StatusServiceUnavailable, res.Code,
		"unconfirmed authorization is rejected, never allowed through")
}

func TestMiddlewareRejectsUnknownUser(t *testing.T) {
	mw, issuer := newMiddleware(t, &stubSource{err: ErrUserUnknown})
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	token, err := issuer.Issue("ghost", "", nil, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	assert.Equal(t, http.StatusUnauthorized, res.Code)
}
