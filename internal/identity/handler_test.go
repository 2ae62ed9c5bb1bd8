package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/permissions"
)

type stubStore struct {
	users     map[uuid.UUID]*AuthUser
	byEmail   map[string]*AuthUser
	rolePerms map[string][]string
}

func newStubStore() *stubStore {
	return &stubStore{
		users:     map[uuid.UUID]*AuthUser{},
		byEmail:   map[string]*AuthUser{},
		rolePerms: map[string][]string{},
	}
}

func (s *stubStore) GetRole(context.Context, string) (*Role, error) { return nil, ErrNotFound }
func (s *stubStore) InsertRole(context.Context, *Role) error        { return nil }
func (s *stubStore) InsertRolePermission(context.Context, uuid.UUID, string) error {
	return nil
}
func (s *stubStore) DeleteRolePermission(context.Context, uuid.UUID, string) error {
	return nil
}

func (s *stubStore) RolePermissions(_ context.Context, roleName string) ([]string, error) {
	perms, ok := s.rolePerms[roleName]
	if !ok {
		return nil, ErrNotFound
	}
	return perms, nil
}

func (s *stubStore) GetUser(_ context.Context, id uuid.UUID) (*AuthUser, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return user, nil
}

func (s *stubStore) GetUserByEmail(_ context.Context, email string) (*AuthUser, error) {
	user, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return user, nil
}

func (s *stubStore) InsertUserRole(context.Context, uuid.UUID, string) error    { return nil }
func (s *stubStore) DeleteUserRole(context.Context, uuid.UUID, string) error    { return nil }
func (s *stubStore) InsertUserPermission(context.Context, uuid.UUID, string) error {
	return nil
}
func (s *stubStore) DeleteUserPermission(context.Context, uuid.UUID, string) error {
	return nil
}
func (s *stubStore) EffectivePermissions(context.Context, uuid.UUID) ([]string, []string, error) {
	return nil, nil, ErrNotFound
}

type stubIssuer struct {
	token string
}

func (s stubIssuer) Issue(string, string, []string, []string) (string, error) {
	return s.token, nil
}

func newTestHandler(store Store, issuer TokenIssuer) *chi.Mux {
	service := NewService(nil, store, nil, nil)
	handler := NewHandler(service, issuer, nil)
	router := chi.NewRouter()
	handler.MountRoutes(router)
	return router
}

func TestLookupUserPermissions(t *testing.T) {
	store := newStubStore()
	userID := uuid.New()
	direct, errs := permissions.ParseSet([]string{"deny:delete:course:abc"})
	require.Empty(t, errs)
	store.users[userID] = RehydrateUser(userID, userID.String(), "user@example.com", "", direct, []string{"editor"})
	store.rolePerms["editor"] = []string{"allow:*:course:*"}

	router := newTestHandler(store, stubIssuer{})

	req := httptest.NewRequest(http.MethodGet, "/internal/users/"+userID.String()+"/permissions", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	var view UserPermissionsView
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &view))
	assert.Equal(t, userID.String(), view.UserID)
	assert.Equal(t, []string{"editor"}, view.Roles)
	assert.ElementsMatch(t,
		[]string{"allow:*:course:*", "deny:delete:course:abc"},
		view.Permissions)
}

func TestLookupUnknownUserReturns404(t *testing.T) {
	router := newTestHandler(newStubStore(), stubIssuer{})

	req := httptest.NewRequest(http.MethodGet, "/internal/users/"+uuid.NewString()+"/permissions", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestLookupRejectsMalformedUserID(t *testing.T) {
	router := newTestHandler(newStubStore(), stubIssuer{})

	req := httptest.NewRequest(http.MethodGet, "/internal/users/not-a-uuid/permissions", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestLoginIssuesToken(t *testing.T) {
	store := newStubStore()
	userID := uuid.New()
	hash, err := bcrypt.GenerateFromPassword([]byte("opensesame"), bcrypt.MinCost)
	require.NoError(t, err)
	user := RehydrateUser(userID, userID.String(), "user@example.com", string(hash), permissions.NewSet(), nil)
	store.users[userID] = user
	store.byEmail["user@example.com"] = user

	router := newTestHandler(store, stubIssuer{token: "signed-token"})

	body := strings.NewReader(`{"email":"user@example.com","password":"opensesame"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	var got struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &got))
	assert.Equal(t, "signed-token", got.Token)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	store := newStubStore()
	userID := uuid.New()
	hash, err := bcrypt.GenerateFromPassword([]byte("opensesame"), bcrypt.MinCost)
	require.NoError(t, err)
	user := RehydrateUser(userID, userID.String(), "user@example.com", string(hash), permissions.NewSet(), nil)
	store.users[userID] = user
	store.byEmail["user@example.com"] = user

	router := newTestHandler(store, stubIssuer{token: "signed-token"})

	body := strings.NewReader(`{"email":"user@example.com","password":"wrong-password"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLoginRejectsInvalidRequestBody(t *testing.T) {
	router := newTestHandler(newStubStore(), stubIssuer{})

	cases := map[string]string{
		"malformed email": `{"email":"not-an-email","password":"opensesame"}`,
		"short password":  `{"email":"user@example.com","password":"short"}`,
		"missing fields":  `{}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(payload))
			res := httptest.NewRecorder()
			router.ServeHTTP(res, req)

			require.Equal(t, http.StatusBadRequest, res.Code)
			var got struct {
				Error  string            `json:"error"`
				Fields map[string]string `json:"fields"`
			}
			require.NoError(t, json.Unmarshal(res.Body.Bytes(), &got))
			assert.Equal(t, "validation failed", got.Error)
			assert.NotEmpty(t, got.Fields)
		})
	}
}

func TestCreateRoleRejectsMissingName(t *testing.T) {
	router := newTestHandler(newStubStore(), stubIssuer{})

	req := httptest.NewRequest(http.MethodPost, "/roles", strings.NewReader(`{}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestGrantRolePermissionRejectsMalformedToken(t *testing.T) {
	router := newTestHandler(newStubStore(), stubIssuer{})

	body := strings.NewReader(`{"permission":"allow:read"}`)
	req := httptest.NewRequest(http.MethodPost, "/roles/editor/permissions", body)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
}
