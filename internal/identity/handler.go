package identity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/permissions"
)

// TokenIssuer issues a session token carrying a point-in-time permission
// snapshot. Implemented by the tokens package.
type TokenIssuer interface {
	Issue(userID, email string, roles, encodedPermissions []string) (string, error)
}

// Handler exposes the identity service's HTTP surface: the internal lookup
// API, admin mutations and login.
type Handler struct {
	service  *Service
	issuer   TokenIssuer
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler constructs the HTTP handler.
func NewHandler(service *Service, issuer TokenIssuer, logger *slog.Logger) *Handler {
	return &Handler{service: service, issuer: issuer, validate: validator.New(), logger: logger}
}

// MountRoutes attaches the identity routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/internal/users/{id}/permissions", h.lookupUserPermissions)

	r.Post("/auth/login", h.login)

	r.Post("/roles", h.createRole)
	r.Post("/roles/{name}/permissions", h.grantRolePermission)
	r.Post("/roles/{name}/permissions/revoke", h.revokeRolePermission)

	r.Post("/users/{id}/roles", h.assignUserRole)
	r.Post("/users/{id}/roles/remove", h.removeUserRole)
	r.Post("/users/{id}/permissions", h.grantUserPermission)
	r.Post("/users/{id}/permissions/revoke", h.revokeUserPermission)
	r.Put("/users/{id}/permissions", h.replaceUserPermissions)
}

// lookupUserPermissions serves the idempotent read the gateway's permission
// source calls on a cache miss.
func (h *Handler) lookupUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}
	view, err := h.service.UserPermissions(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	Token       string   `json:"token"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	user, view, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.writeJSON(w, http.StatusUnauthorized, errorBody("invalid credentials"))
			return
		}
		h.writeError(w, r, err)
		return
	}
	token, err := h.issuer.Issue(user.ID.String(), user.Email, view.Roles, view.Permissions)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loginResponse{
		Token:       token,
		Roles:       view.Roles,
		Permissions: view.Permissions,
	})
}

type createRoleRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name)
	if err != nil {
		if errors.Is(err, ErrRoleNameRequired) {
			h.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"id": role.ID.String(), "name": role.Name})
}

type permissionRequest struct {
	Permission string `json:"permission" validate:"required"`
}

func (h *Handler) grantRolePermission(w http.ResponseWriter, r *http.Request) {
	h.mutateRolePermission(w, r, h.service.GrantRolePermission)
}

func (h *Handler) revokeRolePermission(w http.ResponseWriter, r *http.Request) {
	h.mutateRolePermission(w, r, h.service.RevokeRolePermission)
}

func (h *Handler) mutateRolePermission(w http.ResponseWriter, r *http.Request, op func(context.Context, string, permissions.Permission) error) {
	roleName := strings.TrimSpace(chi.URLParam(r, "name"))
	if roleName == "" {
		h.writeJSON(w, http.StatusBadRequest, errorBody("role name required"))
		return
	}
	p, ok := h.permissionBody(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), roleName, p); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) assignUserRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if err := h.service.AssignUserRole(r.Context(), userID, req.Role); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeUserRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if err := h.service.RemoveUserRole(r.Context(), userID, req.Role); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) grantUserPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}
	p, ok := h.permissionBody(w, r)
	if !ok {
		return
	}
	if err := h.service.GrantUserPermission(r.Context(), userID, p); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeUserPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}
	p, ok := h.permissionBody(w, r)
	if !ok {
		return
	}
	if err := h.service.RevokeUserPermission(r.Context(), userID, p); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type replacePermissionsRequest struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

func (h *Handler) replaceUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}
	var req replacePermissionsRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	added, err := parseAll(req.Added)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	removed, err := parseAll(req.Removed)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.service.ReplaceUserPermissions(r.Context(), userID, added, removed); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseAll(tokens []string) ([]permissions.Permission, error) {
	out := make([]permissions.Permission, 0, len(tokens))
	for _, token := range tokens {
		p, err := permissions.Parse(token)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (h *Handler) userIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("invalid user id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) permissionBody(w http.ResponseWriter, r *http.Request) (permissions.Permission, bool) {
	var req permissionRequest
	if !h.decodeBody(w, r, &req) {
		return permissions.Permission{}, false
	}
	p, err := permissions.Parse(req.Permission)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return permissions.Permission{}, false
	}
	return p, true
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return false
	}
	if err := h.validate.Struct(dest); err != nil {
		fields := map[string]string{}
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fieldErr := range fieldErrs {
				fields[fieldErr.Field()] = fieldErr.Tag()
			}
		}
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": fields,
		})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, errorBody("not found"))
	default:
		if h.logger != nil {
			h.logger.Error("identity request failed",
				slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		h.writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && h.logger != nil {
		h.logger.Error("write response", slog.Any("error", err))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
