package trustedauth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/permissions"
)

// ErrAuthenticationMalformed indicates a subject header that is present but
// empty. Distinct from an absent header, which simply means anonymous.
var ErrAuthenticationMalformed = errors.New("trustedauth: malformed authentication")

// FromHeaders reconstructs a principal from the trusted headers. Each
// permission header value is decoded independently: a bad entry is dropped
// and logged, never failing the whole request.
func FromHeaders(h http.Header, logger *slog.Logger) (*Principal, error) {
	subjects, ok := h[http.CanonicalHeaderKey(HeaderSubject)]
	if !ok || len(subjects) == 0 {
		return nil, nil // anonymous
	}
	subject := strings.TrimSpace(subjects[0])
	if subject == "" {
		return nil, ErrAuthenticationMalformed
	}

	var roles []string
	for _, role := range h.Values(HeaderRole) {
		role = strings.ToLower(strings.TrimSpace(role))
		if role != "" {
			roles = append(roles, role)
		}
	}

	set := permissions.NewSet()
	for _, token := range h.Values(HeaderPermission) {
		p, err := permissions.Parse(token)
		if err != nil {
			if logger != nil {
				logger.Warn("dropping malformed permission header", slog.Any("error", err))
			}
			continue
		}
		set.Add(p)
	}

	return &Principal{Subject: subject, Roles: roles, Permissions: set}, nil
}

// Middleware reconstructs the principal once per request and stores it in the
// context. A malformed subject header is a hard authentication failure; an
// absent one passes the request through as anonymous.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := FromHeaders(r.Header, logger)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if principal != nil {
				r = r.WithContext(ContextWithPrincipal(r.Context(), principal))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission authorizes the request locally against the principal's
// permission set, with no network round-trip. The resource id comes from the
// "id" route parameter when present, otherwise the check is instance-wide.
// Anonymous requests and denied evaluations both answer 403.
func RequirePermission(action permissions.Action, resource permissions.Resource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			resourceID := strings.TrimSpace(chi.URLParam(r, "id"))
			if !principal.Allows(action, resource, resourceID) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
