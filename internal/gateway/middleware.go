package gateway

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/tokens"
	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/trustedauth"
)

// TokenVerifier validates an inbound session token. Implemented by
// tokens.Issuer.
type TokenVerifier interface {
	Verify(tokenString string) (*tokens.Claims, error)
}

// Middleware is the gateway's per-request authorization step. It always
// strips inbound trusted headers (nothing from outside the boundary may
// impersonate the gateway), authenticates the bearer token, resolves the
// caller's current permissions through the cache-aside service and injects
// them as trusted headers for downstream.
//
// Only the token's subject is used; its embedded permission snapshot is
// ignored in favor of the freshly resolved set.
type Middleware struct {
	Resolver *UserPermissionsService
	Verifier TokenVerifier
	Logger   *slog.Logger
}

// Handler wraps next with the resolution step.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stripTrustedHeaders(r.Header)

		rawToken, ok := bearerToken(r)
		if !ok {
			// Anonymous: forwarded with no identity headers at all.
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.Verifier.Verify(rawToken)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		resolved, err := m.Resolver.Resolve(r.Context(), claims.Subject)
		if err != nil {
			m.denyUnresolved(w, claims.Subject, err)
			return
		}

		r.Header.Set(trustedauth.HeaderSubject, resolved.UserID)
		for _, role := range resolved.Roles {
			r.Header.Add(trustedauth.HeaderRole, role)
		}
		for _, perm := range resolved.Permissions {
			r.Header.Add(trustedauth.HeaderPermission, perm)
		}
		next.ServeHTTP(w, r)
	})
}

// denyUnresolved maps a failed resolution to a fail-closed response: a
// request whose authorization cannot be confirmed is rejected, never let
// through with default permissions.
func (m Middleware) denyUnresolved(w http.ResponseWriter, subject string, err error) {
	switch {
	case errors.Is(err, ErrUserUnknown):
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	case errors.Is(err, ErrSourceUnavailable):
		if m.Logger != nil {
			m.Logger.Error("authorization unavailable", slog.String("user", subject), slog.Any("error", err))
		}
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
	default:
		if m.Logger != nil {
			m.Logger.Error("permission resolution failed", slog.String("user", subject), slog.Any("error", err))
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func stripTrustedHeaders(h http.Header) {
	h.Del(trustedauth.HeaderSubject)
	h.Del(trustedauth.HeaderRole)
	h.Del(trustedauth.HeaderPermission)
}

func bearerToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(raw, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(raw, prefix))
	return token, token != ""
}
