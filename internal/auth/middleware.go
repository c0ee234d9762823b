package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Middleware authenticates bearer JWTs and enforces the policy's roles.
type Middleware struct {
	secret          []byte
	policy          Policy
	anonymousViewer bool
}

// MiddlewareOption customizes the middleware.
type MiddlewareOption func(*Middleware)

// WithAnonymousViewer lets requests without a token through when the policy
// only requires the viewer role.
func WithAnonymousViewer(allow bool) MiddlewareOption {
	return func(m *Middleware) {
		m.anonymousViewer = allow
	}
}

// NewMiddleware constructs the middleware.
func NewMiddleware(secret []byte, policy Policy, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{secret: secret, policy: policy}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wrap returns the authenticated handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil || m.policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		required, ok := m.policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" {
			if m.anonymousViewer && required == RoleViewer {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), RoleViewer, "anonymous")))
				return
			}
			writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := ParseJWT(token, m.secret)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		role, _ := NormalizeRole(claims.Role)
		if !role.Allows(required) {
			writeAuthError(w, http.StatusForbidden, "insufficient role")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), role, claims.Subject)))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
