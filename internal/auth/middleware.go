package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Identity headers set by the trusted upstream proxy.
const (
	HeaderOwnerID   = "X-Owner-ID"
	HeaderOwnerRole = "X-Owner-Role"
)

const maxOwnerIDLen = 128

var (
	ErrMissingOwner = errors.New("missing " + HeaderOwnerID + " header")
	ErrInvalidOwner = errors.New("invalid " + HeaderOwnerID + " header")
)

// Identity is the caller as asserted by the upstream proxy.
type Identity struct {
	OwnerID string
	Role    string
}

// IdentityFromHeaders reads the caller identity. The role defaults to RoleOwner.
func IdentityFromHeaders(h http.Header) (Identity, error) {
	owner := strings.TrimSpace(h.Get(HeaderOwnerID))
	if owner == "" {
		return Identity{}, ErrMissingOwner
	}
	if len(owner) > maxOwnerIDLen || strings.ContainsAny(owner, " \t\r\n/") {
		return Identity{}, ErrInvalidOwner
	}
	role := strings.ToLower(strings.TrimSpace(h.Get(HeaderOwnerRole)))
	if role == "" {
		role = RoleOwner
	}
	return Identity{OwnerID: owner, Role: role}, nil
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok
}

// ErrorFunc writes an error response for a rejected request.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, status int, code, message string)

// Middleware resolves the caller identity and rejects requests without one.
func (s *Service) Middleware(onErr ErrorFunc, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := IdentityFromHeaders(r.Header)
		if err != nil {
			onErr(w, r, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequirePermission only lets the request through when the caller's role may
// perform act on obj.
func (s *Service) RequirePermission(obj, act string, onErr ErrorFunc, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		if !ok {
			onErr(w, r, http.StatusUnauthorized, "unauthenticated", "Unauthorized")
			return
		}

		allowed, err := s.Enforce(id.Role, obj, act)
		if err != nil {
			onErr(w, r, http.StatusInternalServerError, "internal", "Internal Server Error")
			return
		}
		if !allowed {
			onErr(w, r, http.StatusForbidden, "forbidden", "role "+id.Role+" may not "+act+" "+obj)
			return
		}

		next.ServeHTTP(w, r)
	})
}
