// Package authn resolves the lifecycle Actor for an HTTP request and carries
// it in the request context.
package authn

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/docflow/edms/pkg/lifecycle"
)

// ErrUnauthenticated is returned when a request carries no usable identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// actorCtxKey is an unexported type used as the context key for Actor.
type actorCtxKey struct{}

// WithActor returns a new context with the given Actor attached.
func WithActor(ctx context.Context, a lifecycle.Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, a)
}

// ActorFromContext retrieves the Actor from the context.
// Returns the zero value and false if no actor is set.
func ActorFromContext(ctx context.Context) (lifecycle.Actor, bool) {
	a, ok := ctx.Value(actorCtxKey{}).(lifecycle.Actor)
	return a, ok
}

// Resolver extracts the acting identity from a request.
type Resolver interface {
	Resolve(r *http.Request) (lifecycle.Actor, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(r *http.Request) (lifecycle.Actor, error)

func (f ResolverFunc) Resolve(r *http.Request) (lifecycle.Actor, error) { return f(r) }

// Middleware resolves the actor for every request and stores it in the
// context. Requests that cannot be resolved get 401.
func Middleware(resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := resolver.Resolve(r)
			if err != nil {
				logger.Debug("actor resolution failed", "path", r.URL.Path, "error", err)
				writeAuthError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole rejects requests whose actor has none of the given roles.
func RequireRole(roles ...lifecycle.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok || !slices.Contains(roles, actor.Role) {
				writeAuthError(w, http.StatusForbidden, "forbidden", "insufficient role for this endpoint")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}

// parseRole maps a raw role value; empty means user.
func parseRole(raw string) (lifecycle.Role, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return lifecycle.RoleUser, nil
	}
	role := lifecycle.Role(raw)
	if !role.Valid() {
		return "", errors.New("unknown role " + raw)
	}
	return role, nil
}

// permissionSet normalizes grants: trimmed, lower-cased, deduplicated and
// in first-seen order.
func permissionSet(raw []string) []lifecycle.Permission {
	seen := mapset.NewThreadUnsafeSet[string]()
	var out []lifecycle.Permission
	for _, p := range raw {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || !seen.Add(p) {
			continue
		}
		out = append(out, lifecycle.Permission(p))
	}
	return out
}
