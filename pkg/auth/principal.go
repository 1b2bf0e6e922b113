// Package auth verifies bearer credentials and carries the authenticated
// principal through request and session contexts.
//
// Token issuance, refresh and revocation belong to an external authorization
// server. This package only verifies possession of a currently valid token
// through a Resolver and exposes the resulting Principal.
package auth

import (
	"context"
	"log/slog"
	"time"
)

// Principal is the identity bound to a session. It mirrors the props the
// authorization server seals into the access token.
type Principal struct {
	Login       string `json:"login"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	AccessToken string `json:"accessToken"`

	// ExpiresAt is the expiry of the bearer token that produced the principal.
	ExpiresAt time.Time `json:"-"`
}

// ID is the identifier used for audit attribution.
func (p Principal) ID() string { return p.Login }

// String never includes the access token.
func (p Principal) String() string {
	return "principal(" + p.Login + ")"
}

// LogValue implements slog.LogValuer; the access token is never logged.
func (p Principal) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("login", p.Login),
		slog.String("name", p.Name),
		slog.Bool("has_access_token", p.AccessToken != ""),
	)
}

// Resolver turns a bearer token into a Principal. Implementations return an
// errmodel unauthorized error for missing, malformed or expired tokens.
type Resolver interface {
	ResolvePrincipal(ctx context.Context, token string) (Principal, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, token string) (Principal, error)

func (f ResolverFunc) ResolvePrincipal(ctx context.Context, token string) (Principal, error) {
	return f(ctx, token)
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal attached to ctx.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
