package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wilhg/summon/pkg/errmodel"
)

// propsClaims is the token payload: the principal props plus registered claims.
type propsClaims struct {
	Login       string `json:"login"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
	jwt.RegisteredClaims
}

// JWTResolver verifies HS256-signed access tokens and decodes their props.
type JWTResolver struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// JWTOption configures a JWTResolver.
type JWTOption func(*JWTResolver)

// WithIssuer requires the iss claim to equal iss.
func WithIssuer(iss string) JWTOption { return func(r *JWTResolver) { r.issuer = iss } }

// WithAudience requires aud to contain aud.
func WithAudience(aud string) JWTOption { return func(r *JWTResolver) { r.audience = aud } }

// WithLeeway tolerates clock skew on exp/nbf/iat.
func WithLeeway(d time.Duration) JWTOption { return func(r *JWTResolver) { r.leeway = d } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) JWTOption { return func(r *JWTResolver) { r.now = now } }

// NewJWTResolver creates a resolver for tokens signed with secret.
func NewJWTResolver(secret []byte, opts ...JWTOption) *JWTResolver {
	r := &JWTResolver{secret: secret, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ResolvePrincipal validates signature, expiry and optional iss/aud, and
// requires a non-empty login.
func (r *JWTResolver) ResolvePrincipal(_ context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, errmodel.Unauthorized("missing bearer token", nil)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.now),
	}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}
	if r.audience != "" {
		opts = append(opts, jwt.WithAudience(r.audience))
	}
	if r.leeway > 0 {
		opts = append(opts, jwt.WithLeeway(r.leeway))
	}
	var claims propsClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, errmodel.Unauthorized("token expired", err)
		}
		return Principal{}, errmodel.Unauthorized("invalid token", err)
	}
	if claims.Login == "" {
		return Principal{}, errmodel.Unauthorized("token missing login claim", nil)
	}
	p := Principal{
		Login:       claims.Login,
		Name:        claims.Name,
		Email:       claims.Email,
		AccessToken: claims.AccessToken,
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// Mint issues a token for p valid for ttl. It exists for local development
// and tests; production tokens come from the authorization server.
func (r *JWTResolver) Mint(p Principal, ttl time.Duration) (string, error) {
	if p.Login == "" {
		return "", fmt.Errorf("mint: login is empty")
	}
	now := r.now()
	claims := propsClaims{
		Login:       p.Login,
		Name:        p.Name,
		Email:       p.Email,
		AccessToken: p.AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Login,
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if r.audience != "" {
		claims.Audience = jwt.ClaimStrings{r.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}
