package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	mcpauth "github.com/modelcontextprotocol/go-sdk/auth"

	"github.com/wilhg/summon/pkg/errmodel"
)

const principalExtraKey = "principal"

// GateOptions configures the authorization gate.
type GateOptions struct {
	// ResourceMetadataURL is advertised in WWW-Authenticate on 401 responses.
	ResourceMetadataURL string
	// AuthorizePath receives interactive requests that carry no credential.
	// Empty disables the redirect.
	AuthorizePath string
	// Scopes, when set, must all be present on the token.
	Scopes []string
	Logger *slog.Logger
}

// Verifier adapts a Resolver to the MCP SDK bearer-token verifier. The
// principal travels in TokenInfo.Extra so transports can bind it to sessions.
func Verifier(res Resolver, logger *slog.Logger) mcpauth.TokenVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, token string, _ *http.Request) (*mcpauth.TokenInfo, error) {
		p, err := res.ResolvePrincipal(ctx, token)
		if err != nil {
			logger.DebugContext(ctx, "bearer token rejected", "error", err)
			return nil, fmt.Errorf("%w: %v", mcpauth.ErrInvalidToken, err)
		}
		if p.ExpiresAt.IsZero() {
			return nil, fmt.Errorf("%w: token has no expiry", mcpauth.ErrInvalidToken)
		}
		return &mcpauth.TokenInfo{
			Expiration: p.ExpiresAt,
			Extra:      map[string]any{principalExtraKey: p},
		}, nil
	}
}

// PrincipalFromTokenInfo extracts the principal placed by Verifier.
func PrincipalFromTokenInfo(info *mcpauth.TokenInfo) (Principal, bool) {
	if info == nil || info.Extra == nil {
		return Principal{}, false
	}
	p, ok := info.Extra[principalExtraKey].(Principal)
	return p, ok
}

// Gate returns middleware that rejects requests without a currently valid
// bearer token and attaches the resolved Principal to the request context.
// Credential-less browser requests are redirected to AuthorizePath.
func Gate(res Resolver, opts GateOptions) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bearer := mcpauth.RequireBearerToken(Verifier(res, logger), &mcpauth.RequireBearerTokenOptions{
		ResourceMetadataURL: opts.ResourceMetadataURL,
		Scopes:              opts.Scopes,
	})
	return func(next http.Handler) http.Handler {
		attach := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromTokenInfo(mcpauth.TokenInfoFromContext(r.Context()))
			if !ok {
				errmodel.WriteHTTP(w, r, errmodel.Unauthorized("no principal bound to token", nil))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
		protected := bearer(attach)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.AuthorizePath != "" && interactive(r) {
				logger.InfoContext(r.Context(), "redirecting interactive request to authorization", "path", r.URL.Path)
				http.Redirect(w, r, opts.AuthorizePath, http.StatusFound)
				return
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// interactive reports a browser navigation that has no credential yet.
func interactive(r *http.Request) bool {
	if r.Header.Get("Authorization") != "" || r.Method != http.MethodGet {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
