package mcpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/modelcontextprotocol/go-sdk/oauthex"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wilhg/summon/pkg/auth"
	"github.com/wilhg/summon/pkg/errmodel"
)

// Fixed paths.
const (
	MCPPath              = "/mcp"
	AuthorizePath        = "/authorize"
	RegisterPath         = "/register"
	TokenPath            = "/token"
	HealthPath           = "/healthz"
	ResourceMetadataPath = "/.well-known/oauth-protected-resource"
)

func (s *Server) routes() (http.Handler, error) {
	var metadataURL string
	if s.cfg.ResourceURL != "" {
		metadataURL = strings.TrimSuffix(s.cfg.ResourceURL, "/") + ResourceMetadataPath
	}
	gate := auth.Gate(s.cfg.Resolver, auth.GateOptions{
		ResourceMetadataURL: metadataURL,
		AuthorizePath:       AuthorizePath,
		Logger:              s.logger,
	})

	streamable := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		p, ok := auth.FromContext(r.Context())
		if !ok {
			return nil
		}
		_, srv, err := s.openSession(p, TransportStreamable)
		if err != nil {
			s.logger.ErrorContext(r.Context(), "open session", "error", err)
			return nil
		}
		return srv
	}, &mcp.StreamableHTTPOptions{
		SessionTimeout: s.cfg.SessionTimeout,
		Logger:         s.logger,
	})

	oauth, err := s.authorizationProxy()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(SSEPath, gate(http.HandlerFunc(s.sse.serveStream)))
	mux.Handle(SSEMessagePath, gate(http.HandlerFunc(s.sse.serveMessage)))
	mux.Handle(MCPPath, gate(s.guardFrames(streamable)))
	mux.Handle(AuthorizePath, oauth)
	mux.Handle(RegisterPath, oauth)
	mux.Handle(TokenPath, oauth)
	mux.HandleFunc("GET "+HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET "+ResourceMetadataPath, s.resourceMetadata)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		errmodel.WriteHTTP(w, r, errmodel.Validation(errmodel.CodeNotFound, "no route", map[string]any{"path": r.URL.Path}))
	})

	return otelhttp.NewHandler(mux, "summon",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	), nil
}

// authorizationProxy forwards the OAuth endpoints to the external
// authorization server.
func (s *Server) authorizationProxy() (http.Handler, error) {
	if s.cfg.AuthorizationServer == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			errmodel.WriteHTTP(w, r, errmodel.New(errmodel.CategorySystem, errmodel.CodeUnavailable,
				"authorization server not configured", map[string]any{"path": r.URL.Path}))
		}), nil
	}
	target, err := url.Parse(s.cfg.AuthorizationServer)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("mcpserver: invalid authorization server URL %q", s.cfg.AuthorizationServer)
	}
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.WarnContext(r.Context(), "authorization server unreachable", "path", r.URL.Path, "error", err)
			errmodel.WriteHTTP(w, r, errmodel.New(errmodel.CategorySystem, errmodel.CodeUnavailable,
				"authorization server unreachable", map[string]any{"path": r.URL.Path}))
		},
	}, nil
}

// resourceMetadata serves RFC 9728 protected resource metadata.
func (s *Server) resourceMetadata(w http.ResponseWriter, r *http.Request) {
	resource := s.cfg.ResourceURL
	if resource == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		resource = scheme + "://" + r.Host
	}
	resource = strings.TrimSuffix(resource, "/")
	authServer := s.cfg.AuthorizationServer
	if authServer == "" {
		authServer = resource
	}
	meta := oauthex.ProtectedResourceMetadata{
		Resource:               resource,
		AuthorizationServers:   []string{strings.TrimSuffix(authServer, "/")},
		BearerMethodsSupported: []string{"header"},
		ResourceName:           Implementation.Name,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(meta)
}
