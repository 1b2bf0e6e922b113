// Package mcpclient is a thin MCP client used to probe a running server.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	mcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Transport selects the wire protocol.
type Transport string

const (
	Streamable Transport = "streamable"
	SSE        Transport = "sse"
)

// ToolDescriptor is the client view of an advertised tool.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// CallResult is the text of a tool result. IsError marks results the server
// reported as failed calls (unknown tool, invalid input).
type CallResult struct {
	Text    string
	IsError bool
}

// Client is a connected MCP session.
type Client struct {
	cs        *mcp.ClientSession
	transport Transport
}

type config struct {
	token      string
	transport  Transport
	httpClient *http.Client
	name       string
	version    string
}

// Option configures New.
type Option func(*config)

// WithBearer sends token in the Authorization header of every request.
func WithBearer(token string) Option { return func(c *config) { c.token = token } }

// WithTransport selects the transport. Defaults to Streamable.
func WithTransport(t Transport) Option { return func(c *config) { c.transport = t } }

// WithHTTPClient sets the base HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *config) { c.httpClient = hc } }

// WithImplementation names the client in the initialize handshake.
func WithImplementation(name, version string) Option {
	return func(c *config) { c.name, c.version = name, version }
}

// New connects to endpoint and completes the initialize handshake.
// For Streamable the endpoint is the /mcp URL; for SSE it is the /sse URL.
func New(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	cfg := config{transport: Streamable, httpClient: http.DefaultClient, name: "summon-probe", version: "0.1.0"}
	for _, opt := range opts {
		opt(&cfg)
	}
	hc := cfg.httpClient
	if cfg.token != "" {
		base := hc.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		clone := *hc
		clone.Transport = &bearerTransport{base: base, token: cfg.token}
		hc = &clone
	}

	var t mcp.Transport
	switch cfg.transport {
	case Streamable:
		t = &mcp.StreamableClientTransport{Endpoint: endpoint, HTTPClient: hc, MaxRetries: -1}
	case SSE:
		t = &mcp.SSEClientTransport{Endpoint: endpoint, HTTPClient: hc}
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.transport)
	}

	c := mcp.NewClient(&mcp.Implementation{Name: cfg.name, Version: cfg.version}, nil)
	cs, err := c.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", endpoint, err)
	}
	return &Client{cs: cs, transport: cfg.transport}, nil
}

// SessionID returns the server-assigned session id, if the transport has one.
func (c *Client) SessionID() string { return c.cs.ID() }

// ListTools returns the advertised tools in server order.
func (c *Client) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	var out []ToolDescriptor
	for t, err := range c.cs.Tools(ctx, nil) {
		if err != nil {
			return nil, err
		}
		schema, err := toSchema(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", t.Name, err)
		}
		out = append(out, ToolDescriptor{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return out, nil
}

// CallTool calls name with args and concatenates the text content of the result.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (CallResult, error) {
	res, err := c.cs.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return CallResult{}, err
	}
	var b strings.Builder
	for _, content := range res.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return CallResult{Text: b.String(), IsError: res.IsError}, nil
}

// Close ends the session.
func (c *Client) Close() error {
	err := c.cs.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func toSchema(v any) (*jsonschema.Schema, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

type bearerTransport struct {
	base  http.RoundTripper
	token string
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(r)
}
