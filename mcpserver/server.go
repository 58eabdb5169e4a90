// Package mcpserver exposes the tools of a registry over the
// Model Context Protocol, so external orchestrators can discover and call them.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolbind/tools"
	"github.com/effective-security/xlog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolbind", "mcpserver")

const (
	// DefaultName is the implementation name reported to clients.
	DefaultName = "toolbind"
	// DefaultVersion is the implementation version reported to clients.
	DefaultVersion = "v0.1.0"
)

// Server serves the tools of a Registry.
type Server struct {
	registry *tools.Registry
	server   *mcp.Server
}

// Option configures the Server.
type Option func(*mcp.Implementation)

// WithName sets the implementation name.
func WithName(name string) Option {
	return func(impl *mcp.Implementation) {
		impl.Name = name
	}
}

// WithVersion sets the implementation version.
func WithVersion(version string) Option {
	return func(impl *mcp.Implementation) {
		impl.Version = version
	}
}

// New returns a server with every tool of the registry.
func New(registry *tools.Registry, opts ...Option) (*Server, error) {
	impl := &mcp.Implementation{
		Name:    DefaultName,
		Version: DefaultVersion,
	}
	for _, opt := range opts {
		opt(impl)
	}

	s := &Server{
		registry: registry,
		server:   mcp.NewServer(impl, nil),
	}

	for _, tool := range registry.Tools() {
		params, err := json.Marshal(tool.Parameters())
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode schema of %q", tool.Name())
		}
		s.server.AddTool(&mcp.Tool{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: json.RawMessage(params),
		}, s.handler(tool.Name()))
	}
	return s, nil
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// Run serves a single session over the transport until the client
// disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context, t mcp.Transport) error {
	logger.KV(xlog.INFO,
		"status", "serving",
		"tools", s.registry.Names(),
	)
	return s.server.Run(ctx, t)
}

// ServeStdio serves on the process stdin and stdout.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

// handler runs the call through the registry.
// Tool failures are returned as error results, not as protocol errors.
func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw json.RawMessage
		if req.Params != nil {
			raw = req.Params.Arguments
		}

		res := s.registry.Invoke(ctx, tools.NewRawRequest(name, string(raw)))

		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "called",
			"tool", name,
			"id", res.ID,
			"ok", res.OK(),
		)

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: res.Content()},
			},
			IsError: !res.OK(),
		}, nil
	}
}
