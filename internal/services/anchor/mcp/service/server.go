// Package service hosts the anchor MCP server: it binds the domain tool and
// resource handlers to the in-process anchor services and runs the protocol
// over a transport.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/actor"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/delegation"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/mcp/domain"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/registry"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/release"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/storage"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/workspace"
)

const (
	serverName = "codequill-anchor"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
)

// Deps holds the anchor services the MCP handlers call in-process.
type Deps struct {
	Delegation *delegation.Engine
	Workspaces *workspace.Service
	Releases   *release.Service
	Registry   *registry.Service
	Audit      storage.AuditEventStore
}

// Config configures the MCP server. When TokenConfig is set every acting
// identity must be presented as a verified actor token; otherwise tools
// accept bare hex identities, which is only acceptable on trusted local
// transports.
type Config struct {
	TokenConfig *actor.Config
}

// Server hosts the anchor MCP server.
type Server struct {
	mcpServer *mcp.Server
}

// New creates a configured MCP server with every anchor tool and resource
// registered.
func New(deps Deps, cfg Config) (*Server, error) {
	if deps.Delegation == nil || deps.Workspaces == nil || deps.Releases == nil || deps.Registry == nil || deps.Audit == nil {
		return nil, fmt.Errorf("all anchor services are required")
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, &mcp.ServerOptions{
		CompletionHandler:  completionHandler,
		SubscribeHandler:   resourceSubscribeHandler,
		UnsubscribeHandler: resourceUnsubscribeHandler,
	})

	resolve := domain.PlainActorResolver()
	if cfg.TokenConfig != nil {
		resolve = domain.TokenActorResolver(*cfg.TokenConfig)
	}

	for _, module := range newRegistrationModules(deps, resolve) {
		if err := module.register(serverRegistrationAdapter{server: mcpServer}); err != nil {
			return nil, fmt.Errorf("register MCP module %q: %w", module.name, err)
		}
	}

	return &Server{mcpServer: mcpServer}, nil
}

// Run serves the MCP protocol over the transport until the context is
// cancelled or the transport closes.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	err := s.mcpServer.Run(ctx, transport)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// RunStdio serves the MCP protocol over stdin and stdout.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

// completionHandler answers completion/complete with empty results. Prompt
// and resource completion needs context the anchor tools do not carry yet.
func completionHandler(_ context.Context, _ *mcp.CompleteRequest) (*mcp.CompleteResult, error) {
	return &mcp.CompleteResult{
		Completion: mcp.CompletionResultDetails{
			Values: []string{},
		},
	}, nil
}

// resourceSubscribeHandler accepts resource subscriptions with a valid URI.
func resourceSubscribeHandler(_ context.Context, req *mcp.SubscribeRequest) error {
	if req == nil || req.Params == nil || strings.TrimSpace(req.Params.URI) == "" {
		return fmt.Errorf("resource uri is required")
	}
	return nil
}

// resourceUnsubscribeHandler accepts resource unsubscriptions with a valid URI.
func resourceUnsubscribeHandler(_ context.Context, req *mcp.UnsubscribeRequest) error {
	if req == nil || req.Params == nil || strings.TrimSpace(req.Params.URI) == "" {
		return fmt.Errorf("resource uri is required")
	}
	return nil
}
