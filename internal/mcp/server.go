// Package mcp exposes the guardian as Model Context Protocol tools over stdio,
// so an agent drafting replies in a project chat can check scope first.
package mcp

import (
	"context"
	"errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ppiankov/scopeguard/internal/guardian"
	"github.com/ppiankov/scopeguard/internal/model"
)

// Evaluator is the guardian as seen by the MCP tools.
type Evaluator interface {
	Evaluate(ctx context.Context, req guardian.Request) (model.Decision, error)
}

// ScopeSource renders a project's scope contract.
type ScopeSource interface {
	Build(ctx context.Context, projectID string) (model.ScopeContext, error)
}

// Config holds MCP server configuration.
type Config struct {
	// UserID is recorded in transcripts for turns checked through MCP.
	UserID  string
	Version string
}

// Server wraps the MCP SDK server.
type Server struct {
	mcpServer *mcpsdk.Server
	eval      Evaluator
	scope     ScopeSource
	userID    string
	logger    *zap.Logger
}

// New creates an MCP server with the scope tools registered.
func New(eval Evaluator, scope ScopeSource, cfg Config, logger *zap.Logger) (*Server, error) {
	if eval == nil || scope == nil {
		return nil, errors.New("mcp: evaluator and scope source are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	userID := cfg.UserID
	if userID == "" {
		userID = "mcp"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{eval: eval, scope: scope, userID: userID, logger: logger}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "scopeguard",
			Version: version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds the scopeguard tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "scope_check",
		Description: "Check whether a client chat message is within the project's contracted scope of work. Pass the signature from the previous check to continue a conversation.",
	}, s.handleScopeCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "scope_contract",
		Description: "Show the scope contract the guardian evaluates a project's messages against.",
	}, s.handleScopeContract)
}
