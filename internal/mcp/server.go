// Package mcp exposes the capture pipeline as MCP tools over stdio.
//
// This implementation uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and calls the pipeline service directly.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vaultd/internal/inbox"
	"github.com/fyrsmithlabs/vaultd/internal/pipeline"
)

// Server is the MCP surface over the pipeline.
type Server struct {
	mcp       *mcp.Server
	service   *pipeline.Service
	processor *inbox.Processor
	logger    *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "vaultd").
	Name string

	// Version is the server version (default: "1.0.0").
	Version string

	// Logger for structured logging.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "vaultd",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server over the pipeline service. The inbox
// processor is optional; without it the inbox_process tool is omitted.
func NewServer(cfg *Config, service *pipeline.Service, processor *inbox.Processor) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Name == "" {
		cfg.Name = "vaultd"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if service == nil {
		return nil, fmt.Errorf("pipeline service is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:       mcpServer,
		service:   service,
		processor: processor,
		logger:    cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
