package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/rpmrepo/internal/repodata"
)

const (
	// ServerName is the MCP server name
	ServerName = "rpmrepo"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"

	// repositoryCacheSize bounds the number of opened repositories kept
	// between tool calls.
	repositoryCacheSize = 64
)

// Server exposes repository operations as MCP tools
type Server struct {
	mcp  *server.MCPServer
	cfg  repodata.Config
	opts []repodata.Option
	log  *slog.Logger
	lock OperationLock

	repos *lru.Cache[string, *repodata.Repository]
}

// NewServer creates a server that opens repositories with cfg and opts.
func NewServer(cfg repodata.Config, log *slog.Logger, opts ...repodata.Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid repodata config: %w", err)
	}

	repos, err := lru.New[string, *repodata.Repository](repositoryCacheSize)
	if err != nil {
		return nil, err
	}

	s := &Server{
		mcp:   server.NewMCPServer(ServerName, ServerVersion),
		cfg:   cfg,
		opts:  append([]repodata.Option{repodata.WithLogger(log)}, opts...),
		log:   log,
		repos: repos,
	}
	s.registerTools()
	return s, nil
}

// Serve runs the server on stdio until the input closes or ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info("MCP server ready, listening on stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(rebuildRepositoryTool(), s.handleRebuildRepository)
	s.mcp.AddTool(addPackagesTool(), s.handleAddPackages)
	s.mcp.AddTool(validateRepositoryTool(), s.handleValidateRepository)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}

// repository returns the repository rooted at path, opening it on first
// use.
func (s *Server) repository(path string) (*repodata.Repository, error) {
	if repo, ok := s.repos.Get(path); ok {
		return repo, nil
	}
	repo, err := repodata.New(path, s.cfg, s.opts...)
	if err != nil {
		return nil, err
	}
	s.repos.Add(path, repo)
	return repo, nil
}
