package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-artifacts/internal/repos"
)

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name    string
	Version string
	// Repositories serves the artifact tools. Without it the server has no tools.
	Repositories *repos.Service
}

// CreateServer creates and configures the MCP server
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.Repositories != nil {
		repos.RegisterSearchTools(s, cfg.Repositories)
		repos.RegisterScanTools(s, cfg.Repositories)
		repos.RegisterReadTool(s, cfg.Repositories)
	}

	return s
}
