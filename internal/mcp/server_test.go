package mcp

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-artifacts/internal/config"
	"github.com/sha1n/relic-artifacts/internal/repos"
)

func TestCreateServer(t *testing.T) {
	cfg := ServerConfig{
		Name:    "test-server",
		Version: "1.0.0",
	}

	server := CreateServer(cfg)
	if server == nil {
		t.Fatal("Expected server to be created")
	}
}

func TestCreateServer_EmptyConfig(t *testing.T) {
	server := CreateServer(ServerConfig{})
	if server == nil {
		t.Fatal("Expected server to be created even with empty config")
	}
}

func newService(t *testing.T) *repos.Service {
	t.Helper()
	settings := &config.RepositoriesSettings{
		DataDir:     t.TempDir(),
		LockTimeout: time.Second,
		StatsFile:   ".scan-statistics",
		MaxFileSize: 256 * 1024,
		PageSize:    30,
	}
	svc, err := repos.NewService(settings, config.NewRepositories("", nil), nil)
	if err != nil {
		t.Fatalf("Failed to create repositories service: %v", err)
	}
	t.Cleanup(func() {
		if err := svc.Close(); err != nil {
			t.Errorf("Failed to close service: %v", err)
		}
	})
	return svc
}

// listTools connects an in-memory client to server and lists its tools.
func listTools(t *testing.T, server *mcp.Server) []string {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	serverSession, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("Server connect failed: %v", err)
	}
	defer func() { _ = serverSession.Close() }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("Client connect failed: %v", err)
	}
	defer func() { _ = session.Close() }()

	result, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	return names
}

func TestCreateServer_ToolsRegistered(t *testing.T) {
	server := CreateServer(ServerConfig{
		Name:         "test-server",
		Version:      "1.0.0",
		Repositories: newService(t),
	})

	want := []string{
		"filtered_search",
		"read_artifact_file",
		"scan_repository",
		"scan_status",
		"search_artifacts",
		"search_bytecode",
	}
	if got := listTools(t, server); !slices.Equal(got, want) {
		t.Errorf("tools = %v, want %v", got, want)
	}
}
