package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-artifacts/internal/config"
	"github.com/sha1n/relic-artifacts/internal/history"
	mcputil "github.com/sha1n/relic-artifacts/internal/mcp"
	"github.com/sha1n/relic-artifacts/internal/repos"
	"github.com/spf13/pflag"
)

// RunParams contains dependencies for the run function
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	StartSSEServer    func(*mcp.Server, *config.Settings) error
	CreateServer      func(*config.Settings) (*mcp.Server, func(), error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:   config.LoadSettingsWithFlags,
		ValidSettings:  config.ValidateSettings,
		StartSSEServer: StartSSEServer,
		CreateServer:   CreateMCPServer,
	}
}

// RunWithDeps executes the server with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	settings, err := loadSettings(params, flags)
	if err != nil {
		return err
	}

	slog.Info("Starting RELIC artifacts server", "version", version)
	config.Log(settings)

	mcpServer, cleanup, err := params.CreateServer(settings)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	// Start server
	if settings.Transport == "stdio" {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	}
	slog.Info("Starting SSE server", "host", settings.Host, "port", settings.Port)
	return params.StartSSEServer(mcpServer, settings)
}

func loadSettings(params RunParams, flags *pflag.FlagSet) (*config.Settings, error) {
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	// Validate settings for conflicting configurations
	if err := params.ValidSettings(settings); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Configure logging - always use stderr to avoid buffering issues
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))
	return settings, nil
}

// LoadRepositories reads the repository configuration file. A missing file yields
// an empty configuration that is picked up once the file is created.
func LoadRepositories(path string) (*config.Repositories, error) {
	cfg, err := config.LoadRepositories(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Repository configuration not found, starting without repositories", "path", path)
		return config.NewRepositories(path, nil), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// CreateMCPServer creates the MCP server with registered tools
func CreateMCPServer(settings *config.Settings) (*mcp.Server, func(), error) {
	cfg, err := LoadRepositories(settings.Repos.ConfigFile)
	if err != nil {
		return nil, nil, err
	}

	svc, err := repos.NewService(&settings.Repos, cfg, slog.Default())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create repositories service: %w", err)
	}

	// Background context: scans and config reloads are not tied to a request.
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	var watcher *config.Watcher
	if settings.Repos.WatchConfig {
		watcher, err = config.NewWatcher(cfg, config.DefaultReloadDelay, slog.Default())
		if err != nil {
			slog.Warn("Repository configuration will not be reloaded", "path", cfg.Path(), "error", err)
		} else {
			watcher.OnChange(svc.ConfigurationChanged)
			wg.Add(1)
			go func() {
				defer wg.Done()
				watcher.Start(ctx)
			}()
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := svc.Initialize(ctx); err != nil {
			slog.Error("Repositories initialization failed", "error", err)
		}
	}()

	cleanup := func() {
		cancel()
		if watcher != nil {
			if err := watcher.Close(); err != nil {
				slog.Error("Failed to close config watcher", "error", err)
			}
		}
		wg.Wait()
		if err := svc.Close(); err != nil {
			slog.Error("Failed to close repositories service", "error", err)
		}
	}

	server := mcputil.CreateServer(mcputil.ServerConfig{
		Name:         "relic-artifacts",
		Version:      "1.0.0",
		Repositories: svc,
	})

	return server, cleanup, nil
}

// ScanParams selects the repositories scanned by RunScan.
type ScanParams struct {
	// Repositories to scan; empty scans every configured repository.
	Repositories []string
	Incremental  bool
	// Output receives one JSON report per scanned repository.
	Output io.Writer
}

// RunScan scans repositories once and exits.
func RunScan(ctx context.Context, params RunParams, flags *pflag.FlagSet, scan ScanParams) error {
	settings, err := loadSettings(params, flags)
	if err != nil {
		return err
	}
	config.Log(settings)

	cfg, err := LoadRepositories(settings.Repos.ConfigFile)
	if err != nil {
		return err
	}
	svc, err := repos.NewService(&settings.Repos, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create repositories service: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Error("Failed to close repositories service", "error", err)
		}
	}()

	ids := scan.Repositories
	if len(ids) == 0 {
		for _, r := range svc.Repositories() {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("no repositories configured in %s", cfg.Path())
	}

	out := scan.Output
	if out == nil {
		out = os.Stdout
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	var errs []error
	for _, id := range ids {
		report, err := svc.Scan(ctx, id, repos.ScanRequest{Incremental: scan.Incremental, Trigger: history.TriggerManual})
		if err != nil {
			errs = append(errs, err)
		}
		if report != nil {
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("failed to write scan report: %w", err)
			}
		}
	}
	return errors.Join(errs...)
}
