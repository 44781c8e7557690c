package testkit

import (
	"archive/zip"
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sha1n/relic-artifacts/internal/app"
	"github.com/spf13/pflag"
)

// Service represents a test service that can be started and stopped
type Service interface {
	Start() (map[string]any, error)
	Stop() error
	GetName() string
}

// TestEnvContext provides access to properties collected during environment startup
type TestEnvContext interface {
	GetProperties() map[string]any
	GetProperty(name string) (any, bool)
}

// TestEnv manages the lifecycle of test services
type TestEnv interface {
	Start() (map[string]any, error)
	Stop() error
	GetContext() TestEnvContext
}

type testEnvContextImpl struct {
	properties map[string]any
}

func (c *testEnvContextImpl) GetProperties() map[string]any {
	return c.properties
}

func (c *testEnvContextImpl) GetProperty(name string) (any, bool) {
	val, ok := c.properties[name]
	return val, ok
}

type testEnvImpl struct {
	services []Service
	context  *testEnvContextImpl
}

// NewTestEnv creates a new test environment with the given services
func NewTestEnv(services ...Service) TestEnv {
	return &testEnvImpl{
		services: services,
		context:  &testEnvContextImpl{properties: make(map[string]any)},
	}
}

func (e *testEnvImpl) Start() (map[string]any, error) {
	for _, s := range e.services {
		props, err := s.Start()
		if err != nil {
			return nil, err
		}
		for k, v := range props {
			e.context.properties[k] = v
		}
	}
	return e.context.properties, nil
}

func (e *testEnvImpl) Stop() error {
	var lastErr error
	// Stop in reverse order
	for i := len(e.services) - 1; i >= 0; i-- {
		if err := e.services[i].Stop(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (e *testEnvImpl) GetContext() TestEnvContext {
	return e.context
}

// GetFreePort returns a free port from the kernel
func GetFreePort() (int, error) {
	return getFreePortWithAddr("localhost:0")
}

// MustGetFreePort returns a free port or fails the test
func MustGetFreePort(t testing.TB) int {
	t.Helper()
	port, err := GetFreePort()
	if err != nil {
		t.Fatalf("Failed to get free port: %v", err)
	}
	return port
}

func getFreePortWithAddr(addrStr string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", addrStr)
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// ArtifactRepository is a Service that lays out a repository directory on disk.
// Files maps slash-separated repository paths to their content.
type ArtifactRepository struct {
	ID    string
	Dir   string
	Files map[string][]byte
}

// Start writes the repository files and publishes the directory as "repository.<id>.dir".
func (r *ArtifactRepository) Start() (map[string]any, error) {
	// Files predate the scans of the test, so incremental scans see them as unchanged.
	old := time.Now().Add(-time.Hour)
	for rel, content := range r.Files {
		full := filepath.Join(r.Dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(full, content, 0644); err != nil {
			return nil, err
		}
		if err := os.Chtimes(full, old, old); err != nil {
			return nil, err
		}
	}
	return map[string]any{"repository." + r.ID + ".dir": r.Dir}, nil
}

// Stop is a no-op; the directory belongs to the test.
func (r *ArtifactRepository) Stop() error {
	return nil
}

func (r *ArtifactRepository) GetName() string {
	return "artifact-repository-" + r.ID
}

// JarBytes builds a jar holding the named entries.
func JarBytes(entries ...string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range entries {
		entry, err := w.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := entry.Write([]byte("data:" + name)); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteRepositoryConfig writes a repository configuration naming each repository.
func WriteRepositoryConfig(path string, repos ...*ArtifactRepository) error {
	var sb strings.Builder
	sb.WriteString("repositories:\n")
	for _, r := range repos {
		fmt.Fprintf(&sb, "  - id: %s\n    location: %s\n", r.ID, r.Dir)
	}
	if len(repos) == 0 {
		sb.Reset()
		sb.WriteString("repositories: []\n")
	}
	return os.WriteFile(path, []byte(sb.String()), 0644)
}

// FlagOptions configures NewTestFlags
type FlagOptions struct {
	Port          int    // Uses free port if 0
	Transport     string // Defaults to "sse"
	AuthType      string // Defaults to "none"
	Host          string // Defaults to "localhost"
	ConfigFile    string // Repository configuration file
	DataDir       string // Uses a temp dir if empty
	ScanOnStartup bool
}

// NewTestFlags creates a configured pflag.FlagSet for testing
func NewTestFlags(t testing.TB, opts *FlagOptions) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	app.RegisterFlags(flags)

	port := 0
	transport := "sse"
	authType := "none"
	host := "localhost"

	configFile := ""
	dataDir := ""
	scanOnStartup := false

	if opts != nil {
		configFile = opts.ConfigFile
		dataDir = opts.DataDir
		scanOnStartup = opts.ScanOnStartup
		if opts.Port != 0 {
			port = opts.Port
		}
		if opts.Transport != "" {
			transport = opts.Transport
		}
		if opts.AuthType != "" {
			authType = opts.AuthType
		}
		if opts.Host != "" {
			host = opts.Host
		}
	}

	if port == 0 {
		port = MustGetFreePort(t)
	}

	_ = flags.Set("port", fmt.Sprintf("%d", port))
	_ = flags.Set("transport", transport)
	_ = flags.Set("auth-type", authType)
	_ = flags.Set("host", host)

	if dataDir == "" {
		dataDir = t.TempDir()
	}
	if configFile == "" {
		configFile = filepath.Join(dataDir, "repositories.yaml")
	}
	_ = flags.Set("repositories-config-file", configFile)
	_ = flags.Set("repositories-data-dir", dataDir)
	_ = flags.Set("repositories-scan-on-startup", fmt.Sprintf("%t", scanOnStartup))
	_ = flags.Set("repositories-watch-config", "false")

	return flags
}
