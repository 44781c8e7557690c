package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Auth type constants
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
)

// AuthSettings configuration for authentication
type AuthSettings struct {
	Type    string            `mapstructure:"type"` // AuthTypeNone, AuthTypeBasic, or AuthTypeAPIKey
	Basic   BasicAuthSettings `mapstructure:"basic"`
	APIKeys []string          `mapstructure:"api_keys"`
}

// BasicAuthSettings configuration for basic auth
type BasicAuthSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// RepositoriesSettings configuration for repository scanning and search
type RepositoriesSettings struct {
	ConfigFile       string        `mapstructure:"config_file"`
	DataDir          string        `mapstructure:"data_dir"`
	ScanOnStartup    bool          `mapstructure:"scan_on_startup"`
	LockTimeout      time.Duration `mapstructure:"lock_timeout"`
	StatsFile        string        `mapstructure:"stats_file"`
	MaxFileSize      int64         `mapstructure:"max_file_size"`
	PageSize         int           `mapstructure:"page_size"`
	MaxSearchHits    int           `mapstructure:"max_search_hits"`
	MaxParallelScans int           `mapstructure:"max_parallel_scans"`
	WatchConfig      bool          `mapstructure:"watch_config"`
	HistoryRetention int           `mapstructure:"history_retention"`
}

// Settings application settings
type Settings struct {
	Transport string               `mapstructure:"transport"`
	Host      string               `mapstructure:"host"`
	Port      int                  `mapstructure:"port"`
	Auth      AuthSettings         `mapstructure:"auth"`
	Repos     RepositoriesSettings `mapstructure:"repositories"`
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Default values
	v.SetDefault("transport", "stdio")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("auth.type", AuthTypeNone)

	// Repositories defaults
	v.SetDefault("repositories.config_file", filepath.Join(defaultDataDir(), "repositories.yaml"))
	v.SetDefault("repositories.data_dir", defaultDataDir())
	v.SetDefault("repositories.scan_on_startup", true)
	v.SetDefault("repositories.lock_timeout", 30*time.Second)
	v.SetDefault("repositories.stats_file", ".scan-statistics")
	v.SetDefault("repositories.max_file_size", int64(1024*1024)) // 1MB
	v.SetDefault("repositories.page_size", 30)
	v.SetDefault("repositories.max_search_hits", 1000)
	v.SetDefault("repositories.max_parallel_scans", 2)
	v.SetDefault("repositories.watch_config", true)
	v.SetDefault("repositories.history_retention", 100)

	// Environment variables
	v.SetEnvPrefix("RELIC_ARTIFACTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific env vars for nested config
	_ = v.BindEnv("auth.type", "RELIC_ARTIFACTS_AUTH_TYPE")
	_ = v.BindEnv("auth.basic.username", "RELIC_ARTIFACTS_AUTH_BASIC_USERNAME")
	_ = v.BindEnv("auth.basic.password", "RELIC_ARTIFACTS_AUTH_BASIC_PASSWORD")
	_ = v.BindEnv("auth.api_keys", "RELIC_ARTIFACTS_AUTH_API_KEYS")

	// Repositories env var bindings
	for _, key := range repositoriesKeys {
		_ = v.BindEnv("repositories."+key, "RELIC_ARTIFACTS_REPOSITORIES_"+strings.ToUpper(key))
	}

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		_ = v.BindPFlag("transport", flags.Lookup("transport"))
		_ = v.BindPFlag("host", flags.Lookup("host"))
		_ = v.BindPFlag("port", flags.Lookup("port"))
		_ = v.BindPFlag("auth.type", flags.Lookup("auth-type"))
		_ = v.BindPFlag("auth.basic.username", flags.Lookup("auth-basic-username"))
		_ = v.BindPFlag("auth.basic.password", flags.Lookup("auth-basic-password"))
		_ = v.BindPFlag("auth.api_keys", flags.Lookup("auth-api-keys"))

		// Repositories CLI flags
		for _, key := range repositoriesKeys {
			if f := flags.Lookup("repositories-" + strings.ReplaceAll(key, "_", "-")); f != nil {
				_ = v.BindPFlag("repositories."+key, f)
			}
		}
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	// Handle explicit parsing of API keys if provided via env var as comma-separated string
	apiKeysEnv := os.Getenv("RELIC_ARTIFACTS_AUTH_API_KEYS")
	if apiKeysEnv != "" {
		if len(settings.Auth.APIKeys) == 0 || (len(settings.Auth.APIKeys) == 1 && strings.Contains(settings.Auth.APIKeys[0], ",")) {
			settings.Auth.APIKeys = strings.Split(apiKeysEnv, ",")
		}
	}

	// Trim spaces from API keys
	for i := range settings.Auth.APIKeys {
		settings.Auth.APIKeys[i] = strings.TrimSpace(settings.Auth.APIKeys[i])
	}

	// Expand home directory in repository paths
	settings.Repos.DataDir = expandHomeDir(settings.Repos.DataDir)
	settings.Repos.ConfigFile = expandHomeDir(settings.Repos.ConfigFile)

	return &settings, nil
}

// repositoriesKeys are the repositories.* settings bound to env vars and flags.
var repositoriesKeys = []string{
	"config_file",
	"data_dir",
	"scan_on_startup",
	"lock_timeout",
	"stats_file",
	"max_file_size",
	"page_size",
	"max_search_hits",
	"max_parallel_scans",
	"watch_config",
	"history_retention",
}

// defaultDataDir returns the default directory for indexes, history and lock files
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".relic-artifacts"
	}
	return filepath.Join(home, ".relic-artifacts")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

// ValidateSettings checks for conflicting configurations.
// Returns an error if the settings contain mutually exclusive or incomplete auth config.
func ValidateSettings(s *Settings) error {
	// Validate transport type
	switch s.Transport {
	case "stdio", "sse":
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	hasBasicCreds := s.Auth.Basic.Username != "" || s.Auth.Basic.Password != ""
	hasAPIKeys := len(s.Auth.APIKeys) > 0

	switch s.Auth.Type {
	case AuthTypeNone, "":
		if hasBasicCreds || hasAPIKeys {
			return errors.New("auth-type 'none' is incompatible with auth credentials")
		}
	case AuthTypeBasic:
		if hasAPIKeys {
			return errors.New("auth-type 'basic' is mutually exclusive with auth-api-keys")
		}
		if s.Auth.Basic.Username == "" || s.Auth.Basic.Password == "" {
			return errors.New("auth-type 'basic' requires both username and password")
		}
	case AuthTypeAPIKey:
		if hasBasicCreds {
			return errors.New("auth-type 'apikey' is mutually exclusive with basic auth credentials")
		}
		if !hasAPIKeys {
			return errors.New("auth-type 'apikey' requires at least one API key")
		}
	default:
		return errors.New("unknown auth-type: " + s.Auth.Type)
	}

	return validateRepositoriesSettings(&s.Repos)
}

// validateRepositoriesSettings validates the repository scanning configuration
func validateRepositoriesSettings(r *RepositoriesSettings) error {
	if r.ConfigFile == "" {
		return errors.New("repositories-config-file cannot be empty")
	}

	if r.DataDir == "" {
		return errors.New("repositories-data-dir cannot be empty")
	}

	if r.StatsFile == "" {
		return errors.New("repositories-stats-file cannot be empty")
	}

	if r.LockTimeout <= 0 {
		return errors.New("repositories-lock-timeout must be positive")
	}

	if r.MaxFileSize <= 0 {
		return errors.New("repositories-max-file-size must be positive")
	}

	if r.PageSize <= 0 {
		return errors.New("repositories-page-size must be positive")
	}

	if r.MaxSearchHits <= 0 {
		return errors.New("repositories-max-search-hits must be positive")
	}

	if r.MaxParallelScans <= 0 {
		return errors.New("repositories-max-parallel-scans must be positive")
	}

	if r.HistoryRetention < 0 {
		return errors.New("repositories-history-retention cannot be negative")
	}

	return nil
}
