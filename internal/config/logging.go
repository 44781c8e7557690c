package config

import (
	"context"
	"log/slog"
)

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: transport", "value", s.Transport)
	if s.Transport == "sse" {
		logger.InfoContext(ctx, "Config: host", "value", s.Host)
		logger.InfoContext(ctx, "Config: port", "value", s.Port)
	}

	logger.InfoContext(ctx, "Config: auth.type", "value", s.Auth.Type)
	switch s.Auth.Type {
	case AuthTypeBasic:
		logger.InfoContext(ctx, "Config: auth.basic.username", "value", s.Auth.Basic.Username)
		logger.InfoContext(ctx, "Config: auth.basic.password", "value", "****")
	case AuthTypeAPIKey:
		logger.InfoContext(ctx, "Config: auth.api_keys", "count", len(s.Auth.APIKeys))
	}

	logger.InfoContext(ctx, "Config: repositories.config_file", "value", s.Repos.ConfigFile)
	logger.InfoContext(ctx, "Config: repositories.data_dir", "value", s.Repos.DataDir)
	logger.InfoContext(ctx, "Config: repositories.scan_on_startup", "value", s.Repos.ScanOnStartup)
	logger.InfoContext(ctx, "Config: repositories.lock_timeout", "value", s.Repos.LockTimeout)
	logger.InfoContext(ctx, "Config: repositories.stats_file", "value", s.Repos.StatsFile)
	logger.InfoContext(ctx, "Config: repositories.max_file_size", "value", s.Repos.MaxFileSize)
	logger.InfoContext(ctx, "Config: repositories.page_size", "value", s.Repos.PageSize)
	logger.InfoContext(ctx, "Config: repositories.max_search_hits", "value", s.Repos.MaxSearchHits)
	logger.InfoContext(ctx, "Config: repositories.max_parallel_scans", "value", s.Repos.MaxParallelScans)
	logger.InfoContext(ctx, "Config: repositories.watch_config", "value", s.Repos.WatchConfig)
	logger.InfoContext(ctx, "Config: repositories.history_retention", "value", s.Repos.HistoryRetention)
}

// AuthSettingsLogValue returns a slog.Value for AuthSettings with masked data
func AuthSettingsLogValue(s AuthSettings) slog.Value {
	keys := make([]string, len(s.APIKeys))
	for i := range s.APIKeys {
		keys[i] = "****"
	}
	return slog.GroupValue(
		slog.String("type", s.Type),
		slog.Any("basic", BasicAuthSettingsLogValue(s.Basic)),
		slog.Any("api_keys", keys),
	)
}

// BasicAuthSettingsLogValue returns a slog.Value for BasicAuthSettings with masked data
func BasicAuthSettingsLogValue(s BasicAuthSettings) slog.Value {
	return slog.GroupValue(
		slog.String("username", s.Username),
		slog.String("password", "****"),
	)
}

// SettingsLogValue returns a slog.Value for Settings with masked data
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.String("transport", s.Transport),
		slog.String("host", s.Host),
		slog.Int("port", s.Port),
		slog.Any("auth", AuthSettingsLogValue(s.Auth)),
		slog.Group("repositories",
			slog.String("config_file", s.Repos.ConfigFile),
			slog.String("data_dir", s.Repos.DataDir),
			slog.Int("max_parallel_scans", s.Repos.MaxParallelScans),
		),
	)
}
