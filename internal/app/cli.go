package app

import "github.com/spf13/pflag"

// RegisterFlags registers all CLI flags on the given FlagSet
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")
	flags.StringP("auth-type", "a", "", "Authentication type: none, basic, or apikey")
	flags.StringP("auth-basic-username", "u", "", "Basic auth username")
	flags.StringP("auth-basic-password", "P", "", "Basic auth password")
	flags.StringSliceP("auth-api-keys", "k", nil, "API keys (comma-separated)")

	// Repositories
	flags.StringP("repositories-config-file", "c", "", "Repository configuration file (YAML)")
	flags.StringP("repositories-data-dir", "d", "", "Directory for indexes, scan history and lock files")
	flags.Bool("repositories-scan-on-startup", false, "Run an incremental scan of every repository on startup")
	flags.Duration("repositories-lock-timeout", 0, "Maximum wait for a repository scan lock")
	flags.String("repositories-stats-file", "", "Scan statistics file name, relative to each repository root")
	flags.Int64("repositories-max-file-size", 0, "Maximum size in bytes of files read or indexed")
	flags.Int("repositories-page-size", 0, "Default number of search results per page")
	flags.Int("repositories-max-search-hits", 0, "Maximum number of search hits collected per query")
	flags.Int("repositories-max-parallel-scans", 0, "Maximum number of repositories scanned concurrently")
	flags.Bool("repositories-watch-config", false, "Reload the repository configuration file when it changes")
	flags.Int("repositories-history-retention", 0, "Scan history entries kept per repository (0 keeps all)")
}
