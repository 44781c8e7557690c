package main

import (
	"context"
	"os"

	"github.com/sha1n/relic-artifacts/internal/app"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Version is injected at build time
	Version = "dev"
	// Build is injected at build time
	Build = "unknown"
	// ProgramName is injected at build time
	ProgramName = "relic-artifacts"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, Build, ProgramName, args[1:]); err != nil {
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing
func Execute(version, build, programName string, args []string) error {
	rootCmd := &cobra.Command{
		Use:     programName,
		Short:   "RELIC artifacts MCP server",
		Long:    "Scans Maven-style artifact repositories, maintains their checksums and metadata, and serves cross-repository search over MCP",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithFlags(cmd.Flags(), version)
		},
	}

	rootCmd.SetVersionTemplate(`{{.Version}}
`)

	var incremental bool
	scanCmd := &cobra.Command{
		Use:   "scan [repository...]",
		Short: "Scan repositories once and print a JSON report per repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunScan(cmd.Context(), app.DefaultRunParams(), cmd.Flags(), app.ScanParams{
				Repositories: args,
				Incremental:  incremental,
				Output:       cmd.OutOrStdout(),
			})
		},
	}
	scanCmd.Flags().BoolVarP(&incremental, "incremental", "i", false, "Only process files modified since the previous scan started")
	rootCmd.AddCommand(scanCmd)

	app.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.SetArgs(args)

	return rootCmd.ExecuteContext(context.Background())
}

func runWithFlags(flags *pflag.FlagSet, version string) error {
	return app.RunWithDeps(context.Background(), app.DefaultRunParams(), flags, version)
}
