// Package cmd implements the cclmctl command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clmops/cclmctl/internal/config"
	"github.com/clmops/cclmctl/internal/observability"
)

// versionInfo holds build-time version metadata set via SetVersionInfo.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// settings are the tool-level knobs resolved before any command runs.
var settings *config.Settings

var logLevelFlag string

var rootCmd = &cobra.Command{
	Use:   "cclmctl",
	Short: "Chunked coupled-simulation lifecycle controller",
	Long: `cclmctl creates and drives chunked COSMO-CLM2 simulation cases.

A case splits a long simulation into chunks. Each chunk is one scheduler run
job; its input staging and output archiving are separate jobs wired together
with dependencies. Every job reports back via 'cclmctl control', which
advances the case to the next chunk.

Commands:
  create   create a case from a setup file and submit its first chunk
  control  process a job completion event (called from job scripts)
  stage    stage one chunk's boundary input (called from transfer jobs)
  status   show the case ledger`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		settings, err = config.Load()
		if err != nil {
			return err
		}
		if logLevelFlag != "" {
			settings.LogLevel = logLevelFlag
		}
		return observability.Init(settings.LogLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug|info|warn|error)")
}

// SetVersionInfo records build-time version metadata on the root command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate)
}

// Execute runs the root command.
func Execute() error {
	defer observability.Sync()
	return rootCmd.Execute()
}

// exitError wraps an error with a message and the intended process exit code.
func exitError(code int, message string, err error) error {
	return fmt.Errorf("%s: %w (exit code %d)", message, err, code)
}
