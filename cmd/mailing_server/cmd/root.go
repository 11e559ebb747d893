// Package cmd implements the mailing_server CLI commands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var manifestPath string

// Build info set from main.
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// SetVersionInfo sets the version info from build-time ldflags.
func SetVersionInfo(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	rootCmd.Version = buildVersion
	rootCmd.SetVersionTemplate(fmt.Sprintf("mailing_server version {{.Version}}\ncommit: %s\nbuilt: %s\n", buildCommit, buildDate))
}

var rootCmd = &cobra.Command{
	Use:   "mailing_server",
	Short: "mailing_server queues and relays notification emails",
	Long: "mailing_server is a small daemon that accepts framed email submissions\n" +
		"over TCP, queues them, and relays them through an SMTP server at a\n" +
		"bounded rate. Run with no arguments it starts the daemon, reading its\n" +
		"configuration documents from the working directory. Subcommands build,\n" +
		"install, and register it as a systemd service.",
	SilenceUsage: true,
	RunE:         runDaemon,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&manifestPath, "manifest", "", "deploy manifest path (YAML)")

	rootCmd.Version = buildVersion
	rootCmd.SetVersionTemplate(fmt.Sprintf("mailing_server version {{.Version}}\ncommit: %s\nbuilt: %s\n", buildCommit, buildDate))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
