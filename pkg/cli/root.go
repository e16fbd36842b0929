// Package cli wires configuration, datasources and the discovery service into the
// ekaya-discover command line: a long-running server plus one-shot scan, rules and
// msql commands.
package cli

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "config.yaml"

// NewRootCmd builds the ekaya-discover command tree. Running the root command
// without a subcommand starts the server.
func NewRootCmd(version string) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "ekaya-discover",
		Short:         "Classify database columns by scanning sampled values against rules",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, version)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to the YAML configuration file")
	rootCmd.AddCommand(newServeCmd(&configPath, version))
	rootCmd.AddCommand(newScanCmd(&configPath, version))
	rootCmd.AddCommand(newRulesCmd(&configPath, version))
	rootCmd.AddCommand(newMsqlCmd(&configPath, version))
	return rootCmd
}
