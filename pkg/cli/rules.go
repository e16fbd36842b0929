package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRulesCmd(configPath *string, version string) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the built-in and custom rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath, version)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			registry, err := buildRegistry(cfg, logger)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), registry.RulesInfo())
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), registry.FormatRulesInfo())
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the rules as JSON")
	return cmd
}
