package cmd

import (
	"github.com/spf13/cobra"

	"golang-branch-analytics/pkg/errors"
)

var dumpFormat string

// configCmd groups configuration helpers
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

// configShowCmd prints the configuration after flags, environment and config file are merged
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Show prints the settings a report or serve run would use, including the
branch rules, as YAML, TOML or JSON. The output can be saved and passed
back with --config.

Examples:
  analytics config show
  ANALYTICS_DEDUP_WINDOW=10m analytics config show --as toml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "config", cfgFile, err)
		}
		out, err := cfg.Dump(dumpFormat)
		if err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "as", dumpFormat, err).
				WithSuggestion("Use --as yaml, toml or json")
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	configShowCmd.Flags().StringVar(&dumpFormat, "as", "yaml", "output syntax: yaml, toml, json")
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
