package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"golang-branch-analytics/cmd/analytics/config"
	"golang-branch-analytics/pkg/logger"
)

var (
	cfgFile string
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Branch customer analytics for POS card sales",
	Long: `Analytics turns POS card-sale exports into a per-branch, per-month table of
customer lifecycle metrics: revenue, new and returning visitors, loyalty,
conversion, visit frequency, churn and retention.

Examples:
  analytics report --input sales.xlsx
  analytics report --input jan.csv,feb.csv --format xlsx --output-dir exports
  analytics serve --input sales.xlsx --addr :8080
  analytics version`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	flags.BoolP(config.KeyVerbose, "v", false, "verbose output")
	flags.String(config.KeyLogLevel, string(logger.InfoLevel), "log level: debug, info, warn, error")
	flags.String(config.KeyLogFormat, string(logger.TextFormat), "log format: text, json")

	// Pipeline inputs shared by report and serve
	flags.StringSliceP(config.KeyInput, "i", []string{}, "comma-separated .csv or .xlsx sales exports")
	flags.Int(config.KeyConcurrency, 4, "number of input files parsed in parallel")
	flags.String(config.KeyEncoding, "utf-8", "CSV text encoding: utf-8, euc-kr")
	flags.String(config.KeyBranchRules, "", "branch rules file (yaml, toml or json)")
	flags.Duration(config.KeyDedupWindow, config.DefaultDedupWindow(), "swipes of one customer at one branch within this window count once")
	flags.Duration(config.KeyChurnWindow, config.DefaultLifecycleWindow(), "customers silent for this long before the data end date count as churned")
	flags.Duration(config.KeyConversionWindow, config.DefaultLifecycleWindow(), "window after the first visit for the 3-month conversion metric")
	flags.String(config.KeyLocale, "ko", "label language: ko, en")

	for _, key := range []string{
		config.KeyVerbose, config.KeyLogLevel, config.KeyLogFormat,
		config.KeyInput, config.KeyConcurrency, config.KeyEncoding, config.KeyBranchRules,
		config.KeyDedupWindow, config.KeyChurnWindow, config.KeyConversionWindow, config.KeyLocale,
	} {
		viper.BindPFlag(key, flags.Lookup(key))
	}
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(4)
		}
	}

	config.BindEnv(viper.GetViper())

	if err := setupLogger(); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %s\n", err)
		os.Exit(4)
	}

	if cfgFile != "" {
		logger.WithField("file", viper.ConfigFileUsed()).Debug("Using config file")
	}
}

// setupLogger installs the global logger. Logs go to stderr so that
// reports written to stdout stay clean.
func setupLogger() error {
	log, err := logger.NewLogger(logger.ConfigFrom(
		viper.GetString(config.KeyLogLevel),
		viper.GetString(config.KeyLogFormat),
		viper.GetBool(config.KeyVerbose),
	))
	if err != nil {
		return err
	}
	logger.SetGlobalLogger(log)
	return nil
}

// loadConfig resolves the configuration from flags, environment and config file
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
