package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"golang-branch-analytics/cmd/analytics/config"
	"golang-branch-analytics/internal/analytics"
	"golang-branch-analytics/internal/server"
	"golang-branch-analytics/pkg/errors"
	"golang-branch-analytics/pkg/logger"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve branch metrics over HTTP",
	Long: `Serve computes the metrics table on the first request and keeps it for the
cache TTL. Later requests within the TTL reuse the same table.

Endpoints:
  GET  /metrics        JSON table (?locale=en for English labels)
  GET  /metrics.csv    CSV download
  GET  /metrics.xlsx   spreadsheet download named branch_metrics_YYYYMMDD.xlsx
  POST /refresh        drop the cached table and recompute
  GET  /healthz        liveness

Examples:
  analytics serve --input sales.xlsx
  analytics serve --input sales.xlsx --addr 127.0.0.1:9000 --cache-ttl 5m`,

	PreRunE: validateServeFlags,
	RunE:    runServe,
}

var serveCfg *config.Config

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.String(config.KeyAddr, ":8080", "listen address")
	flags.Duration(config.KeyCacheTTL, analytics.DefaultTTL, "how long a computed table is reused")

	viper.BindPFlag(config.KeyAddr, flags.Lookup(config.KeyAddr))
	viper.BindPFlag(config.KeyCacheTTL, flags.Lookup(config.KeyCacheTTL))
}

func validateServeFlags(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "config", cfgFile, err)
	}

	if len(cfg.Inputs) == 0 {
		return fmt.Errorf("at least one --input file is required")
	}
	for i, input := range cfg.Inputs {
		if err := validateFileExists(input, fmt.Sprintf("input file %d", i+1)); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "serve", cfg.Addr, err)
	}

	serveCfg = cfg
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := serveCfg

	pipeline, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	service := analytics.NewService(pipeline, cfg.CacheTTL)

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = cfg.Addr
	srvCfg.Locale = cfg.Report.Locale
	srv, err := server.New(service, srvCfg)
	if err != nil {
		return err
	}

	logger.WithFields(logger.Fields{
		"addr":      cfg.Addr,
		"inputs":    cfg.Inputs,
		"cache_ttl": cfg.CacheTTL,
	}).Info("Starting metrics server")

	return srv.ListenAndServe(cmd.Context())
}
