package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"golang-branch-analytics/cmd/analytics/config"
	"golang-branch-analytics/internal/analytics"
	"golang-branch-analytics/internal/parsers"
	"golang-branch-analytics/internal/reporter"
	"golang-branch-analytics/pkg/errors"
	"golang-branch-analytics/pkg/logger"
)

// reportCfg is resolved in PreRunE and consumed by RunE
var reportCfg *config.Config

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compute branch metrics once and write the table",
	Long: `Report reads one or more POS sales exports, removes repeated card swipes,
builds each customer's visit history per branch and writes the monthly
metrics table.

Examples:
  # Console table from a workbook
  analytics report --input sales.xlsx

  # Several CSV exports saved by older POS software
  analytics report --input jan.csv,feb.csv --encoding euc-kr

  # Dated spreadsheet download, e.g. exports/branch_metrics_20250301.xlsx
  analytics report --input sales.xlsx --format xlsx --output-dir exports

  # JSON with English labels to a file
  analytics report --input sales.xlsx --format json --locale en --output metrics.json

  # Stricter swipe deduplication
  analytics report --input sales.xlsx --dedup-window 10m`,

	PreRunE: validateReportFlags,
	RunE:    runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	flags := reportCmd.Flags()
	flags.StringP(config.KeyFormat, "f", "console", "output format: console, json, csv, xlsx")
	flags.StringP(config.KeyOutput, "o", "", "output file path (default: stdout)")
	flags.String(config.KeyOutputDir, "", "write a dated branch_metrics_YYYYMMDD file into this directory")
	flags.Bool(config.KeyNoColor, false, "disable colored console output")

	for _, key := range []string{config.KeyFormat, config.KeyOutput, config.KeyOutputDir, config.KeyNoColor} {
		viper.BindPFlag(key, flags.Lookup(key))
	}
}

func validateReportFlags(cmd *cobra.Command, args []string) error {
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
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report", cfg.Report.Format, err).
			WithSuggestion("Use 'analytics report --help' to see all available options")
	}

	if cfg.Output != "" && cfg.OutputDir != "" {
		return errors.ConfigurationError(errors.CodeConfigConflict, "output", cfg.Output, nil).
			WithSuggestion("Use either --output or --output-dir, not both")
	}
	if cfg.Output != "" {
		dir := filepath.Dir(cfg.Output)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	reportCfg = cfg
	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).
			WithContext("input", description)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}
	file.Close()

	return nil
}

// newPipeline wires the file parser and the pipeline stages from cfg
func newPipeline(cfg *config.Config) (*analytics.Pipeline, error) {
	parser, err := parsers.NewMultiFileParser(cfg.Parser)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parser", cfg.Parser.MaxConcurrency, err)
	}
	return analytics.NewPipeline(analytics.NewFileSource(parser, cfg.Inputs), cfg.Pipeline)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg := reportCfg
	log := logger.GetGlobalLogger().WithComponent("report")

	log.WithFields(logger.Fields{
		"inputs":       cfg.Inputs,
		"format":       cfg.Report.Format,
		"dedup_window": cfg.Pipeline.Dedup.Window,
	}).Debug("Starting report")

	pipeline, err := newPipeline(cfg)
	if err != nil {
		return err
	}

	result, err := pipeline.Run(cmd.Context())
	if err != nil {
		return err
	}

	generator, err := reporter.NewSafeReportGenerator(cfg.Report, log)
	if err != nil {
		return err
	}

	if cfg.OutputDir != "" {
		path, err := generator.WriteReportFile(result, cfg.OutputDir, result.ComputedAt)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", path)
		return nil
	}

	var output io.Writer = cmd.OutOrStdout()
	if cfg.Output != "" {
		file, err := os.Create(cfg.Output)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, cfg.Output, err)
		}
		defer file.Close()
		output = file
	}

	if err := generator.GenerateReportSafely(result, output); err != nil {
		return err
	}

	log.WithFields(logger.Fields{
		"run_id":    result.RunID,
		"customers": result.Stats.Customers,
		"duration":  result.Stats.Duration,
	}).Info("Report completed")
	return nil
}
