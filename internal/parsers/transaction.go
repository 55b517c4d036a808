package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang-branch-analytics/internal/models"
	"golang-branch-analytics/pkg/errors"
	"golang-branch-analytics/pkg/logger"
)

// TransactionParser reads raw transactions from CSV exports
type TransactionParser struct {
	*BaseParser
	config *TransactionParserConfig
	logger logger.Logger
}

// NewTransactionParser creates a new TransactionParser with the given configuration
func NewTransactionParser(config *TransactionParserConfig) (*TransactionParser, error) {
	if config == nil {
		config = DefaultTransactionParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"csv",
			config.Name,
			err,
		).WithSuggestion("Check the csv column settings")
	}

	parseConfig := DefaultParseConfig()
	parseConfig.HasHeader = config.HasHeader
	parseConfig.Delimiter = config.Delimiter
	parseConfig.Encoding = config.Encoding

	return &TransactionParser{
		BaseParser: NewBaseParser(parseConfig),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("transaction_parser"),
	}, nil
}

// Parse reads every record of a CSV file
func (tp *TransactionParser) Parse(ctx context.Context, filePath string) ([]models.RawTransaction, *ParseStats, error) {
	tp.logger.WithFields(logger.Fields{
		"file_path": filePath,
		"layout":    tp.config.Name,
	}).Info("Starting CSV parsing")

	closer, reader, err := tp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer closer.Close()

	parseCtx := NewParseContext(ctx, filePath)
	stats := NewParseStats()
	stats.Files = 1

	cfg := tp.config
	if err := tp.ReadHeaders(reader, parseCtx, cfg.DefaultHeaders()); err != nil {
		return nil, stats, err
	}
	if cfg.AutoDetect && len(parseCtx.FindMissing(cfg.RequiredColumns())) > 0 {
		cfg = AutoDetectCSVConfig(parseCtx.Headers, cfg)
		tp.logger.WithField("layout", cfg.Name).Debug("Detected CSV layout from headers")
	}

	if missing := parseCtx.FindMissing(cfg.RequiredColumns()); len(missing) > 0 {
		tp.logger.WithFields(logger.Fields{
			"missing_headers":   missing,
			"available_headers": parseCtx.Headers,
		}).Error("Required headers are missing")

		return nil, stats, errors.ParseError(
			errors.CodeMissingColumn,
			filePath,
			parseCtx.LineNumber,
			strings.Join(missing, ", "),
			"",
			nil,
		).WithSuggestion(fmt.Sprintf("Ensure the CSV file contains these headers: %s", strings.Join(cfg.RequiredColumns(), ", ")))
	}

	clockColumn := cfg.GetColumnName("time")
	clockKnown := parseCtx.GetColumnIndex(clockColumn) >= 0

	builder := &recordBuilder{
		source:        filePath,
		cancelMarkers: cfg.CancelMarkers,
		stats:         stats,
		log:           tp.logger,
	}

	var records []models.RawTransaction
	for {
		record, err := tp.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.IsAnalyticsError(err) {
				return nil, stats, err
			}
			return nil, stats, errors.ParseError(errors.CodeInvalidFormat, filePath, parseCtx.LineNumber+1, "record", "", err).
				WithSuggestion("Check the CSV quoting and delimiter settings")
		}

		records = append(records, builder.build(
			parseCtx.LineNumber,
			parseCtx.Field(record, cfg.GetColumnName("customer")),
			parseCtx.Field(record, cfg.GetColumnName("branch")),
			parseCtx.Field(record, cfg.GetColumnName("amount")),
			parseCtx.Field(record, cfg.GetColumnName("type")),
			parseCtx.Field(record, cfg.GetColumnName("date")),
			parseCtx.Field(record, clockColumn),
			clockKnown,
		))
	}

	stats.TotalLines = parseCtx.LineNumber

	tp.logger.WithFields(logger.Fields{
		"file_path":          filePath,
		"total_lines":        stats.TotalLines,
		"records_parsed":     stats.RecordsParsed,
		"invalid_amounts":    stats.InvalidAmounts,
		"invalid_timestamps": stats.InvalidTimestamps,
	}).Info("CSV parsing completed")

	if stats.HasErrors() {
		tp.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Debug("Encountered unreadable values")
	}

	return records, stats, nil
}
