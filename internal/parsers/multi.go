package parsers

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"golang-branch-analytics/internal/models"
	"golang-branch-analytics/pkg/errors"
	"golang-branch-analytics/pkg/logger"
)

// MultiFileParser parses several sources concurrently and merges them
// into one snapshot
type MultiFileParser struct {
	config *MultiFileConfig
	logger logger.Logger
}

// NewMultiFileParser creates a parser over all supported source formats
func NewMultiFileParser(config *MultiFileConfig) (*MultiFileParser, error) {
	if config == nil {
		config = DefaultMultiFileConfig()
	}
	if config.CSV == nil {
		config.CSV = DefaultTransactionParserConfig()
	}
	if config.Workbook == nil {
		config.Workbook = DefaultWorkbookParserConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parser", config.MaxConcurrency, err)
	}
	return &MultiFileParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("multi_file_parser"),
	}, nil
}

// ParserFor selects the parser for a file by its extension
func (mp *MultiFileParser) ParserFor(filePath string) (RecordParser, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv", ".txt":
		return NewTransactionParser(mp.config.CSV)
	case ".xlsx", ".xlsm":
		return NewWorkbookParser(mp.config.Workbook)
	default:
		return nil, errors.FileError(errors.CodeUnsupported, filePath, nil).
			WithSuggestion("Provide .csv or .xlsx files")
	}
}

type fileResult struct {
	index   int
	records []models.RawTransaction
	stats   *ParseStats
}

// Parse reads every file and returns the records in input-file order with
// Sequence numbers assigned across the whole snapshot. The first failing
// file aborts the run.
func (mp *MultiFileParser) Parse(ctx context.Context, filePaths []string) ([]models.RawTransaction, *ParseStats, error) {
	if len(filePaths) == 0 {
		return nil, nil, errors.ValidationError(errors.CodeMissingField, "input", "", nil).
			WithSuggestion("Pass at least one input file with --input")
	}

	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "parse_sources",
		Total:     int64(len(filePaths)),
		Logger:    mp.logger,
	})

	p := pool.NewWithResults[fileResult]().
		WithContext(ctx).
		WithMaxGoroutines(mp.config.MaxConcurrency).
		WithFirstError().
		WithCancelOnError()

	for i, path := range filePaths {
		p.Go(func(ctx context.Context) (fileResult, error) {
			parser, err := mp.ParserFor(path)
			if err != nil {
				return fileResult{}, err
			}
			records, stats, err := parser.Parse(ctx, path)
			if err != nil {
				return fileResult{}, err
			}
			tracker.Add(1)
			return fileResult{index: i, records: records, stats: stats}, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		mp.logger.WithError(err).Error("Source parsing failed")
		return nil, nil, errors.WrapIfNeeded(err, errors.CategoryParse, errors.CodeInvalidFormat, "failed to parse input files")
	}
	tracker.Complete()

	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })

	total := NewParseStats()
	var merged []models.RawTransaction
	var seq int64
	for _, r := range results {
		total.Merge(r.stats)
		for _, rec := range r.records {
			rec.Sequence = seq
			seq++
			merged = append(merged, rec)
		}
	}

	mp.logger.WithFields(logger.Fields{
		"files":   len(filePaths),
		"records": len(merged),
	}).Info(total.String())

	return merged, total, nil
}
