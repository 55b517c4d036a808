// Package analytics runs the customer analytics pipeline over one snapshot
// of source files and memoizes the resulting table.
//
// The pipeline is a single deterministic batch:
//  1. Load raw records from the configured source
//  2. Normalize records and canonicalize branches
//  3. Remove duplicate swipes
//  4. Build customer timelines
//  5. Compute the per-branch, per-month metrics table
//
// Example usage:
//
//	pipeline, err := analytics.NewPipeline(analytics.NewFileSource(parser, files), nil)
//	if err != nil {
//		return err
//	}
//	service := analytics.NewService(pipeline, 10*time.Minute)
//	result, expires, err := service.Get(ctx)
package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"

	"golang-branch-analytics/internal/lifecycle"
	"golang-branch-analytics/internal/metrics"
	"golang-branch-analytics/internal/models"
	"golang-branch-analytics/internal/parsers"
	"golang-branch-analytics/pkg/errors"
	"golang-branch-analytics/pkg/logger"
)

// Source supplies the raw records of one snapshot
type Source interface {
	Load(ctx context.Context) ([]models.RawTransaction, *parsers.ParseStats, error)
}

// FileSource loads records from files through the multi-file parser
type FileSource struct {
	parser *parsers.MultiFileParser
	files  []string
}

// NewFileSource creates a source over the given files
func NewFileSource(parser *parsers.MultiFileParser, files []string) *FileSource {
	return &FileSource{parser: parser, files: append([]string(nil), files...)}
}

// Load parses every file of the source
func (fs *FileSource) Load(ctx context.Context) ([]models.RawTransaction, *parsers.ParseStats, error) {
	return fs.parser.Parse(ctx, fs.files)
}

// Files returns the files of the source
func (fs *FileSource) Files() []string {
	return append([]string(nil), fs.files...)
}

// PipelineConfig groups the settings of every pipeline stage
type PipelineConfig struct {
	BranchRules []lifecycle.BranchRule `json:"branch_rules" mapstructure:"branch_rules"`
	Dedup       *lifecycle.DedupConfig `json:"dedup" mapstructure:"dedup"`
	Metrics     *metrics.Config        `json:"metrics" mapstructure:"metrics"`
}

// DefaultPipelineConfig returns the default pipeline settings
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		BranchRules: lifecycle.DefaultBranchRules(),
		Dedup:       lifecycle.DefaultDedupConfig(),
		Metrics:     metrics.DefaultConfig(),
	}
}

// RunStats summarizes what each stage did during a run
type RunStats struct {
	Parse       *parsers.ParseStats      `json:"parse,omitempty"`
	Normalize   lifecycle.NormalizeStats `json:"normalize"`
	Dedup       lifecycle.DedupStats     `json:"dedup"`
	Customers   int                      `json:"customers"`
	DataEndDate time.Time                `json:"data_end_date"`
	Duration    time.Duration            `json:"duration"`
}

// Result is the outcome of one pipeline run
type Result struct {
	RunID      string               `json:"run_id"`
	ComputedAt time.Time            `json:"computed_at"`
	Table      *models.MetricsTable `json:"table"`
	Stats      RunStats             `json:"stats"`
}

// Pipeline wires the pipeline stages together
type Pipeline struct {
	source     Source
	normalizer *lifecycle.Normalizer
	dedup      *lifecycle.Deduplicator
	engine     *metrics.Engine
	logger     logger.Logger
	now        func() time.Time
}

// NewPipeline creates a pipeline reading from source
func NewPipeline(source Source, config *PipelineConfig) (*Pipeline, error) {
	if source == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "source", nil, nil).
			WithSuggestion("Provide a record source")
	}
	if config == nil {
		config = DefaultPipelineConfig()
	}

	branches, err := lifecycle.NewBranchCanonicalizer(config.BranchRules)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "branches.rules", len(config.BranchRules), err)
	}
	dedup, err := lifecycle.NewDeduplicator(config.Dedup)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "dedup.window", config.Dedup.Window, err)
	}
	engine, err := metrics.NewEngine(config.Metrics)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "metrics", config.Metrics, err)
	}

	return &Pipeline{
		source:     source,
		normalizer: lifecycle.NewNormalizer(branches),
		dedup:      dedup,
		engine:     engine,
		logger:     logger.GetGlobalLogger().WithComponent("pipeline"),
		now:        time.Now,
	}, nil
}

// Run executes every stage over a fresh load of the source. No partial
// result is returned when a stage fails.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := p.now()
	runID := uuid.NewString()
	op := logger.NewOperationLogger("analytics_run", p.logger.WithRunID(runID))

	raw, parseStats, err := p.source.Load(ctx)
	if err != nil {
		op.Error(err, "Loading source records failed")
		return nil, errors.WrapIfNeeded(err, errors.CategoryPipeline, errors.CodeProcessingError, "failed to load source records")
	}
	op.Step("load", logger.Fields{"records": len(raw)})

	var result *Result
	err = logger.TimedOperation("compute_metrics", p.logger.WithRunID(runID), func() error {
		canonical, normStats := p.normalizer.Normalize(raw)
		op.Step("normalize", logger.Fields{
			"kept":              normStats.Kept,
			"missing_customer":  normStats.MissingCustomer,
			"missing_timestamp": normStats.MissingTimestamp,
			"other_branch":      normStats.OtherBranch,
		})
		if len(canonical) == 0 {
			return errors.PipelineError(errors.CodeEmptyDataset, "normalize", nil).
				WithContext("input_records", len(raw)).
				WithSuggestion("Check that the source files contain customer ids and parsable dates")
		}

		deduped, dedupStats := p.dedup.Deduplicate(canonical)
		op.Step("dedup", logger.Fields{"kept": dedupStats.Kept, "discarded": dedupStats.Discarded})

		timeline := lifecycle.BuildTimeline(deduped)
		op.Step("timeline", logger.Fields{
			"customers": len(timeline.Profiles),
			"months":    len(timeline.Months),
		})

		table := p.engine.Compute(timeline)
		op.Step("metrics", logger.Fields{"rows": len(table.Rows)})

		result = &Result{
			RunID:      runID,
			ComputedAt: p.now(),
			Table:      table,
			Stats: RunStats{
				Parse:       parseStats,
				Normalize:   normStats,
				Dedup:       dedupStats,
				Customers:   len(timeline.Profiles),
				DataEndDate: timeline.MaxTimestamp,
			},
		}
		return nil
	})
	if err != nil {
		op.Error(err, "Pipeline failed")
		return nil, err
	}

	result.Stats.Duration = p.now().Sub(start)
	op.Success("Analytics run completed")
	return result, nil
}
