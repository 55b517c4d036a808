// Package reporter renders branch metrics tables for people and for other
// programs.
//
// Supported output formats:
//   - Console: boxed table for terminal display
//   - JSON: structured data with run metadata
//   - CSV: one row per (branch, metric), one column per month
//   - XLSX: single-sheet workbook for download
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatXLSX})
//	err = generator.GenerateReport(result, file)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pterm/pterm"

	"golang-branch-analytics/internal/analytics"
	"golang-branch-analytics/internal/models"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatXLSX    OutputFormat = "xlsx"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatXLSX:
		return true
	default:
		return false
	}
}

// Extension returns the file extension used for exports in this format
func (f OutputFormat) Extension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatCSV:
		return ".csv"
	case FormatXLSX:
		return ".xlsx"
	default:
		return ".txt"
	}
}

// ContentType returns the MIME type of the format
func (f OutputFormat) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/plain; charset=utf-8"
	}
}

// ExportFilenamePrefix is the stem of exported file names
const ExportFilenamePrefix = "branch_metrics"

// ExportFilename returns the download name of an export made on date
func ExportFilename(format OutputFormat, date time.Time) string {
	return fmt.Sprintf("%s_%s%s", ExportFilenamePrefix, date.Format("20060102"), format.Extension())
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat  `json:"format" mapstructure:"format"`
	Locale models.Locale `json:"locale" mapstructure:"locale"`

	// Console formatting options
	UseColors       bool `json:"use_colors" mapstructure:"use_colors"`
	IncludeRunStats bool `json:"include_run_stats" mapstructure:"include_run_stats"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers"`

	// XLSX options
	SheetName string `json:"sheet_name" mapstructure:"sheet_name"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:          FormatConsole,
		Locale:          models.LocaleKorean,
		UseColors:       true,
		IncludeRunStats: true,
		CSVDelimiter:    ',',
		CSVHeaders:      true,
		SheetName:       DefaultSheetName,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if !c.Locale.IsValid() {
		return fmt.Errorf("invalid locale: %s", c.Locale)
	}
	if c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n' {
		return fmt.Errorf("invalid csv delimiter: %q", c.CSVDelimiter)
	}
	if c.Format == FormatXLSX && c.SheetName == "" {
		return fmt.Errorf("sheet name cannot be empty")
	}
	return nil
}

// ReportGenerator renders metrics tables in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport renders the result and writes it to the provided writer
func (rg *ReportGenerator) GenerateReport(result *analytics.Result, writer io.Writer) error {
	if result == nil || result.Table == nil {
		return fmt.Errorf("analytics result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result.Table, writer)
	case FormatXLSX:
		return rg.generateXLSXReport(result.Table, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// headerRow returns the column labels of the tabular formats
func (rg *ReportGenerator) headerRow(table *models.MetricsTable) []string {
	branch, metric := "Branch", "Metric"
	if rg.config.Locale == models.LocaleKorean {
		branch, metric = "매장", "항목"
	}
	return append([]string{branch, metric}, table.Months...)
}

// textRows renders every table row as strings
func (rg *ReportGenerator) textRows(table *models.MetricsTable) [][]string {
	rows := make([][]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		cells := make([]string, 0, len(table.Months)+2)
		cells = append(cells, row.Branch.String(), row.Metric.Label(rg.config.Locale))
		for _, month := range table.Months {
			cells = append(cells, row.Values[month].String())
		}
		rows = append(rows, cells)
	}
	return rows
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *analytics.Result, writer io.Writer) error {
	fmt.Fprintf(writer, "BRANCH METRICS REPORT\n")
	fmt.Fprintf(writer, "Run: %s\n", result.RunID)
	fmt.Fprintf(writer, "Generated: %s\n", result.ComputedAt.Format(time.RFC3339))
	if !result.Stats.DataEndDate.IsZero() {
		fmt.Fprintf(writer, "Data through: %s\n", result.Stats.DataEndDate.Format(models.DateTimeLayout))
	}
	fmt.Fprintf(writer, "\n")

	if result.Table.IsEmpty() {
		fmt.Fprintf(writer, "No branch activity found.\n")
	} else {
		data := pterm.TableData{rg.headerRow(result.Table)}
		data = append(data, rg.textRows(result.Table)...)

		table := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data)
		if rg.config.UseColors {
			table = table.WithHeaderStyle(pterm.NewStyle(pterm.FgLightCyan))
		} else {
			table = table.WithHeaderStyle(pterm.NewStyle())
		}
		rendered, err := table.Srender()
		if err != nil {
			return fmt.Errorf("failed to render console table: %w", err)
		}
		fmt.Fprintln(writer, rendered)
	}

	if rg.config.IncludeRunStats {
		fmt.Fprintf(writer, "\n=== RUN STATISTICS ===\n")
		rg.printRunStats(result.Stats, writer)
	}
	return nil
}

func (rg *ReportGenerator) printRunStats(stats analytics.RunStats, writer io.Writer) {
	if stats.Parse != nil {
		fmt.Fprintf(writer, "Files Parsed:          %d\n", stats.Parse.Files)
		fmt.Fprintf(writer, "Records Parsed:        %d\n", stats.Parse.RecordsParsed)
	}
	fmt.Fprintf(writer, "Missing Customer:      %d\n", stats.Normalize.MissingCustomer)
	fmt.Fprintf(writer, "Missing Timestamp:     %d\n", stats.Normalize.MissingTimestamp)
	fmt.Fprintf(writer, "Unmatched Branch:      %d\n", stats.Normalize.OtherBranch)
	fmt.Fprintf(writer, "Duplicates Removed:    %d\n", stats.Dedup.Discarded)
	fmt.Fprintf(writer, "Customers:             %d\n", stats.Customers)
	fmt.Fprintf(writer, "Processing Time:       %v\n", stats.Duration)
}

type jsonRow struct {
	Branch string                        `json:"branch"`
	Metric models.MetricName             `json:"metric"`
	Label  string                        `json:"label"`
	Values map[string]models.MetricValue `json:"values"`
}

type jsonReport struct {
	RunID      string              `json:"run_id"`
	ComputedAt time.Time           `json:"computed_at"`
	Months     []string            `json:"months"`
	Rows       []jsonRow           `json:"rows"`
	Stats      *analytics.RunStats `json:"stats,omitempty"`
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(result *analytics.Result, writer io.Writer) error {
	report := jsonReport{
		RunID:      result.RunID,
		ComputedAt: result.ComputedAt,
		Months:     result.Table.Months,
		Rows:       make([]jsonRow, 0, len(result.Table.Rows)),
	}
	if report.Months == nil {
		report.Months = []string{}
	}
	for _, row := range result.Table.Rows {
		report.Rows = append(report.Rows, jsonRow{
			Branch: row.Branch.String(),
			Metric: row.Metric,
			Label:  row.Metric.Label(rg.config.Locale),
			Values: row.Values,
		})
	}
	if rg.config.IncludeRunStats {
		stats := result.Stats
		report.Stats = &stats
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// generateCSVReport writes the table as delimited text
func (rg *ReportGenerator) generateCSVReport(table *models.MetricsTable, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(rg.headerRow(table)); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}
	for _, record := range rg.textRows(table) {
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}
	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
