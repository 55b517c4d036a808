package parsers

import (
	"context"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"golang-branch-analytics/internal/models"
	"golang-branch-analytics/pkg/errors"
	"golang-branch-analytics/pkg/logger"
)

// WorkbookParser reads raw transactions from the branch sales workbook
type WorkbookParser struct {
	config  *WorkbookParserConfig
	shifted *regexp.Regexp
	logger  logger.Logger
}

// NewWorkbookParser creates a new WorkbookParser with the given configuration
func NewWorkbookParser(config *WorkbookParserConfig) (*WorkbookParser, error) {
	if config == nil {
		config = DefaultWorkbookParserConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "workbook", config.SkipRows, err).
			WithSuggestion("Check the workbook column settings")
	}

	wp := &WorkbookParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("workbook_parser"),
	}
	if config.ShiftedDatePattern != "" {
		wp.shifted = regexp.MustCompile(config.ShiftedDatePattern)
	}
	return wp, nil
}

// Parse reads every data sheet of an XLSX workbook
func (wp *WorkbookParser) Parse(ctx context.Context, filePath string) ([]models.RawTransaction, *ParseStats, error) {
	wp.logger.WithField("file_path", filePath).Info("Starting workbook parsing")

	file, err := openSource(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, nil, errors.FileError(errors.CodeFileCorrupted, filePath, err).
			WithSuggestion("Ensure the file is a valid .xlsx workbook")
	}
	defer f.Close()

	stats := NewParseStats()
	stats.Files = 1

	var records []models.RawTransaction
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, stats, errors.InternalError(errors.CodeUnexpectedError, "workbook_parsing", err)
		}

		if wp.config.IsExcluded(sheet) {
			stats.SheetsSkipped++
			wp.logger.WithField("sheet", sheet).Debug("Skipping summary sheet")
			continue
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, stats, errors.ParseError(errors.CodeInvalidFormat, filePath, 0, "sheet", sheet, err).
				WithContext("sheet", sheet)
		}

		sheetRecords, err := wp.parseSheet(filePath, sheet, rows, stats)
		if err != nil {
			return nil, stats, err
		}
		records = append(records, sheetRecords...)
	}

	wp.logger.WithFields(logger.Fields{
		"file_path":          filePath,
		"sheets_read":        stats.SheetsRead,
		"sheets_skipped":     stats.SheetsSkipped,
		"records_parsed":     stats.RecordsParsed,
		"shifted_rows":       stats.ShiftedRows,
		"invalid_amounts":    stats.InvalidAmounts,
		"invalid_timestamps": stats.InvalidTimestamps,
	}).Info("Workbook parsing completed")

	return records, stats, nil
}

// parseSheet reads one sheet. Row numbers in sources are 1-based sheet rows.
func (wp *WorkbookParser) parseSheet(filePath, sheet string, rows [][]string, stats *ParseStats) ([]models.RawTransaction, error) {
	headerRow := wp.config.SkipRows
	if len(rows) <= headerRow+1 {
		stats.SheetsSkipped++
		wp.logger.WithField("sheet", sheet).Debug("Skipping empty sheet")
		return nil, nil
	}

	parseCtx := NewParseContext(context.Background(), filePath+"!"+sheet)
	parseCtx.SetHeaders(rows[headerRow])

	cols := wp.config.Columns
	if parseCtx.GetColumnIndex(cols.Branch) < 0 {
		return nil, errors.ParseError(errors.CodeMissingColumn, filePath, headerRow+1, cols.Branch, "", nil).
			WithContext("sheet", sheet).
			WithSuggestion("Each data sheet needs the merchant name column in its header row")
	}

	stats.SheetsRead++
	builder := &recordBuilder{
		source:        parseCtx.Source,
		cancelMarkers: wp.config.CancelMarkers,
		stats:         stats,
		log:           wp.logger,
	}

	var records []models.RawTransaction
	for i, row := range rows[headerRow+1:] {
		line := headerRow + i + 2
		stats.TotalLines++
		if isEmptyRecord(row) {
			continue
		}

		if wp.isShifted(parseCtx.Field(row, cols.Branch)) {
			if missing := wp.missingShiftedColumns(parseCtx); len(missing) > 0 {
				return nil, errors.ParseError(errors.CodeMissingColumn, filePath, line, strings.Join(missing, ", "), "", nil).
					WithContext("sheet", sheet).
					WithSuggestion("Rows with a date in the merchant name column need the shifted columns in the header row")
			}
			stats.ShiftedRows++
			sc := wp.config.ShiftedColumns
			records = append(records, builder.build(line,
				parseCtx.Field(row, sc.Customer),
				sheet,
				parseCtx.Field(row, sc.Amount),
				parseCtx.Field(row, sc.Type),
				parseCtx.Field(row, sc.Date),
				parseCtx.Field(row, sc.Time),
				true,
			))
			continue
		}

		records = append(records, builder.build(line,
			parseCtx.Field(row, cols.Customer),
			parseCtx.Field(row, cols.Branch),
			parseCtx.Field(row, cols.Amount),
			parseCtx.Field(row, cols.Type),
			parseCtx.Field(row, cols.Date),
			parseCtx.Field(row, cols.Time),
			true,
		))
	}
	return records, nil
}

func (wp *WorkbookParser) isShifted(branchCell string) bool {
	return wp.shifted != nil && wp.shifted.MatchString(branchCell)
}

func (wp *WorkbookParser) missingShiftedColumns(parseCtx *ParseContext) []string {
	sc := wp.config.ShiftedColumns
	return parseCtx.FindMissing([]string{sc.Customer, sc.Amount, sc.Date, sc.Time, sc.Type})
}
