// Package parsers is the ingestion adapter of the analytics pipeline.
//
// It turns point-of-sale exports into raw transaction records. Two source
// layouts are understood:
//   - CSV exports with configurable column names, where the date and the
//     time of day may live in separate columns
//   - XLSX workbooks in the branch export layout, one sheet per branch or
//     period, with three banner rows above the header
//
// Parsers never drop records. A value that cannot be read (an amount or a
// timestamp) is left at its zero value and counted in ParseStats so the
// normalizer can filter it. Structural problems such as a missing file or
// a missing required column abort the parse with an *errors.AnalyticsError.
//
// Example usage:
//
//	parser := NewMultiFileParser(DefaultMultiFileConfig())
//	records, stats, err := parser.Parse(ctx, []string{"2025.xlsx", "extra.csv"})
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"golang-branch-analytics/internal/models"
	"golang-branch-analytics/pkg/errors"
	"golang-branch-analytics/pkg/logger"
)

// RecordParser reads one source file into raw transactions
type RecordParser interface {
	Parse(ctx context.Context, filePath string) ([]models.RawTransaction, *ParseStats, error)
}

// ParseError represents a non-fatal problem with a single row
type ParseError struct {
	Source  string
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s line %d (%s='%s'): %s: %v", e.Source, e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("%s line %d (%s='%s'): %s", e.Source, e.Line, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Supported CSV encodings
const (
	EncodingUTF8  = "utf-8"
	EncodingEUCKR = "euc-kr"
)

// ParseConfig holds configuration for CSV reading
type ParseConfig struct {
	HasHeader        bool
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
	Encoding         string
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     64 * 1024,
		Encoding:         EncodingUTF8,
	}
}

// decoder returns the text decoder for the configured encoding
func (pc *ParseConfig) decoder() (*encoding.Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(pc.Encoding)) {
	case "", EncodingUTF8, "utf8":
		return unicode.UTF8BOM.NewDecoder(), nil
	case EncodingEUCKR, "cp949", "euckr":
		return korean.EUCKR.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", pc.Encoding)
	}
}

// BaseParser provides common CSV reading functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.GetGlobalLogger().WithComponent("base_parser")
	log.WithFields(logger.Fields{
		"has_header": config.HasHeader,
		"delimiter":  string(config.Delimiter),
		"encoding":   config.Encoding,
	}).Debug("Created base parser")

	return &BaseParser{
		config: config,
		logger: log,
	}
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	Source     string
	LineNumber int
	Headers    []string
	HeaderMap  map[string]int
	ctx        context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context, source string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		Source:    source,
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

// Err returns the context error once parsing has been cancelled
func (pc *ParseContext) Err() error {
	return pc.ctx.Err()
}

// SetHeaders replaces the header row and rebuilds the lookup map
func (pc *ParseContext) SetHeaders(headers []string) {
	pc.Headers = make([]string, len(headers))
	pc.HeaderMap = make(map[string]int, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		pc.Headers[i] = h
		if _, dup := pc.HeaderMap[h]; !dup {
			pc.HeaderMap[h] = i
		}
	}
}

// GetColumnIndex returns the index of a column by name, or -1 if not found
func (pc *ParseContext) GetColumnIndex(name string) int {
	if name == "" {
		return -1
	}
	if index, exists := pc.HeaderMap[name]; exists {
		return index
	}
	for header, index := range pc.HeaderMap {
		if strings.EqualFold(header, name) {
			return index
		}
	}
	return -1
}

// FindMissing returns the required headers that are not present
func (pc *ParseContext) FindMissing(required []string) []string {
	var missing []string
	for _, header := range required {
		if pc.GetColumnIndex(header) == -1 {
			missing = append(missing, header)
		}
	}
	return missing
}

// Field returns the trimmed value of the named column, or "" when the
// column or the cell is absent
func (pc *ParseContext) Field(record []string, name string) string {
	index := pc.GetColumnIndex(name)
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// OpenFile opens a CSV file and returns a csv.Reader over its decoded text
func (bp *BaseParser) OpenFile(filePath string) (io.Closer, *csv.Reader, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening CSV file")

	file, err := openSource(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")
		return nil, nil, err
	}

	dec, err := bp.config.decoder()
	if err != nil {
		file.Close()
		return nil, nil, errors.ConfigurationError(errors.CodeInvalidConfig, "csv.encoding", bp.config.Encoding, err).
			WithSuggestion("Use utf-8 or euc-kr")
	}

	if isUTF8(bp.config.Encoding) {
		if err := bp.validateEncoding(file, filePath); err != nil {
			file.Close()
			return nil, nil, err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
		}
	}

	reader := csv.NewReader(transform.NewReader(file, dec))
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	return file, reader, nil
}

func isUTF8(enc string) bool {
	switch strings.ToLower(strings.TrimSpace(enc)) {
	case "", EncodingUTF8, "utf8":
		return true
	}
	return false
}

// openSource opens a file and classifies the failure
func openSource(filePath string) (*os.File, error) {
	file, err := os.Open(filePath)
	if err == nil {
		return file, nil
	}
	switch {
	case os.IsNotExist(err):
		return nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
	case os.IsPermission(err):
		return nil, errors.FileError(errors.CodeFilePermission, filePath, err)
	default:
		return nil, errors.FileError(errors.CodeDirectoryError, filePath, err)
	}
}

// validateEncoding checks the first lines for valid UTF-8 so that a legacy
// export fails with a hint instead of producing garbled customer ids
func (bp *BaseParser) validateEncoding(file *os.File, filePath string) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), bp.config.MaxFieldSize*4+64*1024)
	lineNum := 0

	for scanner.Scan() && lineNum < 100 {
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(
				errors.CodeEncodingError,
				filePath,
				lineNum,
				"encoding",
				"",
				fmt.Errorf("invalid UTF-8 encoding detected"),
			).WithSuggestion("Set csv.encoding to euc-kr for legacy POS exports, or save the file as UTF-8")
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}
	return nil
}

// ReadHeaders reads the header row into the parse context
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, defaults []string) error {
	if !bp.config.HasHeader {
		parseCtx.SetHeaders(defaults)
		bp.logger.WithField("default_headers", parseCtx.Headers).Debug("Using default headers")
		return nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ValidationError(
				errors.CodeMissingField,
				"file_content",
				"empty",
				nil,
			).WithContext("file_path", parseCtx.Source).
				WithSuggestion("Ensure the file contains a header row and data rows")
		}
		return errors.ParseError(errors.CodeInvalidFormat, parseCtx.Source, 1, "headers", "", err).
			WithSuggestion("Check the file format and ensure it's a valid CSV")
	}

	parseCtx.LineNumber++
	parseCtx.SetHeaders(headers)
	bp.logger.WithField("headers", parseCtx.Headers).Debug("Read headers")
	return nil
}

// ReadRecord reads the next non-empty record
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		if err := parseCtx.Err(); err != nil {
			return nil, errors.InternalError(errors.CodeUnexpectedError, "csv_parsing", err)
		}

		record, err := reader.Read()
		if err != nil {
			return nil, err
		}
		parseCtx.LineNumber++

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		if bp.config.MaxFieldSize > 0 {
			for i, field := range record {
				if len(field) > bp.config.MaxFieldSize {
					return nil, errors.ParseError(
						errors.CodeInvalidData,
						parseCtx.Source,
						parseCtx.LineNumber,
						fmt.Sprintf("field_%d", i),
						field[:32]+"...",
						fmt.Errorf("field size limit exceeded"),
					).WithSuggestion(fmt.Sprintf("Reduce field size to under %d bytes", bp.config.MaxFieldSize))
				}
			}
		}

		return record, nil
	}
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	Files             int
	SheetsRead        int
	SheetsSkipped     int
	TotalLines        int
	RecordsParsed     int
	ShiftedRows       int
	InvalidAmounts    int
	InvalidTimestamps int
	Errors            []*ParseError
}

// NewParseStats creates a new ParseStats instance
func NewParseStats() *ParseStats {
	return &ParseStats{}
}

// AddError records a row-level problem
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
}

// HasErrors returns true if there were any row-level problems
func (ps *ParseStats) HasErrors() bool {
	return len(ps.Errors) > 0
}

// Merge adds the counters of other into ps
func (ps *ParseStats) Merge(other *ParseStats) {
	if other == nil {
		return
	}
	ps.Files += other.Files
	ps.SheetsRead += other.SheetsRead
	ps.SheetsSkipped += other.SheetsSkipped
	ps.TotalLines += other.TotalLines
	ps.RecordsParsed += other.RecordsParsed
	ps.ShiftedRows += other.ShiftedRows
	ps.InvalidAmounts += other.InvalidAmounts
	ps.InvalidTimestamps += other.InvalidTimestamps
	ps.Errors = append(ps.Errors, other.Errors...)
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d files, %d lines, %d records (%d invalid amounts, %d invalid timestamps)",
		ps.Files, ps.TotalLines, ps.RecordsParsed, ps.InvalidAmounts, ps.InvalidTimestamps)
}

// GetSampleErrors returns a sample of the row-level problems for logging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}
	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}

// recordBuilder fills one RawTransaction from string cells, counting
// unreadable values instead of failing
type recordBuilder struct {
	source        string
	cancelMarkers []string
	stats         *ParseStats
	log           logger.Logger
}

func (rb *recordBuilder) build(line int, customer, branch, amount, txType, date, clock string, clockKnown bool) models.RawTransaction {
	tx := models.RawTransaction{
		CustomerID: models.NormalizeIdentifier(customer),
		Branch:     strings.TrimSpace(branch),
		Type:       models.ParseTransactionType(txType, rb.cancelMarkers),
		Source:     fmt.Sprintf("%s:%d", rb.source, line),
	}

	amt, err := parseAmountCell(amount)
	if err != nil {
		rb.stats.InvalidAmounts++
		rb.stats.AddError(&ParseError{Source: rb.source, Line: line, Field: "amount", Value: amount, Message: "amount treated as 0", Err: err})
	}
	tx.Amount = amt

	var ts time.Time
	if clockKnown {
		ts, err = parseDateTimeCells(date, clock)
	} else {
		ts, err = parseTimestampCell(date)
	}
	if err != nil {
		rb.stats.InvalidTimestamps++
		rb.stats.AddError(&ParseError{Source: rb.source, Line: line, Field: "timestamp", Value: date + " " + clock, Message: "unparsable timestamp", Err: err})
		rb.log.WithFields(logger.Fields{"source": tx.Source, "date": date, "time": clock}).Debug("Unparsable timestamp")
	} else {
		tx.Timestamp = ts
	}

	rb.stats.RecordsParsed++
	return tx
}
