package reporter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang-branch-analytics/internal/analytics"
	"golang-branch-analytics/pkg/errors"
	"golang-branch-analytics/pkg/logger"
)

// SafeReportGenerator renders into memory before anything reaches the
// destination, so a failed export never leaves a truncated report behind.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator wraps a ReportGenerator built from config
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "report", config, err).
			WithSuggestion("Check the report format, locale and delimiter settings")
	}
	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// Render returns the complete report. A failed JSON or CSV rendering is
// replaced by the plain console table with a note; a failed workbook is an
// export error.
func (srg *SafeReportGenerator) Render(result *analytics.Result) ([]byte, error) {
	if result == nil || result.Table == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "result", nil, nil).
			WithSuggestion("Run the analytics pipeline before generating a report")
	}

	var buf bytes.Buffer
	err := srg.GenerateReport(result, &buf)
	if err == nil {
		return buf.Bytes(), nil
	}
	srg.logger.WithError(err).WithField("format", srg.config.Format).Warn("Report rendering failed")

	if srg.config.Format != FormatJSON && srg.config.Format != FormatCSV {
		return nil, srg.exportError(err)
	}
	return srg.renderConsoleFallback(result, err)
}

func (srg *SafeReportGenerator) renderConsoleFallback(result *analytics.Result, cause error) ([]byte, error) {
	fallback := *srg.config
	fallback.Format = FormatConsole
	fallback.UseColors = false
	generator, err := NewReportGenerator(&fallback)
	if err != nil {
		return nil, srg.exportError(cause)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "NOTE: %s rendering failed, showing the console table instead\n", srg.config.Format)
	fmt.Fprintf(&buf, "Original error: %v\n\n", cause)
	if err := generator.GenerateReport(result, &buf); err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "report_fallback",
			fmt.Errorf("%s rendering failed: %v; console fallback failed: %w", srg.config.Format, cause, err))
	}
	srg.logger.WithField("format", FormatConsole).Info("Report rendered with console fallback")
	return buf.Bytes(), nil
}

// GenerateReportSafely renders the report and writes it to writer in one piece
func (srg *SafeReportGenerator) GenerateReportSafely(result *analytics.Result, writer io.Writer) error {
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("Provide a valid output writer")
	}
	body, err := srg.Render(result)
	if err != nil {
		return err
	}
	if _, err := writer.Write(body); err != nil {
		return srg.exportError(err)
	}
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"bytes":  len(body),
	}).Debug("Report written")
	return nil
}

// WriteReportFile writes the report into dir as branch_metrics_YYYYMMDD.ext
// for date and returns the path. The file is written under a temporary name
// and renamed into place, replacing an earlier export of the same day.
func (srg *SafeReportGenerator) WriteReportFile(result *analytics.Result, dir string, date time.Time) (string, error) {
	body, err := srg.Render(result)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.FileError(errors.CodeDirectoryError, dir, err)
	}

	path := filepath.Join(dir, ExportFilename(srg.config.Format, date))
	tmp, err := os.CreateTemp(dir, ".branch_metrics_*")
	if err != nil {
		return "", errors.FileError(errors.CodeFilePermission, dir, err)
	}
	_, writeErr := tmp.Write(body)
	closeErr := tmp.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr == nil {
		writeErr = os.Chmod(tmp.Name(), 0o644)
	}
	if writeErr == nil {
		writeErr = os.Rename(tmp.Name(), path)
	}
	if writeErr != nil {
		os.Remove(tmp.Name())
		return "", srg.exportError(writeErr)
	}

	srg.logger.WithField("file", path).Info("Report written")
	return path, nil
}

func (srg *SafeReportGenerator) exportError(err error) error {
	if analyticsErr, ok := errors.AsAnalyticsError(err); ok {
		return analyticsErr
	}
	return errors.ExportError(errors.CodeExportFailed, string(srg.config.Format), err)
}
