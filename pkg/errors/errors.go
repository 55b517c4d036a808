// Package errors defines the categorized errors of the analytics service.
// Every error carries a code, a suggestion for the operator and a stack
// captured where it was raised; the category decides the CLI exit code and
// the HTTP status.
package errors

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ErrorCategory groups errors by the stage that raised them
type ErrorCategory string

const (
	CategoryFile          ErrorCategory = "file"
	CategoryParse         ErrorCategory = "parse"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryPipeline      ErrorCategory = "pipeline"
	CategoryExport        ErrorCategory = "export"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode identifies a specific failure within a category
type ErrorCode string

const (
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileCorrupted  ErrorCode = "file_corrupted"
	CodeDirectoryError ErrorCode = "directory_error"
	CodeUnsupported    ErrorCode = "unsupported_file_type"

	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeMissingColumn ErrorCode = "missing_column"
	CodeInvalidData   ErrorCode = "invalid_data"
	CodeEncodingError ErrorCode = "encoding_error"

	CodeMissingField ErrorCode = "missing_field"
	CodeOutOfRange   ErrorCode = "out_of_range"

	CodeInvalidConfig  ErrorCode = "invalid_config"
	CodeConfigConflict ErrorCode = "config_conflict"

	CodeEmptyDataset    ErrorCode = "empty_dataset"
	CodeProcessingError ErrorCode = "processing_error"

	CodeExportFailed ErrorCode = "export_failed"

	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// Context holds details shown to the operator next to the message
type Context map[string]interface{}

// AnalyticsError is the error type raised by every package of the service
type AnalyticsError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

func (e *AnalyticsError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

func (e *AnalyticsError) Unwrap() error {
	return e.Cause
}

var exitCodes = map[ErrorCategory]int{
	CategoryFile:          2,
	CategoryParse:         3,
	CategoryValidation:    3,
	CategoryConfiguration: 4,
	CategoryPipeline:      5,
	CategoryInternal:      5,
	CategoryExport:        6,
}

// GetExitCode returns the process exit code for the error's category, 1
// for an unknown category
func (e *AnalyticsError) GetExitCode() int {
	if code, ok := exitCodes[e.Category]; ok {
		return code
	}
	return 1
}

// HTTPStatus maps the error to a response status. Bad requests are 400, a
// source without usable sales is 404, unreadable sources are 503.
func (e *AnalyticsError) HTTPStatus() int {
	switch {
	case e.Category == CategoryValidation:
		return http.StatusBadRequest
	case e.Code == CodeEmptyDataset:
		return http.StatusNotFound
	case e.Category == CategoryPipeline, e.Category == CategoryFile, e.Category == CategoryParse:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WithContext adds a detail to the error
func (e *AnalyticsError) WithContext(key string, value interface{}) *AnalyticsError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion replaces the suggestion
func (e *AnalyticsError) WithSuggestion(suggestion string) *AnalyticsError {
	e.Suggestion = suggestion
	return e
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// New creates an error without a cause
func New(category ErrorCategory, code ErrorCode, message string) *AnalyticsError {
	return &AnalyticsError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap creates an error caused by err. A nil err yields nil.
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *AnalyticsError {
	if err == nil {
		return nil
	}
	return &AnalyticsError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// template is the message format and suggestion of one code. Formats use
// indexed verbs over the constructor's arguments.
type template struct {
	format     string
	suggestion string
}

func build(category ErrorCategory, code ErrorCode, t template, cause error, args ...interface{}) *AnalyticsError {
	message := fmt.Sprintf(t.format, args...)
	var e *AnalyticsError
	if cause != nil {
		e = Wrap(cause, category, code, message)
	} else {
		e = New(category, code, message)
	}
	return e.WithSuggestion(t.suggestion)
}

func lookup(table map[ErrorCode]template, code ErrorCode, fallback template) template {
	if t, ok := table[code]; ok {
		return t
	}
	return fallback
}

// args: path
var fileTemplates = map[ErrorCode]template{
	CodeFileNotFound:   {"file not found: %[1]s", "check if the file path is correct and the file exists"},
	CodeFilePermission: {"permission denied accessing file: %[1]s", "check file permissions and ensure you have read access"},
	CodeFileCorrupted:  {"file appears to be corrupted: %[1]s", "re-export the sheet from the POS system and try again"},
	CodeDirectoryError: {"directory error: %[1]s", "ensure the directory exists and is accessible"},
	CodeUnsupported:    {"unsupported file type: %[1]s", "provide a .csv or .xlsx export"},
}

// FileError reports a source or output file that cannot be used
func FileError(code ErrorCode, path string, err error) *AnalyticsError {
	t := lookup(fileTemplates, code, template{"file error: %[1]s", "check the file and try again"})
	return build(CategoryFile, code, t, err, path).WithContext("file_path", path)
}

// args: file, line, column, value
var parseTemplates = map[ErrorCode]template{
	CodeInvalidFormat: {"invalid format in %[1]s at line %[2]d, column '%[3]s': '%[4]s'", "check that the export has the expected layout"},
	CodeMissingColumn: {"missing required column '%[3]s' in %[1]s", "verify the header row names the sales columns"},
	CodeInvalidData:   {"invalid data in %[1]s at line %[2]d, column '%[3]s': '%[4]s'", "correct the cell or remove the row"},
	CodeEncodingError: {"cannot decode %[1]s near line %[2]d", "pass --encoding euc-kr for exports saved by older POS software"},
}

// ParseError reports a source whose contents cannot be read
func ParseError(code ErrorCode, file string, line int, column string, value string, err error) *AnalyticsError {
	t := lookup(parseTemplates, code, template{"parse error in %[1]s at line %[2]d", "check the file format and data integrity"})
	return build(CategoryParse, code, t, err, file, line, column, value).
		WithContext("file", file).
		WithContext("line", line).
		WithContext("column", column).
		WithContext("value", value)
}

// args: field, value
var validationTemplates = map[ErrorCode]template{
	CodeMissingField: {"required field '%[1]s' is missing or empty", "provide a value for this required field"},
	CodeOutOfRange:   {"value out of range in field '%[1]s': %[2]v", "ensure the value is within the acceptable range"},
}

// ValidationError reports a value that violates a requirement
func ValidationError(code ErrorCode, field string, value interface{}, err error) *AnalyticsError {
	t := lookup(validationTemplates, code, template{"validation error in field '%[1]s': %[2]v", "check the field value and format"})
	return build(CategoryValidation, code, t, err, field, value).
		WithContext("field", field).
		WithContext("value", value)
}

// args: setting, value
var configurationTemplates = map[ErrorCode]template{
	CodeInvalidConfig:  {"invalid configuration for '%[1]s': %[2]v", "run 'analytics config show' to inspect the effective settings"},
	CodeConfigConflict: {"configuration conflict with setting '%[1]s': %[2]v", "set only one of the conflicting options"},
}

// ConfigurationError reports an invalid flag, environment variable or config file entry
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *AnalyticsError {
	t := lookup(configurationTemplates, code, template{"configuration error: %[1]s", "check your configuration and try again"})
	return build(CategoryConfiguration, code, t, err, setting, value).
		WithContext("setting", setting).
		WithContext("value", value)
}

// args: stage
var pipelineTemplates = map[ErrorCode]template{
	CodeEmptyDataset:    {"no usable transactions left after %[1]s", "check that the source contains card numbers and parseable dates"},
	CodeProcessingError: {"processing error during %[1]s", "check the sources and try again"},
}

// PipelineError reports a failed analytics stage
func PipelineError(code ErrorCode, stage string, err error) *AnalyticsError {
	t := lookup(pipelineTemplates, code, template{"pipeline error during %[1]s", "review the data and configuration"})
	return build(CategoryPipeline, code, t, err, stage).WithContext("stage", stage)
}

// ExportError reports a report that could not be written
func ExportError(code ErrorCode, format string, err error) *AnalyticsError {
	t := template{"failed to export report as %[1]s", "check the output destination and report format settings"}
	return build(CategoryExport, code, t, err, format).WithContext("format", format)
}

// InternalError reports a bug
func InternalError(code ErrorCode, operation string, err error) *AnalyticsError {
	t := template{"unexpected error during %[1]s", "this is likely a bug, please report it with the error details"}
	return build(CategoryInternal, code, t, err, operation).WithContext("operation", operation)
}

// IsAnalyticsError reports whether err itself is an AnalyticsError
func IsAnalyticsError(err error) bool {
	_, ok := err.(*AnalyticsError)
	return ok
}

// AsAnalyticsError finds the first AnalyticsError in err's chain
func AsAnalyticsError(err error) (*AnalyticsError, bool) {
	var analyticsErr *AnalyticsError
	if errors.As(err, &analyticsErr) {
		return analyticsErr, true
	}
	return nil, false
}

// HasCode reports whether err's chain holds an AnalyticsError with code
func HasCode(err error, code ErrorCode) bool {
	e, ok := AsAnalyticsError(err)
	return ok && e.Code == code
}

// WrapIfNeeded returns the AnalyticsError already in err's chain, or wraps err
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *AnalyticsError {
	if err == nil {
		return nil
	}
	if analyticsErr, ok := AsAnalyticsError(err); ok {
		return analyticsErr
	}
	return Wrap(err, category, code, message)
}
