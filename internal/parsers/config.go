package parsers

import (
	"fmt"
	"regexp"
	"strings"
)

// TransactionParserConfig describes the column layout of a CSV export
type TransactionParserConfig struct {
	Name           string            `json:"name" mapstructure:"name"`
	CustomerColumn string            `json:"customer_column" mapstructure:"customer_column"`
	BranchColumn   string            `json:"branch_column" mapstructure:"branch_column"`
	AmountColumn   string            `json:"amount_column" mapstructure:"amount_column"`
	TypeColumn     string            `json:"type_column" mapstructure:"type_column"`
	DateColumn     string            `json:"date_column" mapstructure:"date_column"`
	TimeColumn     string            `json:"time_column" mapstructure:"time_column"`
	HasHeader      bool              `json:"has_header" mapstructure:"has_header"`
	Delimiter      rune              `json:"delimiter" mapstructure:"delimiter"`
	Encoding       string            `json:"encoding" mapstructure:"encoding"`
	CancelMarkers  []string          `json:"cancel_markers" mapstructure:"cancel_markers"`
	ColumnAliases  map[string]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`
	AutoDetect     bool              `json:"auto_detect" mapstructure:"auto_detect"`
}

// Validate checks if the transaction parser configuration is valid
func (tpc *TransactionParserConfig) Validate() error {
	if strings.TrimSpace(tpc.CustomerColumn) == "" {
		return fmt.Errorf("customer column cannot be empty")
	}
	if strings.TrimSpace(tpc.BranchColumn) == "" {
		return fmt.Errorf("branch column cannot be empty")
	}
	if strings.TrimSpace(tpc.AmountColumn) == "" {
		return fmt.Errorf("amount column cannot be empty")
	}
	if strings.TrimSpace(tpc.DateColumn) == "" {
		return fmt.Errorf("date column cannot be empty")
	}
	if tpc.Delimiter == 0 || tpc.Delimiter == '\n' || tpc.Delimiter == '"' {
		return fmt.Errorf("invalid delimiter %q", tpc.Delimiter)
	}
	if _, err := (&ParseConfig{Encoding: tpc.Encoding}).decoder(); err != nil {
		return err
	}
	return nil
}

// GetColumnName returns the actual column name, checking aliases first
func (tpc *TransactionParserConfig) GetColumnName(standardName string) string {
	if alias, exists := tpc.ColumnAliases[standardName]; exists {
		return alias
	}

	switch standardName {
	case "customer":
		return tpc.CustomerColumn
	case "branch":
		return tpc.BranchColumn
	case "amount":
		return tpc.AmountColumn
	case "type":
		return tpc.TypeColumn
	case "date":
		return tpc.DateColumn
	case "time":
		return tpc.TimeColumn
	default:
		return standardName
	}
}

// RequiredColumns returns the columns a file must carry. Type and time are optional.
func (tpc *TransactionParserConfig) RequiredColumns() []string {
	return []string{
		tpc.GetColumnName("customer"),
		tpc.GetColumnName("branch"),
		tpc.GetColumnName("amount"),
		tpc.GetColumnName("date"),
	}
}

// DefaultHeaders returns the column order assumed for files without a header row
func (tpc *TransactionParserConfig) DefaultHeaders() []string {
	return []string{
		tpc.GetColumnName("customer"),
		tpc.GetColumnName("branch"),
		tpc.GetColumnName("amount"),
		tpc.GetColumnName("type"),
		tpc.GetColumnName("date"),
		tpc.GetColumnName("time"),
	}
}

// DefaultTransactionParserConfig returns the English column layout
func DefaultTransactionParserConfig() *TransactionParserConfig {
	return &TransactionParserConfig{
		Name:           "standard",
		CustomerColumn: "customer_id",
		BranchColumn:   "branch",
		AmountColumn:   "amount",
		TypeColumn:     "transaction_type",
		DateColumn:     "date",
		TimeColumn:     "time",
		HasHeader:      true,
		Delimiter:      ',',
		Encoding:       EncodingUTF8,
		ColumnAliases:  make(map[string]string),
		AutoDetect:     true,
	}
}

// Predefined CSV layouts
var (
	// StandardCSVConfig uses English headers
	StandardCSVConfig = DefaultTransactionParserConfig()

	// POSExportCSVConfig matches the card terminal export headers
	POSExportCSVConfig = &TransactionParserConfig{
		Name:           "pos_export",
		CustomerColumn: "카드번호",
		BranchColumn:   "가맹점명",
		AmountColumn:   "거래금액",
		TypeColumn:     "거래유형",
		DateColumn:     "거래일자",
		TimeColumn:     "거래시간",
		HasHeader:      true,
		Delimiter:      ',',
		Encoding:       EncodingUTF8,
		ColumnAliases:  make(map[string]string),
	}
)

// ListAvailableCSVConfigs returns all predefined CSV layouts
func ListAvailableCSVConfigs() []*TransactionParserConfig {
	return []*TransactionParserConfig{StandardCSVConfig, POSExportCSVConfig}
}

// AutoDetectCSVConfig picks the predefined layout whose required columns
// are all present, keeping the dialect settings of base
func AutoDetectCSVConfig(headers []string, base *TransactionParserConfig) *TransactionParserConfig {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[strings.ToLower(strings.TrimSpace(h))] = true
	}

	for _, candidate := range ListAvailableCSVConfigs() {
		matched := true
		for _, col := range candidate.RequiredColumns() {
			if !present[strings.ToLower(col)] {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		detected := *candidate
		detected.Delimiter = base.Delimiter
		detected.Encoding = base.Encoding
		detected.HasHeader = base.HasHeader
		if base.CancelMarkers != nil {
			detected.CancelMarkers = base.CancelMarkers
		}
		return &detected
	}
	return base
}

// WorkbookParserConfig describes the branch workbook layout
type WorkbookParserConfig struct {
	SkipRows           int      `json:"skip_rows" mapstructure:"skip_rows"`
	ExcludeSheets      []string `json:"exclude_sheets" mapstructure:"exclude_sheets"`
	CancelMarkers      []string `json:"cancel_markers" mapstructure:"cancel_markers"`
	ShiftedDatePattern string   `json:"shifted_date_pattern" mapstructure:"shifted_date_pattern"`

	Columns        WorkbookColumns `json:"columns" mapstructure:"columns"`
	ShiftedColumns WorkbookColumns `json:"shifted_columns" mapstructure:"shifted_columns"`
}

// WorkbookColumns names the header cells that hold each field
type WorkbookColumns struct {
	Customer string `json:"customer" mapstructure:"customer"`
	Amount   string `json:"amount" mapstructure:"amount"`
	Date     string `json:"date" mapstructure:"date"`
	Time     string `json:"time" mapstructure:"time"`
	Branch   string `json:"branch" mapstructure:"branch"`
	Type     string `json:"type" mapstructure:"type"`
}

// DefaultWorkbookParserConfig returns the layout of the branch sales workbook.
// Some sheets carry rows whose cells are shifted: the merchant name column
// holds the date, and the branch comes from the sheet name.
func DefaultWorkbookParserConfig() *WorkbookParserConfig {
	return &WorkbookParserConfig{
		SkipRows:           3,
		ExcludeSheets:      []string{"요약", "공식"},
		ShiftedDatePattern: `^\d{4}[-./]\d{2}[-./]\d{2}`,
		Columns: WorkbookColumns{
			Customer: "카드번호",
			Amount:   "거래금액",
			Date:     "거래일자",
			Time:     "거래시간",
			Branch:   "가맹점명",
			Type:     "거래유형",
		},
		ShiftedColumns: WorkbookColumns{
			Customer: "체크",
			Amount:   "봉사료",
			Date:     "가맹점명",
			Time:     "발급사",
			Type:     "카드번호",
		},
	}
}

// Validate checks if the workbook configuration is valid
func (wc *WorkbookParserConfig) Validate() error {
	if wc.SkipRows < 0 {
		return fmt.Errorf("skip rows cannot be negative, got %d", wc.SkipRows)
	}
	if strings.TrimSpace(wc.Columns.Branch) == "" {
		return fmt.Errorf("branch column cannot be empty")
	}
	if strings.TrimSpace(wc.Columns.Customer) == "" || strings.TrimSpace(wc.Columns.Date) == "" {
		return fmt.Errorf("customer and date columns are required")
	}
	if wc.ShiftedDatePattern != "" {
		if _, err := regexp.Compile(wc.ShiftedDatePattern); err != nil {
			return fmt.Errorf("invalid shifted date pattern: %w", err)
		}
	}
	return nil
}

// IsExcluded reports whether a sheet is a summary or formula sheet
func (wc *WorkbookParserConfig) IsExcluded(sheet string) bool {
	for _, keyword := range wc.ExcludeSheets {
		if keyword != "" && strings.Contains(sheet, keyword) {
			return true
		}
	}
	return false
}

// MultiFileConfig holds configuration for parsing several sources at once
type MultiFileConfig struct {
	MaxConcurrency int                      `json:"max_concurrency" mapstructure:"max_concurrency"`
	CSV            *TransactionParserConfig `json:"csv" mapstructure:"csv"`
	Workbook       *WorkbookParserConfig    `json:"workbook" mapstructure:"workbook"`
}

// DefaultMultiFileConfig returns a configuration with sensible defaults
func DefaultMultiFileConfig() *MultiFileConfig {
	return &MultiFileConfig{
		MaxConcurrency: 4,
		CSV:            DefaultTransactionParserConfig(),
		Workbook:       DefaultWorkbookParserConfig(),
	}
}

// Validate checks if the multi-file configuration is valid
func (mc *MultiFileConfig) Validate() error {
	if mc.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive, got %d", mc.MaxConcurrency)
	}
	if mc.CSV != nil {
		if err := mc.CSV.Validate(); err != nil {
			return fmt.Errorf("csv: %w", err)
		}
	}
	if mc.Workbook != nil {
		if err := mc.Workbook.Validate(); err != nil {
			return fmt.Errorf("workbook: %w", err)
		}
	}
	return nil
}
