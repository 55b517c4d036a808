package parsers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/korean"

	"golang-branch-analytics/internal/models"
	"golang-branch-analytics/pkg/errors"
)

// writeTempFile creates a file under the test's temp dir
func writeTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

// sheetSpec describes one worksheet of a generated workbook
type sheetSpec struct {
	name string
	rows [][]interface{}
}

// writeWorkbook builds an .xlsx file with three banner rows before each header
func writeWorkbook(t *testing.T, sheets []sheetSpec) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, spec := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", spec.name); err != nil {
				t.Fatalf("SetSheetName failed: %v", err)
			}
		} else if _, err := f.NewSheet(spec.name); err != nil {
			t.Fatalf("NewSheet failed: %v", err)
		}
		for r, row := range spec.rows {
			cell, _ := excelize.CoordinatesToCellName(1, r+1)
			values := row
			if err := f.SetSheetRow(spec.name, cell, &values); err != nil {
				t.Fatalf("SetSheetRow failed: %v", err)
			}
		}
	}

	path := filepath.Join(t.TempDir(), "sales.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs failed: %v", err)
	}
	return path
}

func banner() [][]interface{} {
	return [][]interface{}{
		{"지점별 카드 매출"},
		{"조회기간", "2025-01-01 ~ 2025-03-31"},
		{"(단위: 원)"},
	}
}

func TestDefaultParseConfig(t *testing.T) {
	config := DefaultParseConfig()

	if !config.HasHeader {
		t.Error("Expected HasHeader to be true")
	}
	if config.Delimiter != ',' {
		t.Errorf("Expected delimiter to be ',', got %q", config.Delimiter)
	}
	if config.Encoding != EncodingUTF8 {
		t.Errorf("Expected utf-8 encoding, got %s", config.Encoding)
	}
}

func TestTransactionParserConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TransactionParserConfig)
		wantErr bool
	}{
		{"default", func(*TransactionParserConfig) {}, false},
		{"missing customer column", func(c *TransactionParserConfig) { c.CustomerColumn = "" }, true},
		{"missing date column", func(c *TransactionParserConfig) { c.DateColumn = " " }, true},
		{"quote delimiter", func(c *TransactionParserConfig) { c.Delimiter = '"' }, true},
		{"unknown encoding", func(c *TransactionParserConfig) { c.Encoding = "latin-9" }, true},
		{"euc-kr encoding", func(c *TransactionParserConfig) { c.Encoding = EncodingEUCKR }, false},
		{"time column optional", func(c *TransactionParserConfig) { c.TimeColumn = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultTransactionParserConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransactionParser_ParseStandardLayout(t *testing.T) {
	content := strings.Join([]string{
		"customer_id,branch,amount,transaction_type,date,time",
		"c1,모모유부 강남점,\"12,500\",승인,2025-01-05,10:15:00",
		"c1,모모유부 강남점,12500,취소,2025-01-05,10:20:00",
		"c2,여의도점,abc,승인,2025-01-06,",
		"c3,목동점,3000,승인,not-a-date,11:00:00",
		",,,,,",
		"c4,원주점,4000,cancel,2025-02-01 00:00:00,09:00:00",
	}, "\n")
	path := writeTempFile(t, "sales.csv", []byte(content))

	parser, err := NewTransactionParser(nil)
	if err != nil {
		t.Fatalf("NewTransactionParser failed: %v", err)
	}

	records, stats, err := parser.Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}
	if stats.RecordsParsed != 5 {
		t.Errorf("expected 5 parsed records, got %d", stats.RecordsParsed)
	}
	if stats.InvalidAmounts != 1 {
		t.Errorf("expected 1 invalid amount, got %d", stats.InvalidAmounts)
	}
	if stats.InvalidTimestamps != 1 {
		t.Errorf("expected 1 invalid timestamp, got %d", stats.InvalidTimestamps)
	}

	first := records[0]
	if first.CustomerID != "c1" || first.Branch != "모모유부 강남점" {
		t.Errorf("unexpected first record %s", first.String())
	}
	if first.Amount.String() != "12500" {
		t.Errorf("expected amount 12500, got %s", first.Amount)
	}
	if !first.Timestamp.Equal(time.Date(2025, 1, 5, 10, 15, 0, 0, time.UTC)) {
		t.Errorf("unexpected timestamp %v", first.Timestamp)
	}
	if records[1].Type != models.TransactionTypeCancel {
		t.Errorf("expected cancel type, got %s", records[1].Type)
	}
	if !records[2].Amount.IsZero() {
		t.Errorf("expected unreadable amount to be zero, got %s", records[2].Amount)
	}
	if !records[2].Timestamp.Equal(time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected missing time to default to midnight, got %v", records[2].Timestamp)
	}
	if !records[3].Timestamp.IsZero() {
		t.Errorf("expected zero timestamp for unparsable date, got %v", records[3].Timestamp)
	}
	if records[4].Type != models.TransactionTypeCancel {
		t.Errorf("expected english cancel marker to be recognised")
	}
	if !strings.HasSuffix(records[4].Source, ":7") {
		t.Errorf("expected source to carry line 7, got %s", records[4].Source)
	}
}

func TestTransactionParser_AutoDetectPOSLayout(t *testing.T) {
	content := "카드번호,가맹점명,거래금액,거래유형,거래일자,거래시간\n" +
		"5310-****-1111,강남구청역점,\"8,000\",승인,2025.03.02,12:01:00\n"
	path := writeTempFile(t, "pos.csv", []byte(content))

	parser, err := NewTransactionParser(DefaultTransactionParserConfig())
	if err != nil {
		t.Fatalf("NewTransactionParser failed: %v", err)
	}
	records, _, err := parser.Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].CustomerID != "5310-****-1111" || records[0].Branch != "강남구청역점" {
		t.Errorf("unexpected record %s", records[0].String())
	}
	if !records[0].Timestamp.Equal(time.Date(2025, 3, 2, 12, 1, 0, 0, time.UTC)) {
		t.Errorf("unexpected timestamp %v", records[0].Timestamp)
	}
}

func TestTransactionParser_EUCKR(t *testing.T) {
	content := "customer_id,branch,amount,transaction_type,date,time\nc1,기흥점,1000,취소,2025-01-05,10:00:00\n"
	encoded, err := korean.EUCKR.NewEncoder().String(content)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	path := writeTempFile(t, "legacy.csv", []byte(encoded))

	t.Run("utf-8 rejects legacy bytes", func(t *testing.T) {
		parser, _ := NewTransactionParser(nil)
		_, _, err := parser.Parse(context.Background(), path)
		analyticsErr, ok := errors.AsAnalyticsError(err)
		if !ok || analyticsErr.Code != errors.CodeEncodingError {
			t.Fatalf("expected encoding error, got %v", err)
		}
	})

	t.Run("euc-kr decodes", func(t *testing.T) {
		cfg := DefaultTransactionParserConfig()
		cfg.Encoding = EncodingEUCKR
		parser, err := NewTransactionParser(cfg)
		if err != nil {
			t.Fatalf("NewTransactionParser failed: %v", err)
		}
		records, _, err := parser.Parse(context.Background(), path)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if len(records) != 1 || records[0].Branch != "기흥점" {
			t.Fatalf("unexpected records %+v", records)
		}
		if records[0].Type != models.TransactionTypeCancel {
			t.Errorf("expected cancel type after decoding, got %s", records[0].Type)
		}
	})
}

func TestTransactionParser_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     func(t *testing.T) string
		wantCode errors.ErrorCode
	}{
		{
			name:     "missing file",
			path:     func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.csv") },
			wantCode: errors.CodeFileNotFound,
		},
		{
			name: "missing required column",
			path: func(t *testing.T) string {
				return writeTempFile(t, "bad.csv", []byte("customer_id,amount,date\nc1,100,2025-01-01\n"))
			},
			wantCode: errors.CodeMissingColumn,
		},
		{
			name:     "empty file",
			path:     func(t *testing.T) string { return writeTempFile(t, "empty.csv", nil) },
			wantCode: errors.CodeMissingField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser, _ := NewTransactionParser(nil)
			_, _, err := parser.Parse(context.Background(), tt.path(t))
			analyticsErr, ok := errors.AsAnalyticsError(err)
			if !ok {
				t.Fatalf("expected AnalyticsError, got %v", err)
			}
			if analyticsErr.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, analyticsErr.Code)
			}
		})
	}
}

func TestWorkbookParser_Parse(t *testing.T) {
	header := []interface{}{"카드번호", "거래금액", "거래일자", "거래시간", "가맹점명", "거래유형", "체크", "봉사료", "발급사"}

	gangnam := append(banner(), header,
		[]interface{}{"1111", "12,000", "2025-01-05", "10:00:00", "모모유부 강남점", "승인"},
		[]interface{}{"1111", "12,000", "2025-01-05 00:00:00", "10:05:00", "모모유부 강남점", "취소"},
		[]interface{}{},
		[]interface{}{"취소", "", "", "", "2025-01-07", "", "2222", "5,000", "13:30:00"},
	)
	serials := append(banner(), header,
		[]interface{}{"3333", 7000, 45662, 0.4375, "목동점", "승인"},
	)
	summary := append(banner(), []interface{}{"합계"}, []interface{}{"1000000"})

	path := writeWorkbook(t, []sheetSpec{
		{name: "강남", rows: gangnam},
		{name: "요약", rows: summary},
		{name: "목동", rows: serials},
		{name: "빈시트", rows: banner()},
	})

	parser, err := NewWorkbookParser(nil)
	if err != nil {
		t.Fatalf("NewWorkbookParser failed: %v", err)
	}
	records, stats, err := parser.Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	if stats.SheetsRead != 2 {
		t.Errorf("expected 2 sheets read, got %d", stats.SheetsRead)
	}
	if stats.SheetsSkipped != 2 {
		t.Errorf("expected summary and empty sheet skipped, got %d", stats.SheetsSkipped)
	}
	if stats.ShiftedRows != 1 {
		t.Errorf("expected 1 shifted row, got %d", stats.ShiftedRows)
	}

	if records[1].Type != models.TransactionTypeCancel {
		t.Errorf("expected second row to be a cancellation")
	}
	if !records[1].Timestamp.Equal(time.Date(2025, 1, 5, 10, 5, 0, 0, time.UTC)) {
		t.Errorf("expected date suffix to be dropped, got %v", records[1].Timestamp)
	}

	shifted := records[2]
	if shifted.CustomerID != "2222" {
		t.Errorf("expected shifted customer 2222, got %s", shifted.CustomerID)
	}
	if shifted.Branch != "강남" {
		t.Errorf("expected shifted branch to come from the sheet name, got %s", shifted.Branch)
	}
	if shifted.Amount.String() != "5000" {
		t.Errorf("expected shifted amount 5000, got %s", shifted.Amount)
	}
	if shifted.Type != models.TransactionTypeCancel {
		t.Errorf("expected shifted type from the card number column")
	}
	if !shifted.Timestamp.Equal(time.Date(2025, 1, 7, 13, 30, 0, 0, time.UTC)) {
		t.Errorf("unexpected shifted timestamp %v", shifted.Timestamp)
	}

	serial := records[3]
	if !serial.Timestamp.Equal(time.Date(2025, 1, 5, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("expected serial date to convert, got %v", serial.Timestamp)
	}
	if serial.Amount.String() != "7000" {
		t.Errorf("expected numeric amount 7000, got %s", serial.Amount)
	}
}

func TestWorkbookParser_MissingBranchColumn(t *testing.T) {
	rows := append(banner(), []interface{}{"카드번호", "거래금액"}, []interface{}{"1", "2"})
	path := writeWorkbook(t, []sheetSpec{{name: "강남", rows: rows}})

	parser, _ := NewWorkbookParser(nil)
	_, _, err := parser.Parse(context.Background(), path)
	analyticsErr, ok := errors.AsAnalyticsError(err)
	if !ok || analyticsErr.Code != errors.CodeMissingColumn {
		t.Fatalf("expected missing column error, got %v", err)
	}
	if analyticsErr.Context["sheet"] != "강남" {
		t.Errorf("expected sheet context, got %v", analyticsErr.Context["sheet"])
	}
}

func TestWorkbookParser_CorruptFile(t *testing.T) {
	path := writeTempFile(t, "broken.xlsx", []byte("not a zip"))

	parser, _ := NewWorkbookParser(nil)
	_, _, err := parser.Parse(context.Background(), path)
	analyticsErr, ok := errors.AsAnalyticsError(err)
	if !ok || analyticsErr.Code != errors.CodeFileCorrupted {
		t.Fatalf("expected corrupted file error, got %v", err)
	}
}

func TestMultiFileParser_Parse(t *testing.T) {
	csvA := writeTempFile(t, "a.csv", []byte("customer_id,branch,amount,date,time\n"+
		"a1,강남점,100,2025-01-01,09:00:00\n"+
		"a2,강남점,200,2025-01-01,10:00:00\n"))
	csvB := writeTempFile(t, "b.csv", []byte("customer_id,branch,amount,date,time\n"+
		"b1,원주점,300,2025-01-02,09:00:00\n"))
	xlsx := writeWorkbook(t, []sheetSpec{{name: "목동", rows: append(banner(),
		[]interface{}{"카드번호", "거래금액", "거래일자", "거래시간", "가맹점명", "거래유형"},
		[]interface{}{"x1", "400", "2025-01-03", "09:00:00", "목동점", "승인"},
	)}})

	parser, err := NewMultiFileParser(nil)
	if err != nil {
		t.Fatalf("NewMultiFileParser failed: %v", err)
	}

	records, stats, err := parser.Parse(context.Background(), []string{csvB, xlsx, csvA})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	wantOrder := []string{"b1", "x1", "a1", "a2"}
	if len(records) != len(wantOrder) {
		t.Fatalf("expected %d records, got %d", len(wantOrder), len(records))
	}
	for i, want := range wantOrder {
		if records[i].CustomerID != want {
			t.Errorf("record %d: expected %s, got %s", i, want, records[i].CustomerID)
		}
		if records[i].Sequence != int64(i) {
			t.Errorf("record %d: expected sequence %d, got %d", i, i, records[i].Sequence)
		}
	}
	if stats.Files != 3 {
		t.Errorf("expected 3 files in stats, got %d", stats.Files)
	}
}

func TestMultiFileParser_Errors(t *testing.T) {
	good := writeTempFile(t, "a.csv", []byte("customer_id,branch,amount,date\na1,강남점,100,2025-01-01\n"))
	parser, _ := NewMultiFileParser(nil)

	tests := []struct {
		name     string
		files    []string
		wantCode errors.ErrorCode
	}{
		{"no files", nil, errors.CodeMissingField},
		{"unsupported extension", []string{good, filepath.Join(t.TempDir(), "sales.pdf")}, errors.CodeUnsupported},
		{"missing file", []string{good, filepath.Join(t.TempDir(), "absent.xlsx")}, errors.CodeFileNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, _, err := parser.Parse(context.Background(), tt.files)
			if records != nil {
				t.Errorf("expected no partial records, got %d", len(records))
			}
			analyticsErr, ok := errors.AsAnalyticsError(err)
			if !ok {
				t.Fatalf("expected AnalyticsError, got %v", err)
			}
			if analyticsErr.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, analyticsErr.Code)
			}
		})
	}
}

func TestCellNormalization(t *testing.T) {
	clockTests := map[string]string{
		"0.4375":   "10:30:00",
		"0":        "00:00:00",
		"45662.75": "18:00:00",
		"10:30:00": "10:30:00",
		"101530":   "101530",
		"":         "",
	}
	for in, want := range clockTests {
		if got := normalizeClockCell(in); got != want {
			t.Errorf("normalizeClockCell(%q) = %q, want %q", in, got, want)
		}
	}

	if got := normalizeDateCell("45662"); got != "2025-01-05" {
		t.Errorf("normalizeDateCell(45662) = %q", got)
	}
	if got := normalizeDateCell("20250105"); got != "20250105" {
		t.Errorf("expected compact date to pass through, got %q", got)
	}
	if _, ok := serialToTime("12"); ok {
		t.Error("expected small numbers not to be treated as dates")
	}
}
