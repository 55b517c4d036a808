// Package sample generates synthetic POS sales exports with a known number
// of repeated swipes and cancellations. It backs the "analytics sample"
// command and the volume tests of the pipeline.
package sample

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"golang-branch-analytics/internal/models"
	"golang-branch-analytics/internal/parsers"
)

// Labels used in generated rows
const (
	SaleLabel   = "승인"
	CancelLabel = "취소"
)

// StoreLabels are merchant names as they appear in POS exports, grouped by
// the branch they resolve to.
var StoreLabels = []string{
	"강남구청점",
	"기흥 롯데아울렛점",
	"여의도 IFC점",
	"브라이튼 여의도점",
	"목동 현대점",
	"원주 혁신도시점",
	"강남 본점",
}

// UnknownStoreLabel matches no branch rule
const UnknownStoreLabel = "판교 팝업스토어"

// Config controls the shape of the generated data
type Config struct {
	Customers     int             `json:"customers" mapstructure:"customers"`
	MaxVisits     int             `json:"max_visits" mapstructure:"max_visits"`
	StartDate     time.Time       `json:"start_date" mapstructure:"start_date"`
	EndDate       time.Time       `json:"end_date" mapstructure:"end_date"`
	DuplicateRate float64         `json:"duplicate_rate" mapstructure:"duplicate_rate"`
	CancelRate    float64         `json:"cancel_rate" mapstructure:"cancel_rate"`
	UnknownRate   float64         `json:"unknown_rate" mapstructure:"unknown_rate"`
	MinAmount     decimal.Decimal `json:"min_amount" mapstructure:"min_amount"`
	MaxAmount     decimal.Decimal `json:"max_amount" mapstructure:"max_amount"`
	Seed          int64           `json:"seed" mapstructure:"seed"`
}

// DefaultConfig returns a small half-year dataset
func DefaultConfig() *Config {
	return &Config{
		Customers:     200,
		MaxVisits:     6,
		StartDate:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		DuplicateRate: 0.15,
		CancelRate:    0.03,
		UnknownRate:   0.05,
		MinAmount:     decimal.NewFromInt(3000),
		MaxAmount:     decimal.NewFromInt(60000),
		Seed:          1,
	}
}

// Validate validates the generator configuration
func (c *Config) Validate() error {
	if c.Customers <= 0 {
		return fmt.Errorf("customers must be positive, got %d", c.Customers)
	}
	if c.MaxVisits <= 0 {
		return fmt.Errorf("max visits must be positive, got %d", c.MaxVisits)
	}
	if !c.EndDate.After(c.StartDate) {
		return fmt.Errorf("end date must be after start date")
	}
	for name, rate := range map[string]float64{
		"duplicate rate": c.DuplicateRate,
		"cancel rate":    c.CancelRate,
		"unknown rate":   c.UnknownRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v", name, rate)
		}
	}
	if c.MinAmount.IsNegative() || c.MaxAmount.LessThan(c.MinAmount) {
		return fmt.Errorf("invalid amount range %s..%s", c.MinAmount, c.MaxAmount)
	}
	return nil
}

// Stats counts what was generated
type Stats struct {
	Records          int `json:"records"`
	Sales            int `json:"sales"`
	Duplicates       int `json:"duplicates"`
	Cancellations    int `json:"cancellations"`
	Customers        int `json:"customers"`
	UnknownCustomers int `json:"unknown_customers"`
}

// Generator produces deterministic datasets for a seed
type Generator struct {
	config *Config
	rng    *rand.Rand
}

// NewGenerator creates a generator
func NewGenerator(config *Config) (*Generator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}, nil
}

// Generate returns records ordered by time. Every customer shops at one
// store, at most once per day, between 10:00 and 20:00. A repeated swipe
// follows its sale within 30 minutes; a cancellation follows two or three
// hours later on the same day.
func (g *Generator) Generate() ([]models.RawTransaction, Stats) {
	cfg := g.config
	days := int(cfg.EndDate.Sub(cfg.StartDate)/(24*time.Hour)) + 1
	steps := cfg.MaxAmount.Sub(cfg.MinAmount).Div(decimal.NewFromInt(100)).IntPart() + 1

	var records []models.RawTransaction
	stats := Stats{Customers: cfg.Customers}

	for c := 0; c < cfg.Customers; c++ {
		customer := fmt.Sprintf("5310-****-****-%04d", c)
		store := StoreLabels[g.rng.Intn(len(StoreLabels))]
		if g.rng.Float64() < cfg.UnknownRate {
			store = UnknownStoreLabel
			stats.UnknownCustomers++
		}

		visits := 1 + g.rng.Intn(cfg.MaxVisits)
		if visits > days {
			visits = days
		}
		for _, day := range g.rng.Perm(days)[:visits] {
			at := cfg.StartDate.AddDate(0, 0, day).
				Add(time.Duration(10+g.rng.Intn(10)) * time.Hour).
				Add(time.Duration(g.rng.Intn(60)) * time.Minute)
			amount := cfg.MinAmount.Add(decimal.NewFromInt(100 * g.rng.Int63n(steps)))

			records = append(records, g.record(customer, store, amount, models.TransactionTypeNormal, at))
			stats.Sales++

			if g.rng.Float64() < cfg.DuplicateRate {
				repeat := at.Add(time.Duration(1+g.rng.Intn(29)) * time.Minute)
				records = append(records, g.record(customer, store, amount, models.TransactionTypeNormal, repeat))
				stats.Duplicates++
			}
			if g.rng.Float64() < cfg.CancelRate {
				cancel := at.Add(time.Duration(2+g.rng.Intn(2)) * time.Hour)
				records = append(records, g.record(customer, store, amount, models.TransactionTypeCancel, cancel))
				stats.Cancellations++
			}
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	for i := range records {
		records[i].Sequence = int64(i)
	}
	stats.Records = len(records)
	return records, stats
}

func (g *Generator) record(customer, store string, amount decimal.Decimal, txType models.TransactionType, at time.Time) models.RawTransaction {
	return models.RawTransaction{
		CustomerID: customer,
		Branch:     store,
		Amount:     amount,
		Type:       txType,
		Timestamp:  at,
		Source:     "sample",
	}
}

func typeLabel(t models.TransactionType) string {
	if t == models.TransactionTypeCancel {
		return CancelLabel
	}
	return SaleLabel
}

// WriteCSV writes records with the column layout of layout. A nil layout
// uses the default parser layout.
func WriteCSV(w io.Writer, records []models.RawTransaction, layout *parsers.TransactionParserConfig) error {
	if layout == nil {
		layout = parsers.DefaultTransactionParserConfig()
	}
	writer := csv.NewWriter(w)
	writer.Comma = layout.Delimiter

	if err := writer.Write(layout.DefaultHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, r := range records {
		if err := writer.Write([]string{
			r.CustomerID,
			r.Branch,
			r.Amount.StringFixed(0),
			typeLabel(r.Type),
			r.Timestamp.Format("2006-01-02"),
			r.Timestamp.Format("15:04:05"),
		}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteWorkbook writes records in the branch workbook layout: one sheet per
// store with three banner rows above the header, plus a summary sheet that
// the parser skips.
func WriteWorkbook(w io.Writer, records []models.RawTransaction, layout *parsers.WorkbookParserConfig) error {
	if layout == nil {
		layout = parsers.DefaultWorkbookParserConfig()
	}

	byStore := make(map[string][]models.RawTransaction)
	var stores []string
	for _, r := range records {
		if _, ok := byStore[r.Branch]; !ok {
			stores = append(stores, r.Branch)
		}
		byStore[r.Branch] = append(byStore[r.Branch], r)
	}
	sort.Strings(stores)

	f := excelize.NewFile()
	defer f.Close()

	summary := "요약"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return err
	}
	if err := f.SetSheetRow(summary, "A1", &[]interface{}{"매장", "건수"}); err != nil {
		return err
	}

	cols := layout.Columns
	header := []interface{}{cols.Customer, cols.Branch, cols.Amount, cols.Type, cols.Date, cols.Time}

	for i, store := range stores {
		sheet := fmt.Sprintf("매장%02d", i+1)
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", sheet, err)
		}
		if err := f.SetCellValue(sheet, "A1", store+" 카드매출 내역"); err != nil {
			return err
		}

		headerCell, _ := excelize.CoordinatesToCellName(1, layout.SkipRows+1)
		if err := f.SetSheetRow(sheet, headerCell, &header); err != nil {
			return err
		}
		for j, r := range byStore[store] {
			cell, _ := excelize.CoordinatesToCellName(1, layout.SkipRows+2+j)
			row := []interface{}{
				r.CustomerID,
				r.Branch,
				r.Amount.IntPart(),
				typeLabel(r.Type),
				r.Timestamp.Format("2006-01-02"),
				r.Timestamp.Format("15:04:05"),
			}
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return fmt.Errorf("failed to write row %d of %s: %w", j+1, sheet, err)
			}
		}

		summaryCell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(summary, summaryCell, &[]interface{}{store, len(byStore[store])}); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
