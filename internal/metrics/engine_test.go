package metrics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"golang-branch-analytics/internal/lifecycle"
	"golang-branch-analytics/internal/models"
)

type txBuilder struct {
	seq int64
	txs []models.CanonicalTransaction
}

func (b *txBuilder) add(customer string, branch models.Branch, net string, at string) *txBuilder {
	ts, err := models.ParseTimestamp(at)
	if err != nil {
		panic(err)
	}
	amount := decimal.RequireFromString(net)
	txType := models.TransactionTypeNormal
	if amount.IsNegative() {
		txType = models.TransactionTypeCancel
	}
	b.txs = append(b.txs, models.CanonicalTransaction{
		CustomerID: customer,
		Branch:     branch,
		Amount:     amount.Abs(),
		NetAmount:  amount,
		Type:       txType,
		Timestamp:  ts,
		Sequence:   b.seq,
	})
	b.seq++
	return b
}

func (b *txBuilder) compute(t *testing.T) *models.MetricsTable {
	t.Helper()
	engine, err := NewEngine(nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine.Compute(lifecycle.BuildTimeline(b.txs))
}

func assertCells(t *testing.T, table *models.MetricsTable, branch models.Branch, month string, want map[models.MetricName]string) {
	t.Helper()
	for metric, expected := range want {
		v, ok := table.Value(branch, metric, month)
		if !ok {
			t.Errorf("%s/%s/%s: missing cell", branch, metric, month)
			continue
		}
		if got := v.String(); got != expected {
			t.Errorf("%s/%s/%s = %s, want %s", branch, metric, month, got, expected)
		}
	}
}

func TestComputeCohortMonth(t *testing.T) {
	b := &txBuilder{}
	b.add("A", models.BranchGangnam, "30000", "2025-01-05 10:00:00").
		add("A", models.BranchGangnam, "20000", "2025-01-20 09:00:00").
		add("A", models.BranchGangnam, "-10000", "2025-01-20 12:00:00").
		add("B", models.BranchGangnam, "15000.5", "2025-01-10 15:00:00")

	table := b.compute(t)

	if len(table.Months) != 1 || table.Months[0] != "2025-01" {
		t.Fatalf("months = %v", table.Months)
	}
	if len(table.Rows) != len(models.AllMetrics()) {
		t.Fatalf("expected %d rows, got %d", len(models.AllMetrics()), len(table.Rows))
	}

	assertCells(t, table, models.BranchGangnam, "2025-01", map[models.MetricName]string{
		models.MetricRevenue:              "55000",
		models.MetricTotalVisitors:        "2",
		models.MetricNewVisitors:          "2",
		models.MetricNewRatio:             "100.0",
		models.MetricReturningVisitors:    "0",
		models.MetricReturningRatio:       "0.0",
		models.MetricPotentialRegulars:    "1",
		models.MetricLoyalCustomers:       "0",
		models.MetricLoyalRatio:           "0.0",
		models.MetricOverallConversion:    "50.0",
		models.MetricThreeMonthConversion: "50.0",
		models.MetricVisitFrequency:       "3.0",
		models.MetricChurn:                "0.0",
		models.MetricRetentionDays:        "15.0",
	})
}

func TestComputeCancellationReducesRevenue(t *testing.T) {
	b := &txBuilder{}
	b.add("A", models.BranchMokdong, "50000", "2025-03-02 11:00:00").
		add("A", models.BranchMokdong, "-10000", "2025-03-02 14:00:00")

	table := b.compute(t)
	assertCells(t, table, models.BranchMokdong, "2025-03", map[models.MetricName]string{
		models.MetricRevenue: "40000",
	})
}

func TestComputeChurnAndReturning(t *testing.T) {
	b := &txBuilder{}
	b.add("X", models.BranchGangnam, "10000", "2025-07-01 10:00:00").
		add("X", models.BranchGangnam, "10000", "2025-08-01 10:00:00").
		add("Y", models.BranchGangnam, "10000", "2025-12-29 10:00:00")

	table := b.compute(t)

	wantMonths := []string{"2025-07", "2025-08", "2025-12"}
	if len(table.Months) != len(wantMonths) {
		t.Fatalf("months = %v, want %v", table.Months, wantMonths)
	}

	assertCells(t, table, models.BranchGangnam, "2025-07", map[models.MetricName]string{
		models.MetricNewVisitors:       "1",
		models.MetricReturningVisitors: "0",
		models.MetricChurn:             "100.0",
		models.MetricVisitFrequency:    "2.0",
		models.MetricRetentionDays:     "31.0",
	})
	assertCells(t, table, models.BranchGangnam, "2025-08", map[models.MetricName]string{
		models.MetricNewVisitors:       "0",
		models.MetricReturningVisitors: "1",
		models.MetricReturningRatio:    "100.0",
		models.MetricOverallConversion: "0.0",
		models.MetricChurn:             "100.0",
	})
	assertCells(t, table, models.BranchGangnam, "2025-12", map[models.MetricName]string{
		models.MetricNewVisitors:    "1",
		models.MetricChurn:          "0.0",
		models.MetricVisitFrequency: "1.0",
		models.MetricRetentionDays:  "0.0",
	})
}

func TestComputeChurnBoundary(t *testing.T) {
	// last visit exactly one churn window before the latest transaction
	b := &txBuilder{}
	b.add("X", models.BranchGangnam, "1000", "2025-09-01 10:00:00").
		add("X", models.BranchGangnam, "1000", "2025-09-30 10:00:00").
		add("Y", models.BranchGangnam, "1000", "2025-12-29 10:00:00")

	table := b.compute(t)
	assertCells(t, table, models.BranchGangnam, "2025-09", map[models.MetricName]string{
		models.MetricChurn: "100.0",
	})
}

func TestComputeZeroActivityMonth(t *testing.T) {
	b := &txBuilder{}
	b.add("A", models.BranchGangnam, "10000", "2025-01-05 10:00:00").
		add("A", models.BranchGangnam, "10000", "2025-01-25 10:00:00").
		add("B", models.BranchMokdong, "20000", "2025-02-05 10:00:00").
		add("C", models.BranchOther, "5000", "2025-03-01 10:00:00")

	table := b.compute(t)

	wantMonths := []string{"2025-01", "2025-02", "2025-03"}
	if len(table.Months) != len(wantMonths) {
		t.Fatalf("months = %v, want %v", table.Months, wantMonths)
	}

	branches := table.Branches()
	if len(branches) != 2 || branches[0] != models.BranchGangnam || branches[1] != models.BranchMokdong {
		t.Fatalf("branches = %v", branches)
	}

	zero := func(branch models.Branch, month string) {
		for _, m := range models.AllMetrics() {
			v, ok := table.Value(branch, m, month)
			if !ok {
				t.Errorf("%s/%s/%s: missing cell", branch, m, month)
				continue
			}
			if !v.Equal(models.ZeroValue(m)) {
				t.Errorf("%s/%s/%s = %s, want zero", branch, m, month, v)
			}
		}
	}
	zero(models.BranchMokdong, "2025-01")
	zero(models.BranchGangnam, "2025-02")
	zero(models.BranchGangnam, "2025-03")
	zero(models.BranchMokdong, "2025-03")
}

func TestComputeConversionWindow(t *testing.T) {
	b := &txBuilder{}
	b.add("A", models.BranchGiheung, "1000", "2025-01-05 10:00:00").
		add("A", models.BranchGiheung, "1000", "2025-05-01 10:00:00").
		add("B", models.BranchGiheung, "1000", "2025-01-06 10:00:00").
		add("B", models.BranchGiheung, "1000", "2025-04-06 10:00:00")

	table := b.compute(t)

	// B's second visit is exactly 90 days after the first
	assertCells(t, table, models.BranchGiheung, "2025-01", map[models.MetricName]string{
		models.MetricOverallConversion:    "100.0",
		models.MetricThreeMonthConversion: "50.0",
	})
}

func TestComputeSegmentsAndRounding(t *testing.T) {
	b := &txBuilder{}
	for _, at := range []string{"2025-01-02 10:00:00", "2025-01-09 10:00:00", "2025-02-02 10:00:00", "2025-02-09 10:00:00"} {
		b.add("L", models.BranchWonju, "1000", at)
	}
	b.add("R", models.BranchWonju, "1000", "2025-01-03 10:00:00").
		add("R", models.BranchWonju, "1000", "2025-02-03 10:00:00").
		add("N", models.BranchWonju, "1000", "2025-02-04 10:00:00")

	table := b.compute(t)

	assertCells(t, table, models.BranchWonju, "2025-02", map[models.MetricName]string{
		models.MetricTotalVisitors:     "3",
		models.MetricNewVisitors:       "1",
		models.MetricNewRatio:          "33.3",
		models.MetricReturningVisitors: "2",
		models.MetricReturningRatio:    "66.7",
		models.MetricPotentialRegulars: "1",
		models.MetricLoyalCustomers:    "1",
		models.MetricLoyalRatio:        "33.3",
		models.MetricVisitFrequency:    "3.0",
	})
}

func TestComputeRoundsTiesToEven(t *testing.T) {
	b := &txBuilder{}
	for _, c := range []string{"P1", "P2", "P3"} {
		b.add(c, models.BranchGiheung, "1000", "2025-01-06 10:00:00").
			add(c, models.BranchGiheung, "1000", "2025-02-06 10:00:00")
	}
	b.add("P4", models.BranchGiheung, "1000", "2025-01-07 10:00:00").
		add("P4", models.BranchGiheung, "1000", "2025-02-07 10:00:00").
		add("P4", models.BranchGiheung, "1000", "2025-02-14 10:00:00")

	b.add("L", models.BranchMokdong, "1000", "2025-03-01 10:00:00").
		add("L", models.BranchMokdong, "1000", "2025-03-08 10:00:00").
		add("L", models.BranchMokdong, "1000", "2025-03-15 10:00:00").
		add("L", models.BranchMokdong, "1000", "2025-03-22 10:00:00")
	for i := 0; i < 15; i++ {
		b.add(string(rune('a'+i)), models.BranchMokdong, "1000", "2025-03-10 11:00:00")
	}

	table := b.compute(t)

	// 9 lifetime visits over 4 repeat customers
	assertCells(t, table, models.BranchGiheung, "2025-02", map[models.MetricName]string{
		models.MetricTotalVisitors:  "4",
		models.MetricVisitFrequency: "2.2",
	})
	// 1 loyal customer out of 16 active
	assertCells(t, table, models.BranchMokdong, "2025-03", map[models.MetricName]string{
		models.MetricTotalVisitors:  "16",
		models.MetricLoyalCustomers: "1",
		models.MetricLoyalRatio:     "6.2",
		models.MetricNewRatio:       "100.0",
	})
}

func TestComputeDeterministic(t *testing.T) {
	b := &txBuilder{}
	b.add("A", models.BranchGangnam, "1000", "2025-01-05 10:00:00").
		add("B", models.BranchGangnam, "2000", "2025-01-06 10:00:00").
		add("A", models.BranchYeouido, "3000", "2025-02-05 10:00:00").
		add("C", models.BranchGangnamGuOffice, "4000", "2025-02-07 10:00:00").
		add("A", models.BranchGangnam, "5000", "2025-02-09 10:00:00")

	first := b.compute(t)
	second := b.compute(t)

	if len(first.Rows) != len(second.Rows) {
		t.Fatalf("row count differs: %d vs %d", len(first.Rows), len(second.Rows))
	}
	for i := range first.Rows {
		r1, r2 := first.Rows[i], second.Rows[i]
		if r1.Branch != r2.Branch || r1.Metric != r2.Metric {
			t.Fatalf("row %d order differs", i)
		}
		for _, month := range first.Months {
			if !r1.Values[month].Equal(r2.Values[month]) {
				t.Errorf("%s/%s/%s differs", r1.Branch, r1.Metric, month)
			}
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"zero churn window", func(c *Config) { c.ChurnWindow = 0 }, true},
		{"negative conversion window", func(c *Config) { c.ConversionWindow = -time.Hour }, true},
		{"regular min below two", func(c *Config) { c.RegularMinVisits = 1 }, true},
		{"regular range inverted", func(c *Config) { c.RegularMaxVisits = 1 }, true},
		{"loyal overlaps regular", func(c *Config) { c.LoyalMinVisits = 3 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
