package metrics

import (
	"time"

	"github.com/shopspring/decimal"

	"golang-branch-analytics/internal/models"
	"golang-branch-analytics/pkg/logger"
)

// Engine turns a timeline into a metrics table. It holds no state between
// calls; the same timeline always yields the same table.
type Engine struct {
	config *Config
	logger logger.Logger
}

// NewEngine creates a metrics engine
func NewEngine(config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("metrics_engine"),
	}, nil
}

// bucket collects the activity of one branch in one month
type bucket struct {
	revenue   decimal.Decimal
	customers map[string]*models.CustomerProfile
}

// Compute builds the table: one row per (reportable branch, metric), one
// value per month label of the timeline. A branch without activity in a
// month gets zeros for every metric of that month.
func (e *Engine) Compute(tl *models.Timeline) *models.MetricsTable {
	buckets := make(map[models.Branch]map[string]*bucket)
	for i := range tl.Rows {
		row := &tl.Rows[i]
		branch := row.Transaction.Branch
		if !branch.IsReportable() {
			continue
		}
		months, ok := buckets[branch]
		if !ok {
			months = make(map[string]*bucket)
			buckets[branch] = months
		}
		b, ok := months[row.Month]
		if !ok {
			b = &bucket{customers: make(map[string]*models.CustomerProfile)}
			months[row.Month] = b
		}
		b.revenue = b.revenue.Add(row.Transaction.NetAmount)
		b.customers[row.Transaction.CustomerID] = row.Profile
	}

	table := &models.MetricsTable{Months: append([]string(nil), tl.Months...)}
	churnCutoff := tl.MaxTimestamp.Add(-e.config.ChurnWindow)

	for _, branch := range tl.Branches() {
		rows := make([]models.MetricRow, 0, len(models.AllMetrics()))
		for _, m := range models.AllMetrics() {
			rows = append(rows, models.MetricRow{
				Branch: branch,
				Metric: m,
				Values: make(map[string]models.MetricValue, len(tl.Months)),
			})
		}

		for _, month := range tl.Months {
			values := e.monthValues(buckets[branch][month], month, churnCutoff)
			for i := range rows {
				rows[i].Values[month] = values[rows[i].Metric]
			}
		}
		table.Rows = append(table.Rows, rows...)
	}

	e.logger.WithFields(logger.Fields{
		"branches": len(table.Branches()),
		"months":   len(table.Months),
		"rows":     len(table.Rows),
	}).Debug("Metrics computed")

	return table
}

// monthValues computes every metric of one branch in one month
func (e *Engine) monthValues(b *bucket, month string, churnCutoff time.Time) map[models.MetricName]models.MetricValue {
	values := make(map[models.MetricName]models.MetricValue, len(models.AllMetrics()))
	if b == nil || len(b.customers) == 0 {
		for _, m := range models.AllMetrics() {
			values[m] = models.ZeroValue(m)
		}
		return values
	}

	total := len(b.customers)
	var newVisitors, regulars, loyal, converted, convertedInWindow, pool, churned int
	var poolVisits, poolDays int64

	for _, p := range b.customers {
		isNew := p.FirstMonth() == month
		if isNew {
			newVisitors++
			if p.TotalVisits >= 2 {
				converted++
			}
			if p.SecondVisit != nil && !p.SecondVisit.After(p.FirstVisit.Add(e.config.ConversionWindow)) {
				convertedInWindow++
			}
		}

		switch {
		case p.TotalVisits >= e.config.LoyalMinVisits:
			loyal++
		case p.TotalVisits >= e.config.RegularMinVisits && p.TotalVisits <= e.config.RegularMaxVisits:
			regulars++
		}

		if p.TotalVisits >= 2 {
			pool++
			poolVisits += int64(p.TotalVisits)
			poolDays += int64(p.Lifetime() / day)
			if !p.LastVisit.After(churnCutoff) {
				churned++
			}
		}
	}
	returning := total - newVisitors

	values[models.MetricRevenue] = models.TruncatedValue(b.revenue)
	values[models.MetricTotalVisitors] = models.IntValue(int64(total))
	values[models.MetricNewVisitors] = models.IntValue(int64(newVisitors))
	values[models.MetricNewRatio] = models.Percentage(newVisitors, total)
	values[models.MetricReturningVisitors] = models.IntValue(int64(returning))
	values[models.MetricReturningRatio] = models.Percentage(returning, total)
	values[models.MetricPotentialRegulars] = models.IntValue(int64(regulars))
	values[models.MetricLoyalCustomers] = models.IntValue(int64(loyal))
	values[models.MetricLoyalRatio] = models.Percentage(loyal, total)
	values[models.MetricOverallConversion] = models.Percentage(converted, newVisitors)
	values[models.MetricThreeMonthConversion] = models.Percentage(convertedInWindow, newVisitors)
	values[models.MetricVisitFrequency] = models.Mean(decimal.NewFromInt(poolVisits), pool, decimal.NewFromInt(1))
	values[models.MetricChurn] = models.Percentage(churned, pool)
	values[models.MetricRetentionDays] = models.Mean(decimal.NewFromInt(poolDays), pool, decimal.Zero)

	return values
}
