package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MetricName enumerates the rows emitted per branch, in output order
type MetricName int

const (
	MetricRevenue MetricName = iota
	MetricTotalVisitors
	MetricNewVisitors
	MetricNewRatio
	MetricReturningVisitors
	MetricReturningRatio
	MetricPotentialRegulars
	MetricLoyalCustomers
	MetricLoyalRatio
	MetricOverallConversion
	MetricThreeMonthConversion
	MetricVisitFrequency
	MetricChurn
	MetricRetentionDays
)

// Locale selects the language of metric and column labels
type Locale string

const (
	LocaleEnglish Locale = "en"
	LocaleKorean  Locale = "ko"
)

// IsValid checks if the locale is supported
func (l Locale) IsValid() bool {
	return l == LocaleEnglish || l == LocaleKorean
}

type metricInfo struct {
	key     string
	english string
	korean  string
	integer bool
}

var metricInfos = [...]metricInfo{
	MetricRevenue:              {"revenue", "Revenue", "매출액", true},
	MetricTotalVisitors:        {"total_visitors", "Total visitors", "전체 방문자수", true},
	MetricNewVisitors:          {"new_visitors", "New visitors", "신규 방문자수", true},
	MetricNewRatio:             {"new_ratio_pct", "New ratio (%)", "신규비율(%)", false},
	MetricReturningVisitors:    {"returning_visitors", "Returning visitors", "재방문자수", true},
	MetricReturningRatio:       {"returning_ratio_pct", "Returning ratio (%)", "재방문자비율(%)", false},
	MetricPotentialRegulars:    {"potential_regulars", "Potential regulars (2-3)", "잠재 단골(2~3회)", true},
	MetricLoyalCustomers:       {"loyal_customers", "Loyal customers (4+)", "충성고객(4회이상)", true},
	MetricLoyalRatio:           {"loyal_ratio_pct", "Loyal ratio (%)", "충성고객비율(%)", false},
	MetricOverallConversion:    {"overall_conversion_pct", "Overall conversion (%)", "전체 전환율(%)", false},
	MetricThreeMonthConversion: {"three_month_conversion_pct", "3-month conversion (%)", "3개월 전환율(%)", false},
	MetricVisitFrequency:       {"visit_frequency", "Visit frequency", "방문빈도", false},
	MetricChurn:                {"churn_pct", "Churn (%)", "이탈율(%)", false},
	MetricRetentionDays:        {"retention_days", "Retention days", "유지기간", false},
}

// AllMetrics returns every metric in output order
func AllMetrics() []MetricName {
	metrics := make([]MetricName, len(metricInfos))
	for i := range metricInfos {
		metrics[i] = MetricName(i)
	}
	return metrics
}

// IsValid checks if the metric is part of the enumeration
func (m MetricName) IsValid() bool {
	return m >= 0 && int(m) < len(metricInfos)
}

// String returns the machine-readable key of the metric
func (m MetricName) String() string {
	if !m.IsValid() {
		return fmt.Sprintf("metric(%d)", int(m))
	}
	return metricInfos[m].key
}

// Label returns the display label of the metric in the given locale
func (m MetricName) Label(locale Locale) string {
	if !m.IsValid() {
		return m.String()
	}
	if locale == LocaleKorean {
		return metricInfos[m].korean
	}
	return metricInfos[m].english
}

// IsInteger reports whether the metric is a count or an amount
func (m MetricName) IsInteger() bool {
	return m.IsValid() && metricInfos[m].integer
}

// MarshalText renders the metric as its key
func (m MetricName) MarshalText() ([]byte, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("invalid metric %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText parses a metric key
func (m *MetricName) UnmarshalText(text []byte) error {
	for i, info := range metricInfos {
		if info.key == string(text) {
			*m = MetricName(i)
			return nil
		}
	}
	return fmt.Errorf("unknown metric %q", string(text))
}

var hundred = decimal.NewFromInt(100)

// MetricValue is one cell of the metrics table: an integer or a value
// rounded to one decimal place.
type MetricValue struct {
	value   decimal.Decimal
	integer bool
}

// IntValue creates an integer cell
func IntValue(n int64) MetricValue {
	return MetricValue{value: decimal.NewFromInt(n), integer: true}
}

// TruncatedValue creates an integer cell by dropping the fractional part
func TruncatedValue(d decimal.Decimal) MetricValue {
	return MetricValue{value: d.Truncate(0), integer: true}
}

// DecimalValue creates a one-decimal cell. Exact ties round to the even
// digit, so 2.25 becomes 2.2 and 2.35 becomes 2.4.
func DecimalValue(d decimal.Decimal) MetricValue {
	return MetricValue{value: d.RoundBank(1)}
}

// Percentage returns part/whole*100 rounded to one decimal, or 0 when whole is 0
func Percentage(part, whole int) MetricValue {
	if whole == 0 {
		return DecimalValue(decimal.Zero)
	}
	return DecimalValue(decimal.NewFromInt(int64(part)).Mul(hundred).Div(decimal.NewFromInt(int64(whole))))
}

// Mean returns sum/count rounded to one decimal, or fallback when count is 0
func Mean(sum decimal.Decimal, count int, fallback decimal.Decimal) MetricValue {
	if count == 0 {
		return DecimalValue(fallback)
	}
	return DecimalValue(sum.Div(decimal.NewFromInt(int64(count))))
}

// ZeroValue returns the zero cell for the given metric
func ZeroValue(m MetricName) MetricValue {
	if m.IsInteger() {
		return IntValue(0)
	}
	return DecimalValue(decimal.Zero)
}

// Decimal returns the cell value
func (v MetricValue) Decimal() decimal.Decimal {
	return v.value
}

// IsInteger reports whether the cell is rendered without decimals
func (v MetricValue) IsInteger() bool {
	return v.integer
}

// Float64 returns the cell as a float for spreadsheet output
func (v MetricValue) Float64() float64 {
	f, _ := v.value.Float64()
	return f
}

// Equal compares two cells
func (v MetricValue) Equal(other MetricValue) bool {
	return v.integer == other.integer && v.value.Equal(other.value)
}

// String renders the cell with a fixed number of decimals
func (v MetricValue) String() string {
	if v.integer {
		return v.value.StringFixed(0)
	}
	return v.value.StringFixed(1)
}

// MarshalJSON renders the cell as a JSON number
func (v MetricValue) MarshalJSON() ([]byte, error) {
	return []byte(v.String()), nil
}

// MetricRow is one (branch, metric) row with a value per month label
type MetricRow struct {
	Branch Branch                 `json:"branch"`
	Metric MetricName             `json:"metric"`
	Values map[string]MetricValue `json:"values"`
}

// MetricsTable is the per-branch, per-month result of a run. Months are
// chronological; rows are ordered by branch then metric.
type MetricsTable struct {
	Months []string    `json:"months"`
	Rows   []MetricRow `json:"rows"`
}

// Branches returns the branches of the table in row order
func (t *MetricsTable) Branches() []Branch {
	var branches []Branch
	for _, row := range t.Rows {
		if len(branches) == 0 || branches[len(branches)-1] != row.Branch {
			branches = append(branches, row.Branch)
		}
	}
	return branches
}

// Value looks up a single cell
func (t *MetricsTable) Value(branch Branch, metric MetricName, month string) (MetricValue, bool) {
	for _, row := range t.Rows {
		if row.Branch == branch && row.Metric == metric {
			v, ok := row.Values[month]
			return v, ok
		}
	}
	return MetricValue{}, false
}

// IsEmpty reports whether the table has no rows
func (t *MetricsTable) IsEmpty() bool {
	return t == nil || len(t.Rows) == 0
}
