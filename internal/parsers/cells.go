package parsers

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"golang-branch-analytics/internal/models"
)

// Serial day numbers outside this range are not treated as spreadsheet dates.
const (
	minSerialDate = 61
	maxSerialDate = 2958465
)

func parseAmountCell(s string) (decimal.Decimal, error) {
	return models.ParseAmount(s)
}

// parseDateTimeCells combines separate date and time cells. Cells that
// hold raw spreadsheet numbers (day serials and day fractions) are
// converted before parsing.
func parseDateTimeCells(date, clock string) (time.Time, error) {
	return models.ParseDateTime(normalizeDateCell(date), normalizeClockCell(clock))
}

func parseTimestampCell(s string) (time.Time, error) {
	if t, ok := serialToTime(s); ok {
		return t, nil
	}
	return models.ParseTimestamp(s)
}

func normalizeDateCell(s string) string {
	if t, ok := serialToTime(s); ok {
		return t.Format("2006-01-02")
	}
	return s
}

func normalizeClockCell(s string) string {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return s
	}
	_, frac := math.Modf(f)
	if f >= 1 && frac == 0 {
		return s
	}
	secs := int(math.Round(frac * 86400))
	if secs >= 86400 {
		secs = 86399
	}
	return time.Date(0, 1, 1, 0, 0, secs, 0, time.UTC).Format("15:04:05")
}

// serialToTime converts a spreadsheet day serial such as "45662" or
// "45662.4375" into a naive timestamp
func serialToTime(s string) (time.Time, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < minSerialDate || f > maxSerialDate {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC().Round(time.Second), true
}
