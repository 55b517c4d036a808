package lifecycle

import (
	"sort"

	"golang-branch-analytics/internal/models"
)

// BuildTimeline numbers each customer's visits per branch and computes the
// lifetime profile of every (branch, customer) group. Month labels and the
// latest timestamp cover every row, including rows of BranchOther.
func BuildTimeline(txs []models.CanonicalTransaction) *models.Timeline {
	sorted := make([]models.CanonicalTransaction, len(txs))
	copy(sorted, txs)
	sortByGroup(sorted)

	tl := &models.Timeline{
		Rows:     make([]models.TimelineRow, 0, len(sorted)),
		Profiles: make(map[models.CustomerKey]*models.CustomerProfile),
	}
	months := make(map[string]struct{})

	var profile *models.CustomerProfile
	for i := range sorted {
		tx := sorted[i]
		key := tx.Key()

		if profile == nil || profile.Key != key {
			profile = &models.CustomerProfile{Key: key, FirstVisit: tx.Timestamp}
			tl.Profiles[key] = profile
		}
		profile.TotalVisits++
		profile.LastVisit = tx.Timestamp
		if profile.TotalVisits == 2 {
			second := tx.Timestamp
			profile.SecondVisit = &second
		}

		month := tx.Month()
		months[month] = struct{}{}
		if tx.Timestamp.After(tl.MaxTimestamp) {
			tl.MaxTimestamp = tx.Timestamp
		}

		tl.Rows = append(tl.Rows, models.TimelineRow{
			Transaction: tx,
			VisitNo:     profile.TotalVisits,
			Month:       month,
			Profile:     profile,
		})
	}

	tl.Months = make([]string, 0, len(months))
	for m := range months {
		tl.Months = append(tl.Months, m)
	}
	sort.Strings(tl.Months)

	return tl
}
