package lifecycle

import (
	"errors"

	"golang-branch-analytics/internal/models"
	"golang-branch-analytics/pkg/logger"
)

// NormalizeStats counts what the normalizer kept and filtered
type NormalizeStats struct {
	Input            int `json:"input"`
	Kept             int `json:"kept"`
	MissingCustomer  int `json:"missing_customer"`
	MissingTimestamp int `json:"missing_timestamp"`
	OtherBranch      int `json:"other_branch"`
	Cancellations    int `json:"cancellations"`
}

// Dropped returns the number of filtered records
func (s NormalizeStats) Dropped() int {
	return s.MissingCustomer + s.MissingTimestamp
}

// Normalizer filters unusable records and produces canonical transactions
type Normalizer struct {
	branches *BranchCanonicalizer
	logger   logger.Logger
}

// NewNormalizer creates a normalizer using the given branch rules
func NewNormalizer(branches *BranchCanonicalizer) *Normalizer {
	if branches == nil {
		branches, _ = NewBranchCanonicalizer(nil)
	}
	return &Normalizer{
		branches: branches,
		logger:   logger.GetGlobalLogger().WithComponent("normalizer"),
	}
}

// Normalize drops records without a customer or a timestamp, flips the
// sign of cancellations and resolves the canonical branch. Records that
// match no rule are kept under BranchOther.
func (n *Normalizer) Normalize(raw []models.RawTransaction) ([]models.CanonicalTransaction, NormalizeStats) {
	stats := NormalizeStats{Input: len(raw)}
	out := make([]models.CanonicalTransaction, 0, len(raw))

	for i := range raw {
		rec := &raw[i]
		if err := rec.Validate(); err != nil {
			switch {
			case errors.Is(err, models.ErrMissingCustomer):
				stats.MissingCustomer++
			case errors.Is(err, models.ErrMissingTimestamp):
				stats.MissingTimestamp++
			}
			n.logger.WithError(err).WithField("source", rec.Source).Debug("Dropping record")
			continue
		}

		branch := n.branches.Canonicalize(rec.Branch)
		if branch == models.BranchOther {
			stats.OtherBranch++
		}
		if rec.Type == models.TransactionTypeCancel {
			stats.Cancellations++
		}
		out = append(out, models.NewCanonicalTransaction(*rec, branch))
	}

	stats.Kept = len(out)
	return out, stats
}
