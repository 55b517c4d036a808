package lifecycle

import (
	"fmt"
	"sort"
	"time"

	"golang-branch-analytics/internal/models"
	"golang-branch-analytics/pkg/logger"
)

// DefaultDedupWindow is the maximum gap between two swipes of the same
// customer at the same branch that still counts as one visit
const DefaultDedupWindow = 30 * time.Minute

// DedupConfig configures the deduplicator
type DedupConfig struct {
	Window time.Duration `json:"window" mapstructure:"window"`
}

// DefaultDedupConfig returns the default deduplication settings
func DefaultDedupConfig() *DedupConfig {
	return &DedupConfig{Window: DefaultDedupWindow}
}

// Validate validates the deduplication settings
func (c *DedupConfig) Validate() error {
	if c.Window < 0 {
		return fmt.Errorf("dedup window cannot be negative, got %s", c.Window)
	}
	return nil
}

// DedupStats counts the records removed by the deduplicator
type DedupStats struct {
	Input     int `json:"input"`
	Kept      int `json:"kept"`
	Discarded int `json:"discarded"`
	Groups    int `json:"groups"`
}

// Deduplicator collapses repeated swipes within a time window
type Deduplicator struct {
	config *DedupConfig
	logger logger.Logger
}

// NewDeduplicator creates a deduplicator
func NewDeduplicator(config *DedupConfig) (*Deduplicator, error) {
	if config == nil {
		config = DefaultDedupConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Deduplicator{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("deduplicator"),
	}, nil
}

// Deduplicate groups transactions by (branch, customer), orders each group
// chronologically and discards every record that follows its immediate
// predecessor by at most the window. The gap is measured against the
// predecessor in the unfiltered group, so a run of swipes each within the
// window of the previous one keeps only its first record.
//
// The input slice is not modified. The output is in group order.
func (d *Deduplicator) Deduplicate(txs []models.CanonicalTransaction) ([]models.CanonicalTransaction, DedupStats) {
	stats := DedupStats{Input: len(txs)}

	sorted := make([]models.CanonicalTransaction, len(txs))
	copy(sorted, txs)
	sortByGroup(sorted)

	out := make([]models.CanonicalTransaction, 0, len(sorted))
	for i := range sorted {
		cur := &sorted[i]
		if i == 0 || sorted[i-1].Key() != cur.Key() {
			stats.Groups++
			out = append(out, *cur)
			continue
		}
		if cur.Timestamp.Sub(sorted[i-1].Timestamp) <= d.config.Window {
			stats.Discarded++
			continue
		}
		out = append(out, *cur)
	}

	stats.Kept = len(out)
	d.logger.WithFields(logger.Fields{
		"input":     stats.Input,
		"kept":      stats.Kept,
		"discarded": stats.Discarded,
		"window":    d.config.Window.String(),
	}).Debug("Deduplication completed")

	return out, stats
}

// sortByGroup orders transactions by branch, customer, timestamp and
// finally ingestion sequence so equal timestamps resolve deterministically
func sortByGroup(txs []models.CanonicalTransaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := &txs[i], &txs[j]
		if ka, kb := a.Key(), b.Key(); ka != kb {
			return ka.Less(kb)
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Sequence < b.Sequence
	})
}
