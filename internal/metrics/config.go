// Package metrics computes the per-branch, per-month customer analytics
// table from a customer timeline.
//
// For every reportable branch and every month label present in the
// dataset the engine derives revenue, visitor counts, the new/returning
// split, regular and loyal segments, conversion of new visitors, visit
// frequency, churn and retention of repeat customers.
//
// Example usage:
//
//	engine, err := metrics.NewEngine(metrics.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	table := engine.Compute(timeline)
package metrics

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

// Config holds the segmentation thresholds of the metrics engine
type Config struct {
	// ChurnWindow is how long before the latest transaction of the dataset
	// a repeat customer's last visit must lie to count as churned.
	ChurnWindow time.Duration `json:"churn_window" mapstructure:"churn_window"`

	// ConversionWindow bounds the gap between first and second visit for
	// the short-term conversion rate.
	ConversionWindow time.Duration `json:"conversion_window" mapstructure:"conversion_window"`

	// LoyalMinVisits is the lifetime visit count from which a customer is loyal.
	LoyalMinVisits int `json:"loyal_min_visits" mapstructure:"loyal_min_visits"`

	// RegularMinVisits and RegularMaxVisits bound the potential regular segment.
	RegularMinVisits int `json:"regular_min_visits" mapstructure:"regular_min_visits"`
	RegularMaxVisits int `json:"regular_max_visits" mapstructure:"regular_max_visits"`
}

// DefaultConfig returns the thresholds used by the store network
func DefaultConfig() *Config {
	return &Config{
		ChurnWindow:      90 * day,
		ConversionWindow: 90 * day,
		LoyalMinVisits:   4,
		RegularMinVisits: 2,
		RegularMaxVisits: 3,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ChurnWindow <= 0 {
		return fmt.Errorf("churn window must be positive, got %s", c.ChurnWindow)
	}
	if c.ConversionWindow <= 0 {
		return fmt.Errorf("conversion window must be positive, got %s", c.ConversionWindow)
	}
	if c.RegularMinVisits < 2 {
		return fmt.Errorf("regular min visits must be at least 2, got %d", c.RegularMinVisits)
	}
	if c.RegularMaxVisits < c.RegularMinVisits {
		return fmt.Errorf("regular max visits (%d) cannot be less than regular min visits (%d)",
			c.RegularMaxVisits, c.RegularMinVisits)
	}
	if c.LoyalMinVisits <= c.RegularMaxVisits {
		return fmt.Errorf("loyal min visits (%d) must exceed regular max visits (%d)",
			c.LoyalMinVisits, c.RegularMaxVisits)
	}
	return nil
}
