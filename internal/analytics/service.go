package analytics

import (
	"context"
	"sync"
	"time"

	"golang-branch-analytics/pkg/logger"
)

// DefaultTTL is how long a computed table is served before recomputation
const DefaultTTL = 10 * time.Minute

// Runner produces a fresh result
type Runner interface {
	Run(ctx context.Context) (*Result, error)
}

// Service memoizes the last successful run for a fixed time. Concurrent
// callers share one recomputation; failed runs are never cached.
type Service struct {
	runner Runner
	ttl    time.Duration
	logger logger.Logger
	now    func() time.Time

	mu         sync.Mutex
	last       *Result
	computedAt time.Time
}

// NewService creates a caching service around runner. A non-positive ttl
// uses DefaultTTL.
func NewService(runner Runner, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		runner: runner,
		ttl:    ttl,
		logger: logger.GetGlobalLogger().WithComponent("analytics_service"),
		now:    time.Now,
	}
}

// Get returns the cached result while it is fresh and recomputes it
// otherwise, along with the time the returned result goes stale
func (s *Service) Get(ctx context.Context) (*Result, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.last != nil && now.Sub(s.computedAt) < s.ttl {
		s.logger.WithFields(logger.Fields{
			"run_id": s.last.RunID,
			"age":    now.Sub(s.computedAt).String(),
		}).Debug("Serving cached metrics")
		return s.last, s.computedAt.Add(s.ttl), nil
	}

	result, err := s.runner.Run(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}

	s.last = result
	s.computedAt = now
	s.logger.WithFields(logger.Fields{
		"run_id": result.RunID,
		"ttl":    s.ttl.String(),
	}).Info("Metrics recomputed")
	return result, now.Add(s.ttl), nil
}

// Invalidate drops the cached result so the next Get recomputes
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = nil
	s.computedAt = time.Time{}
}

// TTL returns the expiry duration
func (s *Service) TTL() time.Duration {
	return s.ttl
}
