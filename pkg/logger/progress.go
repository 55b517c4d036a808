package logger

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ProgressTracker counts work units of an operation and logs throttled
// progress updates. Add is safe for concurrent use.
type ProgressTracker struct {
	logger   Logger
	total    int64
	current  atomic.Int64
	started  time.Time
	interval time.Duration

	mu      sync.Mutex
	lastLog time.Time
}

// ProgressConfig configures a ProgressTracker
type ProgressConfig struct {
	Operation   string
	Total       int64
	LogInterval time.Duration
	Logger      Logger
}

// NewProgressTracker creates a tracker. Progress is logged at most once
// per LogInterval, five seconds when unset.
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	log := config.Logger
	if log == nil {
		log = GetGlobalLogger()
	}
	if config.LogInterval <= 0 {
		config.LogInterval = 5 * time.Second
	}

	now := time.Now()
	p := &ProgressTracker{
		logger:   log.WithField("operation", config.Operation),
		total:    config.Total,
		started:  now,
		interval: config.LogInterval,
		lastLog:  now,
	}
	p.logger.WithField("total", config.Total).Debug("Starting operation")
	return p
}

// Add records delta finished units
func (p *ProgressTracker) Add(delta int64) {
	current := p.current.Add(delta)

	p.mu.Lock()
	due := time.Since(p.lastLog) >= p.interval
	if due {
		p.lastLog = time.Now()
	}
	p.mu.Unlock()

	if due {
		p.logger.WithFields(p.fields(current)).Info("Progress update")
	}
}

// Current returns the number of finished units
func (p *ProgressTracker) Current() int64 {
	return p.current.Load()
}

// Complete logs the final count and the elapsed time
func (p *ProgressTracker) Complete() {
	fields := p.fields(p.current.Load())
	fields["duration"] = time.Since(p.started).String()
	p.logger.WithFields(fields).Info("Operation completed")
}

func (p *ProgressTracker) fields(current int64) Fields {
	fields := Fields{"processed": current}
	if p.total > 0 {
		fields["total"] = p.total
		fields["percentage"] = fmt.Sprintf("%.1f%%", float64(current)/float64(p.total)*100)
	}
	return fields
}

// OperationLogger logs the stages of one multi-step operation. Each Step
// entry carries the time spent since the previous step.
type OperationLogger struct {
	logger   Logger
	started  time.Time
	lastStep time.Time
}

// NewOperationLogger starts timing operation
func NewOperationLogger(operation string, log Logger) *OperationLogger {
	if log == nil {
		log = GetGlobalLogger()
	}
	now := time.Now()
	ol := &OperationLogger{
		logger:   log.WithField("operation", operation),
		started:  now,
		lastStep: now,
	}
	ol.logger.Debug("Starting operation")
	return ol
}

// Step logs a finished stage with its fields
func (ol *OperationLogger) Step(step string, fields Fields) {
	now := time.Now()
	entry := Fields{"step": step, "step_duration": now.Sub(ol.lastStep).String()}
	for k, v := range fields {
		entry[k] = v
	}
	ol.lastStep = now
	ol.logger.WithFields(entry).Info("Operation step")
}

// Success logs the end of a successful operation
func (ol *OperationLogger) Success(message string) {
	ol.logger.WithFields(Fields{
		"duration": time.Since(ol.started).String(),
		"status":   "success",
	}).Info(message)
}

// Error logs the end of a failed operation
func (ol *OperationLogger) Error(err error, message string) {
	ol.logger.WithError(err).WithFields(Fields{
		"duration": time.Since(ol.started).String(),
		"status":   "error",
	}).Error(message)
}

// TimedOperation runs fn and logs its outcome and duration
func TimedOperation(operation string, log Logger, fn func() error) error {
	ol := NewOperationLogger(operation, log)
	err := fn()
	if err != nil {
		ol.Error(err, "Operation failed")
		return err
	}
	ol.Success("Operation completed successfully")
	return nil
}
