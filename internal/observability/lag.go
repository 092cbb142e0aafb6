package observability

import (
	"time"

	"go.uber.org/zap"
)

// LagCatcher logs sections of work that take longer than a threshold.
//
// LagCatcher is safe for concurrent use.
type LagCatcher struct {
	logger    *zap.Logger
	threshold func() time.Duration
	now       func() time.Time
}

// NewLagCatcher creates a LagCatcher. threshold is consulted on every
// measurement so reloaded settings apply at once; a negative threshold
// disables reporting.
//
// Precondition: logger and threshold must be non-nil.
func NewLagCatcher(logger *zap.Logger, threshold func() time.Duration) *LagCatcher {
	return &LagCatcher{logger: logger, threshold: threshold, now: time.Now}
}

// SetClock replaces the clock used for measurements.
func (l *LagCatcher) SetClock(now func() time.Time) { l.now = now }

// Measure starts timing section. The returned func stops the timer, logs a
// warning when the threshold was exceeded and returns the elapsed time.
func (l *LagCatcher) Measure(section string) func() time.Duration {
	start := l.now()
	return func() time.Duration {
		elapsed := l.now().Sub(start)
		if limit := l.threshold(); limit >= 0 && elapsed > limit {
			l.logger.Warn("section took longer than the lag threshold",
				zap.String("section", section),
				zap.Duration("elapsed", elapsed),
				zap.Duration("threshold", limit),
			)
		}
		return elapsed
	}
}
