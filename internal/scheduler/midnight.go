// Package scheduler runs housekeeping jobs on a daily UTC-midnight cadence.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Job is one unit of scheduled work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// MidnightRunner runs its jobs once at start, then at every UTC midnight.
type MidnightRunner struct {
	Jobs   []Job
	Logger *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Start blocks until ctx is cancelled.
func (m *MidnightRunner) Start(ctx context.Context) error {
	now := m.Now
	if now == nil {
		now = time.Now
	}

	m.runOnce(ctx)
	for {
		timer := time.NewTimer(time.Until(NextMidnight(now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			m.runOnce(ctx)
		}
	}
}

func (m *MidnightRunner) runOnce(ctx context.Context) {
	for _, job := range m.Jobs {
		started := time.Now()
		if err := job.Run(ctx); err != nil {
			m.Logger.Warn("scheduled job failed", zap.String("job", job.Name), zap.Error(err))
			continue
		}
		m.Logger.Info("scheduled job done", zap.String("job", job.Name), zap.Duration("took", time.Since(started)))
	}
}

// NextMidnight returns the first UTC midnight strictly after t.
func NextMidnight(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
}
