package scheduler

import (
	"context"
	"time"

	"recal/internal/logger"
)

// IntervalScheduler runs a task on a fixed cadence until the context
// is canceled. Task executions never overlap: a tick that arrives
// while the task is still running is skipped, not queued.
type IntervalScheduler struct {
	Interval       time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewIntervalScheduler(ctx context.Context, interval time.Duration) *IntervalScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &IntervalScheduler{
		Interval: interval,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start blocks until the scheduler's context is canceled.
func (s *IntervalScheduler) Start(task func(context.Context)) {
	if s == nil {
		return
	}
	if task == nil {
		logger.Warnf("IntervalScheduler: task is nil, exit")
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("IntervalScheduler: invalid interval=%s, exit", s.Interval)
		return
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	logger.Infof("IntervalScheduler: started interval=%s run_immediately=%v at=%s",
		s.Interval, s.RunImmediately, s.nowFn().UTC().Format(time.RFC3339))

	if s.RunImmediately {
		task(s.ctx)
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			logger.Infof("IntervalScheduler: stopped")
			return
		case <-ticker.C:
			task(s.ctx)
		}
	}
}
