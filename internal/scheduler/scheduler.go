package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimeticks/internal/domain"
	"github.com/hamed0406/uptimeticks/internal/observability"
	"github.com/hamed0406/uptimeticks/internal/registry"
)

// Scheduler fires a probing round every Interval. Rounds run inline, so a
// slow round delays the next one and ticks missed meanwhile collapse into one.
type Scheduler struct {
	Logger   *zap.Logger
	Registry registry.Registry
	Executor *Executor
	Interval time.Duration
	Metrics  *observability.Metrics
}

func NewScheduler(logger *zap.Logger, reg registry.Registry, exec *Executor, interval time.Duration) *Scheduler {
	if interval < 0 {
		interval = 0
	}
	return &Scheduler{
		Logger:   logger,
		Registry: reg,
		Executor: exec,
		Interval: interval,
		Metrics:  exec.Metrics,
	}
}

// Run does an immediate round, then one per tick, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if s.Interval == 0 {
		s.Logger.Info("scheduler_disabled")
		return
	}
	t := time.NewTicker(s.Interval)
	defer t.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("scheduler_stopped")
			return
		case <-t.C:
			s.RunOnce(ctx)
		}
	}
}

// Start runs the scheduler in the background. The returned channel is
// closed once Run has returned and the last round has fully drained.
func (s *Scheduler) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	return done
}

// RunOnce fetches a fresh registry snapshot and probes it. A registry
// failure aborts this round only.
func (s *Scheduler) RunOnce(ctx context.Context) ([]domain.ProbeResult, error) {
	s.Metrics.RoundStarted()
	start := time.Now()

	targets, err := s.Registry.ListTargets(ctx)
	if err != nil {
		s.Metrics.RoundAborted()
		s.Logger.Warn("round_aborted", zap.Error(err))
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}

	results := s.Executor.RunRound(ctx, targets)

	down := 0
	for _, r := range results {
		if r.Down() {
			down++
		}
	}
	s.Logger.Info("round_done",
		zap.Int("targets", len(targets)),
		zap.Int("probed", len(results)),
		zap.Int("down", down),
		zap.Duration("took", time.Since(start)),
	)
	return results, nil
}
