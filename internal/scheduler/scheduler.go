// Package scheduler runs every configured job forever, one at a time,
// waiting between jobs as long as the outcome of the last one requires.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"feedmirror/internal/cache"
	"feedmirror/internal/clock"
	"feedmirror/internal/types"
)

const DefaultIdleInterval = 10 * time.Second

// A job failing again with the same kind of error inside this window is
// logged at debug level only.
const repeatLogWindow = 10 * time.Minute

// Runner executes one job: fetch, reconcile, persist.
type Runner interface {
	RunJob(ctx context.Context, scope types.Scope) error
}

// Plan is read at the start of every pass so configuration changes apply
// without a restart.
type Plan interface {
	Jobs() []types.Scope
	Policy() Policy
	IdleInterval() time.Duration
}

type Scheduler struct {
	plan   Plan
	runner Runner
	clock  clock.Clock
	logger *zap.Logger

	failures *cache.Cache[types.Scope, types.Kind]
}

func New(plan Plan, runner Runner, clk clock.Clock, logger *zap.Logger) *Scheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		plan:     plan,
		runner:   runner,
		clock:    clk,
		logger:   logger,
		failures: cache.NewCache[types.Scope, types.Kind](cache.CacheConfig{TTL: repeatLogWindow}, types.Scope.String),
	}
}

// Run loops until ctx is cancelled. It never returns on job errors.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started")
	defer s.logger.Info("scheduler stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		jobs := s.plan.Jobs()
		if len(jobs) == 0 {
			idle := max(minDelay, s.plan.IdleInterval())
			s.logger.Debug("no jobs configured, idling", zap.Duration("for", idle))
			if err := s.clock.Sleep(ctx, idle); err != nil {
				return nil
			}
			continue
		}

		for _, job := range jobs {
			if ctx.Err() != nil {
				return nil
			}

			delay, _ := s.RunOnce(ctx, job, s.plan.Policy())
			if err := s.clock.Sleep(ctx, delay); err != nil {
				return nil
			}
		}
	}
}

// RunPass runs every current job once, pausing between jobs like Run. It
// returns the number of jobs run and how many of them failed.
func (s *Scheduler) RunPass(ctx context.Context) (ran, failed int) {
	jobs := s.plan.Jobs()
	policy := s.plan.Policy()
	for i, job := range jobs {
		if ctx.Err() != nil {
			return ran, failed
		}
		delay, err := s.RunOnce(ctx, job, policy)
		ran++
		if err != nil {
			failed++
		}
		if i == len(jobs)-1 {
			break
		}
		if err := s.clock.Sleep(ctx, delay); err != nil {
			return ran, failed
		}
	}
	return ran, failed
}

// RunOnce runs one job and returns the wait the policy assigns to its
// outcome, along with the job's error.
func (s *Scheduler) RunOnce(ctx context.Context, job types.Scope, policy Policy) (time.Duration, error) {
	log := s.logger.With(zap.String("collection", job.Collection), zap.String("channel_id", job.ChannelID))

	err := s.runner.RunJob(ctx, job)
	delay := policy.Delay(err)

	detail := types.Describe(err)
	last, repeated := s.failures.Get(job)
	repeated = repeated && last == detail.Kind

	switch {
	case err == nil:
		s.failures.InvalidateKey(job)
		log.Debug("job done", zap.Duration("next_in", delay))
	case errors.Is(err, context.Canceled):
		log.Debug("job interrupted")
	case detail.Kind == types.KindCooldown:
		log.Debug("local cooldown active", zap.Int("remaining_s", detail.Hint), zap.Duration("next_in", delay))
	case repeated:
		log.Debug("job still failing", zap.String("kind", string(detail.Kind)), zap.Error(err), zap.Duration("next_in", delay))
	case !detail.Retryable():
		s.failures.Set(job, detail.Kind)
		log.Error("job failed", zap.String("kind", string(detail.Kind)), zap.Error(err), zap.Duration("next_in", delay))
	default:
		s.failures.Set(job, detail.Kind)
		log.Warn("job failed", zap.String("kind", string(detail.Kind)), zap.Error(err), zap.Duration("next_in", delay))
	}

	return delay, err
}
