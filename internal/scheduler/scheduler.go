// Package scheduler runs the periodic background passes: matchmaking and the
// stale session sweep.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

type Scheduler struct {
	sched gocron.Scheduler
	ctx   context.Context
	log   *zap.Logger
}

// New builds a stopped scheduler. Jobs receive ctx, which should be cancelled
// on shutdown.
func New(ctx context.Context, log *zap.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}
	return &Scheduler{sched: sched, ctx: ctx, log: log.Named("scheduler")}, nil
}

// Every runs fn every interval. A run that is still going when the next one
// is due causes that tick to be skipped.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if s.ctx.Err() != nil {
				return
			}
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("job panicked", zap.String("job", name), zap.Any("panic", r))
				}
			}()
			fn(s.ctx)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	s.log.Info("job scheduled", zap.String("job", name), zap.Duration("interval", interval))
	return nil
}

func (s *Scheduler) Start() { s.sched.Start() }

// Shutdown waits for running jobs to return.
func (s *Scheduler) Shutdown() error { return s.sched.Shutdown() }
