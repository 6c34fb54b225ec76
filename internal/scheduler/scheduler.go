// Package scheduler runs the relay's housekeeping jobs on fixed intervals.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/lojasmm/feishubot/internal/logging"
)

const slowJobThreshold = 5 * time.Second

// Scheduler wraps a gocron scheduler. Jobs receive a context that is
// canceled by Stop.
type Scheduler struct {
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	log       zerolog.Logger
}

func New(log zerolog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(logging.NewGocronLogger(log)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{scheduler: s, ctx: ctx, cancel: cancel, log: log}, nil
}

// Every schedules job to run once per interval. A run that overlaps the
// previous one is skipped.
func (s *Scheduler) Every(name string, interval time.Duration, job func(ctx context.Context) error) error {
	if name == "" {
		return errors.New("empty job name")
	}
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	if job == nil {
		return errors.New("nil job function")
	}

	run := func() {
		start := time.Now()
		err := job(s.ctx)
		elapsed := time.Since(start)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			s.log.Error().Err(err).Str("job", name).Msg("scheduled job failed")
		case elapsed > slowJobThreshold:
			s.log.Warn().Str("job", name).Dur("duration", elapsed).Msg("slow scheduled job")
		}
	}

	j, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(run),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	ev := s.log.Info().Str("job", name).Dur("interval", interval)
	if next, err := j.NextRun(); err == nil {
		ev = ev.Time("next_run", next)
	}
	ev.Msg("job scheduled")
	return nil
}

func (s *Scheduler) Start() {
	s.scheduler.Start()
	s.log.Debug().Int("jobs", len(s.scheduler.Jobs())).Msg("scheduler started")
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	return nil
}
