package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/buildbot-exporter/internal/logfields"
)

// Sweeper drops in-flight records older than a threshold.
type Sweeper interface {
	Sweep(ctx context.Context, olderThan time.Duration, now time.Time) int
}

// Scheduler wraps gocron scheduler for managing periodic housekeeping.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	stopOnce  sync.Once
	stopErr   error
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := gocron.NewScheduler(gocron.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler", slog.Int("jobs", len(s.scheduler.Jobs())))
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler, waiting for running jobs.
// Later calls return the first result.
func (s *Scheduler) Stop() error {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping scheduler")
		s.cancel()
		s.stopErr = s.scheduler.Shutdown()
	})
	return s.stopErr
}

// ScheduleSweep drops in-flight records older than staleAfter every
// interval. Returns the job ID.
func (s *Scheduler) ScheduleSweep(interval, staleAfter time.Duration, sweeper Sweeper) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.executeSweep, sweeper, staleAfter),
		gocron.WithName("tracker-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create sweep job: %w", err)
	}
	return job.ID().String(), nil
}

func (s *Scheduler) executeSweep(sweeper Sweeper, staleAfter time.Duration) {
	dropped := sweeper.Sweep(s.ctx, staleAfter, time.Now())
	if dropped > 0 {
		s.logger.Info("Dropped stale in-flight records",
			slog.Int("dropped", dropped),
			slog.Duration("stale_after", staleAfter))
	}
}

// ScheduleStats calls report every interval. Returns the job ID.
func (s *Scheduler) ScheduleStats(interval time.Duration, report func(ctx context.Context)) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Stats job panicked", logfields.Error(fmt.Errorf("%v", r)))
				}
			}()
			report(s.ctx)
		}),
		gocron.WithName("stats-log"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create stats job: %w", err)
	}
	return job.ID().String(), nil
}
