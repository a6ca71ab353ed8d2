package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler refreshes the cache periodically.
type Scheduler struct {
	cache     *Cache
	interval  time.Duration
	scheduler gocron.Scheduler
}

// NewScheduler creates a scheduler that refreshes cache every interval.
func NewScheduler(cache *Cache, interval time.Duration) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &Scheduler{
		cache:     cache,
		interval:  interval,
		scheduler: s,
	}, nil
}

// Start registers the refresh job, runs it immediately and then every interval.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if _, err := s.cache.Refresh(ctx); err != nil {
				slog.Error("scheduled refresh failed", "error", err)
			}
		}),
		gocron.WithName("refresh snapshot"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("register refresh job: %w", err)
	}

	s.scheduler.Start()
	slog.Info("snapshot scheduler started", "interval", s.interval)
	return nil
}

// Stop waits for a running refresh to finish and stops the scheduler.
func (s *Scheduler) Stop() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	slog.Info("snapshot scheduler stopped")
	return nil
}
