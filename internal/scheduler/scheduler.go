// Package scheduler drives the periodic full refresh of the savings table.
//
// Three layers of protection keep refreshes from overlapping:
//   - cron fires on a fixed interval, never concurrently with itself
//   - a singleflight group collapses manual triggers into any run already
//     in flight within this process
//   - a Postgres advisory lock holds off other instances of the service
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"timesaver/internal/ingest"
)

// runTimeout bounds a single refresh run end to end.
const runTimeout = 10 * time.Minute

// singleflight key for refresh runs; there is only ever one kind of run.
const refreshKey = "refresh"

// Pipeline is the refresh operation the scheduler drives.
type Pipeline interface {
	Run(ctx context.Context) ingest.RefreshResult
}

// Locker provides cluster-wide mutual exclusion around a refresh run.
type Locker interface {
	WithRefreshLock(ctx context.Context, fn func(ctx context.Context)) (bool, error)
}

// Scheduler runs the refresh pipeline on a fixed interval and serves manual
// triggers through the same singleflight gate.
type Scheduler struct {
	pipeline Pipeline
	locker   Locker
	interval time.Duration
	cron     *cron.Cron
	group    singleflight.Group
	logger   *slog.Logger
}

// New creates a Scheduler; call Start to begin the interval runs.
func New(pipeline Pipeline, locker Locker, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		pipeline: pipeline,
		locker:   locker,
		interval: interval,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start registers the interval job and launches the cron loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc("@every "+s.interval.String(), s.tick)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("refresh scheduler started", "interval", s.interval.String())
	return nil
}

// Stop halts the cron loop and waits for a running job to finish or the
// context to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		s.logger.Warn("shutdown deadline reached while a refresh was still running")
	}
	s.logger.Info("refresh scheduler stopped")
}

func (s *Scheduler) tick() {
	result := s.Trigger(context.Background())
	if result.Status != ingest.StatusSuccess {
		s.logger.Error("scheduled refresh failed", "message", result.Message)
	}
}

// Trigger runs the pipeline now, deduplicated against any run already in
// flight: a trigger that arrives mid-run receives that run's result instead
// of starting another. When another instance of the service holds the
// cluster lock, the run is skipped and reported as a failure.
func (s *Scheduler) Trigger(ctx context.Context) ingest.RefreshResult {
	v, _, shared := s.group.Do(refreshKey, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), runTimeout)
		defer cancel()

		var result ingest.RefreshResult
		acquired, err := s.locker.WithRefreshLock(runCtx, func(ctx context.Context) {
			result = s.pipeline.Run(ctx)
		})
		if err != nil {
			return ingest.RefreshResult{Status: ingest.StatusFail, Message: err.Error()}, nil
		}
		if !acquired {
			s.logger.Info("refresh already running on another instance; skipping")
			return ingest.RefreshResult{
				Status:  ingest.StatusFail,
				Message: "a refresh is already running on another instance",
			}, nil
		}
		return result, nil
	})

	if shared {
		s.logger.Debug("refresh trigger joined an in-flight run")
	}
	return v.(ingest.RefreshResult)
}
