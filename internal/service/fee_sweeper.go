package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-lms-api/pkg/jobs"
)

// JobMarkOverdue is the queue job type persisting OVERDUE on past-due fees.
const JobMarkOverdue = "fees.mark_overdue"

type overdueMarker interface {
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

// FeeSweeperConfig configures the overdue sweeper.
type FeeSweeperConfig struct {
	Schedule   string
	MaxRetries int
	RetryDelay time.Duration
}

// FeeSweeper enqueues an overdue sweep on a cron schedule and runs it on a single worker queue.
type FeeSweeper struct {
	marker   overdueMarker
	queue    *jobs.Queue
	cron     *cron.Cron
	schedule string
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
	inFlight atomic.Bool
}

// NewFeeSweeper wires the sweeper queue and its job handler.
func NewFeeSweeper(marker overdueMarker, metrics *MetricsService, logger *zap.Logger, cfg FeeSweeperConfig) *FeeSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@hourly"
	}
	s := &FeeSweeper{
		marker:   marker,
		schedule: cfg.Schedule,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		cron:     cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
	s.queue = jobs.NewQueue("fee-sweeper", jobs.QueueConfig{
		Workers:    1,
		BufferSize: 1,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		OnDone: func(job jobs.Job, err error) {
			s.inFlight.Store(false)
		},
	})
	s.queue.Register(JobMarkOverdue, s.handle)
	return s
}

// Start launches the worker queue and the cron schedule.
func (s *FeeSweeper) Start(ctx context.Context) error {
	s.queue.Start(ctx)
	if _, err := s.cron.AddFunc(s.schedule, s.Trigger); err != nil {
		s.queue.Stop()
		return fmt.Errorf("schedule fee sweeper: %w", err)
	}
	s.cron.Start()
	s.logger.Info("fee sweeper started", zap.String("schedule", s.schedule))
	return nil
}

// Stop halts the schedule, waits for a running trigger and drains the queue workers.
func (s *FeeSweeper) Stop() {
	<-s.cron.Stop().Done()
	s.queue.Stop()
}

// Trigger enqueues one sweep unless a previous one is still queued or running.
func (s *FeeSweeper) Trigger() {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("fee sweep still running, skipping")
		return
	}
	if err := s.queue.Enqueue(jobs.Job{Type: JobMarkOverdue}); err != nil {
		s.inFlight.Store(false)
		s.logger.Warn("failed to enqueue fee sweep", zap.Error(err))
	}
}

// RunOnce marks every PENDING fee due before today as OVERDUE.
func (s *FeeSweeper) RunOnce(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	affected, err := s.marker.MarkOverdue(ctx, today)
	s.metrics.RecordSweeperRun(err, affected)
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		s.logger.Info("fees marked overdue", zap.Int64("count", affected))
	}
	return affected, nil
}

func (s *FeeSweeper) handle(ctx context.Context, job jobs.Job) error {
	_, err := s.RunOnce(ctx)
	return err
}
