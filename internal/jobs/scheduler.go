package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/dabonzo/sslmonitor-sub001/internal/config"
	"github.com/dabonzo/sslmonitor-sub001/internal/models"
	"github.com/dabonzo/sslmonitor-sub001/internal/storage"
	"github.com/dabonzo/sslmonitor-sub001/internal/summary"
)

type checkTicker interface {
	Tick(ctx context.Context) error
}

// Scheduler manages background jobs: the minute check tick, the aggregation
// passes and data retention cleanup.
type Scheduler struct {
	cron       *cron.Cron
	checks     checkTicker
	aggregator *summary.Aggregator
	results    storage.ResultStore
	summaries  storage.SummaryStore
	retention  config.RetentionConfig
	logger     *zap.Logger
}

// NewScheduler creates a new job scheduler
func NewScheduler(checks checkTicker, aggregator *summary.Aggregator, results storage.ResultStore, summaries storage.SummaryStore, retention config.RetentionConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		checks:     checks,
		aggregator: aggregator,
		results:    results,
		summaries:  summaries,
		retention:  retention,
		logger:     logger,
	}
}

// Start registers and starts all background jobs.
func (s *Scheduler) Start(ctx context.Context) {
	// Enqueue due checks every minute.
	s.cron.AddFunc("* * * * *", func() {
		if err := s.checks.Tick(ctx); err != nil {
			s.logger.Error("check tick failed", zap.Error(err))
		}
	})

	// Each aggregation pass recomputes the period that just closed; the
	// hourly job also refreshes the still-open daily period so dashboards
	// stay current.
	s.cron.AddFunc("5 * * * *", func() {
		now := time.Now().UTC()
		s.aggregate(ctx, models.PeriodHourly, now.Add(-time.Hour))
		s.aggregate(ctx, models.PeriodDaily, now)
	})
	s.cron.AddFunc("15 2 * * *", func() {
		now := time.Now().UTC()
		s.aggregate(ctx, models.PeriodDaily, now.AddDate(0, 0, -1))
		s.aggregate(ctx, models.PeriodWeekly, now)
		s.aggregate(ctx, models.PeriodMonthly, now)
	})
	s.cron.AddFunc("30 2 * * 1", func() {
		s.aggregate(ctx, models.PeriodWeekly, time.Now().UTC().AddDate(0, 0, -7))
	})
	s.cron.AddFunc("45 2 1 * *", func() {
		s.aggregate(ctx, models.PeriodMonthly, time.Now().UTC().AddDate(0, -1, 0))
	})

	// Retention cleanup daily at 3:14 AM.
	s.cron.AddFunc("14 3 * * *", func() {
		s.cleanup(ctx)
	})

	s.cron.Start()
	s.logger.Info("job scheduler started")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("job scheduler stopped")
}

func (s *Scheduler) aggregate(ctx context.Context, periodType string, ref time.Time) {
	if err := s.aggregator.Aggregate(ctx, periodType, ref); err != nil {
		s.logger.Error("aggregation failed",
			zap.String("period_type", periodType),
			zap.Error(err))
	}
}

// cleanup enforces the retention windows for raw results and summaries.
func (s *Scheduler) cleanup(ctx context.Context) {
	now := time.Now().UTC()

	deleted, err := s.results.DeleteResultsBefore(ctx, now.AddDate(0, 0, -s.retention.ResultDays))
	if err != nil {
		s.logger.Error("check result cleanup failed", zap.Error(err))
	} else if deleted > 0 {
		s.logger.Info("old check results deleted", zap.Int64("rows", deleted))
	}

	hourly, err := s.summaries.DeleteSummariesBefore(ctx, models.PeriodHourly, now.AddDate(0, 0, -s.retention.HourlySummaryDays))
	if err != nil {
		s.logger.Error("hourly summary cleanup failed", zap.Error(err))
	} else if hourly > 0 {
		s.logger.Info("old hourly summaries deleted", zap.Int64("rows", hourly))
	}

	daily, err := s.summaries.DeleteSummariesBefore(ctx, models.PeriodDaily, now.AddDate(0, 0, -s.retention.DailySummaryDays))
	if err != nil {
		s.logger.Error("daily summary cleanup failed", zap.Error(err))
	} else if daily > 0 {
		s.logger.Info("old daily summaries deleted", zap.Int64("rows", daily))
	}
}
