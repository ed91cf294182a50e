package summary

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
	"github.com/dabonzo/sslmonitor-sub001/internal/sslcert"
)

const defaultBatchSize = 200

type targetLister interface {
	ListActiveTargetsPage(ctx context.Context, offset, limit int) ([]*models.MonitoredTarget, error)
}

type resultReader interface {
	ListResultsInWindow(ctx context.Context, targetID int, from, to time.Time) ([]*models.CheckResult, error)
}

type summaryWriter interface {
	UpsertSummary(ctx context.Context, s *models.CheckSummary) error
}

// Aggregator rolls raw check results up into per-period statistics. Runs are
// idempotent: recomputing a period overwrites the existing summary row for
// the same (target, period type, period start) key.
type Aggregator struct {
	targets   targetLister
	results   resultReader
	summaries summaryWriter
	logger    *zap.Logger
	batchSize int
}

// NewAggregator creates a summary aggregator.
func NewAggregator(targets targetLister, results resultReader, summaries summaryWriter, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		targets:   targets,
		results:   results,
		summaries: summaries,
		logger:    logger,
		batchSize: defaultBatchSize,
	}
}

// Aggregate computes summaries of the given period type for the calendar
// period containing ref. Targets are processed in batches; a failure on one
// target is logged and does not stop the rest. Periods with no results
// produce no row.
func (a *Aggregator) Aggregate(ctx context.Context, periodType string, ref time.Time) error {
	start, end, err := periodWindow(periodType, ref)
	if err != nil {
		return err
	}

	written := 0
	for offset := 0; ; offset += a.batchSize {
		targets, err := a.targets.ListActiveTargetsPage(ctx, offset, a.batchSize)
		if err != nil {
			return fmt.Errorf("listing targets: %w", err)
		}
		if len(targets) == 0 {
			break
		}
		for _, target := range targets {
			if err := ctx.Err(); err != nil {
				return err
			}
			results, err := a.results.ListResultsInWindow(ctx, target.ID, start, end)
			if err != nil {
				a.logger.Error("loading results for aggregation failed",
					zap.Int("target_id", target.ID),
					zap.String("period_type", periodType),
					zap.Error(err))
				continue
			}
			if len(results) == 0 {
				continue
			}
			sum := computeSummary(target, periodType, start, end, results)
			if err := a.summaries.UpsertSummary(ctx, sum); err != nil {
				a.logger.Error("writing summary failed",
					zap.Int("target_id", target.ID),
					zap.String("period_type", periodType),
					zap.Error(err))
				continue
			}
			written++
		}
		if len(targets) < a.batchSize {
			break
		}
	}

	a.logger.Info("aggregation pass finished",
		zap.String("period_type", periodType),
		zap.Time("period_start", start),
		zap.Int("summaries", written))
	return nil
}

// periodWindow returns the UTC calendar period of the given type containing
// ref. Weeks start on Monday.
func periodWindow(periodType string, ref time.Time) (time.Time, time.Time, error) {
	ref = ref.UTC()
	switch periodType {
	case models.PeriodHourly:
		start := ref.Truncate(time.Hour)
		return start, start.Add(time.Hour), nil
	case models.PeriodDaily:
		start := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1), nil
	case models.PeriodWeekly:
		day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), nil
	case models.PeriodMonthly:
		start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unknown period type %q", periodType)
}

func computeSummary(target *models.MonitoredTarget, periodType string, start, end time.Time, results []*models.CheckResult) *models.CheckSummary {
	sum := &models.CheckSummary{
		TargetID:    target.ID,
		WebsiteID:   target.WebsiteID,
		PeriodType:  periodType,
		PeriodStart: start,
		PeriodEnd:   end,
		TotalChecks: len(results),
	}

	var responseTimes []int
	for _, r := range results {
		if r.HasUptime() {
			sum.UptimeChecks++
			if *r.UptimeStatus == models.UptimeStatusUp {
				sum.UptimeSuccessful++
			} else {
				sum.UptimeFailed++
			}
			if r.ResponseTimeMs != nil {
				responseTimes = append(responseTimes, *r.ResponseTimeMs)
			}
		}
		if r.HasCertificate() {
			sum.SSLChecks++
			switch *r.SSLStatus {
			case string(sslcert.StatusValid):
				sum.SSLSuccessful++
			case string(sslcert.StatusExpiresSoon):
				sum.SSLSuccessful++
				sum.CertsExpiring++
			case string(sslcert.StatusExpired):
				sum.SSLFailed++
				sum.CertsExpired++
			default:
				sum.SSLFailed++
			}
		}
		if r.ContentCheckPassed != nil {
			if *r.ContentCheckPassed {
				sum.ContentPassed++
			} else {
				sum.ContentFailed++
			}
		}
	}

	if sum.UptimeChecks > 0 {
		pct := float64(sum.UptimeSuccessful) / float64(sum.UptimeChecks) * 100
		sum.UptimePercentage = math.Round(pct*100) / 100
	}

	if len(responseTimes) > 0 {
		sort.Ints(responseTimes)
		sum.ResponseTimeMinMs = responseTimes[0]
		sum.ResponseTimeMaxMs = responseTimes[len(responseTimes)-1]
		total := 0
		for _, ms := range responseTimes {
			total += ms
		}
		sum.ResponseTimeAvgMs = math.Round(float64(total)/float64(len(responseTimes))*100) / 100
		sum.ResponseTimeP95Ms = percentile(responseTimes, 95)
		sum.ResponseTimeP99Ms = percentile(responseTimes, 99)
	}
	return sum
}

// percentile returns the nearest-rank percentile of a sorted sample.
func percentile(sorted []int, p int) int {
	rank := int(math.Ceil(float64(p) / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
