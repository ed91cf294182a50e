package summary

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
)

type fakeTargetLister struct {
	targets []*models.MonitoredTarget
}

func (f *fakeTargetLister) ListActiveTargetsPage(_ context.Context, offset, limit int) ([]*models.MonitoredTarget, error) {
	if offset >= len(f.targets) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.targets) {
		end = len(f.targets)
	}
	return f.targets[offset:end], nil
}

type fakeResultReader struct {
	byTarget map[int][]*models.CheckResult
}

func (f *fakeResultReader) ListResultsInWindow(_ context.Context, targetID int, from, to time.Time) ([]*models.CheckResult, error) {
	var out []*models.CheckResult
	for _, r := range f.byTarget[targetID] {
		if !r.CompletedAt.Before(from) && r.CompletedAt.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeSummaryWriter struct {
	rows map[string]*models.CheckSummary
}

func summaryKey(s *models.CheckSummary) string {
	return fmt.Sprintf("%d/%d/%s/%s", s.TargetID, s.WebsiteID, s.PeriodType, s.PeriodStart.Format(time.RFC3339))
}

func (f *fakeSummaryWriter) UpsertSummary(_ context.Context, s *models.CheckSummary) error {
	if f.rows == nil {
		f.rows = make(map[string]*models.CheckSummary)
	}
	f.rows[summaryKey(s)] = s
	return nil
}

func upResult(completedAt time.Time, responseMs int) *models.CheckResult {
	status := models.UptimeStatusUp
	return &models.CheckResult{
		CheckType:      models.CheckTypeUptime,
		Status:         models.CheckStatusSuccess,
		CompletedAt:    completedAt,
		UptimeStatus:   &status,
		ResponseTimeMs: &responseMs,
	}
}

func downResult(completedAt time.Time) *models.CheckResult {
	status := models.UptimeStatusDown
	return &models.CheckResult{
		CheckType:    models.CheckTypeUptime,
		Status:       models.CheckStatusFailed,
		CompletedAt:  completedAt,
		UptimeStatus: &status,
	}
}

func sslSummaryResult(completedAt time.Time, sslStatus string) *models.CheckResult {
	return &models.CheckResult{
		CheckType:   models.CheckTypeSSL,
		Status:      models.CheckStatusSuccess,
		CompletedAt: completedAt,
		SSLStatus:   &sslStatus,
	}
}

func TestPeriodWindow(t *testing.T) {
	ref := time.Date(2025, 6, 15, 14, 37, 12, 0, time.UTC) // a Sunday

	tests := []struct {
		periodType string
		wantStart  time.Time
		wantEnd    time.Time
	}{
		{models.PeriodHourly, time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC), time.Date(2025, 6, 15, 15, 0, 0, 0, time.UTC)},
		{models.PeriodDaily, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)},
		{models.PeriodWeekly, time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)},
		{models.PeriodMonthly, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.periodType, func(t *testing.T) {
			start, end, err := periodWindow(tt.periodType, ref)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}

	// A Monday belongs to the week it starts.
	start, _, err := periodWindow(models.PeriodWeekly, time.Date(2025, 6, 9, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), start)

	_, _, err = periodWindow("fortnightly", ref)
	assert.Error(t, err)
}

func TestAggregateComputesUptimeStatistics(t *testing.T) {
	target := &models.MonitoredTarget{ID: 1, WebsiteID: 2, Active: true}
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	reader := &fakeResultReader{byTarget: map[int][]*models.CheckResult{
		1: {
			upResult(base.Add(5*time.Minute), 100),
			upResult(base.Add(15*time.Minute), 300),
			downResult(base.Add(25 * time.Minute)),
		},
	}}
	writer := &fakeSummaryWriter{}
	a := NewAggregator(&fakeTargetLister{targets: []*models.MonitoredTarget{target}}, reader, writer, zap.NewNop())

	require.NoError(t, a.Aggregate(context.Background(), models.PeriodHourly, base.Add(30*time.Minute)))

	require.Len(t, writer.rows, 1)
	var sum *models.CheckSummary
	for _, s := range writer.rows {
		sum = s
	}
	assert.Equal(t, 3, sum.TotalChecks)
	assert.Equal(t, 3, sum.UptimeChecks)
	assert.Equal(t, 2, sum.UptimeSuccessful)
	assert.Equal(t, 1, sum.UptimeFailed)
	assert.Equal(t, 66.67, sum.UptimePercentage)
	assert.Equal(t, 100, sum.ResponseTimeMinMs)
	assert.Equal(t, 300, sum.ResponseTimeMaxMs)
	assert.Equal(t, 200.0, sum.ResponseTimeAvgMs)
}

func TestAggregateCountsCertificateOutcomes(t *testing.T) {
	target := &models.MonitoredTarget{ID: 1, WebsiteID: 2, Active: true}
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	reader := &fakeResultReader{byTarget: map[int][]*models.CheckResult{
		1: {
			sslSummaryResult(base.Add(time.Minute), "valid"),
			sslSummaryResult(base.Add(2*time.Minute), "expires_soon"),
			sslSummaryResult(base.Add(3*time.Minute), "expired"),
			sslSummaryResult(base.Add(4*time.Minute), "invalid"),
		},
	}}
	writer := &fakeSummaryWriter{}
	a := NewAggregator(&fakeTargetLister{targets: []*models.MonitoredTarget{target}}, reader, writer, zap.NewNop())

	require.NoError(t, a.Aggregate(context.Background(), models.PeriodHourly, base))

	require.Len(t, writer.rows, 1)
	for _, sum := range writer.rows {
		assert.Equal(t, 4, sum.SSLChecks)
		assert.Equal(t, 2, sum.SSLSuccessful, "valid and expires_soon both count as successful checks")
		assert.Equal(t, 2, sum.SSLFailed)
		assert.Equal(t, 1, sum.CertsExpiring)
		assert.Equal(t, 1, sum.CertsExpired)
		assert.Zero(t, sum.UptimeChecks)
		assert.Zero(t, sum.UptimePercentage)
	}
}

func TestAggregateSkipsEmptyPeriods(t *testing.T) {
	target := &models.MonitoredTarget{ID: 1, WebsiteID: 2, Active: true}
	writer := &fakeSummaryWriter{}
	a := NewAggregator(
		&fakeTargetLister{targets: []*models.MonitoredTarget{target}},
		&fakeResultReader{byTarget: map[int][]*models.CheckResult{}},
		writer, zap.NewNop())

	require.NoError(t, a.Aggregate(context.Background(), models.PeriodDaily, time.Now()))
	assert.Empty(t, writer.rows, "periods without results must not produce rows")
}

func TestAggregateIsIdempotent(t *testing.T) {
	target := &models.MonitoredTarget{ID: 1, WebsiteID: 2, Active: true}
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	reader := &fakeResultReader{byTarget: map[int][]*models.CheckResult{
		1: {upResult(base.Add(time.Minute), 120)},
	}}
	writer := &fakeSummaryWriter{}
	a := NewAggregator(&fakeTargetLister{targets: []*models.MonitoredTarget{target}}, reader, writer, zap.NewNop())

	require.NoError(t, a.Aggregate(context.Background(), models.PeriodHourly, base))
	require.Len(t, writer.rows, 1)

	// Late result arrives; recomputing the same period replaces the row.
	reader.byTarget[1] = append(reader.byTarget[1], upResult(base.Add(40*time.Minute), 200))
	require.NoError(t, a.Aggregate(context.Background(), models.PeriodHourly, base))

	require.Len(t, writer.rows, 1)
	for _, sum := range writer.rows {
		assert.Equal(t, 2, sum.TotalChecks)
		assert.Equal(t, 160.0, sum.ResponseTimeAvgMs)
	}
}

func TestPercentileNearestRank(t *testing.T) {
	sorted := make([]int, 100)
	for i := range sorted {
		sorted[i] = (i + 1) * 10
	}
	assert.Equal(t, 950, percentile(sorted, 95))
	assert.Equal(t, 990, percentile(sorted, 99))
	assert.Equal(t, 1000, percentile(sorted, 100))

	assert.Equal(t, 42, percentile([]int{42}, 95))
	assert.Equal(t, 10, percentile([]int{10, 20}, 50))
}
