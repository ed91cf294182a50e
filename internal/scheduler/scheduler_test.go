package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
	"github.com/dabonzo/sslmonitor-sub001/internal/storage"
)

type fakeTargetReader struct {
	mu      sync.Mutex
	targets map[int]*models.MonitoredTarget
	due     []*models.MonitoredTarget
}

func (f *fakeTargetReader) GetTarget(_ context.Context, id int) (*models.MonitoredTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.targets[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTargetReader) ListDueTargets(_ context.Context, _ time.Time) ([]*models.MonitoredTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.due, nil
}

type fakeResultWriter struct {
	mu       sync.Mutex
	results  []*models.CheckResult
	failures int // fail this many writes before succeeding
	calls    int
}

func (f *fakeResultWriter) CreateResult(_ context.Context, r *models.CheckResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	r.ID = len(f.results) + 1
	f.results = append(f.results, r)
	return nil
}

func (f *fakeResultWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

type fakeRunner struct{}

func (fakeRunner) Execute(_ context.Context, target *models.MonitoredTarget, checkType, trigger string) *models.CheckResult {
	status := models.UptimeStatusUp
	return &models.CheckResult{
		TargetID:     target.ID,
		WebsiteID:    target.WebsiteID,
		CheckType:    checkType,
		TriggerType:  trigger,
		StartedAt:    time.Now(),
		CompletedAt:  time.Now(),
		Status:       models.CheckStatusSuccess,
		UptimeStatus: &status,
	}
}

type fakeSink struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSink) Process(_ context.Context, _ *models.CheckResult, _ *models.MonitoredTarget) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func activeTarget(id int) *models.MonitoredTarget {
	return &models.MonitoredTarget{ID: id, WebsiteID: 1, URL: "https://example.com", Active: true}
}

func newTestScheduler(reader *fakeTargetReader, writer *fakeResultWriter, sink *fakeSink, opts Options) *Scheduler {
	var rs ResultSink
	if sink != nil {
		rs = sink
	}
	return New(reader, writer, fakeRunner{}, rs, nil, zap.NewNop(), opts)
}

func TestScheduleImmediateCheckRunsTask(t *testing.T) {
	reader := &fakeTargetReader{targets: map[int]*models.MonitoredTarget{1: activeTarget(1)}}
	writer := &fakeResultWriter{}
	sink := &fakeSink{}
	s := newTestScheduler(reader, writer, sink, Options{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	st, err := s.ScheduleImmediateCheck(ctx, 1, models.CheckTypeBoth)
	require.NoError(t, err)
	assert.Equal(t, models.TriggerManualImmediate, st.Trigger)

	require.Eventually(t, func() bool {
		cur, ok := s.TaskStatus(st.ID)
		return ok && cur.State == TaskCompleted
	}, 5*time.Second, 10*time.Millisecond)

	cur, _ := s.TaskStatus(st.ID)
	require.NotNil(t, cur.ResultID)
	assert.Equal(t, 1, writer.count())
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, 1, cur.Attempts)
}

func TestPersistRetriesTransientWriteFailures(t *testing.T) {
	reader := &fakeTargetReader{targets: map[int]*models.MonitoredTarget{1: activeTarget(1)}}
	writer := &fakeResultWriter{failures: 2}
	sink := &fakeSink{}
	s := newTestScheduler(reader, writer, sink, Options{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	st, err := s.ScheduleImmediateCheck(ctx, 1, models.CheckTypeUptime)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cur, ok := s.TaskStatus(st.ID)
		return ok && cur.State == TaskCompleted
	}, 10*time.Second, 50*time.Millisecond)

	cur, _ := s.TaskStatus(st.ID)
	assert.Equal(t, 3, cur.Attempts, "two failed writes plus the successful one")
	assert.Equal(t, 1, writer.count())
	assert.Equal(t, 1, sink.count(), "the check itself must not be re-run")
}

func TestPersistGivesUpAfterMaxAttempts(t *testing.T) {
	reader := &fakeTargetReader{targets: map[int]*models.MonitoredTarget{1: activeTarget(1)}}
	writer := &fakeResultWriter{failures: 100}
	sink := &fakeSink{}
	s := newTestScheduler(reader, writer, sink, Options{Workers: 1, MaxAttempts: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	st, err := s.ScheduleImmediateCheck(ctx, 1, models.CheckTypeUptime)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cur, ok := s.TaskStatus(st.ID)
		return ok && cur.State == TaskFailed
	}, 10*time.Second, 50*time.Millisecond)

	cur, _ := s.TaskStatus(st.ID)
	assert.Contains(t, cur.Error, "connection refused")
	assert.Zero(t, sink.count(), "unpersisted results are not handed to alerting")
}

func TestTickQueuesDueTargetsOnce(t *testing.T) {
	reader := &fakeTargetReader{
		targets: map[int]*models.MonitoredTarget{1: activeTarget(1), 2: activeTarget(2)},
		due:     []*models.MonitoredTarget{activeTarget(1), activeTarget(2)},
	}
	s := newTestScheduler(reader, &fakeResultWriter{}, nil, Options{})

	// No workers running: tasks stay queued so we can observe deduplication.
	require.NoError(t, s.Tick(context.Background()))
	assert.Len(t, s.queue, 2)

	require.NoError(t, s.Tick(context.Background()))
	assert.Len(t, s.queue, 2, "a second tick must not re-queue pending targets")
}

func TestManualCheckRejectsUnknownAndInactiveTargets(t *testing.T) {
	inactive := activeTarget(2)
	inactive.Active = false
	reader := &fakeTargetReader{targets: map[int]*models.MonitoredTarget{2: inactive}}
	s := newTestScheduler(reader, &fakeResultWriter{}, nil, Options{})

	_, err := s.ScheduleImmediateCheck(context.Background(), 99, models.CheckTypeBoth)
	assert.ErrorIs(t, err, ErrTargetInactive)

	_, err = s.ScheduleImmediateCheck(context.Background(), 2, models.CheckTypeBoth)
	assert.ErrorIs(t, err, ErrTargetInactive)
}

func TestManualCheckQueueFull(t *testing.T) {
	reader := &fakeTargetReader{targets: map[int]*models.MonitoredTarget{1: activeTarget(1)}}
	s := newTestScheduler(reader, &fakeResultWriter{}, nil, Options{PriorityQueue: 1})

	// No workers: the single priority slot fills and stays full.
	_, err := s.ScheduleImmediateCheck(context.Background(), 1, models.CheckTypeBoth)
	require.NoError(t, err)
	_, err = s.ScheduleImmediateCheck(context.Background(), 1, models.CheckTypeBoth)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestScheduleBulkReportsPerTarget(t *testing.T) {
	reader := &fakeTargetReader{targets: map[int]*models.MonitoredTarget{1: activeTarget(1)}}
	s := newTestScheduler(reader, &fakeResultWriter{}, nil, Options{})

	statuses := s.ScheduleBulk(context.Background(), []int{1, 99}, models.CheckTypeBoth)
	require.Len(t, statuses, 2)
	assert.Equal(t, TaskQueued, statuses[0].State)
	assert.Equal(t, TaskFailed, statuses[1].State)
	assert.Contains(t, statuses[1].Error, "not active")
}
