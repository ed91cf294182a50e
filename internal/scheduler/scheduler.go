package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
	"github.com/dabonzo/sslmonitor-sub001/internal/storage"
)

// Task lifecycle states.
const (
	TaskQueued    = "queued"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
	TaskSkipped   = "skipped"
)

const (
	defaultWorkers          = 8
	defaultQueueSize        = 256
	defaultPriorityQueue    = 64
	defaultScheduledTimeout = 60 * time.Second
	defaultManualTimeout    = 120 * time.Second
	defaultMaxAttempts      = 3
	defaultRetryDeadline    = 5 * time.Minute

	lockPollInterval = 250 * time.Millisecond
	statusRetention  = time.Hour
)

// ErrQueueFull is returned when a check cannot be accepted because the
// relevant queue is at capacity.
var ErrQueueFull = errors.New("check queue is full")

// ErrTargetInactive is returned when a manual check targets a deactivated or
// unknown target.
var ErrTargetInactive = errors.New("target is not active")

// Runner executes one check cycle against a target. Implemented by
// monitor.Executor.
type Runner interface {
	Execute(ctx context.Context, target *models.MonitoredTarget, checkType, trigger string) *models.CheckResult
}

// ResultSink receives every persisted check result. Implemented by
// alerting.Engine.
type ResultSink interface {
	Process(ctx context.Context, result *models.CheckResult, target *models.MonitoredTarget) error
}

// Broadcaster pushes check lifecycle events to connected clients.
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// Task is one queued check execution.
type Task struct {
	ID          uuid.UUID
	TargetID    int
	CheckType   string
	Trigger     string
	SubmittedAt time.Time
}

// TaskStatus is the queryable snapshot of a task's progress.
type TaskStatus struct {
	ID          uuid.UUID  `json:"id"`
	TargetID    int        `json:"target_id"`
	CheckType   string     `json:"check_type"`
	Trigger     string     `json:"trigger_type"`
	State       string     `json:"state"`
	Attempts    int        `json:"attempts"`
	SubmittedAt time.Time  `json:"submitted_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ResultID    *int       `json:"result_id,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Options tune the scheduler; zero values fall back to the defaults above.
type Options struct {
	Workers          int
	QueueSize        int
	PriorityQueue    int
	ScheduledTimeout time.Duration
	ManualTimeout    time.Duration
	MaxAttempts      int
	RetryDeadline    time.Duration
}

func (o *Options) fill() {
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.PriorityQueue <= 0 {
		o.PriorityQueue = defaultPriorityQueue
	}
	if o.ScheduledTimeout <= 0 {
		o.ScheduledTimeout = defaultScheduledTimeout
	}
	if o.ManualTimeout <= 0 {
		o.ManualTimeout = defaultManualTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.RetryDeadline <= 0 {
		o.RetryDeadline = defaultRetryDeadline
	}
}

type targetReader interface {
	GetTarget(ctx context.Context, id int) (*models.MonitoredTarget, error)
	ListDueTargets(ctx context.Context, now time.Time) ([]*models.MonitoredTarget, error)
}

type resultWriter interface {
	CreateResult(ctx context.Context, r *models.CheckResult) error
}

// Scheduler owns the check queue and worker pool. Scheduled checks come from
// Tick, manual checks from ScheduleImmediateCheck/ScheduleBulk and jump the
// queue. At most one check runs per target at a time; scheduled checks for a
// busy target are skipped, manual ones wait for the lock.
type Scheduler struct {
	targets  targetReader
	results  resultWriter
	executor Runner
	sink     ResultSink
	hub      Broadcaster
	logger   *zap.Logger
	opts     Options

	queue    chan *Task
	priority chan *Task

	mu       sync.Mutex
	running  map[int]bool        // targets with a check in flight
	pending  map[int]bool        // targets queued by Tick, not yet started
	statuses map[uuid.UUID]*TaskStatus

	wg  sync.WaitGroup
	now func() time.Time
}

// New creates a scheduler. sink and hub may be nil.
func New(targets targetReader, results resultWriter, executor Runner, sink ResultSink, hub Broadcaster, logger *zap.Logger, opts Options) *Scheduler {
	opts.fill()
	return &Scheduler{
		targets:  targets,
		results:  results,
		executor: executor,
		sink:     sink,
		hub:      hub,
		logger:   logger,
		opts:     opts,
		queue:    make(chan *Task, opts.QueueSize),
		priority: make(chan *Task, opts.PriorityQueue),
		running:  make(map[int]bool),
		pending:  make(map[int]bool),
		statuses: make(map[uuid.UUID]*TaskStatus),
		now:      time.Now,
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled; Stop
// waits for them to finish their current task.
func (s *Scheduler) Start(ctx context.Context) {
	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	s.logger.Info("check scheduler started", zap.Int("workers", s.opts.Workers))
}

// Stop blocks until all workers have drained.
func (s *Scheduler) Stop() {
	s.wg.Wait()
	s.logger.Info("check scheduler stopped")
}

// Tick enqueues a combined check for every active target whose interval has
// elapsed. Targets already queued or running are left alone. Called from the
// cron loop once a minute.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now()
	due, err := s.targets.ListDueTargets(ctx, now)
	if err != nil {
		return err
	}
	s.pruneStatuses(now)

	queued := 0
	for _, target := range due {
		if !s.markPending(target.ID) {
			continue
		}
		task := s.newTask(target.ID, models.CheckTypeBoth, models.TriggerScheduled, now)
		select {
		case s.queue <- task:
			queued++
		default:
			s.clearPending(target.ID)
			s.completeStatus(task.ID, TaskSkipped, nil, ErrQueueFull)
			s.logger.Warn("scheduled check dropped, queue full", zap.Int("target_id", target.ID))
		}
	}
	if queued > 0 {
		s.logger.Debug("scheduled checks queued", zap.Int("due", len(due)), zap.Int("queued", queued))
	}
	return nil
}

// ScheduleImmediateCheck queues a manual check ahead of scheduled work and
// returns a handle the caller can poll.
func (s *Scheduler) ScheduleImmediateCheck(ctx context.Context, targetID int, checkType string) (*TaskStatus, error) {
	return s.scheduleManual(ctx, targetID, checkType, models.TriggerManualImmediate)
}

// ScheduleBulk queues manual checks for many targets at once. Targets that
// cannot be queued are reported in the returned statuses, not as an error.
func (s *Scheduler) ScheduleBulk(ctx context.Context, targetIDs []int, checkType string) []*TaskStatus {
	statuses := make([]*TaskStatus, 0, len(targetIDs))
	for _, id := range targetIDs {
		st, err := s.scheduleManual(ctx, id, checkType, models.TriggerManualBulk)
		if err != nil {
			st = &TaskStatus{
				ID:          uuid.New(),
				TargetID:    id,
				CheckType:   checkType,
				Trigger:     models.TriggerManualBulk,
				State:       TaskFailed,
				SubmittedAt: s.now(),
				Error:       err.Error(),
			}
		}
		statuses = append(statuses, st)
	}
	return statuses
}

func (s *Scheduler) scheduleManual(ctx context.Context, targetID int, checkType, trigger string) (*TaskStatus, error) {
	target, err := s.targets.GetTarget(ctx, targetID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTargetInactive
		}
		return nil, err
	}
	if !target.Active {
		return nil, ErrTargetInactive
	}
	if checkType == "" {
		checkType = models.CheckTypeBoth
	}

	task := s.newTask(targetID, checkType, trigger, s.now())
	select {
	case s.priority <- task:
	default:
		s.completeStatus(task.ID, TaskFailed, nil, ErrQueueFull)
		return nil, ErrQueueFull
	}
	st, _ := s.TaskStatus(task.ID)
	return st, nil
}

// TaskStatus returns a copy of the task's current state.
func (s *Scheduler) TaskStatus(id uuid.UUID) (*TaskStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[id]
	if !ok {
		return nil, false
	}
	cp := *st
	return &cp, true
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		// Drain manual work before scheduled work.
		select {
		case <-ctx.Done():
			return
		case task := <-s.priority:
			s.run(ctx, task)
			continue
		default:
		}
		select {
		case <-ctx.Done():
			return
		case task := <-s.priority:
			s.run(ctx, task)
		case task := <-s.queue:
			s.run(ctx, task)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, task *Task) {
	s.clearPending(task.TargetID)

	manual := task.Trigger != models.TriggerScheduled
	if !s.acquireTarget(ctx, task.TargetID, manual) {
		state := TaskSkipped
		if manual {
			state = TaskFailed
		}
		s.completeStatus(task.ID, state, nil, errors.New("target busy"))
		return
	}
	defer s.releaseTarget(task.TargetID)

	s.setState(task.ID, TaskRunning)

	target, err := s.targets.GetTarget(ctx, task.TargetID)
	if err != nil {
		s.completeStatus(task.ID, TaskFailed, nil, err)
		s.logger.Error("loading target for check failed", zap.Int("target_id", task.TargetID), zap.Error(err))
		return
	}
	if !target.Active {
		s.completeStatus(task.ID, TaskSkipped, nil, ErrTargetInactive)
		return
	}

	timeout := s.opts.ScheduledTimeout
	if manual {
		timeout = s.opts.ManualTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	result := s.executor.Execute(checkCtx, target, task.CheckType, task.Trigger)
	cancel()

	if err := s.persistResult(ctx, task, result); err != nil {
		s.completeStatus(task.ID, TaskFailed, nil, err)
		s.logger.Error("persisting check result failed",
			zap.Int("target_id", task.TargetID),
			zap.String("task_id", task.ID.String()),
			zap.Error(err))
		return
	}
	s.completeStatus(task.ID, TaskCompleted, &result.ID, nil)

	if s.hub != nil {
		s.hub.Broadcast("check_result", result)
	}
	if s.sink != nil {
		if err := s.sink.Process(ctx, result, target); err != nil {
			s.logger.Error("alert processing failed",
				zap.Int("target_id", task.TargetID),
				zap.Error(err))
		}
	}
}

// persistResult stores the result, retrying transient failures with
// exponential backoff. The check itself is never re-run; only the write is.
func (s *Scheduler) persistResult(ctx context.Context, task *Task, result *models.CheckResult) error {
	deadline := s.now().Add(s.opts.RetryDeadline)
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		s.bumpAttempts(task.ID)
		lastErr = s.results.CreateResult(ctx, result)
		if lastErr == nil {
			return nil
		}
		if attempt == s.opts.MaxAttempts {
			break
		}
		wait := retryBackoff(attempt)
		if s.now().Add(wait).After(deadline) {
			break
		}
		s.logger.Warn("check result write failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(lastErr))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}

// acquireTarget takes the per-target run lock. Scheduled checks give up
// immediately when the target is busy; manual checks poll until the lock
// frees or ctx ends.
func (s *Scheduler) acquireTarget(ctx context.Context, targetID int, wait bool) bool {
	for {
		s.mu.Lock()
		if !s.running[targetID] {
			s.running[targetID] = true
			s.mu.Unlock()
			return true
		}
		s.mu.Unlock()
		if !wait {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(lockPollInterval):
		}
	}
}

func (s *Scheduler) releaseTarget(targetID int) {
	s.mu.Lock()
	delete(s.running, targetID)
	s.mu.Unlock()
}

func (s *Scheduler) markPending(targetID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[targetID] || s.running[targetID] {
		return false
	}
	s.pending[targetID] = true
	return true
}

func (s *Scheduler) clearPending(targetID int) {
	s.mu.Lock()
	delete(s.pending, targetID)
	s.mu.Unlock()
}

func (s *Scheduler) newTask(targetID int, checkType, trigger string, at time.Time) *Task {
	task := &Task{
		ID:          uuid.New(),
		TargetID:    targetID,
		CheckType:   checkType,
		Trigger:     trigger,
		SubmittedAt: at,
	}
	s.mu.Lock()
	s.statuses[task.ID] = &TaskStatus{
		ID:          task.ID,
		TargetID:    targetID,
		CheckType:   checkType,
		Trigger:     trigger,
		State:       TaskQueued,
		SubmittedAt: at,
	}
	s.mu.Unlock()
	return task
}

func (s *Scheduler) setState(id uuid.UUID, state string) {
	s.mu.Lock()
	if st, ok := s.statuses[id]; ok {
		st.State = state
	}
	s.mu.Unlock()
}

func (s *Scheduler) bumpAttempts(id uuid.UUID) {
	s.mu.Lock()
	if st, ok := s.statuses[id]; ok {
		st.Attempts++
	}
	s.mu.Unlock()
}

func (s *Scheduler) completeStatus(id uuid.UUID, state string, resultID *int, err error) {
	now := s.now()
	s.mu.Lock()
	if st, ok := s.statuses[id]; ok {
		st.State = state
		st.CompletedAt = &now
		st.ResultID = resultID
		if err != nil {
			st.Error = err.Error()
		}
	}
	s.mu.Unlock()
}

// pruneStatuses drops finished task records older than the retention window.
func (s *Scheduler) pruneStatuses(now time.Time) {
	cutoff := now.Add(-statusRetention)
	s.mu.Lock()
	for id, st := range s.statuses {
		if st.CompletedAt != nil && st.CompletedAt.Before(cutoff) {
			delete(s.statuses, id)
		}
	}
	s.mu.Unlock()
}
