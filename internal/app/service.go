// Package service runs reconciliation against the configured store and
// serves the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/rollcall/internal/adapters/events"
	"github.com/okian/rollcall/internal/adapters/lock"
	triggerqueue "github.com/okian/rollcall/internal/adapters/mq/queue"
	"github.com/okian/rollcall/internal/adapters/mq/worker"
	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/reconcile"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

// lockName is the lock every run takes before touching the record table.
const lockName = "reconcile"

// Run results reported to metrics.
const (
	resultSuccess = "success"
	resultFailed  = "failed"
	resultLocked  = "locked"
)

const defaultQueueSize = 64

// RunReport summarizes one reconciliation run.
type RunReport struct {
	RunID         string         `json:"run_id"`
	TriggerID     string         `json:"trigger_id"`
	Source        string         `json:"source"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	DurationMS    int64          `json:"duration_ms"`
	Submissions   int            `json:"submissions"`
	Members       int            `json:"members"`
	TotalPoints   float64        `json:"total_points"`
	Outcomes      map[string]int `json:"outcomes"`
	InvalidEvents int            `json:"invalid_events"`
	SkippedPoints int            `json:"skipped_points"`
	Error         string         `json:"error,omitempty"`
}

// Submission is a form response posted to the webhook.
type Submission struct {
	Timestamp time.Time `json:"timestamp"`
	Email     string    `json:"email"`
	EventCode string    `json:"event_code"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Anonymous string    `json:"anonymous"`
}

// Service wires the reconciliation core to its store, lock, trigger queue
// and read model.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	standings repository.Standings
	locker    lock.Locker
	publisher events.Publisher
	queue     *triggerqueue.InMemoryQueue
	worker    *worker.InMemoryWorker

	// Configuration
	sheets        Sheets
	reconcileOpts []reconcile.Option
	syncInterval  time.Duration
	queueSize     int
	coalesce      bool
	runTimeout    time.Duration
	now           func() time.Time

	// State
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	last    *RunReport
	runs    map[string]int

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration. Without a store
// the service runs on an empty in-memory store.
func New(opts ...Option) *Service {
	s := &Service{
		sheets:    DefaultSheets,
		queueSize: defaultQueueSize,
		now:       time.Now,
		runs:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.standings == nil {
		s.standings = repository.NewMemoryStandings()
	}
	if s.locker == nil {
		s.locker = lock.NewLocalLocker()
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// Start warms the standings from the record table and starts the worker
// and, if configured, the scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting rollcall service...")

	s.warmStandings(ctx)

	s.stopCh = make(chan struct{})
	s.queue = triggerqueue.NewInMemoryQueue(
		triggerqueue.WithCapacity(s.queueSize),
		triggerqueue.WithCoalescing(s.coalesce),
	)
	s.worker = worker.NewInMemoryWorker(s.queue, s,
		worker.WithName("reconciler"),
		worker.WithLogger(s.logger),
		worker.WithRunTimeout(s.runTimeout),
	)
	// The worker outlives Start's ctx; it stops through Stop.
	go s.worker.Run(context.WithoutCancel(ctx))

	if s.syncInterval > 0 {
		s.wg.Add(1)
		go s.schedule(context.WithoutCancel(ctx))
	}

	s.started = true
	s.logger.Info(ctx, "rollcall service started",
		logger.Int("queue_size", s.queueSize),
		logger.Duration("sync_interval", s.syncInterval),
		logger.Int("members", s.standings.Count(ctx)),
	)
	return nil
}

// Stop stops the scheduler and waits for the run in progress to finish.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	q, w := s.queue, s.worker
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping rollcall service...")

	// Runs record their report under s.mu.
	close(s.stopCh)
	s.wg.Wait()
	_ = q.Close()
	err := w.Shutdown(ctx)

	s.logger.Info(ctx, "rollcall service stopped")
	return err
}

// schedule enqueues a timer trigger immediately and then every interval.
func (s *Service) schedule(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	s.enqueue(ctx, model.SourceTimer)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, ok := s.enqueue(ctx, model.SourceTimer); !ok {
				s.logger.Warn(ctx, "timer trigger dropped, queue full")
			}
		}
	}
}

// Trigger enqueues a run. It returns false when the queue refuses it.
func (s *Service) Trigger(ctx context.Context, source string) (model.Trigger, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.Trigger{}, false
	}
	return s.enqueue(ctx, source)
}

func (s *Service) enqueue(ctx context.Context, source string) (model.Trigger, bool) {
	t := model.Trigger{ID: uuid.NewString(), Source: source, At: s.now()}
	ok := s.queue.Enqueue(ctx, t)
	s.logger.Debug(ctx, "trigger enqueued",
		logger.String("trigger_id", t.ID),
		logger.String("source", source),
		logger.Bool("accepted", ok),
	)
	return t, ok
}

// Submit appends a form response to the submissions table and enqueues a
// form trigger. A stopped service refuses the submission without storing it.
// The row is stored even when the queue is full; the next scheduled run
// picks it up.
func (s *Service) Submit(ctx context.Context, sub Submission) (model.Trigger, error) {
	sub.Email = strings.TrimSpace(sub.Email)
	sub.EventCode = strings.TrimSpace(sub.EventCode)
	if sub.Email == "" {
		return model.Trigger{}, ErrMissingEmail
	}
	if sub.EventCode == "" {
		return model.Trigger{}, ErrMissingCode
	}
	if sub.Timestamp.IsZero() {
		sub.Timestamp = s.now()
	}
	if !s.Started() {
		return model.Trigger{}, ErrNotStarted
	}

	if err := s.store.AppendRows(ctx, s.sheets.Submissions, [][]string{s.submissionRow(sub)}); err != nil {
		metrics.RecordErrorByComponent("service", "append_submission")
		return model.Trigger{}, fmt.Errorf("store submission: %w", err)
	}

	t, ok := s.Trigger(ctx, model.SourceForm)
	if !ok {
		if !s.Started() {
			return t, ErrNotStarted
		}
		return t, ErrQueueFull
	}
	return t, nil
}

// Started reports whether Start has run and Stop has not.
func (s *Service) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// submissionRow lays sub out in the configured column order.
func (s *Service) submissionRow(sub Submission) []string {
	o := reconcile.Resolve(s.reconcileOpts...)
	c := o.Columns
	width := 1 + max(c.Timestamp, c.Email, c.EventCode, c.FirstName, c.LastName, c.Anonymous)
	row := make([]string, width)
	row[c.Timestamp] = sub.Timestamp.In(o.Location).Format(reconcile.SubmissionLayout)
	row[c.Email] = sub.Email
	row[c.EventCode] = sub.EventCode
	row[c.FirstName] = sub.FirstName
	row[c.LastName] = sub.LastName
	row[c.Anonymous] = sub.Anonymous
	return row
}

// RunTrigger runs a queued trigger. Losing the lock to another replica is
// not an error: that replica's run covers this trigger.
func (s *Service) RunTrigger(ctx context.Context, t model.Trigger) error {
	_, err := s.Reconcile(ctx, t)
	if errors.Is(err, lock.ErrLocked) {
		s.logger.Info(ctx, "run skipped, lock held elsewhere", logger.String("trigger_id", t.ID))
		return nil
	}
	return err
}

// Reconcile performs one full run: read the three input tables, rebuild the
// record rows, overwrite the record table, refresh standings and announce
// the result. Nothing is written when a read fails, the run timeout passes
// or the lock lease cannot be extended.
func (s *Service) Reconcile(ctx context.Context, t model.Trigger) (RunReport, error) {
	start := s.now()
	report := RunReport{
		RunID:     uuid.NewString(),
		TriggerID: t.ID,
		Source:    t.Source,
		StartedAt: start,
	}

	lease, err := s.locker.Acquire(ctx, lockName)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			metrics.RecordLockContention()
			metrics.RecordRun(resultLocked, 0)
			s.countRun(resultLocked)
			return report, fmt.Errorf("%w: %w", ErrRunInProgress, err)
		}
		return s.fail(ctx, report, fmt.Errorf("acquire lock: %w", err))
	}
	defer func() {
		if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.Warn(ctx, "release lock", logger.String("run_id", report.RunID), logger.Error(rerr))
		}
	}()

	runCtx, cancel := context.WithCancelCause(ctx)
	if s.runTimeout > 0 {
		var stop context.CancelFunc
		runCtx, stop = context.WithTimeout(runCtx, s.runTimeout)
		defer stop()
	}
	kept := make(chan struct{})
	go func() {
		defer close(kept)
		if kerr := lock.KeepAlive(runCtx, lease); kerr != nil {
			metrics.RecordErrorByComponent("service", "lock_refresh")
			s.logger.Warn(ctx, "lock lease lost", logger.String("run_id", report.RunID), logger.Error(kerr))
			cancel(fmt.Errorf("%w: %w", ErrLockLost, kerr))
		}
	}()
	defer func() {
		cancel(nil)
		<-kept
	}()

	eventRows, err := s.read(runCtx, s.sheets.Events)
	if err != nil {
		return s.fail(ctx, report, runErr(runCtx, err))
	}
	pointRows, err := s.read(runCtx, s.sheets.Points)
	if err != nil {
		return s.fail(ctx, report, runErr(runCtx, err))
	}
	submissionRows, err := s.read(runCtx, s.sheets.Submissions)
	if err != nil {
		return s.fail(ctx, report, runErr(runCtx, err))
	}

	records, res := reconcile.Rows(submissionRows, eventRows, pointRows, s.reconcileOpts...)
	for _, row := range res.InvalidEvents {
		s.logger.Warn(ctx, "event row ignored", logger.String("sheet", s.sheets.Events), logger.Int("row", row))
	}
	for _, skipped := range res.SkippedPoints {
		s.logger.Warn(ctx, "point schedule row ignored", logger.String("sheet", s.sheets.Points), logger.Error(skipped))
	}

	if err := context.Cause(runCtx); err != nil {
		return s.fail(ctx, report, fmt.Errorf("write %s: %w", s.sheets.Records, err))
	}
	writeStart := time.Now()
	if err := s.store.ReplaceRows(runCtx, s.sheets.Records, records); err != nil {
		return s.fail(ctx, report, runErr(runCtx, fmt.Errorf("write %s: %w", s.sheets.Records, err)))
	}
	metrics.RecordSheetWrite(float64(time.Since(writeStart).Milliseconds()))

	if err := s.standings.Replace(ctx, res.Members); err != nil {
		s.logger.Warn(ctx, "refresh standings", logger.Error(err))
	}

	finished := s.now()
	report.FinishedAt = finished
	report.DurationMS = finished.Sub(start).Milliseconds()
	report.Submissions = len(submissionRows)
	report.Members = len(res.Members)
	report.TotalPoints = res.TotalPoints()
	report.InvalidEvents = len(res.InvalidEvents)
	report.SkippedPoints = len(res.SkippedPoints)
	report.Outcomes = make(map[string]int, len(reconcile.Outcomes))
	for _, o := range reconcile.Outcomes {
		report.Outcomes[string(o)] = res.Counts[o]
		metrics.RecordSubmissions(string(o), res.Counts[o])
	}
	metrics.UpdateStandings(report.Members, report.TotalPoints, finished.Unix())
	metrics.RecordRun(resultSuccess, finished.Sub(start).Seconds())
	s.finish(report, resultSuccess)

	s.logger.Info(ctx, "reconciliation finished",
		logger.String("run_id", report.RunID),
		logger.String("source", report.Source),
		logger.Int("submissions", report.Submissions),
		logger.Int("matched", res.Counts[reconcile.OutcomeMatched]),
		logger.Int("members", report.Members),
		logger.Float64("points", report.TotalPoints),
		logger.Any("outcomes", report.Outcomes),
		logger.Duration("took", finished.Sub(start)),
	)

	err = s.publisher.Publish(ctx, events.Reconciled{
		RunID:       report.RunID,
		TriggerID:   report.TriggerID,
		Source:      report.Source,
		Sheet:       s.sheets.Records,
		Members:     report.Members,
		TotalPoints: report.TotalPoints,
		Outcomes:    report.Outcomes,
		FinishedAt:  finished,
	})
	if err != nil {
		metrics.RecordPublishError()
		s.logger.Warn(ctx, "publish run result", logger.String("run_id", report.RunID), logger.Error(err))
	}
	return report, nil
}

// runErr attaches the reason runCtx ended, if it did, to err.
func runErr(runCtx context.Context, err error) error {
	if cause := context.Cause(runCtx); cause != nil && !errors.Is(err, cause) {
		return fmt.Errorf("%w: %w", err, cause)
	}
	return err
}

func (s *Service) read(ctx context.Context, sheet string) ([][]string, error) {
	start := time.Now()
	rows, err := s.store.ReadRows(ctx, sheet)
	metrics.RecordSheetRead(sheet, float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sheet, err)
	}
	return rows, nil
}

func (s *Service) fail(ctx context.Context, report RunReport, err error) (RunReport, error) {
	finished := s.now()
	report.FinishedAt = finished
	report.DurationMS = finished.Sub(report.StartedAt).Milliseconds()
	report.Error = err.Error()

	component := "store"
	if errors.Is(err, repository.ErrMissingSheet) {
		component = "missing_sheet"
	}
	metrics.RecordErrorByComponent("reconcile", component)
	metrics.RecordRun(resultFailed, finished.Sub(report.StartedAt).Seconds())
	s.finish(report, resultFailed)

	s.logger.Error(ctx, "reconciliation failed",
		logger.String("run_id", report.RunID),
		logger.String("trigger_id", report.TriggerID),
		logger.Error(err),
	)
	return report, err
}

func (s *Service) finish(report RunReport, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[result]++
	s.last = &report
}

func (s *Service) countRun(result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[result]++
}

// warmStandings loads the last written record table so reads work before
// the first run. A missing table only means nothing was written yet.
func (s *Service) warmStandings(ctx context.Context) {
	rows, err := s.store.ReadRows(ctx, s.sheets.Records)
	if err != nil {
		s.logger.Warn(ctx, "standings not warmed", logger.String("sheet", s.sheets.Records), logger.Error(err))
		return
	}
	o := reconcile.Resolve(s.reconcileOpts...)
	if err := s.standings.Replace(ctx, reconcile.ParseRecords(rows, o.TimestampLayout, o.Location)); err != nil {
		s.logger.Warn(ctx, "standings not warmed", logger.Error(err))
	}
}

// TopN returns the top n ranked members.
func (s *Service) TopN(ctx context.Context, n int) ([]repository.Entry, error) {
	return s.standings.TopN(ctx, n)
}

// Member returns one member's standing.
func (s *Service) Member(ctx context.Context, netID string) (repository.Entry, error) {
	return s.standings.Rank(ctx, strings.TrimSpace(netID))
}

// LastRun returns the most recent finished run, if any.
func (s *Service) LastRun() (RunReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return RunReport{}, false
	}
	return *s.last, true
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	runs := make(map[string]int, len(s.runs))
	for k, v := range s.runs {
		runs[k] = v
	}
	stats := map[string]interface{}{
		"started":      s.started,
		"members":      s.standings.Count(ctx),
		"queueSize":    s.queueSize,
		"syncInterval": s.syncInterval.String(),
		"runs":         runs,
	}
	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
	}
	if s.last != nil {
		stats["lastRun"] = *s.last
	}
	return stats
}
