package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"task-inbox-go/internal/config"
)

// ErrSyncInProgress is returned by RunOnce while a tick is still running.
var ErrSyncInProgress = errors.New("sync already in progress")

// DueSyncer runs one pass over the accounts that are due.
type DueSyncer interface {
	SyncDue(ctx context.Context, now time.Time) (Report, error)
}

// Status is a snapshot of the scheduler state.
type Status struct {
	Running         bool      `json:"running"`
	IntervalMinutes int       `json:"interval_minutes"`
	NextRun         time.Time `json:"next_run"`
	LastRun         time.Time `json:"last_run"`
	LastJobID       string    `json:"last_job_id,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
}

// Scheduler drives periodic mailbox syncs
type Scheduler struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	config    *config.SchedulerConfig
	syncer    DueSyncer
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex

	// held for the duration of a sync pass
	tickMu    sync.Mutex
	lastRun   time.Time
	lastJobID string
	lastError string
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg *config.SchedulerConfig, syncer DueSyncer) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   newCron(),
		config: cfg,
		syncer: syncer,
		ctx:    ctx,
		cancel: cancel,
	}
}

func newCron() *cron.Cron {
	return cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cron.PrintfLogger(logrus.StandardLogger()))),
	)
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	interval := s.config.IntervalMinutes
	if interval <= 0 {
		interval = 5
	}

	// a stopped cron cannot be restarted with a fresh context
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.cron = newCron()
	}

	schedule := fmt.Sprintf("0 */%d * * * *", interval)
	entryID, err := s.cron.AddFunc(schedule, s.tick)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with interval: %d minutes", interval)
	return nil
}

// Stop stops the scheduler and waits up to 30s for a running pass. The lock
// is released before waiting since a finishing pass records its result.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}

	// Cancel context to stop any running sync between messages
	s.cancel()
	ctx := s.cron.Stop()
	s.isRunning = false
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Scheduler) tick() {
	s.mu.RLock()
	if !s.isRunning {
		s.mu.RUnlock()
		logrus.Info("Scheduler not running, skipping sync cycle")
		return
	}
	ctx := s.ctx
	s.mu.RUnlock()

	if _, err := s.run(ctx); errors.Is(err, ErrSyncInProgress) {
		logrus.Warn("Previous sync cycle still running, skipping tick")
	}
}

func (s *Scheduler) run(ctx context.Context) (Report, error) {
	if !s.tickMu.TryLock() {
		return Report{}, ErrSyncInProgress
	}
	defer s.tickMu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()

	start := time.Now()
	logrus.Info("Starting sync cycle")

	report, err := s.syncer.SyncDue(ctx, start)

	s.mu.Lock()
	s.lastRun = start
	s.lastJobID = report.JobID
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		logrus.WithError(err).Error("Sync cycle failed")
		return report, err
	}

	logrus.WithFields(logrus.Fields{
		"job_id":   report.JobID,
		"accounts": len(report.Accounts),
	}).Infof("Sync cycle completed in %v", time.Since(start))
	return report, nil
}

// RunOnce runs one sync pass immediately (for manual triggering)
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	logrus.Info("Running sync once")
	return s.run(ctx)
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// GetLastRun returns the start time of the last sync pass
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

func (s *Scheduler) Status() Status {
	next := s.GetNextRun()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Running:         s.isRunning,
		IntervalMinutes: s.config.IntervalMinutes,
		NextRun:         next,
		LastRun:         s.lastRun,
		LastJobID:       s.lastJobID,
		LastError:       s.lastError,
	}
}

// Wait waits for in-flight sync passes to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
