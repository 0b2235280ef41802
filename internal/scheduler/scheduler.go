package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/nascar-calendar/internal/service"
)

// Runner executes one pipeline pass
type Runner interface {
	Run(ctx context.Context, opts service.RunOptions) (*service.RunReport, error)
}

// RunStatus describes the most recent scheduled or manual run
type RunStatus struct {
	StartedAt    time.Time
	FinishedAt   time.Time
	RunID        string
	FailedSeries []string
	Err          error
}

// Scheduler runs the calendar pipeline on a cron schedule
type Scheduler struct {
	cron            *cron.Cron
	runner          Runner
	logger          *logrus.Logger
	mu              sync.RWMutex
	isRunning       bool
	jobIDs          []cron.EntryID
	runTimeout      time.Duration
	gracefulTimeout time.Duration
	runMu           sync.Mutex
	last            *RunStatus
}

// NewScheduler creates a new scheduler. Runs never overlap; a tick that fires while
// a run is in progress is skipped.
func NewScheduler(runner Runner, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	cronLogger := cron.PrintfLogger(logger.WithField("component", "scheduler"))
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		runner:          runner,
		logger:          logger,
		jobIDs:          make([]cron.EntryID, 0),
		runTimeout:      30 * time.Minute,
		gracefulTimeout: 30 * time.Second,
	}
}

// SetRunTimeout bounds each scheduled run
func (s *Scheduler) SetRunTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.runTimeout = d
	}
}

// SchedulePipeline registers a pipeline pass on a standard five-field cron expression
func (s *Scheduler) SchedulePipeline(cronExpression string, opts service.RunOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}

	jobFunc := func() {
		s.mu.RLock()
		timeout := s.runTimeout
		s.mu.RUnlock()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, _ = s.RunNow(ctx, opts)
	}

	entryID, err := s.cron.AddFunc(cronExpression, jobFunc)
	if err != nil {
		return fmt.Errorf("failed to add job: %w", err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	s.logger.WithField("cron", cronExpression).Info("Scheduled calendar pipeline")

	return nil
}

// RunNow executes a pass immediately and records its status
func (s *Scheduler) RunNow(ctx context.Context, opts service.RunOptions) (*service.RunReport, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	status := &RunStatus{StartedAt: time.Now().UTC()}
	report, err := s.runner.Run(ctx, opts)
	status.FinishedAt = time.Now().UTC()
	status.Err = err
	if report != nil {
		status.RunID = report.RunID
		for _, f := range report.FailedSeries() {
			status.FailedSeries = append(status.FailedSeries, string(f.Series))
		}
	}

	log := s.logger.WithFields(logrus.Fields{
		"component":     "scheduler",
		"run_id":        status.RunID,
		"failed_series": status.FailedSeries,
	})
	if err != nil {
		log.WithError(err).Error("Scheduled run failed")
	} else {
		log.Info("Scheduled run completed")
	}

	s.mu.Lock()
	s.last = status
	s.mu.Unlock()

	return report, err
}

// LastRun returns the status of the most recent run, or nil before the first one
func (s *Scheduler) LastRun() *RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	cp := *s.last
	return &cp
}

// Check reports an error while the scheduler is stopped or the last run could not publish.
// Series failures leave the previous entries in place and do not fail the check.
func (s *Scheduler) Check(_ context.Context) error {
	if !s.IsRunning() {
		return errors.New("scheduler not running")
	}
	if last := s.LastRun(); last != nil && last.Err != nil {
		return fmt.Errorf("last run failed: %w", last.Err)
	}
	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("jobs", len(s.jobIDs)).Info("Scheduler started")

	return nil
}

// Stop stops the scheduler, waiting up to the graceful timeout for a running pass
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-time.After(s.gracefulTimeout):
		return fmt.Errorf("scheduler stop timed out after %s", s.gracefulTimeout)
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRun returns the time of the next scheduled job run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning || len(s.jobIDs) == 0 {
		return time.Time{}
	}

	nextRun := time.Time{}
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() {
			nextTime := entry.Next
			if nextRun.IsZero() || nextTime.Before(nextRun) {
				nextRun = nextTime
			}
		}
	}

	return nextRun
}

// Entries returns information about scheduled entries
func (s *Scheduler) Entries() []cron.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]cron.Entry, 0, len(s.jobIDs))
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() {
			entries = append(entries, entry)
		}
	}

	return entries
}
