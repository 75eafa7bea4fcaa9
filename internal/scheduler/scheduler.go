// Package scheduler runs the ingestion tick on a cron schedule. At most one
// tick runs at a time; a tick that fires while another is running is skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/deusflow/enrich/internal/metrics"
)

// ErrBusy is returned by Trigger when a tick is already in flight.
var ErrBusy = errors.New("a tick is already running")

// Job is one tick of work.
type Job func(ctx context.Context) error

// Status is a snapshot for the admin API.
type Status struct {
	Enabled   bool      `json:"enabled"`
	Busy      bool      `json:"busy"`
	Schedule  string    `json:"schedule"`
	Location  string    `json:"location"`
	NextRun   time.Time `json:"next_run,omitempty"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Ticks     int64     `json:"ticks"`
	Skipped   int64     `json:"skipped"`
}

type Scheduler struct {
	cron     *cron.Cron
	entryID  cron.EntryID
	spec     string
	location *time.Location
	job      Job
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	baseCtx context.Context

	busy sync.Mutex

	stateMu sync.Mutex
	lastRun time.Time
	lastErr string
	ticks   int64
	skipped int64
}

// New registers job under spec (standard five-field cron or a descriptor
// such as "@hourly"). The scheduler is created stopped.
func New(spec string, loc *time.Location, job Job, m *metrics.Metrics, logger *slog.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("scheduler job is nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		spec:     spec,
		location: loc,
		job:      job,
		metrics:  m,
		logger:   logger.With("component", "scheduler"),
		baseCtx:  context.Background(),
	}

	id, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.entryID = id
	return s, nil
}

// Start enables periodic ticks. Calling it on a running scheduler is a no-op.
// Ticks run with ctx as their parent context.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.logger.Debug("scheduler already running")
		return
	}
	s.baseCtx = ctx
	s.cron.Start()
	s.started = true
	s.logger.Info("scheduler started", "schedule", s.spec, "location", s.location.String())
}

// Stop disables future ticks. An in-flight tick is allowed to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.logger.Info("scheduler already stopped")
		return
	}
	s.cron.Stop()
	s.started = false
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Busy reports whether a tick is executing right now.
func (s *Scheduler) Busy() bool {
	if s.busy.TryLock() {
		s.busy.Unlock()
		return false
	}
	return true
}

// Trigger starts a tick in the background unless one is already running.
func (s *Scheduler) Trigger(ctx context.Context) error {
	if !s.busy.TryLock() {
		return ErrBusy
	}
	go func() {
		defer s.busy.Unlock()
		s.execute(ctx)
	}()
	return nil
}

// RunNow runs a tick synchronously unless one is already running.
func (s *Scheduler) RunNow(ctx context.Context) error {
	if !s.busy.TryLock() {
		return ErrBusy
	}
	defer s.busy.Unlock()
	return s.execute(ctx)
}

func (s *Scheduler) tick() {
	if !s.busy.TryLock() {
		s.stateMu.Lock()
		s.skipped++
		s.stateMu.Unlock()
		s.metrics.IncrementTicksSkipped()
		s.logger.Warn("previous tick still running, skipping")
		return
	}
	defer s.busy.Unlock()

	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	_ = s.execute(ctx)
}

func (s *Scheduler) execute(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tick panicked: %v", rec)
		}
		s.record(start, err)
	}()

	s.logger.Info("tick started")
	return s.job(ctx)
}

func (s *Scheduler) record(start time.Time, err error) {
	s.stateMu.Lock()
	s.ticks++
	s.lastRun = start
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
	}
	s.stateMu.Unlock()

	s.metrics.SetLastRun()
	if err != nil {
		s.metrics.SetError(err.Error())
		s.logger.Error("tick failed", "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("tick finished", "duration", time.Since(start))
}

func (s *Scheduler) Status() Status {
	st := Status{
		Enabled:  s.Running(),
		Busy:     s.Busy(),
		Schedule: s.spec,
		Location: s.location.String(),
	}
	if st.Enabled {
		st.NextRun = s.cron.Entry(s.entryID).Next
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	st.LastRun = s.lastRun
	st.LastError = s.lastErr
	st.Ticks = s.ticks
	st.Skipped = s.skipped
	return st
}
