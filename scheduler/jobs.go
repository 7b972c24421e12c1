package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"signal_report_backend/metrics"
	"signal_report_backend/models"
)

// cronParser accepts the same six-field, seconds-first syntax gocron's CronWithSeconds does
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type entry struct {
	job      models.ScheduledJob
	handler  Handler
	schedule cron.Schedule

	running   sync.Mutex
	busy      atomic.Bool
	lastFired atomic.Pointer[time.Time]
}

// JobStatus is the operator view of one job
type JobStatus struct {
	ID          string           `json:"id"`
	Cron        string           `json:"cron"`
	Timezone    string           `json:"timezone"`
	Range       models.RangeKind `json:"range"`
	Running     bool             `json:"running"`
	LastFiredAt *time.Time       `json:"last_fired_at,omitempty"`
	NextFireAt  *time.Time       `json:"next_fire_at,omitempty"`
}

// JobScheduler owns the job table and the calendar that drives it
type JobScheduler struct {
	cron    *gocron.Scheduler
	metrics *metrics.Registry
	now     func() time.Time

	// runCtx is handed to calendar-fired runs
	runCtx    context.Context
	cancelRun context.CancelFunc

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	started bool
	stopped bool
	// inflight counts runs in progress; Add happens under mu.RLock so Stop can Wait safely
	inflight sync.WaitGroup
}

// Option customises a JobScheduler
type Option func(*JobScheduler)

// WithMetrics records job runs
func WithMetrics(m *metrics.Registry) Option {
	return func(s *JobScheduler) { s.metrics = m }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *JobScheduler) { s.now = now }
}

// NewJobScheduler creates a scheduler with no jobs
func NewJobScheduler(opts ...Option) *JobScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &JobScheduler{
		cron:      gocron.NewScheduler(time.UTC),
		now:       time.Now,
		runCtx:    ctx,
		cancelRun: cancel,
		entries:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a job. Registering an id twice keeps the first registration.
func (s *JobScheduler) Register(job models.ScheduledJob, handler Handler) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	if handler == nil {
		return fmt.Errorf("job %s: handler is required", job.ID)
	}
	if job.Timezone == "" {
		job.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(job.Timezone); err != nil {
		return fmt.Errorf("job %s: invalid timezone %q: %w", job.ID, job.Timezone, err)
	}
	schedule, err := cronParser.Parse(calendarSpec(job))
	if err != nil {
		return fmt.Errorf("job %s: invalid cron expression %q: %w", job.ID, job.CronExpression, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[job.ID]; exists {
		log.Debug().Str("job", job.ID).Msg("Job already registered, keeping the first registration")
		return nil
	}
	if s.started {
		return fmt.Errorf("job %s: cannot register after Start", job.ID)
	}

	s.entries[job.ID] = &entry{job: job, handler: handler, schedule: schedule}
	s.order = append(s.order, job.ID)
	log.Info().Str("job", job.ID).Str("cron", job.CronExpression).Str("timezone", job.Timezone).Msg("Job registered")
	return nil
}

// Start puts every registered job on the calendar
func (s *JobScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}

	for _, id := range s.order {
		e := s.entries[id]
		jobID := id
		_, err := s.cron.CronWithSeconds(calendarSpec(e.job)).Tag(jobID).Do(func() {
			s.fire(jobID)
		})
		if err != nil {
			return fmt.Errorf("job %s: failed to schedule: %w", jobID, err)
		}
	}

	s.cron.StartAsync()
	s.started = true
	log.Info().Int("jobs", len(s.order)).Msg("Job scheduler started")
	return nil
}

// Stop takes every job off the calendar and waits for running jobs to finish.
// If ctx ends first, running jobs see their context cancelled and ctx's error is returned.
func (s *JobScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.cron.Stop()
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancelRun()
		log.Info().Msg("Job scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancelRun()
		log.Warn().Msg("Job scheduler stop timed out with runs in progress")
		return ctx.Err()
	}
}

// TriggerNow runs a job immediately and waits for it.
// The calendar uses the same path, so a job that is already running is rejected with ErrJobBusy.
func (s *JobScheduler) TriggerNow(ctx context.Context, jobID string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrStopped
	}
	e, ok := s.entries[jobID]
	if !ok {
		s.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	if !e.running.TryLock() {
		s.mu.RUnlock()
		s.metrics.ObserveJob(jobID, "busy", 0)
		return fmt.Errorf("%w: %s", ErrJobBusy, jobID)
	}
	s.inflight.Add(1)
	s.mu.RUnlock()

	defer s.inflight.Done()
	defer e.running.Unlock()

	e.busy.Store(true)
	defer e.busy.Store(false)

	start := time.Now()
	err := s.invoke(ctx, e)
	elapsed := time.Since(start)

	fired := s.now().UTC()
	e.lastFired.Store(&fired)

	if err != nil {
		s.metrics.ObserveJob(jobID, "error", elapsed)
		log.Error().Err(err).Str("job", jobID).Dur("duration", elapsed).Msg("Job failed")
		return fmt.Errorf("job %s: %w", jobID, err)
	}
	s.metrics.ObserveJob(jobID, "ok", elapsed)
	log.Info().Str("job", jobID).Dur("duration", elapsed).Msg("Job completed")
	return nil
}

// Jobs lists registered jobs in registration order
func (s *JobScheduler) Jobs() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]JobStatus, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.status(s.entries[id], now))
	}
	return out
}

// Job returns the status of one job
func (s *JobScheduler) Job(jobID string) (JobStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[jobID]
	if !ok {
		return JobStatus{}, false
	}
	return s.status(e, s.now()), true
}

func (s *JobScheduler) status(e *entry, now time.Time) JobStatus {
	st := JobStatus{
		ID:       e.job.ID,
		Cron:     e.job.CronExpression,
		Timezone: e.job.Timezone,
		Range:    e.job.Range,
		Running:  e.busy.Load(),
	}
	if last := e.lastFired.Load(); last != nil {
		t := *last
		st.LastFiredAt = &t
	}
	if next := e.schedule.Next(now); !next.IsZero() {
		st.NextFireAt = &next
	}
	return st
}

// fire is the calendar callback
func (s *JobScheduler) fire(jobID string) {
	// Handler failures are logged by TriggerNow
	if err := s.TriggerNow(s.runCtx, jobID); errors.Is(err, ErrJobBusy) {
		log.Warn().Str("job", jobID).Msg("Skipping calendar run, previous run still in progress")
	}
}

func (s *JobScheduler) invoke(ctx context.Context, e *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.handler(ctx, e.job)
}

// calendarSpec pins the expression to the job's timezone
func calendarSpec(job models.ScheduledJob) string {
	return "CRON_TZ=" + job.Timezone + " " + job.CronExpression
}
