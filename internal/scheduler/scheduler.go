// Package scheduler runs named recurring jobs on cron cadences and exposes
// manual triggers and status introspection for them.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/billingcore/internal/clock"
	obsmetrics "github.com/smallbiznis/billingcore/internal/observability/metrics"
	"github.com/smallbiznis/billingcore/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInvalidConfig  = errors.New("invalid_scheduler_config")
	ErrInvalidCadence = errors.New("invalid_job_cadence")
	ErrDuplicateJob   = errors.New("job_already_registered")
	ErrUnknownJob     = errors.New("unknown_job")
	ErrJobRunning     = errors.New("job_already_running")
	ErrAlreadyRunning = errors.New("scheduler_already_running")
	ErrNotRunning     = errors.New("scheduler_not_running")
)

// Handler performs one run of a job. Per-item failures belong in the
// returned JobResult; an error means the run as a whole could not proceed.
type Handler func(ctx context.Context) (JobResult, error)

type JobResult struct {
	Success int      `json:"success"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
	Details any      `json:"details,omitempty"`
}

type JobStatus struct {
	Name           string     `json:"name"`
	Cadence        string     `json:"cadence"`
	Enabled        bool       `json:"enabled"`
	Running        bool       `json:"running"`
	RunCount       int64      `json:"run_count"`
	LastStartedAt  *time.Time `json:"last_started_at,omitempty"`
	LastFinishedAt *time.Time `json:"last_finished_at,omitempty"`
	LastResult     *JobResult `json:"last_result,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
}

type Status struct {
	Running bool        `json:"running"`
	Now     time.Time   `json:"now"`
	Jobs    []JobStatus `json:"jobs"`
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Metrics *obsmetrics.SchedulerMetrics `optional:"true"`
	Config  Config                       `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	clock   clock.Clock
	metrics *obsmetrics.SchedulerMetrics
	cfg     Config
	cron    *cron.Cron

	mu      sync.Mutex
	jobs    map[string]*job
	running bool
	baseCtx context.Context
	cancel  context.CancelFunc
}

type job struct {
	name     string
	cadence  string
	schedule cron.Schedule
	handler  Handler

	enabled atomic.Bool
	running atomic.Bool

	mu             sync.Mutex
	runCount       int64
	lastStartedAt  time.Time
	lastFinishedAt time.Time
	lastResult     *JobResult
	lastError      string
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	log := p.Log.Named("scheduler")
	cronLog := cron.PrintfLogger(zap.NewStdLog(log.Named("cron")))

	return &Scheduler{
		log:     log,
		clock:   p.Clock,
		metrics: p.Metrics,
		cfg:     p.Config.withDefaults(),
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		jobs:    make(map[string]*job),
		baseCtx: context.Background(),
	}, nil
}

// Register adds a job triggered on a standard five-field cron cadence (UTC).
// Jobs registered while the scheduler is running are picked up immediately.
func (s *Scheduler) Register(name, cadence string, handler Handler) error {
	if name == "" || handler == nil {
		return ErrInvalidConfig
	}
	schedule, err := cron.ParseStandard(cadence)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidCadence, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	j := &job{name: name, cadence: cadence, schedule: schedule, handler: handler}
	j.enabled.Store(true)
	s.jobs[name] = j
	s.cron.Schedule(schedule, cron.FuncJob(func() { s.trigger(j) }))
	return nil
}

// Start begins firing jobs on their cadences.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	s.cron.Start()
	s.running = true
	s.log.Info("scheduler.started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop halts cron triggers and waits for in-flight runs until ctx expires,
// after which those runs are cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	cancel := s.cancel
	stopped := s.cron.Stop()
	s.mu.Unlock()

	defer cancel()
	select {
	case <-stopped.Done():
		s.log.Info("scheduler.stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler.stop.timeout", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Pause stops cron from triggering one job; RunNow still works.
func (s *Scheduler) Pause(name string) error {
	j, err := s.lookup(name)
	if err != nil {
		return err
	}
	j.enabled.Store(false)
	s.log.Info("scheduler.job.paused", zap.String("job", name))
	return nil
}

func (s *Scheduler) Resume(name string) error {
	j, err := s.lookup(name)
	if err != nil {
		return err
	}
	j.enabled.Store(true)
	s.log.Info("scheduler.job.resumed", zap.String("job", name))
	return nil
}

// RunNow executes a job synchronously on ctx, regardless of whether the
// scheduler is started. A run already in progress for the same job is not
// duplicated; ErrJobRunning is returned instead.
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobResult, error) {
	j, err := s.lookup(name)
	if err != nil {
		return JobResult{}, err
	}
	return s.execute(ctx, j, triggerManual)
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	running := s.running
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	sort.Slice(jobs, func(a, b int) bool { return jobs[a].name < jobs[b].name })
	now := s.clock.Now().UTC()
	out := Status{Running: running, Now: now, Jobs: make([]JobStatus, 0, len(jobs))}
	for _, j := range jobs {
		st := j.snapshot()
		if running && st.Enabled {
			next := j.schedule.Next(now)
			st.NextRunAt = &next
		}
		out.Jobs = append(out.Jobs, st)
	}
	return out
}

func (s *Scheduler) lookup(name string) (*job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return j, nil
}

func (s *Scheduler) trigger(j *job) {
	if !j.enabled.Load() {
		s.log.Debug("scheduler.job.paused_skip", zap.String("job", j.name))
		return
	}
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	_, _ = s.execute(ctx, j, triggerCron)
}

func (s *Scheduler) execute(parent context.Context, j *job, trigger string) (JobResult, error) {
	if !j.running.CompareAndSwap(false, true) {
		s.metrics.IncJobRun(j.name, obsmetrics.JobOutcomeOverlap)
		s.log.Warn("scheduler.job.overlap_skipped", zap.String("job", j.name), zap.String("trigger", trigger))
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobRunning, j.name)
	}
	defer j.running.Store(false)

	ctx, cancel := context.WithTimeout(parent, s.cfg.Timeout)
	defer cancel()
	ctx, run := s.newJobRun(ctx, j.name, trigger)
	ctx, span := tracing.StartJobSpan(ctx, j.name, run.runID)

	j.markStarted(s.clock.Now().UTC())
	s.metrics.SetRunning(j.name, true)
	s.logJobStart(ctx, run)

	result, err := invoke(ctx, j.handler)
	if result.Errors == nil {
		result.Errors = []string{}
	}
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		s.metrics.IncJobError(j.name, err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.metrics.IncJobTimeout(j.name)
		s.logger(ctx).Warn("scheduler.job.timeout", zap.String("job", j.name), zap.Duration("timeout", s.cfg.Timeout))
	}

	finishedAt := s.clock.Now().UTC()
	j.markFinished(finishedAt, result, err)
	s.metrics.SetRunning(j.name, false)
	s.metrics.ObserveJobDuration(j.name, time.Since(run.startedAt))
	s.metrics.AddItems(j.name, "success", result.Success)
	s.metrics.AddItems(j.name, "skipped", result.Skipped)
	s.metrics.AddItems(j.name, "failed", result.Failed)
	outcome := runOutcome(result, err)
	s.metrics.IncJobRun(j.name, outcome)
	if outcome == obsmetrics.JobOutcomeSuccess {
		s.metrics.MarkSuccess(j.name, finishedAt)
	}
	s.logJobFinish(ctx, run, result, err)
	tracing.EndJobSpan(span, err)
	return result, err
}

// invoke runs h, converting a panic into an error so no run escapes the scheduler.
func invoke(ctx context.Context, h Handler) (result JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", obsmetrics.ErrPanic, r)
		}
	}()
	return h(ctx)
}

func runOutcome(result JobResult, err error) string {
	switch {
	case err != nil:
		return obsmetrics.JobOutcomeFailed
	case result.Failed > 0:
		return obsmetrics.JobOutcomePartial
	default:
		return obsmetrics.JobOutcomeSuccess
	}
}

func (j *job) markStarted(at time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runCount++
	j.lastStartedAt = at
}

func (j *job) markFinished(at time.Time, result JobResult, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastFinishedAt = at
	j.lastResult = &result
	j.lastError = ""
	if err != nil {
		j.lastError = err.Error()
	}
}

func (j *job) snapshot() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := JobStatus{
		Name:       j.name,
		Cadence:    j.cadence,
		Enabled:    j.enabled.Load(),
		Running:    j.running.Load(),
		RunCount:   j.runCount,
		LastResult: j.lastResult,
		LastError:  j.lastError,
	}
	if !j.lastStartedAt.IsZero() {
		started := j.lastStartedAt
		st.LastStartedAt = &started
	}
	if !j.lastFinishedAt.IsZero() {
		finished := j.lastFinishedAt
		st.LastFinishedAt = &finished
	}
	return st
}
