// Package scheduler runs the periodic collection, generation and cleanup jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/i474232898/weather-recommendation/internal/cleanup"
	"github.com/i474232898/weather-recommendation/internal/collector"
	"github.com/i474232898/weather-recommendation/internal/common"
	"github.com/i474232898/weather-recommendation/internal/config"
	"github.com/i474232898/weather-recommendation/internal/generator"
	"github.com/i474232898/weather-recommendation/internal/observability"
)

var (
	// ErrJobRunning is returned when a job is triggered while a run of it is in flight.
	ErrJobRunning = errors.New("job already running")
	// ErrPoolFull is returned when the worker pool queue cannot take a manual trigger.
	ErrPoolFull = errors.New("worker pool is full")
	// ErrStopped is returned for triggers after Stop.
	ErrStopped = errors.New("scheduler stopped")
)

// Job names a non-reentrant scheduler job.
type Job string

const (
	JobShortTermSync        Job = "short_term_sync"
	JobMediumTermSync       Job = "medium_term_sync"
	JobShortTermGeneration  Job = "short_term_generation"
	JobMediumTermGeneration Job = "medium_term_generation"
	JobCompleteGeneration   Job = "complete_generation"
	JobCleanup              Job = "cleanup"
)

var allJobs = []Job{
	JobShortTermSync,
	JobMediumTermSync,
	JobShortTermGeneration,
	JobMediumTermGeneration,
	JobCompleteGeneration,
	JobCleanup,
}

// completeGenerationDays is the span of the daily full pass, today included.
const completeGenerationDays = 7

const memoryWarnPercent = 80

var baseHours = []int{2, 5, 8, 11, 14, 17, 20, 23}

// CalculateNearestBaseTime returns the latest short-term publish slot at or before hour as HHMM.
// Hours before the first slot map to the previous day's 2300.
func CalculateNearestBaseTime(hour int) string {
	for i := len(baseHours) - 1; i >= 0; i-- {
		if hour >= baseHours[i] {
			return fmt.Sprintf("%02d00", baseHours[i])
		}
	}
	return "2300"
}

// CurrentBaseSlot returns the KST publish date and time of the latest short-term slot at or before now.
func CurrentBaseSlot(now time.Time) (time.Time, string) {
	local := now.In(common.KST)
	baseDate := common.DateOf(local)
	if local.Hour() < baseHours[0] {
		baseDate = baseDate.AddDate(0, 0, -1)
	}
	return baseDate, CalculateNearestBaseTime(local.Hour())
}

type Collector interface {
	CollectShortTerm(ctx context.Context, req collector.ShortTermRequest) (*collector.SyncResult, error)
	CollectMediumTerm(ctx context.Context, req collector.MediumTermRequest) (*collector.SyncResult, error)
}

type Generator interface {
	Generate(ctx context.Context, req generator.Request) (*generator.Result, error)
}

type Cleaner interface {
	Run(ctx context.Context, opts cleanup.Options) (*cleanup.Result, error)
}

// Params bundles the scheduler's collaborators.
type Params struct {
	Config         config.SchedulerConfig
	Classification config.Classification
	Collector      Collector
	Generator      Generator
	Cleaner        Cleaner
	Clock          clockwork.Clock
	Metrics        *observability.Metrics
	Logger         *zap.Logger
}

// Status is a point-in-time view of the in-flight flags.
type Status struct {
	ShortTermSyncRunning        bool      `json:"shortTermSyncRunning"`
	MediumTermSyncRunning       bool      `json:"mediumTermSyncRunning"`
	ShortTermGenerationRunning  bool      `json:"shortTermGenerationRunning"`
	MediumTermGenerationRunning bool      `json:"mediumTermGenerationRunning"`
	CompleteGenerationRunning   bool      `json:"completeGenerationRunning"`
	CleanupRunning              bool      `json:"cleanupRunning"`
	StatusTime                  time.Time `json:"statusTime"`
}

type Scheduler struct {
	cron *gocron.Scheduler
	loc  *time.Location

	cfg            config.SchedulerConfig
	classification config.Classification
	collector      Collector
	generator      Generator
	cleaner        Cleaner
	clock          clockwork.Clock
	metrics        *observability.Metrics
	logger         *zap.Logger

	flags   map[Job]*atomic.Bool
	weather *pool
	general *pool

	ctx     context.Context
	cancel  context.CancelFunc
	stopped atomic.Bool

	timersMu sync.Mutex
	timerSeq uint64
	timers   map[uint64]clockwork.Timer
}

// New creates a Scheduler. Jobs are registered by Start.
func New(p Params) (*Scheduler, error) {
	loc, err := time.LoadLocation(p.Config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load scheduler timezone: %w", err)
	}
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}

	flags := make(map[Job]*atomic.Bool, len(allJobs))
	for _, j := range allJobs {
		flags[j] = atomic.NewBool(false)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:           gocron.NewScheduler(loc),
		loc:            loc,
		cfg:            p.Config,
		classification: p.Classification,
		collector:      p.Collector,
		generator:      p.Generator,
		cleaner:        p.Cleaner,
		clock:          p.Clock,
		metrics:        p.Metrics,
		logger:         p.Logger.Named("scheduler"),
		flags:          flags,
		timers:         make(map[uint64]clockwork.Timer),
		weather:        newPool("weather", weatherPoolWorkers, weatherPoolQueue),
		general:        newPool("general", generalPoolWorkers, generalPoolQueue),
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// Start registers the cron jobs, the health check and the one-shot initial sync, then starts gocron.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("scheduler disabled; no jobs registered")
		return nil
	}

	jobs := []struct {
		job  Job
		expr string
		fn   func(context.Context) error
	}{
		{JobShortTermSync, s.cfg.ShortTermCron, s.shortTermSync},
		{JobMediumTermSync, s.cfg.MediumTermCron, s.mediumTermSync},
		{JobShortTermGeneration, s.cfg.ShortTermGenerationCron, s.shortTermGeneration},
		{JobMediumTermGeneration, s.cfg.MediumTermGenerationCron, s.mediumTermGeneration},
		{JobCompleteGeneration, s.cfg.CompleteGenerationCron, s.completeGeneration},
		{JobCleanup, s.cfg.CleanupCron, s.cleanup},
	}
	for _, j := range jobs {
		j := j
		if _, err := s.cron.Cron(j.expr).Do(func() {
			s.dispatch(s.weather, j.job, j.fn)
		}); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", j.job, j.expr, err)
		}
	}

	if s.cfg.HealthCheckInterval > 0 {
		if _, err := s.cron.Every(s.cfg.HealthCheckInterval).WaitForSchedule().Do(s.healthCheck); err != nil {
			return fmt.Errorf("schedule health check: %w", err)
		}
	}

	s.after(s.cfg.InitialSyncDelay, func() {
		if !s.weather.submit(func() { s.initialSync(s.ctx) }) {
			s.logger.Warn("initial sync dropped: weather pool full")
		}
	})

	s.cron.StartAsync()
	s.logger.Info("scheduler started",
		zap.String("timezone", s.loc.String()),
		zap.Int("jobs", len(jobs)),
		zap.Duration("initial_sync_delay", s.cfg.InitialSyncDelay))
	return nil
}

// Stop halts scheduling, cancels running jobs and waits for both pools to drain.
func (s *Scheduler) Stop(ctx context.Context) error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}

	s.cron.Stop()
	s.timersMu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.timersMu.Unlock()
	s.cancel()

	var errs *multierror.Error
	if !s.weather.drain(ctx, weatherPoolDrain) {
		errs = multierror.Append(errs, fmt.Errorf("%s pool did not drain within %s", s.weather.name, weatherPoolDrain))
	}
	if !s.general.drain(ctx, generalPoolDrain) {
		errs = multierror.Append(errs, fmt.Errorf("%s pool did not drain within %s", s.general.name, generalPoolDrain))
	}
	s.logger.Info("scheduler stopped")
	return errs.ErrorOrNil()
}

func (s *Scheduler) Status() Status {
	return Status{
		ShortTermSyncRunning:        s.flags[JobShortTermSync].Load(),
		MediumTermSyncRunning:       s.flags[JobMediumTermSync].Load(),
		ShortTermGenerationRunning:  s.flags[JobShortTermGeneration].Load(),
		MediumTermGenerationRunning: s.flags[JobMediumTermGeneration].Load(),
		CompleteGenerationRunning:   s.flags[JobCompleteGeneration].Load(),
		CleanupRunning:              s.flags[JobCleanup].Load(),
		StatusTime:                  s.clock.Now(),
	}
}

// TriggerShortTerm runs a short-term collection on the weather pool and returns its execution ID.
func (s *Scheduler) TriggerShortTerm(req collector.ShortTermRequest) (string, error) {
	return s.trigger(JobShortTermSync, func(ctx context.Context) error {
		res, err := s.collector.CollectShortTerm(ctx, req)
		if err != nil {
			return err
		}
		s.logSync(res)
		return nil
	})
}

// TriggerMediumTerm runs a medium-term collection on the weather pool and returns its execution ID.
func (s *Scheduler) TriggerMediumTerm(req collector.MediumTermRequest) (string, error) {
	return s.trigger(JobMediumTermSync, func(ctx context.Context) error {
		res, err := s.collector.CollectMediumTerm(ctx, req)
		if err != nil {
			return err
		}
		s.logSync(res)
		return nil
	})
}

// TriggerGeneration runs a generation over req under the complete-generation guard.
func (s *Scheduler) TriggerGeneration(req generator.Request) (string, error) {
	if req.EndDate.Before(req.StartDate) {
		return "", generator.ErrInvalidRange
	}
	if req.Label == "" {
		req.Label = "manual"
	}
	return s.trigger(JobCompleteGeneration, func(ctx context.Context) error {
		return s.generate(ctx, req)
	})
}

// TriggerCleanup runs a cleanup with opts. Invalid retention is rejected before dispatch.
func (s *Scheduler) TriggerCleanup(opts cleanup.Options) (string, error) {
	if opts.RetentionDays < 1 || opts.RetentionDays > 365 {
		return "", fmt.Errorf("%w: got %d", cleanup.ErrInvalidRetention, opts.RetentionDays)
	}
	return s.trigger(JobCleanup, func(ctx context.Context) error {
		_, err := s.cleaner.Run(ctx, opts)
		return err
	})
}

func (s *Scheduler) trigger(job Job, fn func(context.Context) error) (string, error) {
	if s.stopped.Load() {
		return "", ErrStopped
	}
	if s.flags[job].Load() {
		return "", ErrJobRunning
	}
	id := uuid.NewString()
	if !s.weather.submit(func() { _ = s.run(s.ctx, job, id, fn) }) {
		return "", ErrPoolFull
	}
	s.logger.Info("job triggered", zap.String("job", string(job)), zap.String("execution_id", id))
	return id, nil
}

// dispatch hands a scheduled run to p, logging when the pool is saturated.
func (s *Scheduler) dispatch(p *pool, job Job, fn func(context.Context) error) {
	if s.stopped.Load() {
		return
	}
	id := uuid.NewString()
	if !p.submit(func() { _ = s.run(s.ctx, job, id, fn) }) {
		s.logger.Warn("job dropped: pool full", zap.String("job", string(job)), zap.String("pool", p.name))
		s.jobOutcome(job, "skipped")
	}
}

// run executes fn while holding the job's in-flight flag. A set flag skips the run with ErrJobRunning.
func (s *Scheduler) run(ctx context.Context, job Job, id string, fn func(context.Context) error) error {
	log := s.logger.With(zap.String("job", string(job)), zap.String("execution_id", id))

	flag := s.flags[job]
	if !flag.CompareAndSwap(false, true) {
		log.Warn("job already running; skipping")
		s.jobOutcome(job, "skipped")
		return ErrJobRunning
	}
	defer flag.Store(false)

	if s.metrics != nil {
		s.metrics.JobInFlight.WithLabelValues(string(job)).Set(1)
		defer s.metrics.JobInFlight.WithLabelValues(string(job)).Set(0)
	}

	start := s.clock.Now()
	log.Info("job started")
	err := fn(ctx)
	elapsed := s.clock.Since(start)
	if s.metrics != nil {
		s.metrics.JobDuration.WithLabelValues(string(job)).Observe(elapsed.Seconds())
	}

	if err != nil {
		log.Error("job failed", zap.Duration("duration", elapsed), zap.Error(err))
		s.jobOutcome(job, "failure")
		return err
	}
	log.Info("job finished", zap.Duration("duration", elapsed))
	s.jobOutcome(job, "success")
	return nil
}

func (s *Scheduler) jobOutcome(job Job, outcome string) {
	if s.metrics != nil {
		s.metrics.JobRuns.WithLabelValues(string(job), outcome).Inc()
	}
}

// after runs fn once after d on the scheduler clock. Pending timers are cancelled by Stop;
// fired ones remove themselves.
func (s *Scheduler) after(d time.Duration, fn func()) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	s.timerSeq++
	id := s.timerSeq
	s.timers[id] = s.clock.AfterFunc(d, func() {
		s.timersMu.Lock()
		delete(s.timers, id)
		s.timersMu.Unlock()

		if !s.stopped.Load() {
			fn()
		}
	})
}

func (s *Scheduler) pendingTimers() int {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	return len(s.timers)
}

// triggerAfter schedules a guarded run of fn on the general pool after d.
func (s *Scheduler) triggerAfter(d time.Duration, job Job, fn func(context.Context) error) {
	s.logger.Info("generation scheduled", zap.String("job", string(job)), zap.Duration("delay", d))
	s.after(d, func() {
		s.dispatch(s.general, job, fn)
	})
}

func (s *Scheduler) shortTermSync(ctx context.Context) error {
	res, err := s.collectShortTerm(ctx)
	if err != nil {
		return err
	}
	if res.SuccessfulRegions > 0 {
		s.triggerAfter(s.cfg.ShortTermTriggerDelay, JobShortTermGeneration, s.shortTermGeneration)
	}
	return nil
}

func (s *Scheduler) mediumTermSync(ctx context.Context) error {
	res, err := s.collectMediumTerm(ctx)
	if err != nil {
		return err
	}
	if res.SuccessfulRegions > 0 {
		s.triggerAfter(s.cfg.MediumTermTriggerDelay, JobMediumTermGeneration, s.mediumTermGeneration)
	}
	return nil
}

func (s *Scheduler) collectShortTerm(ctx context.Context) (*collector.SyncResult, error) {
	baseDate, baseTime := CurrentBaseSlot(s.clock.Now())
	res, err := s.collector.CollectShortTerm(ctx, collector.ShortTermRequest{
		BaseDate: baseDate,
		BaseTime: baseTime,
	})
	if err != nil {
		return nil, err
	}
	s.logSync(res)
	return res, nil
}

func (s *Scheduler) collectMediumTerm(ctx context.Context) (*collector.SyncResult, error) {
	res, err := s.collector.CollectMediumTerm(ctx, collector.MediumTermRequest{
		Tmfc: common.Today(s.clock),
	})
	if err != nil {
		return nil, err
	}
	s.logSync(res)
	return res, nil
}

func (s *Scheduler) shortTermGeneration(ctx context.Context) error {
	today := common.Today(s.clock)
	return s.generate(ctx, generator.Request{
		StartDate:       today,
		EndDate:         today.AddDate(0, 0, s.classification.ShortTermDays),
		ForceRegenerate: true,
		Label:           "short-term",
	})
}

func (s *Scheduler) mediumTermGeneration(ctx context.Context) error {
	today := common.Today(s.clock)
	return s.generate(ctx, generator.Request{
		StartDate:       today.AddDate(0, 0, s.classification.ShortTermDays+1),
		EndDate:         today.AddDate(0, 0, s.classification.MediumTermDays),
		ForceRegenerate: true,
		Label:           "medium-term",
	})
}

func (s *Scheduler) completeGeneration(ctx context.Context) error {
	today := common.Today(s.clock)
	return s.generate(ctx, generator.Request{
		StartDate: today,
		EndDate:   today.AddDate(0, 0, completeGenerationDays-1),
		Label:     "complete",
	})
}

func (s *Scheduler) cleanup(ctx context.Context) error {
	res, err := s.cleaner.Run(ctx, cleanup.AllKinds(s.cfg.CleanupRetentionDays, false))
	if err != nil {
		return err
	}
	if len(res.ErrorMessages) > 0 {
		return fmt.Errorf("cleanup: %d kind(s) failed", len(res.ErrorMessages))
	}
	return nil
}

func (s *Scheduler) generate(ctx context.Context, req generator.Request) error {
	res, err := s.generator.Generate(ctx, req)
	if err != nil {
		return err
	}
	s.logger.Info("generation finished",
		zap.String("label", res.Label),
		zap.String("start_date", res.StartDate),
		zap.String("end_date", res.EndDate),
		zap.Int("successful_regions", res.SuccessfulRegions),
		zap.Int("total_regions", res.TotalRegions),
		zap.Int("generated", res.GeneratedCount),
		zap.Int("skipped", res.SkippedCount))
	return nil
}

// initialSync collects both forecast kinds in parallel, then runs a complete generation.
func (s *Scheduler) initialSync(ctx context.Context) {
	s.logger.Info("initial sync started")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs *multierror.Error
	)
	steps := []struct {
		job Job
		fn  func(context.Context) error
	}{
		{JobShortTermSync, func(ctx context.Context) error {
			_, err := s.collectShortTerm(ctx)
			return err
		}},
		{JobMediumTermSync, func(ctx context.Context) error {
			_, err := s.collectMediumTerm(ctx)
			return err
		}},
	}
	for _, step := range steps {
		step := step
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.run(ctx, step.job, uuid.NewString(), step.fn); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", step.job, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if err := s.run(ctx, JobCompleteGeneration, uuid.NewString(), s.completeGeneration); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", JobCompleteGeneration, err))
	}

	if err := errs.ErrorOrNil(); err != nil {
		s.logger.Warn("initial sync finished with errors", zap.Error(err))
		return
	}
	s.logger.Info("initial sync finished")
}

func (s *Scheduler) healthCheck() {
	st := s.Status()
	s.logger.Info("scheduler status",
		zap.Bool("short_term_sync", st.ShortTermSyncRunning),
		zap.Bool("medium_term_sync", st.MediumTermSyncRunning),
		zap.Bool("short_term_generation", st.ShortTermGenerationRunning),
		zap.Bool("medium_term_generation", st.MediumTermGenerationRunning),
		zap.Bool("complete_generation", st.CompleteGenerationRunning),
		zap.Bool("cleanup", st.CleanupRunning))

	for _, j := range allJobs {
		if s.flags[j].Load() {
			s.logger.Warn("job still running at health check", zap.String("job", string(j)))
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if usage := memoryUsagePercent(ms); usage > memoryWarnPercent {
		s.logger.Warn("high memory usage", zap.Float64("percent", usage))
	}
}

func memoryUsagePercent(ms runtime.MemStats) float64 {
	if ms.Sys == 0 {
		return 0
	}
	return float64(ms.HeapAlloc) / float64(ms.Sys) * 100
}

func (s *Scheduler) logSync(res *collector.SyncResult) {
	s.logger.Info("sync finished",
		zap.String("kind", string(res.Kind)),
		zap.Int("successful_regions", res.SuccessfulRegions),
		zap.Int("total_regions", res.TotalRegions),
		zap.Int("new", res.NewDataPoints),
		zap.Int("updated", res.UpdatedDataPoints))
}
