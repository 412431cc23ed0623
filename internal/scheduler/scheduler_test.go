package scheduler

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/i474232898/weather-recommendation/internal/cleanup"
	"github.com/i474232898/weather-recommendation/internal/collector"
	"github.com/i474232898/weather-recommendation/internal/common"
	"github.com/i474232898/weather-recommendation/internal/config"
	"github.com/i474232898/weather-recommendation/internal/generator"
	"github.com/i474232898/weather-recommendation/internal/observability"
)

type fakeCollector struct {
	mu         sync.Mutex
	successful int
	short      []collector.ShortTermRequest
	medium     []collector.MediumTermRequest
}

func (f *fakeCollector) CollectShortTerm(_ context.Context, req collector.ShortTermRequest) (*collector.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.short = append(f.short, req)
	return &collector.SyncResult{Kind: collector.KindShortTerm, TotalRegions: 1, SuccessfulRegions: f.successful}, nil
}

func (f *fakeCollector) CollectMediumTerm(_ context.Context, req collector.MediumTermRequest) (*collector.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.medium = append(f.medium, req)
	return &collector.SyncResult{Kind: collector.KindMediumTerm, TotalRegions: 1, SuccessfulRegions: f.successful}, nil
}

func (f *fakeCollector) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.short), len(f.medium)
}

type fakeGenerator struct {
	reqs chan generator.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req generator.Request) (*generator.Result, error) {
	f.reqs <- req
	return &generator.Result{Label: req.Label}, nil
}

type fakeCleaner struct {
	opts chan cleanup.Options
}

func (f *fakeCleaner) Run(_ context.Context, opts cleanup.Options) (*cleanup.Result, error) {
	f.opts <- opts
	return &cleanup.Result{RetentionDays: opts.RetentionDays}, nil
}

type harness struct {
	s         *Scheduler
	clock     *clockwork.FakeClock
	collector *fakeCollector
	generator *fakeGenerator
	cleaner   *fakeCleaner
	metrics   *observability.Metrics
	today     time.Time
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	h := &harness{
		clock:     clockwork.NewFakeClockAt(now),
		collector: &fakeCollector{successful: 1},
		generator: &fakeGenerator{reqs: make(chan generator.Request, 16)},
		cleaner:   &fakeCleaner{opts: make(chan cleanup.Options, 4)},
		metrics:   observability.NewMetricsForTesting(),
		today:     common.DateOf(now),
	}

	// Cron expressions that will not fire while a test runs.
	never := "0 0 1 1 *"
	s, err := New(Params{
		Config: config.SchedulerConfig{
			Enabled:                  true,
			Timezone:                 "Asia/Seoul",
			ShortTermCron:            never,
			MediumTermCron:           never,
			ShortTermGenerationCron:  never,
			MediumTermGenerationCron: never,
			CompleteGenerationCron:   never,
			CleanupCron:              never,
			InitialSyncDelay:         time.Minute,
			ShortTermTriggerDelay:    15 * time.Minute,
			MediumTermTriggerDelay:   30 * time.Minute,
			CleanupRetentionDays:     7,
		},
		Classification: config.DefaultClassification(),
		Collector:      h.collector,
		Generator:      h.generator,
		Cleaner:        h.cleaner,
		Clock:          h.clock,
		Metrics:        h.metrics,
		Logger:         zap.NewNop(),
	})
	require.NoError(t, err)
	h.s = s
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return h
}

func (h *harness) nextGeneration(t *testing.T) generator.Request {
	t.Helper()
	select {
	case req := <-h.generator.reqs:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("generation was not triggered")
		return generator.Request{}
	}
}

func (h *harness) assertNoGeneration(t *testing.T) {
	t.Helper()
	assert.Never(t, func() bool { return len(h.generator.reqs) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func kst(hour, minute int) time.Time {
	return time.Date(2025, 7, 2, hour, minute, 0, 0, common.KST)
}

func TestCalculateNearestBaseTime(t *testing.T) {
	cases := map[int]string{
		0:  "2300",
		1:  "2300",
		2:  "0200",
		4:  "0200",
		7:  "0500",
		11: "1100",
		14: "1400",
		22: "2000",
		23: "2300",
	}
	for hour, want := range cases {
		assert.Equal(t, want, CalculateNearestBaseTime(hour), "hour=%d", hour)
	}
}

func TestShortTermSync_TriggersGenerationAfterDelay(t *testing.T) {
	h := newHarness(t, kst(8, 10))

	require.NoError(t, h.s.shortTermSync(context.Background()))
	require.Len(t, h.collector.short, 1)
	assert.Equal(t, common.Date(2025, 7, 2), h.collector.short[0].BaseDate)
	assert.Equal(t, "0800", h.collector.short[0].BaseTime)
	assert.False(t, h.collector.short[0].ForceUpdate)

	h.clock.Advance(14 * time.Minute)
	h.assertNoGeneration(t)

	h.clock.Advance(time.Minute)
	req := h.nextGeneration(t)
	assert.Equal(t, h.today, req.StartDate)
	assert.Equal(t, h.today.AddDate(0, 0, 2), req.EndDate)
	assert.True(t, req.ForceRegenerate)
	assert.Equal(t, "short-term", req.Label)
}

func TestAfter_FiredTimersAreForgotten(t *testing.T) {
	h := newHarness(t, kst(8, 10))

	for i := 0; i < 3; i++ {
		require.NoError(t, h.s.shortTermSync(context.Background()))
	}
	assert.Equal(t, 3, h.s.pendingTimers())

	h.clock.Advance(15 * time.Minute)
	h.nextGeneration(t)
	assert.Eventually(t, func() bool { return h.s.pendingTimers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestShortTermSync_BeforeFirstSlotUsesPreviousDay(t *testing.T) {
	h := newHarness(t, kst(1, 30))

	require.NoError(t, h.s.shortTermSync(context.Background()))
	require.Len(t, h.collector.short, 1)
	assert.Equal(t, common.Date(2025, 7, 1), h.collector.short[0].BaseDate)
	assert.Equal(t, "2300", h.collector.short[0].BaseTime)
}

func TestShortTermSync_NoTriggerWithoutSuccessfulRegion(t *testing.T) {
	h := newHarness(t, kst(8, 10))
	h.collector.successful = 0

	require.NoError(t, h.s.shortTermSync(context.Background()))
	h.clock.Advance(time.Hour)
	h.assertNoGeneration(t)
}

func TestMediumTermSync_TriggersMediumGeneration(t *testing.T) {
	h := newHarness(t, kst(6, 30))

	require.NoError(t, h.s.mediumTermSync(context.Background()))
	require.Len(t, h.collector.medium, 1)
	assert.Equal(t, h.today, h.collector.medium[0].Tmfc)

	h.clock.Advance(15 * time.Minute)
	h.assertNoGeneration(t)

	h.clock.Advance(15 * time.Minute)
	req := h.nextGeneration(t)
	assert.Equal(t, h.today.AddDate(0, 0, 3), req.StartDate)
	assert.Equal(t, h.today.AddDate(0, 0, 6), req.EndDate)
	assert.True(t, req.ForceRegenerate)
}

func TestRun_SkipsWhileInFlight(t *testing.T) {
	h := newHarness(t, kst(3, 0))
	ctx := context.Background()

	h.s.flags[JobCleanup].Store(true)
	called := false
	err := h.s.run(ctx, JobCleanup, "first", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrJobRunning)
	assert.False(t, called)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.JobRuns.WithLabelValues(string(JobCleanup), "skipped")))

	h.s.flags[JobCleanup].Store(false)
	require.NoError(t, h.s.run(ctx, JobCleanup, "second", func(context.Context) error {
		called = true
		assert.True(t, h.s.Status().CleanupRunning)
		return nil
	}))
	assert.True(t, called)
	assert.False(t, h.s.Status().CleanupRunning)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.JobRuns.WithLabelValues(string(JobCleanup), "success")))
}

func TestTriggers_RejectInvalidOrBusy(t *testing.T) {
	h := newHarness(t, kst(9, 0))

	h.s.flags[JobShortTermSync].Store(true)
	_, err := h.s.TriggerShortTerm(collector.ShortTermRequest{})
	assert.ErrorIs(t, err, ErrJobRunning)

	_, err = h.s.TriggerCleanup(cleanup.Options{RetentionDays: 0, ShortTerm: true})
	assert.ErrorIs(t, err, cleanup.ErrInvalidRetention)

	_, err = h.s.TriggerGeneration(generator.Request{StartDate: h.today, EndDate: h.today.AddDate(0, 0, -1)})
	assert.ErrorIs(t, err, generator.ErrInvalidRange)

	require.NoError(t, h.s.Stop(context.Background()))
	_, err = h.s.TriggerMediumTerm(collector.MediumTermRequest{})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestTriggerCleanup_RunsOnPool(t *testing.T) {
	h := newHarness(t, kst(9, 0))

	id, err := h.s.TriggerCleanup(cleanup.AllKinds(30, true))
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)

	select {
	case opts := <-h.cleaner.opts:
		assert.Equal(t, 30, opts.RetentionDays)
		assert.True(t, opts.DryRun)
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup did not run")
	}
}

func TestTriggerGeneration_DefaultsLabel(t *testing.T) {
	h := newHarness(t, kst(9, 0))

	_, err := h.s.TriggerGeneration(generator.Request{StartDate: h.today, EndDate: h.today})
	require.NoError(t, err)
	assert.Equal(t, "manual", h.nextGeneration(t).Label)
}

func TestInitialSync_CollectsThenGeneratesCompleteRange(t *testing.T) {
	h := newHarness(t, kst(10, 0))

	h.s.initialSync(context.Background())

	short, medium := h.collector.calls()
	assert.Equal(t, 1, short)
	assert.Equal(t, 1, medium)

	req := h.nextGeneration(t)
	assert.Equal(t, "complete", req.Label)
	assert.Equal(t, h.today, req.StartDate)
	assert.Equal(t, h.today.AddDate(0, 0, 6), req.EndDate)
	assert.False(t, req.ForceRegenerate)
}

func TestStart_RunsInitialSyncAfterDelay(t *testing.T) {
	h := newHarness(t, kst(10, 0))
	require.NoError(t, h.s.Start())

	h.clock.Advance(59 * time.Second)
	h.assertNoGeneration(t)

	h.clock.Advance(time.Second)
	assert.Equal(t, "complete", h.nextGeneration(t).Label)
	short, medium := h.collector.calls()
	assert.Equal(t, 1, short)
	assert.Equal(t, 1, medium)
}

func TestCleanupJob_UsesConfiguredRetention(t *testing.T) {
	h := newHarness(t, kst(3, 0))

	require.NoError(t, h.s.cleanup(context.Background()))
	opts := <-h.cleaner.opts
	assert.Equal(t, cleanup.AllKinds(7, false), opts)
}

func TestMemoryUsagePercent(t *testing.T) {
	assert.Zero(t, memoryUsagePercent(runtimeStats(0, 0)))
	assert.InDelta(t, 50.0, memoryUsagePercent(runtimeStats(50, 100)), 1e-9)
}

func runtimeStats(heapAlloc, sys uint64) runtime.MemStats {
	return runtime.MemStats{HeapAlloc: heapAlloc, Sys: sys}
}

func TestHealthCheck_LogsStatusAtInfo(t *testing.T) {
	h := newHarness(t, kst(9, 0))
	core, logs := observer.New(zapcore.InfoLevel)
	h.s.logger = zap.New(core)
	h.s.flags[JobCleanup].Store(true)
	defer h.s.flags[JobCleanup].Store(false)

	h.s.healthCheck()

	status := logs.FilterMessage("scheduler status").All()
	require.Len(t, status, 1)
	assert.Equal(t, zapcore.InfoLevel, status[0].Level)
	assert.Equal(t, true, status[0].ContextMap()["cleanup"])
	assert.Equal(t, 1, logs.FilterMessage("job still running at health check").Len())
}
