package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/i474232898/weather-recommendation/internal/cleanup"
	"github.com/i474232898/weather-recommendation/internal/collector"
	"github.com/i474232898/weather-recommendation/internal/common"
	"github.com/i474232898/weather-recommendation/internal/generator"
	"github.com/i474232898/weather-recommendation/internal/region"
	"github.com/i474232898/weather-recommendation/internal/scheduler"
	"github.com/i474232898/weather-recommendation/internal/store"
	"github.com/i474232898/weather-recommendation/internal/store/storetest"
	"github.com/i474232898/weather-recommendation/internal/weather"
)

type stubGrid struct{}

func (stubGrid) ConvertGrid(context.Context, float64, float64) (weather.Grid, error) {
	return weather.Grid{X: 98, Y: 76}, nil
}

type stubHealth struct{ err error }

func (s stubHealth) CheckHealth(context.Context) error { return s.err }

type fakeJobs struct {
	err        error
	short      []collector.ShortTermRequest
	medium     []collector.MediumTermRequest
	generation []generator.Request
	cleanups   []cleanup.Options
}

func (f *fakeJobs) TriggerShortTerm(req collector.ShortTermRequest) (string, error) {
	f.short = append(f.short, req)
	return "exec-short", f.err
}

func (f *fakeJobs) TriggerMediumTerm(req collector.MediumTermRequest) (string, error) {
	f.medium = append(f.medium, req)
	return "exec-medium", f.err
}

func (f *fakeJobs) TriggerGeneration(req generator.Request) (string, error) {
	f.generation = append(f.generation, req)
	return "exec-generate", f.err
}

func (f *fakeJobs) TriggerCleanup(opts cleanup.Options) (string, error) {
	f.cleanups = append(f.cleanups, opts)
	return "exec-cleanup", f.err
}

func (f *fakeJobs) Status() scheduler.Status {
	return scheduler.Status{CleanupRunning: true}
}

type testApp struct {
	app    *fiber.App
	region weather.Region
	jobs   *fakeJobs
}

// newTestApp seeds one region with recommendations on 2025-07-01, 07-02 and 07-05; today is 07-03.
func newTestApp(t *testing.T, health HealthChecker) *testApp {
	t.Helper()
	ctx := context.Background()
	db := storetest.New(t)

	_, err := store.SeedTemplates(ctx, db)
	require.NoError(t, err)
	templates, err := store.NewTemplateRepository(db).AllWithKeywords(ctx)
	require.NoError(t, err)

	seeded := storetest.SeedRegion(t, db, "서울", "11B00000", "11B10101")
	recs := store.NewRecommendationRepository(db)
	for _, day := range []int{1, 2, 5} {
		require.NoError(t, recs.Upsert(ctx, seeded.ID, common.Date(2025, 7, day), templates[0].ID, time.Now()))
	}

	clock := clockwork.NewFakeClockAt(time.Date(2025, 7, 3, 9, 0, 0, 0, common.KST))
	regions := store.NewRegionRepository(db)
	jobs := &fakeJobs{}

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, Deps{
		Query:   weather.NewService(regions, recs, clock, zap.NewNop()),
		Regions: region.NewService(regions, stubGrid{}, zap.NewNop()),
		Jobs:    jobs,
		Cleanup: cleanup.New(store.NewShortTermRepository(db), store.NewMediumTermRepository(db), recs, clock, nil, zap.NewNop()),
		Health:  health,
		Clock:   clock,
		Logger:  zap.NewNop(),
	})
	return &testApp{app: app, region: seeded, jobs: jobs}
}

func (a *testApp) do(t *testing.T, method, target, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func (a *testApp) list(t *testing.T, target string) (int, []map[string]any) {
	t.Helper()
	resp, err := a.app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out []map[string]any
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestGetRecommendation(t *testing.T) {
	a := newTestApp(t, nil)

	status, body := a.do(t, http.MethodGet, "/api/v1/recommendations/1?date=2025-07-02", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2025-07-02", body["date"])
	assert.Equal(t, "서울", body["regionName"])
	assert.NotEmpty(t, body["message"])
	assert.NotEmpty(t, body["keywords"])
}

func TestGetRecommendation_NotFoundCarriesAlternatives(t *testing.T) {
	a := newTestApp(t, nil)

	// no date: today (07-03) has no recommendation
	status, body := a.do(t, http.MethodGet, "/api/v1/recommendations/1", "")
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, true, body["error"])

	alternatives, ok := body["alternatives"].([]any)
	require.True(t, ok)
	require.Len(t, alternatives, 3)
	assert.Equal(t, "2025-07-02", alternatives[0].(map[string]any)["date"])
}

func TestGetRecommendation_BadInput(t *testing.T) {
	a := newTestApp(t, nil)

	status, _ := a.do(t, http.MethodGet, "/api/v1/recommendations/abc", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodGet, "/api/v1/recommendations/1?date=20250702", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := a.do(t, http.MethodGet, "/api/v1/recommendations/42?date=2025-07-02", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, weather.ErrRegionNotFound.Error(), body["message"])
}

func TestGetRange(t *testing.T) {
	a := newTestApp(t, nil)

	status, _ := a.do(t, http.MethodGet, "/api/v1/recommendations/1/range?start=2025-07-01", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodGet, "/api/v1/recommendations/1/range?start=2025-07-05&end=2025-07-01", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := a.do(t, http.MethodGet, "/api/v1/recommendations/1/range?start=2025-07-02&end=2025-07-06", "")
	require.Equal(t, http.StatusOK, status)
	recs, ok := body["recommendations"].([]any)
	require.True(t, ok)
	assert.Len(t, recs, 2)
}

func TestGetLatestAndExists(t *testing.T) {
	a := newTestApp(t, nil)

	status, recs := a.list(t, "/api/v1/recommendations/1/latest?limit=2")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, recs, 2)
	assert.Equal(t, "2025-07-05", recs[0]["date"])

	status, _ = a.list(t, "/api/v1/recommendations/1/latest?limit=0")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := a.do(t, http.MethodGet, "/api/v1/recommendations/1/exists?date=2025-07-05", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["exists"])

	_, body = a.do(t, http.MethodGet, "/api/v1/recommendations/1/exists?date=2025-07-04", "")
	assert.Equal(t, false, body["exists"])
}

func TestRegionAdministration(t *testing.T) {
	a := newTestApp(t, nil)

	status, code := a.do(t, http.MethodPost, "/api/v1/region-codes",
		`{"landRegCode":"11H20000","tempRegCode":"11H20201","name":"부산"}`)
	require.Equal(t, http.StatusCreated, status)
	codeID := int64(code["id"].(float64))

	status, _ = a.do(t, http.MethodPost, "/api/v1/regions",
		`{"name":"부산","latitude":39.5,"longitude":129.07,"regionCodeId":1}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, created := a.do(t, http.MethodPost, "/api/v1/regions",
		`{"name":"부산","latitude":35.1796,"longitude":129.0756,"regionCodeId":`+jsonInt(codeID)+`}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(98), created["gridX"])

	status, regions := a.list(t, "/api/v1/regions")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, regions, 2)

	status, _ = a.do(t, http.MethodDelete, "/api/v1/region-codes/"+jsonInt(codeID), "")
	assert.Equal(t, http.StatusConflict, status)

	status, unused := a.do(t, http.MethodPost, "/api/v1/region-codes",
		`{"landRegCode":"11F20000","tempRegCode":"11F20501","name":"광주"}`)
	require.Equal(t, http.StatusCreated, status)
	status, _ = a.do(t, http.MethodDelete, "/api/v1/region-codes/"+jsonInt(int64(unused["id"].(float64))), "")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = a.do(t, http.MethodDelete, "/api/v1/region-codes/9999", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAdminSyncDefaults(t *testing.T) {
	a := newTestApp(t, nil)

	status, body := a.do(t, http.MethodPost, "/api/v1/admin/weather/sync/short-term", "")
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "exec-short", body["executionId"])
	require.Len(t, a.jobs.short, 1)
	assert.Equal(t, common.Date(2025, 7, 3), a.jobs.short[0].BaseDate)
	assert.Equal(t, "0800", a.jobs.short[0].BaseTime)

	status, _ = a.do(t, http.MethodPost, "/api/v1/admin/weather/sync/short-term", `{"baseTime":"0900"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodPost, "/api/v1/admin/weather/sync/medium-term",
		`{"regionIds":[1],"tmfc":"20250702","forceUpdate":true}`)
	require.Equal(t, http.StatusAccepted, status)
	require.Len(t, a.jobs.medium, 1)
	assert.Equal(t, common.Date(2025, 7, 2), a.jobs.medium[0].Tmfc)
	assert.True(t, a.jobs.medium[0].ForceUpdate)
}

func TestAdminGenerateAndCleanup(t *testing.T) {
	a := newTestApp(t, nil)

	status, _ := a.do(t, http.MethodPost, "/api/v1/admin/weather/recommendations/generate", `{}`)
	require.Equal(t, http.StatusAccepted, status)
	require.Len(t, a.jobs.generation, 1)
	assert.Equal(t, common.Date(2025, 7, 3), a.jobs.generation[0].StartDate)
	assert.Equal(t, common.Date(2025, 7, 9), a.jobs.generation[0].EndDate)

	status, _ = a.do(t, http.MethodPost, "/api/v1/admin/weather/cleanup", `{"retentionDays":0}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodPost, "/api/v1/admin/weather/cleanup", `{"retentionDays":14,"dryRun":true}`)
	require.Equal(t, http.StatusAccepted, status)
	require.Len(t, a.jobs.cleanups, 1)
	assert.Equal(t, cleanup.AllKinds(14, true), a.jobs.cleanups[0])

	a.jobs.err = scheduler.ErrJobRunning
	status, _ = a.do(t, http.MethodPost, "/api/v1/admin/weather/cleanup", `{"retentionDays":7,"shortTerm":true}`)
	assert.Equal(t, http.StatusConflict, status)

	a.jobs.err = generator.ErrInvalidRange
	status, _ = a.do(t, http.MethodPost, "/api/v1/admin/weather/recommendations/generate",
		`{"startDate":"2025-07-05","endDate":"2025-07-01"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAdminCleanupPreviewAndStatus(t *testing.T) {
	a := newTestApp(t, nil)

	// cutoff 2025-07-02: only the 07-01 recommendation is older
	status, body := a.do(t, http.MethodGet, "/api/v1/admin/weather/cleanup/preview?retentionDays=1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["dryRun"])
	assert.Equal(t, float64(1), body["totalFound"])

	status, _ = a.do(t, http.MethodGet, "/api/v1/admin/weather/cleanup/preview?retentionDays=400", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = a.do(t, http.MethodGet, "/api/v1/admin/weather/scheduler/status", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["cleanupRunning"])

	status, recs := a.list(t, "/api/v1/admin/weather/recommendations?date=2025-07-05")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, recs, 1)
}

func TestHealth(t *testing.T) {
	a := newTestApp(t, stubHealth{err: errors.New("connection refused")})

	status, body := a.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, body = a.do(t, http.MethodGet, "/health?deep=true", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "degraded", body["status"])

	healthy := newTestApp(t, stubHealth{})
	status, body = healthy.do(t, http.MethodGet, "/health?deep=true", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["provider"])
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t, nil)

	resp, err := a.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
