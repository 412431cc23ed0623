package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/i474232898/weather-recommendation/internal/cleanup"
	"github.com/i474232898/weather-recommendation/internal/collector"
	"github.com/i474232898/weather-recommendation/internal/common"
	"github.com/i474232898/weather-recommendation/internal/generator"
	"github.com/i474232898/weather-recommendation/internal/region"
	"github.com/i474232898/weather-recommendation/internal/scheduler"
	"github.com/i474232898/weather-recommendation/internal/weather"
)

var validate = validator.New()

// defaultGenerationDays is the span of an admin generation without explicit dates.
const defaultGenerationDays = 7

// QueryService answers recommendation reads.
type QueryService interface {
	Today() time.Time
	GetRecommendation(ctx context.Context, regionID int64, date time.Time) (weather.Recommendation, error)
	GetRange(ctx context.Context, regionID int64, start, end time.Time) ([]weather.Recommendation, error)
	GetLatest(ctx context.Context, regionID int64, limit int) ([]weather.Recommendation, error)
	HasRecommendation(ctx context.Context, regionID int64, date time.Time) (bool, error)
	FindAlternatives(ctx context.Context, regionID int64, date time.Time) ([]weather.Recommendation, error)
	GetAllByDate(ctx context.Context, date time.Time) ([]weather.Recommendation, error)
}

// RegionService administers regions and region codes.
type RegionService interface {
	CreateRegion(ctx context.Context, req region.CreateRegionRequest) (weather.Region, error)
	CreateRegionCode(ctx context.Context, req region.CreateRegionCodeRequest) (weather.RegionCode, error)
	DeleteRegionCode(ctx context.Context, id int64) error
	ListRegions(ctx context.Context) ([]weather.Region, error)
	ListRegionCodes(ctx context.Context) ([]weather.RegionCode, error)
}

// Jobs dispatches background jobs and reports their in-flight state.
type Jobs interface {
	TriggerShortTerm(req collector.ShortTermRequest) (string, error)
	TriggerMediumTerm(req collector.MediumTermRequest) (string, error)
	TriggerGeneration(req generator.Request) (string, error)
	TriggerCleanup(opts cleanup.Options) (string, error)
	Status() scheduler.Status
}

// CleanupPreviewer reports what a cleanup would delete.
type CleanupPreviewer interface {
	Preview(ctx context.Context, retentionDays int) (*cleanup.Result, error)
}

// HealthChecker checks that the upstream provider is reachable.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// Deps are the services behind the HTTP surface.
type Deps struct {
	Query   QueryService
	Regions RegionService
	Jobs    Jobs
	Cleanup CleanupPreviewer
	Health  HealthChecker
	Clock   clockwork.Clock
	Logger  *zap.Logger
}

type handlers struct {
	Deps
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &handlers{Deps: deps}

	app.Get("/health", h.health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/api/v1")

	v1.Get("/regions", h.listRegions)
	v1.Post("/regions", h.createRegion)
	v1.Get("/region-codes", h.listRegionCodes)
	v1.Post("/region-codes", h.createRegionCode)
	v1.Delete("/region-codes/:id", h.deleteRegionCode)

	v1.Get("/recommendations/:regionId", h.getRecommendation)
	v1.Get("/recommendations/:regionId/range", h.getRange)
	v1.Get("/recommendations/:regionId/latest", h.getLatest)
	v1.Get("/recommendations/:regionId/exists", h.exists)

	admin := v1.Group("/admin/weather")
	admin.Post("/sync/short-term", h.syncShortTerm)
	admin.Post("/sync/medium-term", h.syncMediumTerm)
	admin.Get("/recommendations", h.recommendationsByDate)
	admin.Post("/recommendations/generate", h.generate)
	admin.Post("/cleanup", h.cleanup)
	admin.Get("/cleanup/preview", h.cleanupPreview)
	admin.Get("/scheduler/status", h.schedulerStatus)
}

func (h *handlers) health(c *fiber.Ctx) error {
	resp := fiber.Map{
		"status":  "ok",
		"service": "weather-recommendation",
	}
	if c.QueryBool("deep") && h.Health != nil {
		if err := h.Health.CheckHealth(c.UserContext()); err != nil {
			h.Logger.Warn("provider health check failed", zap.Error(err))
			resp["status"] = "degraded"
			resp["provider"] = err.Error()
			return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
		}
		resp["provider"] = "ok"
	}
	return c.JSON(resp)
}

func (h *handlers) listRegions(c *fiber.Ctx) error {
	regions, err := h.Regions.ListRegions(c.UserContext())
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(regions)
}

func (h *handlers) createRegion(c *fiber.Ctx) error {
	var req region.CreateRegionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	created, err := h.Regions.CreateRegion(c.UserContext(), req)
	if err != nil {
		return h.fail(err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *handlers) listRegionCodes(c *fiber.Ctx) error {
	codes, err := h.Regions.ListRegionCodes(c.UserContext())
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(codes)
}

func (h *handlers) createRegionCode(c *fiber.Ctx) error {
	var req region.CreateRegionCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	created, err := h.Regions.CreateRegionCode(c.UserContext(), req)
	if err != nil {
		return h.fail(err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *handlers) deleteRegionCode(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid region code id")
	}
	if err := h.Regions.DeleteRegionCode(c.UserContext(), int64(id)); err != nil {
		return h.fail(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) getRecommendation(c *fiber.Ctx) error {
	regionID, err := regionParam(c)
	if err != nil {
		return err
	}
	date, err := h.dateQuery(c, "date")
	if err != nil {
		return err
	}

	rec, err := h.Query.GetRecommendation(c.UserContext(), regionID, date)
	if errors.Is(err, weather.ErrNotFound) {
		alternatives, altErr := h.Query.FindAlternatives(c.UserContext(), regionID, date)
		if altErr != nil {
			return h.fail(altErr)
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":        true,
			"message":      "no recommendation for " + date.Format(time.DateOnly),
			"alternatives": toRecommendationResponses(alternatives),
		})
	}
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(toRecommendationResponse(rec))
}

func (h *handlers) getRange(c *fiber.Ctx) error {
	regionID, err := regionParam(c)
	if err != nil {
		return err
	}
	start, err := requiredDate(c, "start")
	if err != nil {
		return err
	}
	end, err := requiredDate(c, "end")
	if err != nil {
		return err
	}

	recs, err := h.Query.GetRange(c.UserContext(), regionID, start, end)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(fiber.Map{
		"regionId":        regionID,
		"start":           start.Format(time.DateOnly),
		"end":             end.Format(time.DateOnly),
		"recommendations": toRecommendationResponses(recs),
	})
}

func (h *handlers) getLatest(c *fiber.Ctx) error {
	regionID, err := regionParam(c)
	if err != nil {
		return err
	}
	limit := c.QueryInt("limit", weather.DefaultLatestLimit)
	if limit < 1 || limit > 100 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 100")
	}

	recs, err := h.Query.GetLatest(c.UserContext(), regionID, limit)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(toRecommendationResponses(recs))
}

func (h *handlers) exists(c *fiber.Ctx) error {
	regionID, err := regionParam(c)
	if err != nil {
		return err
	}
	date, err := h.dateQuery(c, "date")
	if err != nil {
		return err
	}

	ok, err := h.Query.HasRecommendation(c.UserContext(), regionID, date)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(fiber.Map{
		"regionId": regionID,
		"date":     date.Format(time.DateOnly),
		"exists":   ok,
	})
}

func (h *handlers) recommendationsByDate(c *fiber.Ctx) error {
	date, err := h.dateQuery(c, "date")
	if err != nil {
		return err
	}
	recs, err := h.Query.GetAllByDate(c.UserContext(), date)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(toRecommendationResponses(recs))
}

func (h *handlers) syncShortTerm(c *fiber.Ctx) error {
	var body shortTermSyncBody
	if err := bindBody(c, &body); err != nil {
		return err
	}

	baseDate, baseTime := scheduler.CurrentBaseSlot(h.Clock.Now())
	if body.BaseDate != "" {
		d, err := common.ParseYMD(body.BaseDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		baseDate = d
	}
	if body.BaseTime != "" {
		baseTime = body.BaseTime
	}

	id, err := h.Jobs.TriggerShortTerm(collector.ShortTermRequest{
		RegionIDs:   body.RegionIDs,
		BaseDate:    baseDate,
		BaseTime:    baseTime,
		ForceUpdate: body.ForceUpdate,
	})
	if err != nil {
		return h.fail(err)
	}
	return accepted(c, id, scheduler.JobShortTermSync)
}

func (h *handlers) syncMediumTerm(c *fiber.Ctx) error {
	var body mediumTermSyncBody
	if err := bindBody(c, &body); err != nil {
		return err
	}

	tmfc := common.Today(h.Clock)
	if body.Tmfc != "" {
		d, err := common.ParseYMD(body.Tmfc)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		tmfc = d
	}

	id, err := h.Jobs.TriggerMediumTerm(collector.MediumTermRequest{
		RegionIDs:   body.RegionIDs,
		Tmfc:        tmfc,
		ForceUpdate: body.ForceUpdate,
	})
	if err != nil {
		return h.fail(err)
	}
	return accepted(c, id, scheduler.JobMediumTermSync)
}

func (h *handlers) generate(c *fiber.Ctx) error {
	var body generateBody
	if err := bindBody(c, &body); err != nil {
		return err
	}

	start := common.Today(h.Clock)
	if body.StartDate != "" {
		d, err := common.ParseISODate(body.StartDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		start = d
	}
	end := start.AddDate(0, 0, defaultGenerationDays-1)
	if body.EndDate != "" {
		d, err := common.ParseISODate(body.EndDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		end = d
	}

	id, err := h.Jobs.TriggerGeneration(generator.Request{
		RegionIDs:       body.RegionIDs,
		StartDate:       start,
		EndDate:         end,
		ForceRegenerate: body.ForceRegenerate,
		Label:           "admin",
	})
	if err != nil {
		return h.fail(err)
	}
	return accepted(c, id, scheduler.JobCompleteGeneration)
}

func (h *handlers) cleanup(c *fiber.Ctx) error {
	var body cleanupBody
	if err := bindBody(c, &body); err != nil {
		return err
	}

	opts := cleanup.Options{
		RetentionDays:   body.RetentionDays,
		ShortTerm:       body.ShortTerm,
		MediumTerm:      body.MediumTerm,
		Recommendations: body.Recommendations,
		DryRun:          body.DryRun,
	}
	if !opts.ShortTerm && !opts.MediumTerm && !opts.Recommendations {
		opts = cleanup.AllKinds(body.RetentionDays, body.DryRun)
	}

	id, err := h.Jobs.TriggerCleanup(opts)
	if err != nil {
		return h.fail(err)
	}
	return accepted(c, id, scheduler.JobCleanup)
}

func (h *handlers) cleanupPreview(c *fiber.Ctx) error {
	days := c.QueryInt("retentionDays", 7)
	res, err := h.Cleanup.Preview(c.UserContext(), days)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(res)
}

func (h *handlers) schedulerStatus(c *fiber.Ctx) error {
	return c.JSON(h.Jobs.Status())
}

// fail maps domain errors onto HTTP status codes.
func (h *handlers) fail(err error) error {
	var verr *region.ValidationError
	switch {
	case errors.As(err, &verr):
		return fiber.NewError(fiber.StatusBadRequest, verr.Error())
	case errors.Is(err, weather.ErrRegionNotFound), errors.Is(err, weather.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, weather.ErrInvalidDateRange),
		errors.Is(err, generator.ErrInvalidRange),
		errors.Is(err, cleanup.ErrInvalidRetention):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, weather.ErrRegionCodeInUse),
		errors.Is(err, scheduler.ErrJobRunning),
		errors.Is(err, gorm.ErrDuplicatedKey):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, scheduler.ErrPoolFull), errors.Is(err, scheduler.ErrStopped):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}

	var perr *weather.ProviderError
	if errors.As(err, &perr) {
		h.Logger.Warn("provider call failed", zap.Error(err))
		return fiber.NewError(fiber.StatusBadGateway, "weather provider unavailable")
	}

	h.Logger.Error("request failed", zap.Error(err))
	return fiber.NewError(fiber.StatusInternalServerError, "internal server error")
}

func regionParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("regionId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid region id")
	}
	return id, nil
}

// dateQuery parses a YYYY-MM-DD query parameter, defaulting to today.
func (h *handlers) dateQuery(c *fiber.Ctx, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return common.Today(h.Clock), nil
	}
	d, err := common.ParseISODate(raw)
	if err != nil {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return d, nil
}

func requiredDate(c *fiber.Ctx, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, key+" query parameter is required")
	}
	d, err := common.ParseISODate(raw)
	if err != nil {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return d, nil
}

// bindBody parses an optional JSON body and validates it.
func bindBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(out); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	if err := validate.Struct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func accepted(c *fiber.Ctx, id string, job scheduler.Job) error {
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"executionId": id,
		"job":         job,
	})
}
