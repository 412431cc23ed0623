// Package generator derives daily recommendations from stored raw forecasts.
package generator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-recommendation/internal/classifier"
	"github.com/i474232898/weather-recommendation/internal/common"
	"github.com/i474232898/weather-recommendation/internal/config"
	"github.com/i474232898/weather-recommendation/internal/matcher"
	"github.com/i474232898/weather-recommendation/internal/observability"
	"github.com/i474232898/weather-recommendation/internal/weather"
)

const defaultParallelism = 10

// ErrInvalidRange is returned when the end date precedes the start date.
var ErrInvalidRange = errors.New("end date is before start date")

// Request selects regions and an inclusive date range. Empty RegionIDs means all active regions.
type Request struct {
	RegionIDs       []int64
	StartDate       time.Time
	EndDate         time.Time
	ForceRegenerate bool
	// Label tags logs and the result, e.g. "short-term" or "complete".
	Label string
}

// Params bundles the generator's collaborators.
type Params struct {
	Regions         weather.RegionStore
	ShortTerm       weather.ShortTermStore
	MediumTerm      weather.MediumTermStore
	Recommendations weather.RecommendationStore
	Templates       weather.TemplateStore
	Classification  config.Classification
	Clock           clockwork.Clock
	Metrics         *observability.Metrics
	Logger          *zap.Logger
}

type Generator struct {
	regions         weather.RegionStore
	shortTerm       weather.ShortTermStore
	mediumTerm      weather.MediumTermStore
	recommendations weather.RecommendationStore
	templates       weather.TemplateStore
	classifier      *classifier.Classifier
	cfg             config.Classification
	clock           clockwork.Clock
	metrics         *observability.Metrics
	logger          *zap.Logger
}

func New(p Params) *Generator {
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return &Generator{
		regions:         p.Regions,
		shortTerm:       p.ShortTerm,
		mediumTerm:      p.MediumTerm,
		recommendations: p.Recommendations,
		templates:       p.Templates,
		classifier:      classifier.New(p.Classification),
		cfg:             p.Classification,
		clock:           p.Clock,
		metrics:         p.Metrics,
		logger:          p.Logger.Named("generator"),
	}
}

// dateOutcome is what happened to one (region, date).
type dateOutcome int

const (
	outcomeGenerated dateOutcome = iota
	outcomeSkipped
)

// Generate builds recommendations for every target region and date.
// Only failing to load regions or templates returns an error; everything else is recorded on the result.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.EndDate.Before(req.StartDate) {
		return nil, ErrInvalidRange
	}

	result := newResult(req, g.clock.Now())

	var (
		regions []weather.Region
		err     error
	)
	if len(req.RegionIDs) == 0 {
		regions, err = g.regions.ListActive(ctx)
	} else {
		regions, err = g.regions.ByIDs(ctx, req.RegionIDs)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve target regions: %w", err)
	}

	templates, err := g.templates.AllWithKeywords(ctx)
	if err != nil {
		return nil, err
	}
	index := matcher.NewIndex(templates)

	result.TotalRegions = len(regions)
	today := common.Today(g.clock)

	g.logger.Info("recommendation generation started",
		zap.String("label", req.Label),
		zap.String("start", common.FormatYMD(req.StartDate)),
		zap.String("end", common.FormatYMD(req.EndDate)),
		zap.Int("regions", len(regions)),
		zap.Int("templates", index.Len()),
		zap.Bool("force", req.ForceRegenerate))

	var eg errgroup.Group
	eg.SetLimit(defaultParallelism)
	for _, region := range regions {
		region := region
		eg.Go(func() error {
			rr := g.generateRegion(ctx, region, req, today, index)
			result.add(rr)
			return nil
		})
	}
	_ = eg.Wait()

	result.finish(g.clock.Now())
	g.logger.Info("recommendation generation finished",
		zap.String("label", req.Label),
		zap.Int("generated", result.GeneratedCount),
		zap.Int("skipped", result.SkippedCount),
		zap.Int("failed_regions", result.FailedRegions),
		zap.Int64("duration_ms", result.DurationMs))
	return result, nil
}

func (g *Generator) generateRegion(ctx context.Context, region weather.Region, req Request, today time.Time, index *matcher.Index) RegionResult {
	rr := RegionResult{RegionID: region.ID, RegionName: region.Name, WeatherTypes: map[weather.WeatherType]int{}}

	for d := req.StartDate; !d.After(req.EndDate); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			rr.Errors = append(rr.Errors, fmt.Sprintf("%s: %v", common.FormatYMD(d), err))
			break
		}

		wt, outcome, err := g.generateDate(ctx, region, d, today, req.ForceRegenerate, index)
		if err != nil {
			g.logger.Error("recommendation failed",
				zap.Int64("region_id", region.ID),
				zap.String("date", common.FormatYMD(d)),
				zap.Error(err))
			rr.Errors = append(rr.Errors, fmt.Sprintf("%s: %v", common.FormatYMD(d), err))
			continue
		}

		switch outcome {
		case outcomeGenerated:
			rr.Generated++
			rr.ProcessedDates = append(rr.ProcessedDates, common.FormatYMD(d))
			rr.WeatherTypes[wt]++
			if g.metrics != nil {
				g.metrics.RecommendationsGenerated.WithLabelValues(string(wt)).Inc()
			}
		case outcomeSkipped:
			rr.Skipped++
		}
	}

	rr.Success = len(rr.Errors) == 0
	return rr
}

func (g *Generator) generateDate(
	ctx context.Context,
	region weather.Region,
	date, today time.Time,
	force bool,
	index *matcher.Index,
) (weather.WeatherType, dateOutcome, error) {
	log := g.logger.With(zap.Int64("region_id", region.ID), zap.String("date", common.FormatYMD(date)))

	if !force {
		exists, err := g.recommendations.Exists(ctx, region.ID, date)
		if err != nil {
			return "", 0, err
		}
		if exists {
			log.Debug("recommendation exists, skipping")
			return "", outcomeSkipped, nil
		}
	}

	res, err := g.classify(ctx, region.ID, date, today)
	if err != nil {
		return "", 0, err
	}
	if !res.Valid {
		log.Debug("no forecast data for date")
		return "", outcomeSkipped, nil
	}

	tpl, ok := index.Match(res.WeatherType, res.TempCategory, res.PrecipCategory)
	if !ok {
		log.Warn("no template matched",
			zap.String("weather", string(res.WeatherType)),
			zap.String("temp", string(res.TempCategory)),
			zap.String("precip", string(res.PrecipCategory)))
		return "", outcomeSkipped, nil
	}

	if err := g.recommendations.Upsert(ctx, region.ID, date, tpl.ID, g.clock.Now()); err != nil {
		return "", 0, err
	}

	log.Debug("recommendation stored",
		zap.String("source", string(res.Source)),
		zap.Int64("template_id", tpl.ID))
	return res.WeatherType, outcomeGenerated, nil
}

// classify picks the data source by horizon. Short-term days fall back to medium-term data;
// medium-term days do not fall back. Dates outside the horizon yield an invalid result.
func (g *Generator) classify(ctx context.Context, regionID int64, date, today time.Time) (classifier.Result, error) {
	days := common.DaysBetween(today, date)

	switch {
	case days >= 0 && days <= g.cfg.ShortTermDays:
		rows, err := g.shortTerm.FindForDate(ctx, regionID, date)
		if err != nil {
			return classifier.Result{}, err
		}
		if len(rows) > 0 {
			return g.classifier.ClassifyShortTerm(rows, date), nil
		}
		return g.classifyMedium(ctx, regionID, date)
	case days > g.cfg.ShortTermDays && days <= g.cfg.MediumTermDays:
		return g.classifyMedium(ctx, regionID, date)
	default:
		return classifier.Result{}, nil
	}
}

func (g *Generator) classifyMedium(ctx context.Context, regionID int64, date time.Time) (classifier.Result, error) {
	rows, err := g.mediumTerm.FindForDate(ctx, regionID, date)
	if err != nil {
		return classifier.Result{}, err
	}
	return g.classifier.ClassifyMediumTerm(rows, date), nil
}

// RegionResult is the outcome of one region within a generation run.
type RegionResult struct {
	RegionID       int64                       `json:"regionId"`
	RegionName     string                      `json:"regionName"`
	Success        bool                        `json:"success"`
	Generated      int                         `json:"generated"`
	Skipped        int                         `json:"skipped"`
	ProcessedDates []string                    `json:"processedDates"`
	WeatherTypes   map[weather.WeatherType]int `json:"weatherTypes"`
	Errors         []string                    `json:"errors,omitempty"`
}

// WeatherStats is the per-WeatherType histogram of generated recommendations.
type WeatherStats struct {
	Clear  int                         `json:"clear"`
	Cloudy int                         `json:"cloudy"`
	Snow   int                         `json:"snow"`
	ByType map[weather.WeatherType]int `json:"byType"`
}

// Result aggregates a generation run.
type Result struct {
	Label           string `json:"label"`
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
	ForceRegenerate bool   `json:"forceRegenerate"`

	TotalRegions      int `json:"totalRegions"`
	SuccessfulRegions int `json:"successfulRegions"`
	FailedRegions     int `json:"failedRegions"`
	GeneratedCount    int `json:"generatedCount"`
	SkippedCount      int `json:"skippedCount"`

	WeatherStats  WeatherStats   `json:"weatherStats"`
	RegionResults []RegionResult `json:"regionResults"`
	ErrorMessages []string       `json:"errorMessages"`

	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	DurationMs int64     `json:"durationMs"`

	mu sync.Mutex
}

func newResult(req Request, start time.Time) *Result {
	return &Result{
		Label:           req.Label,
		StartDate:       common.FormatYMD(req.StartDate),
		EndDate:         common.FormatYMD(req.EndDate),
		ForceRegenerate: req.ForceRegenerate,
		WeatherStats:    WeatherStats{ByType: map[weather.WeatherType]int{}},
		StartTime:       start,
	}
}

func (r *Result) add(rr RegionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.RegionResults = append(r.RegionResults, rr)
	if rr.Success {
		r.SuccessfulRegions++
	} else {
		r.FailedRegions++
		for _, e := range rr.Errors {
			r.ErrorMessages = append(r.ErrorMessages, rr.RegionName+": "+e)
		}
	}
	r.GeneratedCount += rr.Generated
	r.SkippedCount += rr.Skipped
	for wt, n := range rr.WeatherTypes {
		r.WeatherStats.ByType[wt] += n
		switch wt {
		case weather.WeatherClear:
			r.WeatherStats.Clear += n
		case weather.WeatherCloudy:
			r.WeatherStats.Cloudy += n
		case weather.WeatherSnow:
			r.WeatherStats.Snow += n
		}
	}
}

func (r *Result) finish(end time.Time) {
	r.EndTime = end
	r.DurationMs = end.Sub(r.StartTime).Milliseconds()
	sort.Slice(r.RegionResults, func(i, j int) bool {
		return r.RegionResults[i].RegionID < r.RegionResults[j].RegionID
	})
}
