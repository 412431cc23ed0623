// Package collector pulls raw forecasts from the provider for every target region
// and stores them by natural key.
package collector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-recommendation/internal/common"
	"github.com/i474232898/weather-recommendation/internal/observability"
	"github.com/i474232898/weather-recommendation/internal/weather"
	"github.com/i474232898/weather-recommendation/internal/weather/parser"
)

// DefaultParallelism bounds concurrent regions within one run.
const DefaultParallelism = 10

// ShortTermRequest selects regions and the publish slot to collect.
// An empty RegionIDs means every active region.
type ShortTermRequest struct {
	RegionIDs   []int64
	BaseDate    time.Time
	BaseTime    string
	ForceUpdate bool
}

// MediumTermRequest selects regions to collect. Tmfc is recorded on the result only;
// the provider always serves its latest publication.
type MediumTermRequest struct {
	RegionIDs   []int64
	Tmfc        time.Time
	ForceUpdate bool
}

// Params bundles the collector's collaborators.
type Params struct {
	Regions     weather.RegionStore
	Provider    weather.Provider
	ShortTerm   weather.ShortTermStore
	MediumTerm  weather.MediumTermStore
	Clock       clockwork.Clock
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Parallelism int
}

type Collector struct {
	regions     weather.RegionStore
	provider    weather.Provider
	shortTerm   weather.ShortTermStore
	mediumTerm  weather.MediumTermStore
	clock       clockwork.Clock
	metrics     *observability.Metrics
	logger      *zap.Logger
	parallelism int
}

func New(p Params) *Collector {
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Parallelism <= 0 {
		p.Parallelism = DefaultParallelism
	}
	return &Collector{
		regions:     p.Regions,
		provider:    p.Provider,
		shortTerm:   p.ShortTerm,
		mediumTerm:  p.MediumTerm,
		clock:       p.Clock,
		metrics:     p.Metrics,
		logger:      p.Logger.Named("collector"),
		parallelism: p.Parallelism,
	}
}

// CollectShortTerm fetches, parses and stores the short-term forecast of every target region.
// Region failures are recorded on the result; only failing to resolve regions returns an error.
func (c *Collector) CollectShortTerm(ctx context.Context, req ShortTermRequest) (*SyncResult, error) {
	result := &SyncResult{
		Kind:      KindShortTerm,
		BaseDate:  common.FormatYMD(req.BaseDate),
		BaseTime:  req.BaseTime,
		StartTime: c.clock.Now(),
	}

	regions, err := c.resolveRegions(ctx, req.RegionIDs)
	if err != nil {
		return nil, err
	}
	result.TotalRegions = len(regions)

	c.logger.Info("short-term collection started",
		zap.String("base_date", result.BaseDate),
		zap.String("base_time", req.BaseTime),
		zap.Int("regions", len(regions)),
		zap.Bool("force_update", req.ForceUpdate))

	c.forEachRegion(ctx, regions, func(ctx context.Context, region weather.Region) {
		rr := c.collectShortTermRegion(ctx, region, req)
		c.recordRegion(KindShortTerm, rr)
		result.add(rr)
	})

	c.finish(result)
	return result, nil
}

// CollectMediumTerm fetches the land and temperature feeds of every target region concurrently,
// joins them and stores the rows.
func (c *Collector) CollectMediumTerm(ctx context.Context, req MediumTermRequest) (*SyncResult, error) {
	result := &SyncResult{
		Kind:      KindMediumTerm,
		StartTime: c.clock.Now(),
	}
	if !req.Tmfc.IsZero() {
		result.Tmfc = common.FormatYMD(req.Tmfc)
	}

	regions, err := c.resolveRegions(ctx, req.RegionIDs)
	if err != nil {
		return nil, err
	}
	result.TotalRegions = len(regions)

	c.logger.Info("medium-term collection started",
		zap.String("tmfc", result.Tmfc),
		zap.Int("regions", len(regions)),
		zap.Bool("force_update", req.ForceUpdate))

	c.forEachRegion(ctx, regions, func(ctx context.Context, region weather.Region) {
		rr := c.collectMediumTermRegion(ctx, region, req.ForceUpdate)
		c.recordRegion(KindMediumTerm, rr)
		result.add(rr)
	})

	c.finish(result)
	return result, nil
}

func (c *Collector) resolveRegions(ctx context.Context, ids []int64) ([]weather.Region, error) {
	var (
		regions []weather.Region
		err     error
	)
	if len(ids) == 0 {
		regions, err = c.regions.ListActive(ctx)
	} else {
		regions, err = c.regions.ByIDs(ctx, ids)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve target regions: %w", err)
	}
	return regions, nil
}

// forEachRegion runs fn for every region with bounded parallelism and waits for all of them.
func (c *Collector) forEachRegion(ctx context.Context, regions []weather.Region, fn func(context.Context, weather.Region)) {
	var g errgroup.Group
	g.SetLimit(c.parallelism)
	for _, region := range regions {
		region := region
		g.Go(func() error {
			fn(ctx, region)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Collector) collectShortTermRegion(ctx context.Context, region weather.Region, req ShortTermRequest) RegionResult {
	rr := RegionResult{RegionID: region.ID, RegionName: region.Name}

	body, err := c.provider.GetShortTerm(ctx, region.Grid(), req.BaseDate, req.BaseTime)
	if err != nil {
		return c.fail(rr, "fetch short-term", err)
	}

	rows, err := parser.ParseShortTerm(body)
	if err != nil {
		return c.fail(rr, "parse short-term", err)
	}

	for _, row := range rows {
		row.RegionID = region.ID
		outcome, err := c.upsertShortTerm(ctx, row, req.ForceUpdate)
		if err != nil {
			return c.fail(rr, "store short-term", err)
		}
		rr.count(outcome)
	}

	rr.Success = true
	return rr
}

func (c *Collector) collectMediumTermRegion(ctx context.Context, region weather.Region, force bool) RegionResult {
	rr := RegionResult{RegionID: region.ID, RegionName: region.Name}

	var land, temp []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		land, err = c.provider.GetMediumLand(gctx, region.RegionCode.LandRegCode)
		return err
	})
	g.Go(func() error {
		var err error
		temp, err = c.provider.GetMediumTemp(gctx, region.RegionCode.TempRegCode)
		return err
	})
	if err := g.Wait(); err != nil {
		return c.fail(rr, "fetch medium-term", err)
	}

	parsed, err := parser.ParseMediumTerm(land, temp)
	if err != nil {
		return c.fail(rr, "parse medium-term", err)
	}

	for _, d := range parsed.Dropped {
		c.logger.Warn("medium-term row dropped",
			zap.Int64("region_id", region.ID),
			zap.String("tmfc", d.Tmfc),
			zap.String("tmef", d.Tmef),
			zap.String("reason", d.Reason))
	}
	rr.DroppedDataPoints = len(parsed.Dropped)
	if c.metrics != nil && len(parsed.Dropped) > 0 {
		c.metrics.RowsCollected.WithLabelValues(string(KindMediumTerm), "dropped").Add(float64(len(parsed.Dropped)))
	}

	for _, row := range parsed.Rows {
		row.RegionID = region.ID
		outcome, err := c.upsertMediumTerm(ctx, row, force)
		if err != nil {
			return c.fail(rr, "store medium-term", err)
		}
		rr.count(outcome)
	}

	rr.Success = true
	return rr
}

type upsertOutcome string

const (
	outcomeNew     upsertOutcome = "new"
	outcomeUpdated upsertOutcome = "updated"
	outcomeSkipped upsertOutcome = "skipped"
)

func (rr *RegionResult) count(o upsertOutcome) {
	rr.TotalDataPoints++
	switch o {
	case outcomeNew:
		rr.NewDataPoints++
	case outcomeUpdated:
		rr.UpdatedDataPoints++
	case outcomeSkipped:
		rr.SkippedDataPoints++
	}
}

func (c *Collector) upsertShortTerm(ctx context.Context, row weather.ShortTermForecast, force bool) (upsertOutcome, error) {
	_, exists, err := c.shortTerm.FindByKey(ctx, row.Key())
	if err != nil {
		return "", err
	}
	switch {
	case !exists:
		return outcomeNew, c.shortTerm.Insert(ctx, row)
	case force:
		return outcomeUpdated, c.shortTerm.Replace(ctx, row)
	default:
		c.logger.Debug("short-term row exists, skipping",
			zap.Int64("region_id", row.RegionID),
			zap.String("fcst_date", common.FormatYMD(row.FcstDate)),
			zap.String("fcst_time", row.FcstTime))
		return outcomeSkipped, nil
	}
}

func (c *Collector) upsertMediumTerm(ctx context.Context, row weather.MediumTermForecast, force bool) (upsertOutcome, error) {
	_, exists, err := c.mediumTerm.FindByKey(ctx, row.Key())
	if err != nil {
		return "", err
	}
	switch {
	case !exists:
		return outcomeNew, c.mediumTerm.Insert(ctx, row)
	case force:
		return outcomeUpdated, c.mediumTerm.Replace(ctx, row)
	default:
		return outcomeSkipped, nil
	}
}

func (c *Collector) fail(rr RegionResult, stage string, err error) RegionResult {
	rr.Success = false
	rr.Error = fmt.Sprintf("%s: %v", stage, err)
	c.logger.Error("region collection failed",
		zap.Int64("region_id", rr.RegionID),
		zap.String("region", rr.RegionName),
		zap.String("stage", stage),
		zap.Error(err))
	return rr
}

func (c *Collector) recordRegion(kind Kind, rr RegionResult) {
	if c.metrics == nil {
		return
	}
	k := string(kind)
	c.metrics.RowsCollected.WithLabelValues(k, "new").Add(float64(rr.NewDataPoints))
	c.metrics.RowsCollected.WithLabelValues(k, "updated").Add(float64(rr.UpdatedDataPoints))
	c.metrics.RowsCollected.WithLabelValues(k, "skipped").Add(float64(rr.SkippedDataPoints))
	if !rr.Success {
		c.metrics.RegionFailures.WithLabelValues(k).Inc()
	}
}

func (c *Collector) finish(result *SyncResult) {
	result.finish(c.clock.Now())
	sort.Slice(result.RegionResults, func(i, j int) bool {
		return result.RegionResults[i].RegionID < result.RegionResults[j].RegionID
	})
	result.Message = fmt.Sprintf("%d/%d regions succeeded: %d new, %d updated data points",
		result.SuccessfulRegions, result.TotalRegions, result.NewDataPoints, result.UpdatedDataPoints)

	c.logger.Info("collection finished",
		zap.String("kind", string(result.Kind)),
		zap.Int("successful_regions", result.SuccessfulRegions),
		zap.Int("failed_regions", result.FailedRegions),
		zap.Int("new", result.NewDataPoints),
		zap.Int("updated", result.UpdatedDataPoints),
		zap.Int64("duration_ms", result.DurationMs))
}
