package generator_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/i474232898/weather-recommendation/internal/common"
	"github.com/i474232898/weather-recommendation/internal/config"
	"github.com/i474232898/weather-recommendation/internal/generator"
	"github.com/i474232898/weather-recommendation/internal/observability"
	"github.com/i474232898/weather-recommendation/internal/store"
	"github.com/i474232898/weather-recommendation/internal/store/storetest"
	"github.com/i474232898/weather-recommendation/internal/weather"
)

type fixedTemplates []weather.Template

func (f fixedTemplates) AllWithKeywords(context.Context) ([]weather.Template, error) {
	return f, nil
}

type fixture struct {
	db      *gorm.DB
	region  weather.Region
	recs    *store.RecommendationRepository
	params  generator.Params
	today   time.Time
	metrics *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := storetest.New(t)
	_, err := store.SeedTemplates(ctx, db)
	require.NoError(t, err)

	region := storetest.SeedRegion(t, db, "서울", "11B00000", "11B10101")
	today := common.Date(2025, 7, 2)

	shortTerm := store.NewShortTermRepository(db)
	medium := store.NewMediumTermRepository(db)

	// day 0: short-term data
	require.NoError(t, shortTerm.Insert(ctx, weather.ShortTermForecast{
		RegionID: region.ID, BaseDate: today, BaseTime: "0500", FcstDate: today, FcstTime: "1200",
		Tmp: 22, Sky: weather.SkyClear, Pop: 20, Pty: weather.PrecipitationNone,
	}))
	// day 1: medium-term only, used as fallback
	require.NoError(t, medium.Insert(ctx, weather.MediumTermForecast{
		RegionID: region.ID, Tmfc: today, Tmef: today.AddDate(0, 0, 1),
		Sky: weather.SkySnow, Pop: 80, MinTmp: -5, MaxTmp: 0,
	}))
	// day 4: medium-term
	require.NoError(t, medium.Insert(ctx, weather.MediumTermForecast{
		RegionID: region.ID, Tmfc: today, Tmef: today.AddDate(0, 0, 4),
		Sky: weather.SkyOvercast, Pop: 40, MinTmp: 18, MaxTmp: 24,
	}))
	// day 7: outside the horizon, never used
	require.NoError(t, medium.Insert(ctx, weather.MediumTermForecast{
		RegionID: region.ID, Tmfc: today, Tmef: today.AddDate(0, 0, 7),
		Sky: weather.SkyClear, Pop: 0, MinTmp: 18, MaxTmp: 24,
	}))

	metrics := observability.NewMetricsForTesting()
	recs := store.NewRecommendationRepository(db)
	return &fixture{
		db:     db,
		region: region,
		recs:   recs,
		params: generator.Params{
			Regions:         store.NewRegionRepository(db),
			ShortTerm:       shortTerm,
			MediumTerm:      medium,
			Recommendations: recs,
			Templates:       store.NewTemplateRepository(db),
			Classification:  config.DefaultClassification(),
			Clock:           clockwork.NewFakeClockAt(time.Date(2025, 7, 2, 10, 0, 0, 0, common.KST)),
			Metrics:         metrics,
			Logger:          zap.NewNop(),
		},
		today:   today,
		metrics: metrics,
	}
}

func (f *fixture) fullRange(force bool) generator.Request {
	return generator.Request{
		StartDate:       f.today,
		EndDate:         f.today.AddDate(0, 0, 7),
		ForceRegenerate: force,
		Label:           "test",
	}
}

func TestGenerate_HorizonAndSources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gen := generator.New(f.params)

	res, err := gen.Generate(ctx, f.fullRange(false))
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalRegions)
	assert.Equal(t, 1, res.SuccessfulRegions)
	assert.Equal(t, 3, res.GeneratedCount)
	assert.Equal(t, 5, res.SkippedCount)
	assert.Equal(t, 1, res.WeatherStats.Clear)
	assert.Equal(t, 1, res.WeatherStats.Cloudy)
	assert.Equal(t, 1, res.WeatherStats.Snow)
	require.Len(t, res.RegionResults, 1)
	assert.Equal(t, []string{"20250702", "20250703", "20250706"}, res.RegionResults[0].ProcessedDates)

	day0, ok, err := f.recs.FindByRegionAndDate(ctx, f.region.ID, f.today)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, weather.WeatherClear, day0.Template.Weather)
	assert.Equal(t, weather.TempMild, day0.Template.TempCategory)
	assert.Equal(t, weather.PrecipNone, day0.Template.PrecipCategory)

	day1, ok, err := f.recs.FindByRegionAndDate(ctx, f.region.ID, f.today.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, weather.WeatherSnow, day1.Template.Weather)
	assert.Equal(t, weather.TempChilly, day1.Template.TempCategory)
	assert.Equal(t, weather.PrecipHeavy, day1.Template.PrecipCategory)

	day4, ok, err := f.recs.FindByRegionAndDate(ctx, f.region.ID, f.today.AddDate(0, 0, 4))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, weather.WeatherCloudy, day4.Template.Weather)
	assert.Equal(t, weather.PrecipLight, day4.Template.PrecipCategory)

	exists, err := f.recs.Exists(ctx, f.region.ID, f.today.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGenerate_SkipsExistingUnlessForced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gen := generator.New(f.params)

	_, err := gen.Generate(ctx, f.fullRange(false))
	require.NoError(t, err)

	again, err := gen.Generate(ctx, f.fullRange(false))
	require.NoError(t, err)
	assert.Zero(t, again.GeneratedCount)
	assert.Equal(t, 8, again.SkippedCount)

	forced, err := gen.Generate(ctx, f.fullRange(true))
	require.NoError(t, err)
	assert.Equal(t, 3, forced.GeneratedCount)

	n, err := f.recs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "one recommendation per region and date")
}

func TestGenerate_NoTemplateMatchSkipsDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	params := f.params
	params.Templates = fixedTemplates{
		{ID: 1, Weather: weather.WeatherClear, TempCategory: weather.TempMild, PrecipCategory: weather.PrecipNone},
	}
	gen := generator.New(params)

	res, err := gen.Generate(ctx, f.fullRange(false))
	require.NoError(t, err)
	assert.Equal(t, 1, res.GeneratedCount)
	assert.Equal(t, 7, res.SkippedCount)
	assert.Equal(t, 1, res.SuccessfulRegions)
}

func TestGenerate_InvalidRange(t *testing.T) {
	f := newFixture(t)
	gen := generator.New(f.params)

	_, err := gen.Generate(context.Background(), generator.Request{StartDate: f.today, EndDate: f.today.AddDate(0, 0, -1)})
	assert.ErrorIs(t, err, generator.ErrInvalidRange)
}

func TestGenerate_PastDatesAreSkipped(t *testing.T) {
	f := newFixture(t)
	gen := generator.New(f.params)

	res, err := gen.Generate(context.Background(), generator.Request{
		StartDate: f.today.AddDate(0, 0, -3),
		EndDate:   f.today.AddDate(0, 0, -1),
	})
	require.NoError(t, err)
	assert.Zero(t, res.GeneratedCount)
	assert.Equal(t, 3, res.SkippedCount)
}
