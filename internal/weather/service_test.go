package weather_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/i474232898/weather-recommendation/internal/common"
	"github.com/i474232898/weather-recommendation/internal/store"
	"github.com/i474232898/weather-recommendation/internal/store/storetest"
	"github.com/i474232898/weather-recommendation/internal/weather"
)

// newService seeds recommendations for 2025-07-01, 07-02, 07-05 and 07-06.
func newService(t *testing.T) (*weather.Service, weather.Region) {
	t.Helper()
	ctx := context.Background()
	db := storetest.New(t)

	_, err := store.SeedTemplates(ctx, db)
	require.NoError(t, err)
	templates, err := store.NewTemplateRepository(db).AllWithKeywords(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, templates)

	region := storetest.SeedRegion(t, db, "서울", "11B00000", "11B10101")
	recs := store.NewRecommendationRepository(db)
	for _, day := range []int{1, 2, 5, 6} {
		require.NoError(t, recs.Upsert(ctx, region.ID, common.Date(2025, 7, day), templates[0].ID, time.Now()))
	}

	clock := clockwork.NewFakeClockAt(time.Date(2025, 7, 3, 9, 0, 0, 0, common.KST))
	return weather.NewService(store.NewRegionRepository(db), recs, clock, zap.NewNop()), region
}

func dates(recs []weather.Recommendation) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, common.FormatYMD(r.ForecastDate))
	}
	return out
}

func TestService_GetRecommendation(t *testing.T) {
	svc, region := newService(t)
	ctx := context.Background()

	rec, err := svc.GetRecommendation(ctx, region.ID, common.Date(2025, 7, 2))
	require.NoError(t, err)
	assert.Equal(t, region.ID, rec.RegionID)
	assert.Equal(t, "서울", rec.RegionName)
	assert.NotEmpty(t, rec.Template.Message)
	assert.NotEmpty(t, rec.Template.Keywords)

	_, err = svc.GetRecommendation(ctx, region.ID, common.Date(2025, 7, 3))
	assert.ErrorIs(t, err, weather.ErrNotFound)

	_, err = svc.GetRecommendation(ctx, 999, common.Date(2025, 7, 2))
	assert.ErrorIs(t, err, weather.ErrRegionNotFound)
}

func TestService_GetRange(t *testing.T) {
	svc, region := newService(t)
	ctx := context.Background()

	recs, err := svc.GetRange(ctx, region.ID, common.Date(2025, 7, 2), common.Date(2025, 7, 6))
	require.NoError(t, err)
	assert.Equal(t, []string{"20250702", "20250705", "20250706"}, dates(recs))

	_, err = svc.GetRange(ctx, region.ID, common.Date(2025, 7, 6), common.Date(2025, 7, 2))
	assert.ErrorIs(t, err, weather.ErrInvalidDateRange)
}

func TestService_GetLatest(t *testing.T) {
	svc, region := newService(t)
	ctx := context.Background()

	recs, err := svc.GetLatest(ctx, region.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"20250706", "20250705"}, dates(recs))

	all, err := svc.GetLatest(ctx, region.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestService_HasRecommendation(t *testing.T) {
	svc, region := newService(t)
	ctx := context.Background()

	ok, err := svc.HasRecommendation(ctx, region.ID, common.Date(2025, 7, 5))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasRecommendation(ctx, region.ID, common.Date(2025, 7, 4))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_FindAlternativesNearestFirst(t *testing.T) {
	svc, region := newService(t)

	recs, err := svc.FindAlternatives(context.Background(), region.ID, common.Date(2025, 7, 4))
	require.NoError(t, err)
	// 07-05 is one day away; 07-02 and 07-06 two days, earlier first; 07-01 three days
	assert.Equal(t, []string{"20250705", "20250702", "20250706", "20250701"}, dates(recs))

	recs, err = svc.FindAlternatives(context.Background(), region.ID, common.Date(2025, 7, 10))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestService_TodayAndAllByDate(t *testing.T) {
	svc, region := newService(t)

	assert.Equal(t, common.Date(2025, 7, 3), svc.Today())

	recs, err := svc.GetAllByDate(context.Background(), common.Date(2025, 7, 1))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, region.ID, recs[0].RegionID)
}
