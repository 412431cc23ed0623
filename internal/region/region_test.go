package region_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/i474232898/weather-recommendation/internal/region"
	"github.com/i474232898/weather-recommendation/internal/store"
	"github.com/i474232898/weather-recommendation/internal/store/storetest"
	"github.com/i474232898/weather-recommendation/internal/weather"
)

type stubGrid struct {
	calls int
	err   error
}

func (s *stubGrid) ConvertGrid(ctx context.Context, lat, lon float64) (weather.Grid, error) {
	s.calls++
	if s.err != nil {
		return weather.Grid{}, s.err
	}
	return weather.Grid{X: 60, Y: 127}, nil
}

func newService(t *testing.T, grid *stubGrid) *region.Service {
	t.Helper()
	db := storetest.New(t)
	return region.NewService(store.NewRegionRepository(db), grid, zap.NewNop())
}

func TestCreateRegion_DerivesGridOnce(t *testing.T) {
	grid := &stubGrid{}
	svc := newService(t, grid)
	ctx := context.Background()

	code, err := svc.CreateRegionCode(ctx, region.CreateRegionCodeRequest{LandRegCode: "11B00000", TempRegCode: "11B10101", Name: "서울"})
	require.NoError(t, err)

	r, err := svc.CreateRegion(ctx, region.CreateRegionRequest{Name: "서울", Latitude: 37.5665, Longitude: 126.978, RegionCodeID: code.ID})
	require.NoError(t, err)
	assert.Equal(t, weather.Grid{X: 60, Y: 127}, r.Grid())
	assert.Equal(t, "11B00000", r.RegionCode.LandRegCode)
	assert.Equal(t, 1, grid.calls)

	regions, err := svc.ListRegions(ctx)
	require.NoError(t, err)
	assert.Len(t, regions, 1)
}

func TestCreateRegion_RejectsOutOfBounds(t *testing.T) {
	grid := &stubGrid{}
	svc := newService(t, grid)

	cases := []region.CreateRegionRequest{
		{Name: "south", Latitude: 32.9, Longitude: 126, RegionCodeID: 1},
		{Name: "north", Latitude: 38.1, Longitude: 126, RegionCodeID: 1},
		{Name: "west", Latitude: 37, Longitude: 123.9, RegionCodeID: 1},
		{Name: "east", Latitude: 37, Longitude: 132.1, RegionCodeID: 1},
		{Name: "", Latitude: 37, Longitude: 127, RegionCodeID: 1},
	}
	for _, req := range cases {
		_, err := svc.CreateRegion(context.Background(), req)
		var verr *region.ValidationError
		assert.True(t, errors.As(err, &verr), req.Name)
	}
	assert.Zero(t, grid.calls)
}

func TestCreateRegion_UnknownCodeAndGridFailure(t *testing.T) {
	grid := &stubGrid{}
	svc := newService(t, grid)
	ctx := context.Background()

	_, err := svc.CreateRegion(ctx, region.CreateRegionRequest{Name: "서울", Latitude: 37.5, Longitude: 127, RegionCodeID: 42})
	assert.ErrorIs(t, err, weather.ErrNotFound)

	code, err := svc.CreateRegionCode(ctx, region.CreateRegionCodeRequest{LandRegCode: "11B00000", TempRegCode: "11B10101", Name: "서울"})
	require.NoError(t, err)

	grid.err = &weather.ProviderError{Op: "grid", Kind: weather.ErrorKindTransport, Err: errors.New("reset")}
	_, err = svc.CreateRegion(ctx, region.CreateRegionRequest{Name: "서울", Latitude: 37.5, Longitude: 127, RegionCodeID: code.ID})
	var perr *weather.ProviderError
	assert.True(t, errors.As(err, &perr))

	regions, err := svc.ListRegions(ctx)
	require.NoError(t, err)
	assert.Empty(t, regions)
}

func TestDeleteRegionCode_ForbiddenWhileReferenced(t *testing.T) {
	svc := newService(t, &stubGrid{})
	ctx := context.Background()

	code, err := svc.CreateRegionCode(ctx, region.CreateRegionCodeRequest{LandRegCode: "11B00000", TempRegCode: "11B10101", Name: "서울"})
	require.NoError(t, err)
	_, err = svc.CreateRegion(ctx, region.CreateRegionRequest{Name: "서울", Latitude: 37.5, Longitude: 127, RegionCodeID: code.ID})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteRegionCode(ctx, code.ID), weather.ErrRegionCodeInUse)

	other, err := svc.CreateRegionCode(ctx, region.CreateRegionCodeRequest{LandRegCode: "11H20000", TempRegCode: "11H20201", Name: "부산"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteRegionCode(ctx, other.ID))

	codes, err := svc.ListRegionCodes(ctx)
	require.NoError(t, err)
	assert.Len(t, codes, 1)
}
