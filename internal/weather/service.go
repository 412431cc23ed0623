package weather

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/i474232898/weather-recommendation/internal/common"
)

// DefaultLatestLimit is the number of recommendations GetLatest returns when no limit is given.
const DefaultLatestLimit = 7

// alternativeWindow is how many days either side of a missing date FindAlternatives searches.
const alternativeWindow = 3

// ErrInvalidDateRange is returned when a range starts after it ends.
var ErrInvalidDateRange = errors.New("start date is after end date")

// Service answers recommendation queries for the read API.
type Service struct {
	regions         RegionStore
	recommendations RecommendationStore
	clock           clockwork.Clock
	logger          *zap.Logger
}

// NewService creates a new Service.
func NewService(regions RegionStore, recommendations RecommendationStore, clock clockwork.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		regions:         regions,
		recommendations: recommendations,
		clock:           clock,
		logger:          logger.Named("query"),
	}
}

// Today returns the current calendar date in KST as stored.
func (s *Service) Today() time.Time {
	return common.Today(s.clock)
}

// GetRecommendation returns the recommendation of regionID for date.
func (s *Service) GetRecommendation(ctx context.Context, regionID int64, date time.Time) (Recommendation, error) {
	if err := s.ensureRegion(ctx, regionID); err != nil {
		return Recommendation{}, err
	}
	rec, ok, err := s.recommendations.FindByRegionAndDate(ctx, regionID, date)
	if err != nil {
		return Recommendation{}, err
	}
	if !ok {
		return Recommendation{}, fmt.Errorf("region %d on %s: %w", regionID, date.Format(time.DateOnly), ErrNotFound)
	}
	return rec, nil
}

// GetRange returns recommendations of regionID in [start, end], ascending by date.
func (s *Service) GetRange(ctx context.Context, regionID int64, start, end time.Time) ([]Recommendation, error) {
	if start.After(end) {
		return nil, ErrInvalidDateRange
	}
	if err := s.ensureRegion(ctx, regionID); err != nil {
		return nil, err
	}
	return s.recommendations.FindRange(ctx, regionID, start, end)
}

// GetLatest returns up to limit recommendations of regionID, newest date first.
func (s *Service) GetLatest(ctx context.Context, regionID int64, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = DefaultLatestLimit
	}
	if err := s.ensureRegion(ctx, regionID); err != nil {
		return nil, err
	}
	return s.recommendations.FindLatest(ctx, regionID, limit)
}

func (s *Service) HasRecommendation(ctx context.Context, regionID int64, date time.Time) (bool, error) {
	if err := s.ensureRegion(ctx, regionID); err != nil {
		return false, err
	}
	return s.recommendations.Exists(ctx, regionID, date)
}

// FindAlternatives returns recommendations within three days of date, nearest first.
// Ties go to the earlier date. The exact date is never included.
func (s *Service) FindAlternatives(ctx context.Context, regionID int64, date time.Time) ([]Recommendation, error) {
	if err := s.ensureRegion(ctx, regionID); err != nil {
		return nil, err
	}
	around, err := s.recommendations.FindRange(ctx, regionID,
		date.AddDate(0, 0, -alternativeWindow), date.AddDate(0, 0, alternativeWindow))
	if err != nil {
		return nil, err
	}

	out := make([]Recommendation, 0, len(around))
	for _, r := range around {
		if !r.ForecastDate.Equal(date) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := distance(out[i].ForecastDate, date), distance(out[j].ForecastDate, date)
		if di != dj {
			return di < dj
		}
		return out[i].ForecastDate.Before(out[j].ForecastDate)
	})
	return out, nil
}

// GetAllByDate returns every region's recommendation for date.
func (s *Service) GetAllByDate(ctx context.Context, date time.Time) ([]Recommendation, error) {
	return s.recommendations.FindByDate(ctx, date)
}

func (s *Service) ensureRegion(ctx context.Context, regionID int64) error {
	if _, err := s.regions.ByID(ctx, regionID); err != nil {
		if !errors.Is(err, ErrRegionNotFound) {
			s.logger.Error("region lookup failed", zap.Int64("region_id", regionID), zap.Error(err))
		}
		return err
	}
	return nil
}

func distance(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
