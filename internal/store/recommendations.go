package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/i474232898/weather-recommendation/internal/weather"
)

// RecommendationRepository persists daily recommendations, one per (region, date).
type RecommendationRepository struct {
	db *gorm.DB
}

var _ weather.RecommendationStore = (*RecommendationRepository)(nil)

func NewRecommendationRepository(db *gorm.DB) *RecommendationRepository {
	return &RecommendationRepository{db: db}
}

func (r *RecommendationRepository) withTemplate(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("WeatherTemplate.Keywords").
		Preload("Region")
}

func (r *RecommendationRepository) FindByRegionAndDate(ctx context.Context, regionID int64, date time.Time) (weather.Recommendation, bool, error) {
	var row DailyRecommendation
	err := r.withTemplate(ctx).
		Where("region_id = ? AND forecast_date = ?", regionID, date).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return weather.Recommendation{}, false, nil
	}
	if err != nil {
		return weather.Recommendation{}, false, fmt.Errorf("find recommendation: %w", err)
	}
	return row.toDomain(), true, nil
}

// FindRange returns recommendations in [start, endInclusive] ordered by date ascending.
func (r *RecommendationRepository) FindRange(ctx context.Context, regionID int64, start, endInclusive time.Time) ([]weather.Recommendation, error) {
	var rows []DailyRecommendation
	if err := r.withTemplate(ctx).
		Where("region_id = ? AND forecast_date >= ? AND forecast_date <= ?", regionID, start, endInclusive).
		Order("forecast_date").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find recommendation range: %w", err)
	}
	return recommendationsToDomain(rows), nil
}

// FindLatest returns up to limit recommendations, newest forecast date first.
func (r *RecommendationRepository) FindLatest(ctx context.Context, regionID int64, limit int) ([]weather.Recommendation, error) {
	var rows []DailyRecommendation
	if err := r.withTemplate(ctx).
		Where("region_id = ?", regionID).
		Order("forecast_date DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find latest recommendations: %w", err)
	}
	return recommendationsToDomain(rows), nil
}

func (r *RecommendationRepository) FindByDate(ctx context.Context, date time.Time) ([]weather.Recommendation, error) {
	var rows []DailyRecommendation
	if err := r.withTemplate(ctx).
		Where("forecast_date = ?", date).
		Order("region_id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find recommendations by date: %w", err)
	}
	return recommendationsToDomain(rows), nil
}

func (r *RecommendationRepository) Exists(ctx context.Context, regionID int64, date time.Time) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&DailyRecommendation{}).
		Where("region_id = ? AND forecast_date = ?", regionID, date).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("check recommendation: %w", err)
	}
	return n > 0, nil
}

// Upsert replaces the recommendation for (regionID, date) atomically.
func (r *RecommendationRepository) Upsert(ctx context.Context, regionID int64, date time.Time, templateID int64, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("region_id = ? AND forecast_date = ?", regionID, date).
			Delete(&DailyRecommendation{}).Error; err != nil {
			return fmt.Errorf("delete recommendation: %w", err)
		}
		row := DailyRecommendation{
			RegionID:          regionID,
			ForecastDate:      date,
			WeatherTemplateID: templateID,
			UpdatedAt:         now,
		}
		if err := tx.Omit("WeatherTemplate", "Region").Create(&row).Error; err != nil {
			return fmt.Errorf("insert recommendation: %w", err)
		}
		return nil
	})
}

func (r *RecommendationRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&DailyRecommendation{}).Count(&n).Error
	return n, err
}

// CountOlderThan counts rows with forecastDate < cutoff.
func (r *RecommendationRepository) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&DailyRecommendation{}).Where("forecast_date < ?", cutoff).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count recommendations: %w", err)
	}
	return n, nil
}

func (r *RecommendationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("forecast_date < ?", cutoff).Delete(&DailyRecommendation{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete recommendations: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func recommendationsToDomain(rows []DailyRecommendation) []weather.Recommendation {
	out := make([]weather.Recommendation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}
