package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/i474232898/weather-recommendation/internal/weather"
)

// ShortTermRepository persists raw short-term rows keyed by
// (region, baseDate, baseTime, fcstDate, fcstTime).
type ShortTermRepository struct {
	db *gorm.DB
}

var _ weather.ShortTermStore = (*ShortTermRepository)(nil)

func NewShortTermRepository(db *gorm.DB) *ShortTermRepository {
	return &ShortTermRepository{db: db}
}

func shortTermKeyScope(key weather.ShortTermKey) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("region_id = ? AND base_date = ? AND base_time = ? AND fcst_date = ? AND fcst_time = ?",
			key.RegionID, key.BaseDate, key.BaseTime, key.FcstDate, key.FcstTime)
	}
}

func (r *ShortTermRepository) FindByKey(ctx context.Context, key weather.ShortTermKey) (weather.ShortTermForecast, bool, error) {
	var row ShortTermForecast
	err := r.db.WithContext(ctx).Scopes(shortTermKeyScope(key)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return weather.ShortTermForecast{}, false, nil
	}
	if err != nil {
		return weather.ShortTermForecast{}, false, fmt.Errorf("find short-term row: %w", err)
	}
	return row.toDomain(), true, nil
}

// Insert fails on a natural-key conflict.
func (r *ShortTermRepository) Insert(ctx context.Context, f weather.ShortTermForecast) error {
	row := shortTermFromDomain(f)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert short-term row: %w", err)
	}
	return nil
}

// Replace deletes the row with the same natural key and inserts f in one transaction.
func (r *ShortTermRepository) Replace(ctx context.Context, f weather.ShortTermForecast) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Scopes(shortTermKeyScope(f.Key())).Delete(&ShortTermForecast{}).Error; err != nil {
			return fmt.Errorf("delete short-term row: %w", err)
		}
		row := shortTermFromDomain(f)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert short-term row: %w", err)
		}
		return nil
	})
}

// FindForDate returns every row of a region forecasting fcstDate.
func (r *ShortTermRepository) FindForDate(ctx context.Context, regionID int64, fcstDate time.Time) ([]weather.ShortTermForecast, error) {
	var rows []ShortTermForecast
	if err := r.db.WithContext(ctx).
		Where("region_id = ? AND fcst_date = ?", regionID, fcstDate).
		Order("base_date DESC, base_time DESC, fcst_time").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find short-term rows: %w", err)
	}
	out := make([]weather.ShortTermForecast, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *ShortTermRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&ShortTermForecast{}).Count(&n).Error
	return n, err
}

// CountOlderThan counts rows with baseDate < cutoff.
func (r *ShortTermRepository) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&ShortTermForecast{}).Where("base_date < ?", cutoff).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count short-term rows: %w", err)
	}
	return n, nil
}

// DeleteOlderThan deletes rows with baseDate < cutoff and returns how many were removed.
func (r *ShortTermRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("base_date < ?", cutoff).Delete(&ShortTermForecast{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete short-term rows: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// MediumTermRepository persists raw medium-term rows keyed by (region, tmfc, tmef).
type MediumTermRepository struct {
	db *gorm.DB
}

var _ weather.MediumTermStore = (*MediumTermRepository)(nil)

func NewMediumTermRepository(db *gorm.DB) *MediumTermRepository {
	return &MediumTermRepository{db: db}
}

func mediumTermKeyScope(key weather.MediumTermKey) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("region_id = ? AND tmfc = ? AND tmef = ?", key.RegionID, key.Tmfc, key.Tmef)
	}
}

func (r *MediumTermRepository) FindByKey(ctx context.Context, key weather.MediumTermKey) (weather.MediumTermForecast, bool, error) {
	var row MediumTermForecast
	err := r.db.WithContext(ctx).Scopes(mediumTermKeyScope(key)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return weather.MediumTermForecast{}, false, nil
	}
	if err != nil {
		return weather.MediumTermForecast{}, false, fmt.Errorf("find medium-term row: %w", err)
	}
	return row.toDomain(), true, nil
}

func (r *MediumTermRepository) Insert(ctx context.Context, f weather.MediumTermForecast) error {
	row := mediumTermFromDomain(f)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert medium-term row: %w", err)
	}
	return nil
}

func (r *MediumTermRepository) Replace(ctx context.Context, f weather.MediumTermForecast) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Scopes(mediumTermKeyScope(f.Key())).Delete(&MediumTermForecast{}).Error; err != nil {
			return fmt.Errorf("delete medium-term row: %w", err)
		}
		row := mediumTermFromDomain(f)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert medium-term row: %w", err)
		}
		return nil
	})
}

// FindForDate returns every row of a region effective on tmef, newest publish first.
func (r *MediumTermRepository) FindForDate(ctx context.Context, regionID int64, tmef time.Time) ([]weather.MediumTermForecast, error) {
	var rows []MediumTermForecast
	if err := r.db.WithContext(ctx).
		Where("region_id = ? AND tmef = ?", regionID, tmef).
		Order("tmfc DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find medium-term rows: %w", err)
	}
	out := make([]weather.MediumTermForecast, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *MediumTermRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&MediumTermForecast{}).Count(&n).Error
	return n, err
}

// CountOlderThan counts rows with tmfc < cutoff.
func (r *MediumTermRepository) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&MediumTermForecast{}).Where("tmfc < ?", cutoff).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count medium-term rows: %w", err)
	}
	return n, nil
}

func (r *MediumTermRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("tmfc < ?", cutoff).Delete(&MediumTermForecast{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete medium-term rows: %w", res.Error)
	}
	return res.RowsAffected, nil
}
