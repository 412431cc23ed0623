package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/i474232898/weather-recommendation/internal/weather"
)

// RegionRepository persists regions and region codes.
type RegionRepository struct {
	db *gorm.DB
}

var _ weather.RegionStore = (*RegionRepository)(nil)

func NewRegionRepository(db *gorm.DB) *RegionRepository {
	return &RegionRepository{db: db}
}

// ListActive returns every non-deleted region ordered by name with its code loaded.
func (r *RegionRepository) ListActive(ctx context.Context) ([]weather.Region, error) {
	var rows []Region
	if err := r.db.WithContext(ctx).
		Preload("RegionCode").
		Order("name").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	return regionsToDomain(rows), nil
}

// ByIDs returns the active regions among ids, ordered by name. Unknown ids are ignored.
func (r *RegionRepository) ByIDs(ctx context.Context, ids []int64) ([]weather.Region, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []Region
	if err := r.db.WithContext(ctx).
		Preload("RegionCode").
		Where("id IN ?", ids).
		Order("name").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load regions: %w", err)
	}
	return regionsToDomain(rows), nil
}

func (r *RegionRepository) ByID(ctx context.Context, id int64) (weather.Region, error) {
	var row Region
	err := r.db.WithContext(ctx).Preload("RegionCode").First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return weather.Region{}, weather.ErrRegionNotFound
	}
	if err != nil {
		return weather.Region{}, fmt.Errorf("load region %d: %w", id, err)
	}
	return row.toDomain(), nil
}

// Create persists a region whose grid has already been resolved.
func (r *RegionRepository) Create(ctx context.Context, region weather.Region) (weather.Region, error) {
	row := Region{
		Name:         region.Name,
		Latitude:     region.Latitude,
		Longitude:    region.Longitude,
		GridX:        region.GridX,
		GridY:        region.GridY,
		RegionCodeID: region.RegionCodeID,
	}
	if err := r.db.WithContext(ctx).Omit("RegionCode").Create(&row).Error; err != nil {
		return weather.Region{}, fmt.Errorf("create region %q: %w", region.Name, err)
	}
	return r.ByID(ctx, row.ID)
}

func (r *RegionRepository) CodeByID(ctx context.Context, id int64) (weather.RegionCode, error) {
	var row RegionCode
	err := r.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return weather.RegionCode{}, weather.ErrNotFound
	}
	if err != nil {
		return weather.RegionCode{}, fmt.Errorf("load region code %d: %w", id, err)
	}
	return row.toDomain(), nil
}

func (r *RegionRepository) CreateCode(ctx context.Context, code weather.RegionCode) (weather.RegionCode, error) {
	row := RegionCode{
		LandRegCode: code.LandRegCode,
		TempRegCode: code.TempRegCode,
		Name:        code.Name,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return weather.RegionCode{}, fmt.Errorf("create region code %q: %w", code.Name, err)
	}
	return row.toDomain(), nil
}

func (r *RegionRepository) ListCodes(ctx context.Context) ([]weather.RegionCode, error) {
	var rows []RegionCode
	if err := r.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list region codes: %w", err)
	}
	codes := make([]weather.RegionCode, 0, len(rows))
	for _, row := range rows {
		codes = append(codes, row.toDomain())
	}
	return codes, nil
}

// DeleteCode removes a region code unless any region, deleted or not, still references it.
func (r *RegionRepository) DeleteCode(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var refs int64
		if err := tx.Unscoped().Model(&Region{}).Where("region_code_id = ?", id).Count(&refs).Error; err != nil {
			return fmt.Errorf("count regions for code %d: %w", id, err)
		}
		if refs > 0 {
			return weather.ErrRegionCodeInUse
		}

		res := tx.Delete(&RegionCode{}, id)
		if res.Error != nil {
			return fmt.Errorf("delete region code %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return weather.ErrNotFound
		}
		return nil
	})
}

func regionsToDomain(rows []Region) []weather.Region {
	regions := make([]weather.Region, 0, len(rows))
	for _, row := range rows {
		regions = append(regions, row.toDomain())
	}
	return regions
}
