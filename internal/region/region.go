// Package region administers tracked regions and their medium-term region codes.
package region

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/i474232898/weather-recommendation/internal/weather"
)

// Store is the persistence the region service needs.
type Store interface {
	ListActive(ctx context.Context) ([]weather.Region, error)
	Create(ctx context.Context, region weather.Region) (weather.Region, error)
	CodeByID(ctx context.Context, id int64) (weather.RegionCode, error)
	CreateCode(ctx context.Context, code weather.RegionCode) (weather.RegionCode, error)
	ListCodes(ctx context.Context) ([]weather.RegionCode, error)
	DeleteCode(ctx context.Context, id int64) error
}

// GridConverter resolves a coordinate to the provider grid.
type GridConverter interface {
	ConvertGrid(ctx context.Context, lat, lon float64) (weather.Grid, error)
}

// CreateRegionRequest describes a new region. Coordinates must lie within Korea.
type CreateRegionRequest struct {
	Name         string  `json:"name" validate:"required,max=100"`
	Latitude     float64 `json:"latitude" validate:"gte=33,lte=38"`
	Longitude    float64 `json:"longitude" validate:"gte=124,lte=132"`
	RegionCodeID int64   `json:"regionCodeId" validate:"required,gt=0"`
}

// CreateRegionCodeRequest describes a new medium-term code pair.
type CreateRegionCodeRequest struct {
	LandRegCode string `json:"landRegCode" validate:"required,max=16"`
	TempRegCode string `json:"tempRegCode" validate:"required,max=16"`
	Name        string `json:"name" validate:"required,max=100"`
}

// ValidationError wraps request validation failures.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

type Service struct {
	store    Store
	grid     GridConverter
	validate *validator.Validate
	logger   *zap.Logger
}

func NewService(store Store, grid GridConverter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		grid:     grid,
		validate: validator.New(),
		logger:   logger.Named("region"),
	}
}

// CreateRegion validates the request, converts its coordinates to a grid cell once and persists it.
func (s *Service) CreateRegion(ctx context.Context, req CreateRegionRequest) (weather.Region, error) {
	if err := s.validate.Struct(req); err != nil {
		return weather.Region{}, &ValidationError{Err: err}
	}

	code, err := s.store.CodeByID(ctx, req.RegionCodeID)
	if err != nil {
		return weather.Region{}, fmt.Errorf("region code %d: %w", req.RegionCodeID, err)
	}

	grid, err := s.grid.ConvertGrid(ctx, req.Latitude, req.Longitude)
	if err != nil {
		return weather.Region{}, fmt.Errorf("convert grid for %q: %w", req.Name, err)
	}

	region, err := s.store.Create(ctx, weather.Region{
		Name:         req.Name,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		GridX:        grid.X,
		GridY:        grid.Y,
		RegionCodeID: code.ID,
	})
	if err != nil {
		return weather.Region{}, err
	}

	s.logger.Info("region created",
		zap.Int64("region_id", region.ID),
		zap.String("name", region.Name),
		zap.Int("nx", grid.X),
		zap.Int("ny", grid.Y))
	return region, nil
}

func (s *Service) CreateRegionCode(ctx context.Context, req CreateRegionCodeRequest) (weather.RegionCode, error) {
	if err := s.validate.Struct(req); err != nil {
		return weather.RegionCode{}, &ValidationError{Err: err}
	}
	return s.store.CreateCode(ctx, weather.RegionCode{
		LandRegCode: req.LandRegCode,
		TempRegCode: req.TempRegCode,
		Name:        req.Name,
	})
}

// DeleteRegionCode fails with weather.ErrRegionCodeInUse while any region references the code.
func (s *Service) DeleteRegionCode(ctx context.Context, id int64) error {
	if err := s.store.DeleteCode(ctx, id); err != nil {
		return err
	}
	s.logger.Info("region code deleted", zap.Int64("region_code_id", id))
	return nil
}

func (s *Service) ListRegions(ctx context.Context) ([]weather.Region, error) {
	return s.store.ListActive(ctx)
}

func (s *Service) ListRegionCodes(ctx context.Context) ([]weather.RegionCode, error) {
	return s.store.ListCodes(ctx)
}
