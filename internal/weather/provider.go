package weather

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no recommendation or row exists for a key.
	ErrNotFound = errors.New("weather data not found")
	// ErrRegionNotFound is returned when a region id does not resolve.
	ErrRegionNotFound = errors.New("region not found")
	// ErrRegionCodeInUse is returned when deleting a region code that regions still reference.
	ErrRegionCodeInUse = errors.New("region code is referenced by regions")
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	ErrorKindTransport ErrorKind = "transport"
	ErrorKindStatus    ErrorKind = "status"
	ErrorKindTimeout   ErrorKind = "timeout"
)

// ProviderError is returned by every Provider operation.
type ProviderError struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Kind == ErrorKindStatus {
		return fmt.Sprintf("provider %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Provider abstracts the meteorological API hub.
type Provider interface {
	ConvertGrid(ctx context.Context, lat, lon float64) (Grid, error)
	GetShortTerm(ctx context.Context, grid Grid, baseDate time.Time, baseTime string) ([]byte, error)
	GetMediumLand(ctx context.Context, landRegCode string) ([]byte, error)
	GetMediumTemp(ctx context.Context, tempRegCode string) ([]byte, error)
}

// RegionStore resolves target regions.
type RegionStore interface {
	ListActive(ctx context.Context) ([]Region, error)
	ByIDs(ctx context.Context, ids []int64) ([]Region, error)
	ByID(ctx context.Context, id int64) (Region, error)
}

// ShortTermStore persists short-term rows by natural key.
type ShortTermStore interface {
	FindByKey(ctx context.Context, key ShortTermKey) (ShortTermForecast, bool, error)
	Insert(ctx context.Context, row ShortTermForecast) error
	Replace(ctx context.Context, row ShortTermForecast) error
	FindForDate(ctx context.Context, regionID int64, fcstDate time.Time) ([]ShortTermForecast, error)
	CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// MediumTermStore persists medium-term rows by natural key.
type MediumTermStore interface {
	FindByKey(ctx context.Context, key MediumTermKey) (MediumTermForecast, bool, error)
	Insert(ctx context.Context, row MediumTermForecast) error
	Replace(ctx context.Context, row MediumTermForecast) error
	FindForDate(ctx context.Context, regionID int64, tmef time.Time) ([]MediumTermForecast, error)
	CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RecommendationStore persists daily recommendations, at most one per region and date.
type RecommendationStore interface {
	FindByRegionAndDate(ctx context.Context, regionID int64, date time.Time) (Recommendation, bool, error)
	FindRange(ctx context.Context, regionID int64, start, endInclusive time.Time) ([]Recommendation, error)
	FindLatest(ctx context.Context, regionID int64, limit int) ([]Recommendation, error)
	FindByDate(ctx context.Context, date time.Time) ([]Recommendation, error)
	Exists(ctx context.Context, regionID int64, date time.Time) (bool, error)
	Upsert(ctx context.Context, regionID int64, date time.Time, templateID int64, now time.Time) error
	CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// TemplateStore loads the template catalog.
type TemplateStore interface {
	AllWithKeywords(ctx context.Context) ([]Template, error)
}
