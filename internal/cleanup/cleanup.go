// Package cleanup removes raw forecasts and recommendations past the retention window.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/i474232898/weather-recommendation/internal/common"
	"github.com/i474232898/weather-recommendation/internal/observability"
)

// ErrInvalidRetention is returned when retention days fall outside [1, 365].
var ErrInvalidRetention = errors.New("retention days must be between 1 and 365")

// Kind identifies a cleaned data kind.
type Kind string

const (
	KindShortTerm       Kind = "SHORT_TERM"
	KindMediumTerm      Kind = "MEDIUM_TERM"
	KindRecommendations Kind = "RECOMMENDATIONS"
)

// Estimated storage per row, used for SpaceSavedMB.
var bytesPerRow = map[Kind]int64{
	KindShortTerm:       1024,
	KindMediumTerm:      512,
	KindRecommendations: 256,
}

// Target is a store that can count and delete rows older than a cutoff date.
type Target interface {
	CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Options selects the retention window and data kinds.
type Options struct {
	RetentionDays   int `validate:"min=1,max=365"`
	ShortTerm       bool
	MediumTerm      bool
	Recommendations bool
	DryRun          bool
}

// AllKinds returns options covering every data kind.
func AllKinds(retentionDays int, dryRun bool) Options {
	return Options{
		RetentionDays:   retentionDays,
		ShortTerm:       true,
		MediumTerm:      true,
		Recommendations: true,
		DryRun:          dryRun,
	}
}

// Stats is the outcome for one data kind.
type Stats struct {
	Kind           Kind    `json:"kind"`
	Executed       bool    `json:"executed"`
	RecordsFound   int64   `json:"recordsFound"`
	RecordsDeleted int64   `json:"recordsDeleted"`
	SpaceSavedMB   float64 `json:"spaceSavedMb"`
	Error          string  `json:"error,omitempty"`
}

// Result aggregates a cleanup run.
type Result struct {
	RetentionDays int       `json:"retentionDays"`
	Cutoff        string    `json:"cutoff"`
	DryRun        bool      `json:"dryRun"`
	Stats         []Stats   `json:"stats"`
	TotalFound    int64     `json:"totalFound"`
	TotalDeleted  int64     `json:"totalDeleted"`
	SpaceSavedMB  float64   `json:"spaceSavedMb"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	DurationMs    int64     `json:"durationMs"`
	ErrorMessages []string  `json:"errorMessages"`
}

type Engine struct {
	shortTerm       Target
	mediumTerm      Target
	recommendations Target
	clock           clockwork.Clock
	validate        *validator.Validate
	metrics         *observability.Metrics
	logger          *zap.Logger
}

func New(shortTerm, mediumTerm, recommendations Target, clock clockwork.Clock, metrics *observability.Metrics, logger *zap.Logger) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		shortTerm:       shortTerm,
		mediumTerm:      mediumTerm,
		recommendations: recommendations,
		clock:           clock,
		validate:        validator.New(),
		metrics:         metrics,
		logger:          logger.Named("cleanup"),
	}
}

// Run counts and, unless DryRun, deletes rows dated before today minus RetentionDays.
// A failing kind is reported on the result without blocking the others.
func (e *Engine) Run(ctx context.Context, opts Options) (*Result, error) {
	if err := e.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRetention, opts.RetentionDays)
	}

	start := e.clock.Now()
	cutoff := common.Today(e.clock).AddDate(0, 0, -opts.RetentionDays)
	result := &Result{
		RetentionDays: opts.RetentionDays,
		Cutoff:        common.FormatYMD(cutoff),
		DryRun:        opts.DryRun,
		StartTime:     start,
	}

	e.logger.Info("cleanup started",
		zap.Int("retention_days", opts.RetentionDays),
		zap.String("cutoff", result.Cutoff),
		zap.Bool("dry_run", opts.DryRun))

	var errs *multierror.Error
	for _, job := range []struct {
		kind    Kind
		enabled bool
		target  Target
	}{
		{KindShortTerm, opts.ShortTerm, e.shortTerm},
		{KindMediumTerm, opts.MediumTerm, e.mediumTerm},
		{KindRecommendations, opts.Recommendations, e.recommendations},
	} {
		if !job.enabled {
			continue
		}
		stats, err := e.cleanKind(ctx, job.kind, job.target, cutoff, opts.DryRun)
		if err != nil {
			errs = multierror.Append(errs, err)
			stats.Error = err.Error()
			result.ErrorMessages = append(result.ErrorMessages, err.Error())
		}
		result.Stats = append(result.Stats, stats)
		result.TotalFound += stats.RecordsFound
		result.TotalDeleted += stats.RecordsDeleted
		result.SpaceSavedMB += stats.SpaceSavedMB
	}

	end := e.clock.Now()
	result.EndTime = end
	result.DurationMs = end.Sub(start).Milliseconds()

	if err := errs.ErrorOrNil(); err != nil {
		e.logger.Error("cleanup finished with errors", zap.Error(err))
	}
	e.logger.Info("cleanup finished",
		zap.Int64("found", result.TotalFound),
		zap.Int64("deleted", result.TotalDeleted),
		zap.Float64("space_saved_mb", result.SpaceSavedMB),
		zap.Bool("dry_run", opts.DryRun))
	return result, nil
}

// Preview reports what a cleanup of every kind would remove without deleting anything.
func (e *Engine) Preview(ctx context.Context, retentionDays int) (*Result, error) {
	return e.Run(ctx, AllKinds(retentionDays, true))
}

func (e *Engine) cleanKind(ctx context.Context, kind Kind, target Target, cutoff time.Time, dryRun bool) (Stats, error) {
	stats := Stats{Kind: kind}

	found, err := target.CountOlderThan(ctx, cutoff)
	if err != nil {
		return stats, fmt.Errorf("%s count: %w", kind, err)
	}
	stats.RecordsFound = found

	if dryRun || found == 0 {
		stats.SpaceSavedMB = estimateMB(kind, found)
		return stats, nil
	}

	deleted, err := target.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return stats, fmt.Errorf("%s delete: %w", kind, err)
	}
	stats.Executed = true
	stats.RecordsDeleted = deleted
	stats.SpaceSavedMB = estimateMB(kind, deleted)

	if e.metrics != nil {
		e.metrics.CleanupRowsDeleted.WithLabelValues(string(kind)).Add(float64(deleted))
	}
	e.logger.Info("rows deleted", zap.String("kind", string(kind)), zap.Int64("deleted", deleted))
	return stats, nil
}

func estimateMB(kind Kind, rows int64) float64 {
	return float64(rows*bytesPerRow[kind]) / (1024 * 1024)
}
