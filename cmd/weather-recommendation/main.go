package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/weather-recommendation/internal/api/http"
	"github.com/i474232898/weather-recommendation/internal/cleanup"
	"github.com/i474232898/weather-recommendation/internal/collector"
	"github.com/i474232898/weather-recommendation/internal/config"
	"github.com/i474232898/weather-recommendation/internal/generator"
	"github.com/i474232898/weather-recommendation/internal/logger"
	"github.com/i474232898/weather-recommendation/internal/observability"
	"github.com/i474232898/weather-recommendation/internal/region"
	"github.com/i474232898/weather-recommendation/internal/scheduler"
	"github.com/i474232898/weather-recommendation/internal/store"
	"github.com/i474232898/weather-recommendation/internal/weather"
	"github.com/i474232898/weather-recommendation/internal/weather/providers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.DB, zl)
	if err != nil {
		zl.Fatal("failed to open database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		zl.Fatal("failed to access sql.DB", zap.Error(err))
	}
	if err := store.Migrate(ctx, db); err != nil {
		zl.Fatal("failed to migrate database", zap.Error(err))
	}
	seeded, err := store.SeedTemplates(ctx, db)
	if err != nil {
		zl.Fatal("failed to seed templates", zap.Error(err))
	}
	if seeded > 0 {
		zl.Info("seeded recommendation templates", zap.Int("count", seeded))
	}

	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	regions := store.NewRegionRepository(db)
	shortTerm := store.NewShortTermRepository(db)
	mediumTerm := store.NewMediumTermRepository(db)
	recommendations := store.NewRecommendationRepository(db)
	templates := store.NewTemplateRepository(db)

	// KMA client with resilience (retry + circuit breaker).
	kma := providers.NewKMAClient(providers.NewHTTPClient(cfg.WeatherAPI), cfg.WeatherAPI, metrics, zl)

	coll := collector.New(collector.Params{
		Regions:    regions,
		Provider:   kma,
		ShortTerm:  shortTerm,
		MediumTerm: mediumTerm,
		Clock:      clock,
		Metrics:    metrics,
		Logger:     zl,
	})
	gen := generator.New(generator.Params{
		Regions:         regions,
		ShortTerm:       shortTerm,
		MediumTerm:      mediumTerm,
		Recommendations: recommendations,
		Templates:       templates,
		Classification:  cfg.Classification,
		Clock:           clock,
		Metrics:         metrics,
		Logger:          zl,
	})
	cleaner := cleanup.New(shortTerm, mediumTerm, recommendations, clock, metrics, zl)

	sched, err := scheduler.New(scheduler.Params{
		Config:         cfg.Scheduler,
		Classification: cfg.Classification,
		Collector:      coll,
		Generator:      gen,
		Cleaner:        cleaner,
		Clock:          clock,
		Metrics:        metrics,
		Logger:         zl,
	})
	if err != nil {
		zl.Fatal("failed to create scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		zl.Fatal("failed to start scheduler", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:               "weather-recommendation",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Query:   weather.NewService(regions, recommendations, clock, zl),
		Regions: region.NewService(regions, kma, zl),
		Jobs:    sched,
		Cleanup: cleaner,
		Health:  kma,
		Clock:   clock,
		Logger:  zl,
	})

	go func() {
		zl.Info("http server listening", zap.String("port", cfg.Port))
		if err := app.Listen(":" + cfg.Port); err != nil {
			zl.Error("fiber server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zl.Error("error during http shutdown", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		zl.Error("error during scheduler shutdown", zap.Error(err))
	}
	if err := sqlDB.Close(); err != nil {
		zl.Error("error closing database", zap.Error(err))
	}
}
