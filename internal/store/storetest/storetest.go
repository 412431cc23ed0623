// Package storetest opens migrated in-memory databases for tests.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/i474232898/weather-recommendation/internal/store"
	"github.com/i474232898/weather-recommendation/internal/weather"
)

var seq atomic.Int64

// New returns an isolated, migrated in-memory sqlite database that is closed with the test.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps shared-cache writers from tripping table locks.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, store.Migrate(context.Background(), db))
	return db
}

// SeedRegion creates a region code and a region using it.
func SeedRegion(t testing.TB, db *gorm.DB, name, landCode, tempCode string) weather.Region {
	t.Helper()
	ctx := context.Background()
	repo := store.NewRegionRepository(db)

	code, err := repo.CreateCode(ctx, weather.RegionCode{LandRegCode: landCode, TempRegCode: tempCode, Name: name + " code"})
	require.NoError(t, err)

	region, err := repo.Create(ctx, weather.Region{
		Name:         name,
		Latitude:     37.5665,
		Longitude:    126.978,
		GridX:        60,
		GridY:        127,
		RegionCodeID: code.ID,
	})
	require.NoError(t, err)
	return region
}
