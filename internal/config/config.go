package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Port     string
	LogLevel string

	DB         DBConfig
	WeatherAPI WeatherAPIConfig
	Scheduler  SchedulerConfig

	// Classification thresholds used by the classifier and generator.
	Classification Classification
}

// DBConfig selects and addresses the persistence engine.
type DBConfig struct {
	Type     string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	Path     string
	// Metrics enables the gorm Prometheus plugin.
	Metrics bool
}

// WeatherAPIConfig configures the provider client.
type WeatherAPIConfig struct {
	BaseURL        string
	AuthKey        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxAttempts    int
	RetryDelay     time.Duration
}

// SchedulerConfig holds the job cadences.
type SchedulerConfig struct {
	Enabled  bool
	Timezone string

	ShortTermCron            string
	MediumTermCron           string
	ShortTermGenerationCron  string
	MediumTermGenerationCron string
	CompleteGenerationCron   string
	CleanupCron              string

	HealthCheckInterval    time.Duration
	InitialSyncDelay       time.Duration
	ShortTermTriggerDelay  time.Duration
	MediumTermTriggerDelay time.Duration
	CleanupRetentionDays   int
}

// Classification holds the temperature and precipitation thresholds.
type Classification struct {
	ChillyCoolBoundary float64
	CoolMildBoundary   float64
	MildHotBoundary    float64

	NoneLightProbability  float64
	LightHeavyProbability float64
	LightAmountThreshold  float64
	HeavyAmountThreshold  float64

	// ShortTermDays is the last day offset served from short-term data.
	ShortTermDays int
	// MediumTermDays is the last day offset served from medium-term data.
	MediumTermDays int
}

// DefaultClassification returns the stock thresholds.
func DefaultClassification() Classification {
	return Classification{
		ChillyCoolBoundary:    10,
		CoolMildBoundary:      20,
		MildHotBoundary:       27,
		NoneLightProbability:  30,
		LightHeavyProbability: 70,
		LightAmountThreshold:  1,
		HeavyAmountThreshold:  10,
		ShortTermDays:         2,
		MediumTermDays:        6,
	}
}

const classificationPrefix = "scheduler.weather.classification."

// Load reads configuration from config.yml, .env and the environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/weather-recommendation")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("log.level", "info")

	v.SetDefault("db.type", "sqlite")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "weather")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.path", "weather.db")
	v.SetDefault("db.metrics", false)

	v.SetDefault("weather.api.base-url", "https://apihub.kma.go.kr/api")
	v.SetDefault("weather.api.authKey", "")
	v.SetDefault("weather.api.timeout.connect", "10s")
	v.SetDefault("weather.api.timeout.read", "30s")
	v.SetDefault("weather.api.retry.max-attempts", 3)
	v.SetDefault("weather.api.retry.delay", "2s")

	v.SetDefault("scheduler.weather.enabled", true)
	v.SetDefault("scheduler.weather.timezone", "Asia/Seoul")
	v.SetDefault("scheduler.weather.short-term-cron", "10 2,5,8,11,14,17,20,23 * * *")
	v.SetDefault("scheduler.weather.medium-term-cron", "30 6,18 * * *")
	v.SetDefault("scheduler.weather.short-term-generation-cron", "5 * * * *")
	v.SetDefault("scheduler.weather.medium-term-generation-cron", "30 0,6,12,18 * * *")
	v.SetDefault("scheduler.weather.complete-generation-cron", "0 4 * * *")
	v.SetDefault("scheduler.weather.cleanup-cron", "0 3 * * *")
	v.SetDefault("scheduler.weather.health-check-interval", "30m")
	v.SetDefault("scheduler.weather.initial-sync-delay", "60s")
	v.SetDefault("scheduler.weather.short-term-trigger-delay", "15m")
	v.SetDefault("scheduler.weather.medium-term-trigger-delay", "30m")
	v.SetDefault("scheduler.weather.cleanup-retention-days", 7)

	def := DefaultClassification()
	v.SetDefault(classificationPrefix+"temperature.chillyCoolBoundary", def.ChillyCoolBoundary)
	v.SetDefault(classificationPrefix+"temperature.coolMildBoundary", def.CoolMildBoundary)
	v.SetDefault(classificationPrefix+"temperature.mildHotBoundary", def.MildHotBoundary)
	v.SetDefault(classificationPrefix+"precipitation.noneLightProbability", def.NoneLightProbability)
	v.SetDefault(classificationPrefix+"precipitation.lightHeavyProbability", def.LightHeavyProbability)
	v.SetDefault(classificationPrefix+"precipitation.lightAmountThreshold", def.LightAmountThreshold)
	v.SetDefault(classificationPrefix+"precipitation.heavyAmountThreshold", def.HeavyAmountThreshold)
	v.SetDefault(classificationPrefix+"short-term-days", def.ShortTermDays)
	v.SetDefault(classificationPrefix+"medium-term-days", def.MediumTermDays)
}

func fromViper(v *viper.Viper) (*AppConfig, error) {
	cfg := &AppConfig{
		Port:     v.GetString("server.port"),
		LogLevel: v.GetString("log.level"),
		DB: DBConfig{
			Type:     strings.ToLower(v.GetString("db.type")),
			Host:     v.GetString("db.host"),
			Port:     v.GetString("db.port"),
			User:     v.GetString("db.user"),
			Password: v.GetString("db.password"),
			Name:     v.GetString("db.name"),
			SSLMode:  v.GetString("db.sslmode"),
			Path:     v.GetString("db.path"),
			Metrics:  v.GetBool("db.metrics"),
		},
		WeatherAPI: WeatherAPIConfig{
			BaseURL:        strings.TrimRight(v.GetString("weather.api.base-url"), "/"),
			AuthKey:        v.GetString("weather.api.authKey"),
			ConnectTimeout: v.GetDuration("weather.api.timeout.connect"),
			ReadTimeout:    v.GetDuration("weather.api.timeout.read"),
			MaxAttempts:    v.GetInt("weather.api.retry.max-attempts"),
			RetryDelay:     v.GetDuration("weather.api.retry.delay"),
		},
		Scheduler: SchedulerConfig{
			Enabled:                  v.GetBool("scheduler.weather.enabled"),
			Timezone:                 v.GetString("scheduler.weather.timezone"),
			ShortTermCron:            v.GetString("scheduler.weather.short-term-cron"),
			MediumTermCron:           v.GetString("scheduler.weather.medium-term-cron"),
			ShortTermGenerationCron:  v.GetString("scheduler.weather.short-term-generation-cron"),
			MediumTermGenerationCron: v.GetString("scheduler.weather.medium-term-generation-cron"),
			CompleteGenerationCron:   v.GetString("scheduler.weather.complete-generation-cron"),
			CleanupCron:              v.GetString("scheduler.weather.cleanup-cron"),
			HealthCheckInterval:      v.GetDuration("scheduler.weather.health-check-interval"),
			InitialSyncDelay:         v.GetDuration("scheduler.weather.initial-sync-delay"),
			ShortTermTriggerDelay:    v.GetDuration("scheduler.weather.short-term-trigger-delay"),
			MediumTermTriggerDelay:   v.GetDuration("scheduler.weather.medium-term-trigger-delay"),
			CleanupRetentionDays:     v.GetInt("scheduler.weather.cleanup-retention-days"),
		},
		Classification: Classification{
			ChillyCoolBoundary:    v.GetFloat64(classificationPrefix + "temperature.chillyCoolBoundary"),
			CoolMildBoundary:      v.GetFloat64(classificationPrefix + "temperature.coolMildBoundary"),
			MildHotBoundary:       v.GetFloat64(classificationPrefix + "temperature.mildHotBoundary"),
			NoneLightProbability:  v.GetFloat64(classificationPrefix + "precipitation.noneLightProbability"),
			LightHeavyProbability: v.GetFloat64(classificationPrefix + "precipitation.lightHeavyProbability"),
			LightAmountThreshold:  v.GetFloat64(classificationPrefix + "precipitation.lightAmountThreshold"),
			HeavyAmountThreshold:  v.GetFloat64(classificationPrefix + "precipitation.heavyAmountThreshold"),
			ShortTermDays:         v.GetInt(classificationPrefix + "short-term-days"),
			MediumTermDays:        v.GetInt(classificationPrefix + "medium-term-days"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects inconsistent thresholds, cron expressions and client settings.
func (c *AppConfig) Validate() error {
	if err := c.Classification.Validate(); err != nil {
		return err
	}

	switch c.DB.Type {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported db.type %q", c.DB.Type)
	}

	if c.WeatherAPI.MaxAttempts < 0 {
		return fmt.Errorf("weather.api.retry.max-attempts must be >= 0, got %d", c.WeatherAPI.MaxAttempts)
	}
	if c.WeatherAPI.ReadTimeout <= 0 {
		return errors.New("weather.api.timeout.read must be positive")
	}
	if c.Scheduler.Enabled && c.WeatherAPI.AuthKey == "" {
		return errors.New("weather.api.authKey is required when the scheduler is enabled")
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid scheduler.weather.timezone: %w", err)
	}

	crons := map[string]string{
		"short-term-cron":             c.Scheduler.ShortTermCron,
		"medium-term-cron":            c.Scheduler.MediumTermCron,
		"short-term-generation-cron":  c.Scheduler.ShortTermGenerationCron,
		"medium-term-generation-cron": c.Scheduler.MediumTermGenerationCron,
		"complete-generation-cron":    c.Scheduler.CompleteGenerationCron,
		"cleanup-cron":                c.Scheduler.CleanupCron,
	}
	for name, expr := range crons {
		if _, err := cron.ParseStandard(expr); err != nil {
			return fmt.Errorf("invalid scheduler.weather.%s %q: %w", name, expr, err)
		}
	}

	if c.Scheduler.CleanupRetentionDays < 1 || c.Scheduler.CleanupRetentionDays > 365 {
		return fmt.Errorf("scheduler.weather.cleanup-retention-days must be in [1,365], got %d", c.Scheduler.CleanupRetentionDays)
	}
	return nil
}

// Validate checks that the thresholds describe ordered, non-overlapping buckets.
func (c Classification) Validate() error {
	if !(c.ChillyCoolBoundary < c.CoolMildBoundary && c.CoolMildBoundary < c.MildHotBoundary) {
		return fmt.Errorf("temperature boundaries must be increasing: %v < %v < %v",
			c.ChillyCoolBoundary, c.CoolMildBoundary, c.MildHotBoundary)
	}
	if c.NoneLightProbability < 0 || c.LightHeavyProbability > 100 || c.NoneLightProbability >= c.LightHeavyProbability {
		return fmt.Errorf("precipitation probabilities must satisfy 0 <= %v < %v <= 100",
			c.NoneLightProbability, c.LightHeavyProbability)
	}
	if c.LightAmountThreshold < 0 || c.LightAmountThreshold >= c.HeavyAmountThreshold {
		return fmt.Errorf("precipitation amounts must satisfy 0 <= %v < %v",
			c.LightAmountThreshold, c.HeavyAmountThreshold)
	}
	if c.ShortTermDays < 0 || c.ShortTermDays >= c.MediumTermDays {
		return fmt.Errorf("short-term-days (%d) must be below medium-term-days (%d)", c.ShortTermDays, c.MediumTermDays)
	}
	return nil
}
