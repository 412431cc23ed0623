package providers

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/weather-recommendation/internal/common"
	"github.com/i474232898/weather-recommendation/internal/config"
	"github.com/i474232898/weather-recommendation/internal/observability"
	"github.com/i474232898/weather-recommendation/internal/weather"
	"github.com/i474232898/weather-recommendation/internal/weather/parser"
)

const (
	gridPath       = "/typ01/cgi-bin/url/nph-dfs_xy_lonlat"
	shortTermPath  = "/typ02/openApi/VilageFcstInfoService_2.0/getVilageFcst"
	mediumLandPath = "/typ01/url/fct_afs_wl.php"
	mediumTempPath = "/typ01/url/fct_afs_wc.php"

	opGrid       = "grid"
	opShortTerm  = "short_term"
	opMediumLand = "medium_land"
	opMediumTemp = "medium_temp"

	// Reference point used by CheckHealth (Seoul City Hall).
	healthLat = 37.5665
	healthLon = 126.9780
)

// KMAClient implements weather.Provider for the KMA API hub.
type KMAClient struct {
	baseURL string
	authKey string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	metrics *observability.Metrics
	logger  *zap.Logger
}

var _ weather.Provider = (*KMAClient)(nil)

// NewHTTPClient builds the HTTP client used against the API hub with the configured connect timeout.
func NewHTTPClient(cfg config.WeatherAPIConfig) *http.Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	return &http.Client{Transport: transport}
}

func NewKMAClient(client *http.Client, cfg config.WeatherAPIConfig, metrics *observability.Metrics, logger *zap.Logger) *KMAClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kma",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &KMAClient{
		baseURL: cfg.BaseURL,
		authKey: cfg.AuthKey,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries: cfg.MaxAttempts,
				Delay:      cfg.RetryDelay,
			},
			AttemptTimeout: cfg.ReadTimeout,
		},
		circuit: cb,
		metrics: metrics,
		logger:  logger,
	}
}

// ConvertGrid resolves the grid cell containing (lat, lon).
func (c *KMAClient) ConvertGrid(ctx context.Context, lat, lon float64) (weather.Grid, error) {
	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))

	body, err := c.get(ctx, opGrid, gridPath, values)
	if err != nil {
		return weather.Grid{}, err
	}
	return parser.ParseGrid(body)
}

// GetShortTerm fetches the raw short-term forecast JSON for one grid cell and base slot.
func (c *KMAClient) GetShortTerm(ctx context.Context, grid weather.Grid, baseDate time.Time, baseTime string) ([]byte, error) {
	values := url.Values{}
	values.Set("pageNo", "1")
	values.Set("numOfRows", "1000")
	values.Set("dataType", "JSON")
	values.Set("base_date", common.FormatYMD(baseDate))
	values.Set("base_time", baseTime)
	values.Set("nx", strconv.Itoa(grid.X))
	values.Set("ny", strconv.Itoa(grid.Y))

	return c.get(ctx, opShortTerm, shortTermPath, values)
}

// GetMediumLand fetches the raw medium-term land forecast text.
func (c *KMAClient) GetMediumLand(ctx context.Context, landRegCode string) ([]byte, error) {
	values := url.Values{}
	values.Set("reg", landRegCode)
	return c.get(ctx, opMediumLand, mediumLandPath, values)
}

// GetMediumTemp fetches the raw medium-term temperature forecast text.
func (c *KMAClient) GetMediumTemp(ctx context.Context, tempRegCode string) ([]byte, error) {
	values := url.Values{}
	values.Set("reg", tempRegCode)
	return c.get(ctx, opMediumTemp, mediumTempPath, values)
}

// CheckHealth reports whether the API hub answers a grid conversion for a fixed reference point.
func (c *KMAClient) CheckHealth(ctx context.Context) error {
	_, err := c.ConvertGrid(ctx, healthLat, healthLon)
	return err
}

func (c *KMAClient) get(ctx context.Context, op, path string, values url.Values) ([]byte, error) {
	values.Set("authKey", c.authKey)
	u := fmt.Sprintf("%s%s?%s", c.baseURL, path, values.Encode())

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	start := time.Now()
	body, err := doRequestWithResilience(ctx, op, c.httpCfg, c.circuit, buildRequest, func(outcome string) {
		if c.metrics != nil {
			c.metrics.ProviderRequests.WithLabelValues(op, outcome).Inc()
		}
	})
	if c.metrics != nil {
		c.metrics.ProviderDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.logger.Warn("provider request failed",
			zap.String("op", op),
			zap.String("path", path),
			zap.Error(err))
		return nil, err
	}

	c.logger.Debug("provider request succeeded",
		zap.String("op", op),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)))
	return body, nil
}
