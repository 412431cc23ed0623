package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-recommendation/internal/weather"
)

// BackoffConfig controls the fixed-delay retry behaviour.
type BackoffConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	Delay      time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
	// AttemptTimeout bounds each individual attempt.
	AttemptTimeout time.Duration
}

var (
	errServerError   = errors.New("server error")
	errClientError   = errors.New("client error")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// attemptObserver is notified after every attempt with its outcome.
type attemptObserver func(outcome string)

// doRequestWithResilience executes the request with a per-attempt timeout, fixed-delay
// retries on transport errors, timeouts and 5xx, and a circuit breaker. 4xx responses,
// an open breaker and cancellation of ctx are terminal. The returned body is fully read.
func doRequestWithResilience(
	ctx context.Context,
	op string,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func(ctx context.Context) (*http.Request, error),
	observe attemptObserver,
) ([]byte, error) {
	if cfg.Client == nil {
		return nil, &weather.ProviderError{Op: op, Kind: weather.ErrorKindTransport, Err: errNoHTTPClient}
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.Delay < 0 {
		return nil, &weather.ProviderError{Op: op, Kind: weather.ErrorKindTransport, Err: errInvalidConfig}
	}
	if observe == nil {
		observe = func(string) {}
	}

	var attempt int
	for {
		if err := ctx.Err(); err != nil {
			return nil, classify(op, err, 0)
		}

		body, status, err := doAttempt(ctx, cfg, cb, buildRequest)
		if err == nil {
			observe("success")
			return body, nil
		}

		perr := classify(op, err, status)

		// Terminal: breaker open, caller cancelled, or a 4xx.
		if errors.Is(err, errCircuitOpen) || ctx.Err() != nil || errors.Is(err, errClientError) {
			observe("error")
			return nil, perr
		}

		if attempt >= cfg.Backoff.MaxRetries {
			observe("error")
			return nil, perr
		}
		observe("retry")

		timer := time.NewTimer(cfg.Backoff.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, classify(op, ctx.Err(), 0)
		case <-timer.C:
			// continue to next attempt
		}

		attempt++
	}
}

func doAttempt(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func(ctx context.Context) (*http.Request, error),
) ([]byte, int, error) {
	attemptCtx := ctx
	if cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, cfg.AttemptTimeout)
		defer cancel()
	}

	req, err := buildRequest(attemptCtx)
	if err != nil {
		return nil, 0, err
	}

	var status int
	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := cfg.Client.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		defer resp.Body.Close()
		status = resp.StatusCode

		// 4xx is the caller's problem, not the upstream's; keep it out of the breaker's failure count.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return []byte(nil), nil
		}
		if resp.StatusCode >= 500 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, errServerError
		}

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, readErr
		}
		return body, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, 0, fmt.Errorf("%w: %v", errCircuitOpen, err)
	}
	if err != nil {
		return nil, status, err
	}
	if status >= 400 && status < 500 {
		return nil, status, errClientError
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, status, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return body, status, nil
}

// classify maps a failed attempt onto a ProviderError kind.
func classify(op string, err error, status int) *weather.ProviderError {
	switch {
	case errors.Is(err, errServerError), errors.Is(err, errClientError):
		return &weather.ProviderError{Op: op, Kind: weather.ErrorKindStatus, StatusCode: status, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &weather.ProviderError{Op: op, Kind: weather.ErrorKindTimeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &weather.ProviderError{Op: op, Kind: weather.ErrorKindTimeout, Err: err}
	}
	return &weather.ProviderError{Op: op, Kind: weather.ErrorKindTransport, Err: err}
}
