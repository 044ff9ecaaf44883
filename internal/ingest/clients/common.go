package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/sony/gobreaker"
)

// BackoffConfig controls the retry schedule for outbound fetches.
type BackoffConfig struct {
	MaxAttempts     int // total attempts, including the first
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// defaultBackoff is the fixed retry policy shared by both API clients:
// three attempts total, one second before the first retry, five times the
// previous delay on each retry after that.
func defaultBackoff() BackoffConfig {
	return BackoffConfig{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		Multiplier:      5,
		MaxInterval:     30 * time.Second,
	}
}

func newCircuit(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// fetchJSON executes a GET with retries, exponential backoff, and a circuit
// breaker, decoding the 2xx response body into out. A malformed body counts
// as a failed attempt and is retried like any transport error.
func fetchJSON(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
	out any,
) error {
	if cfg.Client == nil {
		return errNoHTTPClient
	}
	if cfg.Backoff.MaxAttempts <= 0 || cfg.Backoff.InitialInterval <= 0 || cfg.Backoff.Multiplier < 1 {
		return errInvalidConfig
	}

	// json decoding merges into non-nil maps rather than replacing them, so a
	// failed attempt could leak partial state into the next one. Reset the
	// destination to its zero value before every decode.
	dst := reflect.ValueOf(out).Elem()
	zero := reflect.Zero(dst.Type())

	delay := cfg.Backoff.InitialInterval
	var lastErr error

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		req, err := buildRequest()
		if err != nil {
			return err
		}

		// Ensure the request obeys context cancellation.
		req = req.WithContext(ctx)

		_, err = cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}
			defer resp.Body.Close()

			// Handle rate limiting and server errors explicitly.
			if resp.StatusCode == http.StatusTooManyRequests {
				return nil, errRateLimited
			}
			if resp.StatusCode >= 500 {
				return nil, errServerError
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}

			dst.Set(zero)
			if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
				return nil, fmt.Errorf("decode response body: %w", decodeErr)
			}
			return nil, nil
		})

		if err == nil {
			return nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		lastErr = err
		if attempt >= cfg.Backoff.MaxAttempts {
			return lastErr
		}

		wait := delay
		if cfg.Backoff.MaxInterval > 0 && wait > cfg.Backoff.MaxInterval {
			wait = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// continue to next attempt
		}

		delay = time.Duration(float64(delay) * cfg.Backoff.Multiplier)
	}
}
