// Package explorer is the shared HTTP client for third-party block explorer APIs.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/core-coin/pactum/internal/metrics"
	"github.com/core-coin/pactum/pkg/logger"
)

var (
	ErrRateLimited       = errors.New("explorer rate limit exceeded")
	ErrUnavailable       = errors.New("explorer unavailable")
	ErrMalformedResponse = errors.New("malformed explorer response")
)

// Config describes one explorer endpoint.
type Config struct {
	// Name labels logs, metrics and the circuit breaker.
	Name    string
	BaseURL string
	// APIKeyHeader, when set, sends APIKey as a header instead of leaving it to the caller's query.
	APIKeyHeader string
	APIKey       string
	Timeout      time.Duration
	// RPS caps outbound requests per second. Zero disables the limiter.
	RPS float64
}

// Client performs rate-limited, breaker-protected JSON GETs against one explorer.
type Client struct {
	name    string
	http    *resty.Client
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *logger.Logger
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	log = log.Named("explorer").With("explorer", cfg.Name)

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKeyHeader != "" && cfg.APIKey != "" {
		httpClient.SetHeader(cfg.APIKeyHeader, cfg.APIKey)
	}

	c := &Client{
		name:   cfg.Name,
		http:   httpClient,
		logger: log,
	}
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// a rate limited or cancelled call says nothing about explorer health
			return err == nil || errors.Is(err, ErrRateLimited) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnw("Circuit breaker changed state", "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Name returns the configured explorer name.
func (c *Client) Name() string {
	return c.name
}

// GetJSON fetches path with query and decodes the JSON body into out.
// Failures are wrapped in ErrRateLimited, ErrUnavailable or ErrMalformedResponse.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	start := time.Now()
	body, err := c.cb.Execute(func() (interface{}, error) {
		return c.get(ctx, path, query)
	})
	metrics.ExplorerRequestDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ExplorerRequestsTotal.WithLabelValues(c.name, outcome(err)).Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}

	if err := json.Unmarshal(body.([]byte), out); err != nil {
		metrics.ExplorerRequestsTotal.WithLabelValues(c.name, "malformed").Inc()
		c.logger.Warnw("Failed to decode explorer response", "path", path, "error", err)
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	metrics.ExplorerRequestsTotal.WithLabelValues(c.name, "ok").Inc()
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query).
		Get(path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		}
		c.logger.Warnw("Explorer request failed", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode())
	case resp.StatusCode() != http.StatusOK:
		c.logger.Warnw("Unexpected explorer status", "path", path, "status", resp.StatusCode())
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrUnavailable, resp.StatusCode())
	}
	return resp.Body(), nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	default:
		return "unavailable"
	}
}

// SplitURL separates an explorer endpoint such as https://api.etherscan.io/api
// into the host part used as base URL and the request path.
func SplitURL(raw string) (base, path string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("invalid explorer url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("invalid explorer url %q: scheme and host are required", raw)
	}
	path = strings.TrimRight(u.Path, "/")
	u.Path, u.RawQuery, u.Fragment = "", "", ""
	return u.String(), path, nil
}
