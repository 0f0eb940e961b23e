// Package httpfetch is the shared outbound HTTP layer for every upstream feed:
// a per-feed User-Agent and timeout, a consecutive-failure circuit breaker,
// and fixed-delay retry.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

var (
	// ErrStatus is returned for any non-200 response.
	ErrStatus = errors.New("unexpected status code")
	// ErrBreakerOpen is returned without a request when the feed's breaker is open.
	ErrBreakerOpen = errors.New("circuit breaker open")
)

// Config holds per-feed client settings.
type Config struct {
	Name      string
	Timeout   time.Duration
	UserAgent string
	// BreakerFailures is the number of consecutive failures that opens the
	// breaker. Zero disables the breaker.
	BreakerFailures uint32
	// BreakerCooldown is how long the breaker stays open before a probe.
	BreakerCooldown time.Duration
}

// Client performs GET requests and returns the body as text.
type Client struct {
	name       string
	httpClient *http.Client
	userAgent  string
	breaker    *gobreaker.CircuitBreaker
}

// New creates a Client for one upstream feed.
func New(cfg Config) *Client {
	c := &Client{
		name:       cfg.Name,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		userAgent:  cfg.UserAgent,
	}
	if cfg.BreakerFailures > 0 {
		cooldown := cfg.BreakerCooldown
		if cooldown <= 0 {
			cooldown = time.Minute
		}
		threshold := cfg.BreakerFailures
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		})
	}
	return c
}

// Name returns the feed name the client was built for.
func (c *Client) Name() string { return c.name }

// Get fetches url once. Undecodable bytes are dropped from the returned text.
func (c *Client) Get(ctx context.Context, url string) (string, error) {
	if c.breaker == nil {
		return c.do(ctx, url)
	}
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, url)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%s: %w", c.name, ErrBreakerOpen)
		}
		return "", err
	}
	body, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("%s: unexpected result type %T", c.name, result)
	}
	return body, nil
}

// GetWithRetry fetches url up to attempts times, sleeping a fixed delay
// between failures. An open breaker stops the retries immediately.
func (c *Client) GetWithRetry(ctx context.Context, url string, attempts int, delay time.Duration) (string, error) {
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)

	var body string
	err := backoff.Retry(func() error {
		text, err := c.Get(ctx, url)
		if err != nil {
			if errors.Is(err, ErrBreakerOpen) {
				return backoff.Permanent(err)
			}
			return err
		}
		body = text
		return nil
	}, policy)
	if err != nil {
		return "", err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s request: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%s: %w: %d", c.name, ErrStatus, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s read body: %w", c.name, err)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}
