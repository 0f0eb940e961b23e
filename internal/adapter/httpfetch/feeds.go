package httpfetch

import (
	"time"

	"github.com/couchcryptid/sb-lapse-etl/internal/config"
)

// FeedClients holds one client per upstream the job talks to.
type FeedClients struct {
	Rass  *Client
	Madis *Client
	Cwop  *Client
	State *Client
}

// NewFeedClients builds the per-feed clients from cfg.
//
// The profile client has no breaker: its listing retries and candidate
// chain already bound the work, and an open breaker would skip older
// candidates that may still be valid. Station feed breakers never trip
// before every roster station has had its request.
func NewFeedClients(cfg *config.Config) FeedClients {
	client := func(name string, timeout time.Duration, failures uint32) *Client {
		return New(Config{Name: name, Timeout: timeout, UserAgent: cfg.UserAgent, BreakerFailures: failures})
	}
	return FeedClients{
		Rass:  client("rass", cfg.RassTimeout, 0),
		Madis: client("madis", cfg.MadisTimeout, cfg.FeedBreakerFailures()),
		Cwop:  client("cwop", cfg.CwopTimeout, cfg.FeedBreakerFailures()),
		State: client("state", cfg.StateTimeout, cfg.BreakerFailures),
	}
}
