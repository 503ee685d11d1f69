package session

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-tab-session/internal/config"
)

const (
	defaultIdentityStaleTime = 5 * time.Minute
	defaultRenewTimeout      = 30 * time.Second
)

// Option configures a Coordinator
type Option func(*Coordinator)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.log = l
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithVisibility attaches a page-visibility source that Start subscribes to.
func WithVisibility(v VisibilitySource) Option {
	return func(c *Coordinator) {
		c.visibility = v
	}
}

// WithIdentityStaleTime sets how long a fetched identity is served from cache.
func WithIdentityStaleTime(d time.Duration) Option {
	return func(c *Coordinator) {
		c.identityStaleTime = d
	}
}

// WithRenewTimeout bounds one shared renewal request, which callers cannot cancel.
func WithRenewTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.renewTimeout = d
	}
}

// WithRenewOnlyWhenSignedOut makes sign-in and credential-renewed events from
// other tabs trigger a renewal only when this tab holds no credential. The
// default renews on every such event.
func WithRenewOnlyWhenSignedOut(enabled bool) Option {
	return func(c *Coordinator) {
		c.renewOnlyWhenSignedOut = enabled
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Coordinator) {
		c.nowFunc = nowFunc
	}
}

// FromConfig maps the session settings onto coordinator options.
func FromConfig(cfg config.SessionConfig) []Option {
	return []Option{
		WithIdentityStaleTime(cfg.GetIdentityStaleTime()),
		WithRenewTimeout(cfg.GetRequestTimeout()),
		WithRenewOnlyWhenSignedOut(cfg.GetRenewOnlyWhenSignedOut()),
	}
}
