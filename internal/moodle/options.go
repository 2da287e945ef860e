package moodle

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/moodle-elt/internal/limiter"
)

// Defaults for Options zero values.
const (
	DefaultRateLimitDelay  = time.Second
	DefaultMaxRetries      = 3
	DefaultTimeout         = 30 * time.Second
	DefaultBackoffBase     = time.Second
	DefaultMaxRetryWait    = time.Minute
	DefaultBreakerFailures = 5
	DefaultBreakerCooldown = 30 * time.Second
)

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	// RateLimitDelay is slept after every call that got an HTTP 200 body.
	RateLimitDelay time.Duration
	// MaxRetries bounds retries of transient failures; negative disables retrying.
	MaxRetries int
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration
	// MaxRetryWait caps a single retry wait, Retry-After included.
	MaxRetryWait time.Duration
	// RequestsPerSecond caps the call rate proactively; zero disables the cap.
	RequestsPerSecond float64
	// BreakerFailures consecutive transport failures open the circuit.
	BreakerFailures uint32
	// BreakerCooldown is how long an open circuit rejects calls.
	BreakerCooldown time.Duration

	// HTTPClient supplies the transport (tests, custom TLS). Its Timeout is
	// replaced by Timeout.
	HTTPClient *http.Client
	Logger     *zap.Logger
	// Sleep replaces the blocking waits (backoff and rate-limit delay).
	Sleep limiter.SleepFunc
}

func (o Options) withDefaults() Options {
	if o.RateLimitDelay == 0 {
		o.RateLimitDelay = DefaultRateLimitDelay
	}
	if o.RateLimitDelay < 0 {
		o.RateLimitDelay = 0
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.MaxRetryWait <= 0 {
		o.MaxRetryWait = DefaultMaxRetryWait
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = DefaultBreakerFailures
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = DefaultBreakerCooldown
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Sleep == nil {
		o.Sleep = limiter.Sleep
	}
	return o
}
