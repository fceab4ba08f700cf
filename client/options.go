package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/zoobzio/clockz"
)

const (
	// DefaultRefreshInterval is the time between refreshes when no option
	// overrides it.
	DefaultRefreshInterval = 30 * time.Second
	// MinRefreshInterval is the lowest accepted refresh interval.
	MinRefreshInterval = time.Second
	// DefaultMaxBackoff caps the delay between attempts after repeated
	// transport failures.
	DefaultMaxBackoff = 5 * time.Minute
)

// ErrorHandler receives every error reported by the refresh loop. It runs on
// the refresh goroutine and must not call Refresh.
type ErrorHandler func(err error)

type options struct {
	refreshInterval time.Duration
	maxBackoff      time.Duration
	onError         ErrorHandler
	logger          logrus.FieldLogger
	clock           clockz.Clock
	registerer      prometheus.Registerer
}

// Option configures a Client.
type Option func(*options)

// WithRefreshInterval sets the time between periodic refreshes.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *options) {
		o.refreshInterval = d
	}
}

// WithMaxBackoff caps the delay between attempts after transport failures.
func WithMaxBackoff(d time.Duration) Option {
	return func(o *options) {
		o.maxBackoff = d
	}
}

// WithErrorHandler sets the hook that receives transport and payload errors.
// Without it errors are logged.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) {
		o.onError = h
	}
}

// WithLogger sets the logger used by the client.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock sets the clock used to schedule refreshes. Use
// clockz.NewFakeClock for deterministic tests.
func WithClock(c clockz.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithRegisterer registers the client metrics with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		refreshInterval: DefaultRefreshInterval,
		maxBackoff:      DefaultMaxBackoff,
		logger:          logrus.StandardLogger(),
		clock:           clockz.RealClock,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.refreshInterval < MinRefreshInterval {
		o.logger.Warnf("refresh interval too low, setting it to %s", MinRefreshInterval)
		o.refreshInterval = MinRefreshInterval
	}
	if o.maxBackoff < o.refreshInterval {
		o.maxBackoff = o.refreshInterval
	}
	return o
}
