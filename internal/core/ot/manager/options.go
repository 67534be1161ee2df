package manager

import (
	"time"

	"github.com/zeusync/otsync/internal/core/events/bus"
	"github.com/zeusync/otsync/internal/core/observability/log"
)

const (
	DefaultSyncInterval = 2 * time.Second
	DefaultRetryDelay   = time.Second
)

type options struct {
	logger       log.Log
	events       bus.EventBus
	syncInterval time.Duration
	retryDelay   time.Duration
}

// Option configures a Manager.
type Option func(*options)

// WithLogger sets the logger; the default is the process logger.
func WithLogger(logger log.Log) Option {
	return func(o *options) { o.logger = logger }
}

// WithEventBus publishes state changes on a shared bus instead of a private one.
func WithEventBus(events bus.EventBus) Option {
	return func(o *options) { o.events = events }
}

// WithSyncInterval sets how often Run syncs when nothing else wakes it.
func WithSyncInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.syncInterval = d
		}
	}
}

// WithRetryDelay sets the fixed delay between attempts after a transient failure.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryDelay = d
		}
	}
}

func defaultOptions() options {
	return options{
		syncInterval: DefaultSyncInterval,
		retryDelay:   DefaultRetryDelay,
	}
}
