// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package transport

import (
	"log/slog"
	"time"

	"github.com/visisec/edge-sdk/retry"
)

type (
	// Option represents a single transport option.
	Option interface{ transport(*Options) }

	// Options are the resolved transport options.
	Options struct {
		Encoding Encoding

		// ReconnectPolicy overrides the linear reconnection policy built from
		// MaxReconnectAttempts and ReconnectDelay.
		ReconnectPolicy      retry.Policy
		MaxReconnectAttempts uint64
		ReconnectDelay       time.Duration

		ConnectTimeout time.Duration

		// Concurrency is the number of inbound handlers that may run at once
		// per connection. Zero means unlimited; the default of 1 preserves
		// arrival order.
		Concurrency uint

		Logger *slog.Logger
	}

	// WithEncoding sets the payload encoding.
	WithEncoding struct{ Encoding }

	// WithReconnectPolicy replaces the reconnection policy.
	WithReconnectPolicy struct{ retry.Policy }

	// WithMaxReconnectAttempts caps automatic reconnection attempts.
	WithMaxReconnectAttempts uint64

	// WithReconnectDelay sets the base reconnection delay; attempt n waits
	// n times this value.
	WithReconnectDelay time.Duration

	// WithConnectTimeout bounds each dial.
	WithConnectTimeout time.Duration

	// WithConcurrency sets the inbound handler concurrency.
	WithConcurrency uint

	withLogger struct{ *slog.Logger }
)

// Transport defaults.
const (
	DefaultMaxReconnectAttempts = retry.DefaultLinearMaxAttempts
	DefaultReconnectDelay       = retry.DefaultLinearInterval
	DefaultConnectTimeout       = 10 * time.Second
)

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

// Apply resolves the provided list of options.
func (o *Options) Apply(opts []Option, rest ...Option) {
	for _, opt := range opts {
		if opt != nil {
			opt.transport(o)
		}
	}
	for _, opt := range rest {
		if opt != nil {
			opt.transport(o)
		}
	}
}

func (o *Options) transport(opt *Options) {
	if o != nil {
		*opt = *o
	}
}

func (o WithEncoding) transport(opt *Options) {
	opt.Encoding = o.Encoding
}

func (o WithReconnectPolicy) transport(opt *Options) {
	opt.ReconnectPolicy = o.Policy
}

func (o WithMaxReconnectAttempts) transport(opt *Options) {
	opt.MaxReconnectAttempts = uint64(o)
}

func (o WithReconnectDelay) transport(opt *Options) {
	opt.ReconnectDelay = time.Duration(o)
}

func (o WithConnectTimeout) transport(opt *Options) {
	opt.ConnectTimeout = time.Duration(o)
}

func (o WithConcurrency) transport(opt *Options) {
	opt.Concurrency = uint(o)
}

func (o withLogger) transport(opt *Options) {
	opt.Logger = o.Logger
}
