// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package session

import (
	"log/slog"
	"time"
)

type (
	// Option represents a single session controller option.
	Option interface{ controller(*Options) }

	// Options are the resolved session controller options.
	Options struct {
		AckTimeout time.Duration
		Logger     *slog.Logger
	}

	// WithAckTimeout sets how long session start and end wait for the
	// server's acknowledgement.
	WithAckTimeout time.Duration

	withLogger struct{ *slog.Logger }
)

// DefaultAckTimeout bounds the start and end handshakes.
const DefaultAckTimeout = 5 * time.Second

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

// Apply resolves the provided list of options.
func (o *Options) Apply(opts []Option, rest ...Option) {
	for _, opt := range opts {
		if opt != nil {
			opt.controller(o)
		}
	}
	for _, opt := range rest {
		if opt != nil {
			opt.controller(o)
		}
	}
}

func (o *Options) controller(opt *Options) {
	if o != nil {
		*opt = *o
	}
}

func (o WithAckTimeout) controller(opt *Options) {
	opt.AckTimeout = time.Duration(o)
}

func (o withLogger) controller(opt *Options) {
	opt.Logger = o.Logger
}
