// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package agent

import "log/slog"

type (
	// Option represents a single agent option.
	Option interface{ agent(*Options) }

	// Options are the resolved agent options.
	Options struct {
		BufferCapacity   int
		TimelineCapacity int
		Uploader         Uploader
		Metrics          *Metrics
		KeyframeImages   bool
		Logger           *slog.Logger
	}

	// WithBufferCapacity sets the motion sample and app state history
	// capacity.
	WithBufferCapacity int

	// WithTimelineCapacity sets how many ticks the session timeline keeps.
	WithTimelineCapacity int

	// WithUploader enables media uploads.
	WithUploader struct{ Uploader }

	// WithMetrics records agent activity.
	WithMetrics struct{ *Metrics }

	// WithKeyframeImages attaches the encoded image to keyframe messages.
	WithKeyframeImages bool

	withLogger struct{ *slog.Logger }
)

// DefaultTimelineCapacity keeps an hour of one-second ticks.
const DefaultTimelineCapacity = 3600

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

// Apply resolves the provided list of options.
func (o *Options) Apply(opts []Option, rest ...Option) {
	for _, opt := range opts {
		if opt != nil {
			opt.agent(o)
		}
	}
	for _, opt := range rest {
		if opt != nil {
			opt.agent(o)
		}
	}
}

func (o WithBufferCapacity) agent(opt *Options) {
	opt.BufferCapacity = int(o)
}

func (o WithTimelineCapacity) agent(opt *Options) {
	opt.TimelineCapacity = int(o)
}

func (o WithUploader) agent(opt *Options) {
	opt.Uploader = o.Uploader
}

func (o WithMetrics) agent(opt *Options) {
	opt.Metrics = o.Metrics
}

func (o WithKeyframeImages) agent(opt *Options) {
	opt.KeyframeImages = bool(o)
}

func (o withLogger) agent(opt *Options) {
	opt.Logger = o.Logger
}
