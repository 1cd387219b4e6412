// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package upload

import (
	"log/slog"
	"net/http"

	"github.com/visisec/edge-sdk/retry"
)

type (
	// Option represents a single upload client option.
	Option interface{ client(*Options) }

	// Options are the resolved upload client options.
	Options struct {
		HTTPClient  *http.Client
		RetryPolicy retry.Policy
		Logger      *slog.Logger
	}

	// WithHTTPClient replaces the HTTP client used for requests.
	WithHTTPClient struct{ *http.Client }

	// WithRetryPolicy replaces the retry policy for failed uploads.
	WithRetryPolicy struct{ retry.Policy }

	withLogger struct{ *slog.Logger }
)

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

// Apply resolves the provided list of options.
func (o *Options) Apply(opts []Option, rest ...Option) {
	for _, opt := range opts {
		if opt != nil {
			opt.client(o)
		}
	}
	for _, opt := range rest {
		if opt != nil {
			opt.client(o)
		}
	}
}

func (o WithHTTPClient) client(opt *Options) {
	opt.HTTPClient = o.Client
}

func (o WithRetryPolicy) client(opt *Options) {
	opt.RetryPolicy = o.Policy
}

func (o withLogger) client(opt *Options) {
	opt.Logger = o.Logger
}
