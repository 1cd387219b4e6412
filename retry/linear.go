// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/visisec/edge-sdk/internal/log"
	"github.com/visisec/edge-sdk/internal/wallclock"
)

// Linear implements a capped retry policy whose delay grows linearly with the
// attempt number. The delay is applied before every attempt, including the
// first, so that attempt n starts Interval*n after the previous one failed.
type Linear struct {
	// MaxAttempts sets the maximum number of attempts. Will be set to a
	// default of 5 if unspecified.
	MaxAttempts uint64

	// Interval is the base delay multiplied by the attempt number. Will be set
	// to a default of 2s if unspecified.
	Interval time.Duration

	// Logger provides a logger which will be used to log retry attempts and
	// results.
	Logger *slog.Logger
}

// Default values for the linear policy.
const (
	DefaultLinearMaxAttempts = 5
	DefaultLinearInterval    = 2 * time.Second
)

// Start initiates the retry executions. It returns the last task error once
// the attempts are exhausted, or the context error if cancelled while waiting.
func (p *Linear) Start(ctx context.Context, name string, task Task) error {
	l := logger{log.Wrap(p.Logger)}

	maxAttempts := p.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultLinearMaxAttempts
	}

	var err error
	for attempt := uint64(1); attempt <= maxAttempts; attempt++ {
		delay := p.Delay(attempt)
		l.attempt(ctx, name, attempt, delay)

		select {
		case <-wallclock.Instance.After(delay):
		case <-ctx.Done():
			l.complete(ctx, name, attempt, ctx.Err())
			return ctx.Err()
		}

		var retry bool
		retry, err = task(ctx, attempt)
		if err == nil {
			l.complete(ctx, name, attempt, nil)
			return nil
		}
		if !retry || ctx.Err() != nil {
			break
		}
	}

	l.Log(ctx, slog.LevelWarn, "retry attempts exhausted",
		slog.String("task", name),
		slog.Uint64("max_attempts", maxAttempts),
	)
	return err
}

// Delay returns the wait applied before the given attempt.
func (p *Linear) Delay(attempt uint64) time.Duration {
	interval := p.Interval
	if interval == 0 {
		interval = DefaultLinearInterval
	}
	return interval * time.Duration(attempt)
}
