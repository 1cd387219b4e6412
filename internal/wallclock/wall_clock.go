// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wallclock

import (
	"context"
	"time"
)

type (
	// WallClock abstracts a subset of functionality from packages context and
	// time.
	WallClock interface {
		WithTimeoutCause(
			parent context.Context,
			timeout time.Duration,
			cause error,
		) (context.Context, context.CancelFunc)
		After(d time.Duration) <-chan time.Time
		Now() time.Time
	}

	wallClock struct{}
)

// WithTimeoutCause indirects context.WithTimeoutCause.
func (wallClock) WithTimeoutCause(
	parent context.Context,
	timeout time.Duration,
	cause error,
) (context.Context, context.CancelFunc) {
	return context.WithTimeoutCause(parent, timeout, cause)
}

// After indirects time.After.
func (wallClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Now indirects time.Now.
func (wallClock) Now() time.Time {
	return time.Now()
}

// UnixMilli returns the current wall time as epoch milliseconds, the timestamp
// unit used on the wire.
func UnixMilli() int64 {
	return Instance.Now().UnixMilli()
}

// Instance is a WallClock singleton used for indirect time-based references to
// packages context and time. Test code can set the instance to interpose on
// functions and control apparent time.
var Instance WallClock = wallClock{}
