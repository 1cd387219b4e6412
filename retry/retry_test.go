// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/visisec/edge-sdk/internal/wallclock"
	"github.com/visisec/edge-sdk/retry"
)

type (
	Mock struct {
		mock.Mock
	}

	// Records requested waits and elapses them immediately.
	fakeClock struct {
		wallclock.WallClock
		mu    sync.Mutex
		waits []time.Duration
	}
)

func useFakeClock(t *testing.T) *fakeClock {
	c := &fakeClock{WallClock: wallclock.Instance}
	wallclock.Instance = c
	t.Cleanup(func() { wallclock.Instance = c.WallClock })
	return c
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)

	ch := make(chan time.Time, 1)
	ch <- c.Now().Add(d)
	return ch
}

func (c *fakeClock) waited() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

var errRetryable = errors.New("this error is retryable")

// Mocked retry executed function.
func (m *Mock) Task(_ context.Context, attempt uint64) (bool, error) {
	args := m.Called(attempt)
	return args.Bool(0), args.Error(1)
}

func TestNoRetry(t *testing.T) {
	m := new(Mock)
	m.On("Task", uint64(1)).Return(false, nil)

	r := retry.ExponentialBackoff{}
	err := r.Start(context.Background(), "TestNoRetry", m.Task)

	require.NoError(t, err)
	m.AssertNumberOfCalls(t, "Task", 1)
}

func TestMaxAttempts(t *testing.T) {
	m := new(Mock)
	m.On("Task", mock.Anything).Return(true, errRetryable)

	r := retry.ExponentialBackoff{MaxAttempts: 3, MinInterval: time.Millisecond}
	err := r.Start(context.Background(), "TestMaxAttempts", m.Task)

	require.EqualError(t, err, errRetryable.Error())
	m.AssertNumberOfCalls(t, "Task", 3)
}

func TestRetryUntilSuccess(t *testing.T) {
	m := new(Mock)
	m.On("Task", uint64(1)).Return(true, errRetryable)
	m.On("Task", uint64(2)).Return(true, errRetryable)
	m.On("Task", uint64(3)).Return(false, nil)

	r := retry.ExponentialBackoff{MinInterval: time.Millisecond}
	err := r.Start(context.Background(), "TestRetryUntilSuccess", m.Task)

	require.NoError(t, err)
	m.AssertNumberOfCalls(t, "Task", 3)
}

func TestExponentialBackoffWaits(t *testing.T) {
	clock := useFakeClock(t)
	m := new(Mock)
	m.On("Task", mock.Anything).Return(true, errRetryable)

	r := retry.ExponentialBackoff{
		MaxAttempts: 5,
		MinInterval: time.Second,
		MaxInterval: 4 * time.Second,
		NoJitter:    true,
	}
	err := r.Start(context.Background(), "TestExponentialBackoffWaits", m.Task)

	require.ErrorIs(t, err, errRetryable)
	require.Equal(t, []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		4 * time.Second,
	}, clock.waited())
}

func TestLinearWaits(t *testing.T) {
	clock := useFakeClock(t)
	m := new(Mock)
	m.On("Task", uint64(1)).Return(true, errRetryable)
	m.On("Task", uint64(2)).Return(true, errRetryable)
	m.On("Task", uint64(3)).Return(false, nil)

	r := retry.Linear{Interval: time.Hour}
	err := r.Start(context.Background(), "TestLinearWaits", m.Task)

	require.NoError(t, err)
	require.Equal(t, []time.Duration{
		time.Hour,
		2 * time.Hour,
		3 * time.Hour,
	}, clock.waited())
}

func TestLinearDelay(t *testing.T) {
	r := retry.Linear{}
	require.Equal(t, 2*time.Second, r.Delay(1))
	require.Equal(t, 10*time.Second, r.Delay(5))

	r = retry.Linear{Interval: 100 * time.Millisecond}
	require.Equal(t, 300*time.Millisecond, r.Delay(3))
}

func TestLinearExhausted(t *testing.T) {
	m := new(Mock)
	m.On("Task", mock.Anything).Return(true, errRetryable)

	r := retry.Linear{MaxAttempts: 4, Interval: time.Millisecond}
	err := r.Start(context.Background(), "TestLinearExhausted", m.Task)

	require.ErrorIs(t, err, errRetryable)
	m.AssertNumberOfCalls(t, "Task", 4)
	for attempt := uint64(1); attempt <= 4; attempt++ {
		m.AssertCalled(t, "Task", attempt)
	}
}

func TestLinearNonRetryable(t *testing.T) {
	m := new(Mock)
	m.On("Task", uint64(1)).Return(false, errRetryable)

	r := retry.Linear{Interval: time.Millisecond}
	err := r.Start(context.Background(), "TestLinearNonRetryable", m.Task)

	require.ErrorIs(t, err, errRetryable)
	m.AssertNumberOfCalls(t, "Task", 1)
}

func TestLinearCancelledWhileWaiting(t *testing.T) {
	m := new(Mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := retry.Linear{Interval: time.Hour}
	err := r.Start(ctx, "TestLinearCancelledWhileWaiting", m.Task)

	require.ErrorIs(t, err, context.Canceled)
	m.AssertNotCalled(t, "Task", mock.Anything)
}
