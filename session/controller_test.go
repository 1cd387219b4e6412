// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package session_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/visisec/edge-sdk/edge"
	"github.com/visisec/edge-sdk/errors"
	"github.com/visisec/edge-sdk/internal/wallclock"
	"github.com/visisec/edge-sdk/sensor"
	"github.com/visisec/edge-sdk/session"
	"github.com/visisec/edge-sdk/transport"
)

type (
	frame struct {
		event   string
		payload map[string]any
	}

	// Server end of the in-memory connections; replies go to the latest.
	server struct {
		mu     sync.Mutex
		conn   transport.Conn
		frames chan frame
	}

	started struct {
		session session.Session
		err     error
	}

	// Ack waits of the given timeout only expire when told to; every other
	// timeout uses the real clock.
	ackClock struct {
		wallclock.WallClock
		timeout time.Duration
		armed   chan func()
	}
)

// Install an ack clock for the duration of the test.
func useAckClock(t *testing.T, timeout time.Duration) *ackClock {
	c := &ackClock{
		WallClock: wallclock.Instance,
		timeout:   timeout,
		armed:     make(chan func(), 4),
	}
	wallclock.Instance = c
	t.Cleanup(func() { wallclock.Instance = c.WallClock })
	return c
}

func (c *ackClock) WithTimeoutCause(
	parent context.Context,
	timeout time.Duration,
	cause error,
) (context.Context, context.CancelFunc) {
	if timeout != c.timeout {
		return c.WallClock.WithTimeoutCause(parent, timeout, cause)
	}
	ctx, cancel := context.WithCancelCause(parent)
	c.armed <- func() { cancel(cause) }
	return ctx, func() { cancel(context.Canceled) }
}

// Expire the next ack wait, once it has started.
func (c *ackClock) expire(t *testing.T) {
	t.Helper()
	select {
	case fire := <-c.armed:
		fire()
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no acknowledgement wait started")
	}
}

func setup(
	t *testing.T,
	opt ...session.Option,
) (*session.Controller, *transport.Transport, *server) {
	client, conn := transport.Pipe()
	tr, err := transport.New(func(context.Context) (transport.Conn, error) {
		return client, nil
	})
	require.NoError(t, err)

	c, err := session.NewController(tr, opt...)
	require.NoError(t, err)

	s := &server{frames: make(chan frame, 16)}
	s.accept(conn)

	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, tr, s
}

// Like setup, but every dial opens a new connection to the same server.
func setupRedial(
	t *testing.T,
	opt ...session.Option,
) (*session.Controller, *server) {
	s := &server{frames: make(chan frame, 16)}
	tr, err := transport.New(func(context.Context) (transport.Conn, error) {
		client, conn := transport.Pipe()
		s.accept(conn)
		return client, nil
	})
	require.NoError(t, err)

	c, err := session.NewController(tr, opt...)
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, s
}

func (s *server) accept(conn transport.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	go func() {
		for {
			event, payload, err := conn.ReadMessage(context.Background())
			if err != nil {
				return
			}
			var v map[string]any
			_ = json.Unmarshal(payload, &v)
			s.frames <- frame{event, v}
		}
	}()
}

func (s *server) next(t *testing.T) frame {
	t.Helper()
	select {
	case f := <-s.frames:
		return f
	case <-time.After(2 * time.Second):
		require.FailNow(t, "server received nothing")
		return frame{}
	}
}

func (s *server) none(t *testing.T) {
	t.Helper()
	select {
	case f := <-s.frames:
		require.FailNow(t, "unexpected message", f.event)
	case <-time.After(50 * time.Millisecond):
	}
}

func (s *server) reply(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	require.NoError(t, conn.WriteMessage(context.Background(), event, data))
}

func startAsync(c *session.Controller, title string) <-chan started {
	res := make(chan started, 1)
	go func() {
		s, err := c.StartSession(context.Background(), title)
		res <- started{s, err}
	}()
	return res
}

func wait[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		require.FailNow(t, "operation did not complete")
		var zero T
		return zero
	}
}

// Start a session acknowledged with the given identifiers.
func begin(t *testing.T, c *session.Controller, s *server, id, rec string) {
	t.Helper()
	res := startAsync(c, "weekly sync")
	req := s.next(t)
	require.Equal(t, "session_start", req.event)
	s.reply(t, "session_started", map[string]any{
		"sessionId":   id,
		"recordingId": rec,
		"requestId":   req.payload["requestId"],
	})
	require.NoError(t, wait(t, res).err)
}

func TestStartSession(t *testing.T) {
	c, tr, s := setup(t)

	res := startAsync(c, "weekly sync")

	req := s.next(t)
	require.Equal(t, "session_start", req.event)
	require.Equal(t, "weekly sync", req.payload["meetingTitle"])
	require.NotZero(t, req.payload["timestamp"])
	require.NotEmpty(t, req.payload["requestId"])
	require.Equal(t, session.Starting, c.Status().State)

	s.reply(t, "session_started", map[string]any{
		"sessionId":   "s-1",
		"recordingId": "r-1",
	})

	got := wait(t, res)
	require.NoError(t, got.err)
	require.Equal(t, session.Session{SessionID: "s-1", RecordingID: "r-1"}, got.session)

	status := c.Status()
	require.Equal(t, session.Active, status.State)
	require.True(t, status.HasActiveSession)
	require.Equal(t, "s-1", status.SessionID)
	require.Equal(t, transport.Connected, status.Transport.Kind)
	require.Equal(t, transport.Connected, tr.State().Kind)
}

func TestStartSessionTwice(t *testing.T) {
	c, _, s := setup(t)
	begin(t, c, s, "s-1", "r-1")

	_, err := c.StartSession(context.Background(), "again")
	require.True(t, errors.IsKind(err, errors.StateInvalid))
	require.Equal(t, "s-1", c.Status().SessionID)
}

func TestStartSessionTimeoutIgnoresLateAck(t *testing.T) {
	clock := useAckClock(t, time.Hour)
	c, _, s := setup(t, session.WithAckTimeout(time.Hour))

	res := startAsync(c, "weekly sync")
	req := s.next(t)
	clock.expire(t)

	got := wait(t, res)
	require.True(t, errors.IsKind(got.err, errors.SessionTimeoutError))
	require.Equal(t, session.NoSession, c.Status().State)

	// The abandoned start must not be resolved by a stale acknowledgement.
	s.reply(t, "session_started", map[string]any{
		"sessionId": "late",
		"requestId": req.payload["requestId"],
	})
	time.Sleep(50 * time.Millisecond)
	status := c.Status()
	require.Equal(t, session.NoSession, status.State)
	require.Empty(t, status.SessionID)

	// A fresh attempt still works.
	begin(t, c, s, "s-2", "r-2")
	require.Equal(t, "s-2", c.Status().SessionID)
}

func TestStartSessionIgnoresUncorrelatedAck(t *testing.T) {
	c, _, s := setup(t, session.WithAckTimeout(100*time.Millisecond))

	res := startAsync(c, "weekly sync")
	s.next(t)
	s.reply(t, "session_started", map[string]any{
		"sessionId": "someone-else",
		"requestId": "not-ours",
	})

	got := wait(t, res)
	require.True(t, errors.IsKind(got.err, errors.SessionTimeoutError))
	require.Equal(t, session.NoSession, c.Status().State)
}

func TestStartSessionMalformedAck(t *testing.T) {
	c, _, s := setup(t)

	res := startAsync(c, "weekly sync")
	s.next(t)
	s.reply(t, "session_started", map[string]any{"recordingId": "r-1"})

	got := wait(t, res)
	require.True(t, errors.IsKind(got.err, errors.PayloadInvalid))
	require.Equal(t, session.NoSession, c.Status().State)
}

func TestStartSessionConnectFailure(t *testing.T) {
	tr, err := transport.New(func(context.Context) (transport.Conn, error) {
		return nil, fmt.Errorf("connection refused")
	})
	require.NoError(t, err)
	c, err := session.NewController(tr)
	require.NoError(t, err)

	_, err = c.StartSession(context.Background(), "weekly sync")
	require.True(t, errors.IsKind(err, errors.TransportError))
	require.Equal(t, session.NoSession, c.Status().State)
}

func TestSendWithoutSession(t *testing.T) {
	c, tr, s := setup(t)
	require.NoError(t, tr.Connect(context.Background()))

	err := c.SendSensorData(context.Background(), session.SensorData{Timestamp: 1})
	require.True(t, errors.IsKind(err, errors.NoActiveSessionWarning))

	err = c.SendKeyframe(context.Background(), session.Keyframe{Timestamp: 1})
	require.True(t, errors.IsKind(err, errors.NoActiveSessionWarning))

	s.none(t)
}

func TestSendTagsSession(t *testing.T) {
	c, _, s := setup(t)
	begin(t, c, s, "s-1", "r-1")
	ctx := context.Background()

	require.NoError(t, c.SendSensorData(ctx, session.SensorData{
		SessionID: "spoofed",
		Timestamp: 5,
		Motion: &sensor.MotionSummary{
			Stable:   true,
			Movement: sensor.Minimal,
		},
		Attention: &edge.AttentionResult{Score: 1, Level: edge.High},
	}))
	f := s.next(t)
	require.Equal(t, "sensor_data", f.event)
	require.Equal(t, "s-1", f.payload["sessionId"])
	require.NotContains(t, f.payload, "recordingId")
	require.Equal(t, "high", f.payload["attention"].(map[string]any)["level"])

	require.NoError(t, c.SendKeyframe(ctx, session.Keyframe{
		Timestamp:   6,
		Source:      edge.Rear,
		ChangeRatio: 0.4,
		Text:        "Q3 roadmap",
	}))
	f = s.next(t)
	require.Equal(t, "keyframe", f.event)
	require.Equal(t, "s-1", f.payload["sessionId"])
	require.Equal(t, "r-1", f.payload["recordingId"])
	require.Equal(t, "Q3 roadmap", f.payload["text"])
}

func TestEndSession(t *testing.T) {
	c, _, s := setup(t)
	require.NoError(t, c.EndSession(context.Background()))
	s.none(t)

	begin(t, c, s, "s-1", "r-1")

	res := make(chan error, 1)
	go func() { res <- c.EndSession(context.Background()) }()

	f := s.next(t)
	require.Equal(t, "session_end", f.event)
	require.Equal(t, "s-1", f.payload["sessionId"])
	require.Equal(t, "r-1", f.payload["recordingId"])
	require.NotZero(t, f.payload["timestamp"])

	// Only the arrival of the acknowledgement matters.
	s.reply(t, "session_ended", "not an object")
	require.NoError(t, wait(t, res))

	status := c.Status()
	require.Equal(t, session.NoSession, status.State)
	require.Empty(t, status.SessionID)
	require.Empty(t, status.RecordingID)

	err := c.SendSensorData(context.Background(), session.SensorData{})
	require.True(t, errors.IsKind(err, errors.NoActiveSessionWarning))
}

func TestEndSessionTimeoutKeepsSession(t *testing.T) {
	clock := useAckClock(t, time.Hour)
	c, _, s := setup(t, session.WithAckTimeout(time.Hour))
	begin(t, c, s, "s-1", "r-1")
	<-clock.armed // the start wait, already satisfied

	res := make(chan error, 1)
	go func() { res <- c.EndSession(context.Background()) }()
	require.Equal(t, "session_end", s.next(t).event)
	clock.expire(t)

	err := wait(t, res)
	require.True(t, errors.IsKind(err, errors.SessionTimeoutError))

	status := c.Status()
	require.Equal(t, session.Active, status.State)
	require.Equal(t, "s-1", status.SessionID)
}

func TestResultHandlers(t *testing.T) {
	c, _, s := setup(t)
	begin(t, c, s, "s-1", "r-1")

	results := make(chan *transport.Message, 1)
	c.OnAnalysisResult(func(_ context.Context, m *transport.Message) {
		results <- m
	})
	summaries := make(chan *transport.Message, 1)
	c.OnSummaryUpdate(func(_ context.Context, m *transport.Message) {
		summaries <- m
	})

	s.reply(t, "analysis_result", map[string]any{"engagement": 0.8})
	m := wait(t, results)
	var v map[string]any
	require.NoError(t, m.Decode(&v))
	require.InDelta(t, 0.8, v["engagement"], 1e-9)

	s.reply(t, "summary_update", map[string]any{"summary": "kickoff"})
	require.Equal(t, transport.SummaryUpdate, wait(t, summaries).Event)

	c.OnAnalysisResult(nil)
	s.reply(t, "analysis_result", map[string]any{})
	select {
	case <-results:
		require.FailNow(t, "handler was removed")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClose(t *testing.T) {
	c, tr, s := setup(t)
	begin(t, c, s, "s-1", "r-1")

	require.NoError(t, c.Close(context.Background()))
	require.Equal(t, session.NoSession, c.Status().State)
	require.Equal(t, transport.Disconnected, tr.State().Kind)
}

func TestCloseDuringStartThenRestart(t *testing.T) {
	c, s := setupRedial(t)

	first := startAsync(c, "weekly sync")
	require.Equal(t, "session_start", s.next(t).event)
	require.NoError(t, c.Close(context.Background()))

	// Closing cancels the handshake instead of leaving it to time out.
	got := wait(t, first)
	require.True(t, errors.IsKind(got.err, errors.Cancellation))

	second := startAsync(c, "weekly sync")
	req := s.next(t)
	require.Equal(t, "session_start", req.event)
	s.reply(t, "session_started", map[string]any{
		"sessionId":   "s-2",
		"recordingId": "r-2",
		"requestId":   req.payload["requestId"],
	})

	got = wait(t, second)
	require.NoError(t, got.err)
	require.Equal(t, "s-2", got.session.SessionID)
	require.Equal(t, session.Active, c.Status().State)
}

func TestCloseDuringEndThenRestart(t *testing.T) {
	c, s := setupRedial(t)
	begin(t, c, s, "s-1", "r-1")

	ended := make(chan error, 1)
	go func() { ended <- c.EndSession(context.Background()) }()
	require.Equal(t, "session_end", s.next(t).event)
	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, wait(t, ended))

	begin(t, c, s, "s-2", "r-2")
	require.Equal(t, "s-2", c.Status().SessionID)

	res := make(chan error, 1)
	go func() { res <- c.EndSession(context.Background()) }()
	require.Equal(t, "session_end", s.next(t).event)
	s.reply(t, "session_ended", map[string]any{})
	require.NoError(t, wait(t, res))
	require.Equal(t, session.NoSession, c.Status().State)
}

func TestNewControllerValidation(t *testing.T) {
	_, err := session.NewController(nil)
	require.True(t, errors.IsKind(err, errors.ConfigurationInvalid))

	tr, err := transport.New(func(context.Context) (transport.Conn, error) {
		return nil, nil
	})
	require.NoError(t, err)
	_, err = session.NewController(tr, session.WithAckTimeout(0))
	require.True(t, errors.IsKind(err, errors.ConfigurationInvalid))
}
