// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/visisec/edge-sdk/errors"
	"github.com/visisec/edge-sdk/internal/log"
	"github.com/visisec/edge-sdk/internal/wallclock"
	"github.com/visisec/edge-sdk/transport"
)

// Controller owns one logical session over a transport. It correlates the
// start and end acknowledgements and tags outgoing sensor data and keyframes
// with the session identity.
type Controller struct {
	transport  Transport
	ackTimeout time.Duration
	log        log.Logger

	mu      sync.Mutex
	state   State
	session Session

	// Incremented by Close so that an in-flight handshake can tell it was
	// torn down underneath it. Ack handlers are only registered and removed
	// by the handshake of the current epoch.
	epoch  uint64
	cancel context.CancelCauseFunc
}

type ack[T any] struct {
	val T
	err error
}

// NewController creates a session controller in the NoSession state.
func NewController(t Transport, opt ...Option) (*Controller, error) {
	if t == nil {
		return nil, &errors.Error{
			Message:      "transport is required",
			Kind:         errors.ConfigurationInvalid,
			PropertyName: "Transport",
		}
	}

	opts := Options{AckTimeout: DefaultAckTimeout}
	opts.Apply(opt)

	if opts.AckTimeout <= 0 {
		return nil, &errors.Error{
			Message:       "ack timeout must be positive",
			Kind:          errors.ConfigurationInvalid,
			PropertyName:  "AckTimeout",
			PropertyValue: opts.AckTimeout,
		}
	}

	return &Controller{
		transport:  t,
		ackTimeout: opts.AckTimeout,
		log:        log.Wrap(opts.Logger),
	}, nil
}

// StartSession connects the transport if needed, requests a new session with
// the given title, and waits for the server to acknowledge it. If no
// acknowledgement arrives within the ack timeout the session is abandoned and
// a late acknowledgement is ignored.
func (c *Controller) StartSession(
	ctx context.Context,
	title string,
) (Session, error) {
	c.mu.Lock()
	if c.state != NoSession {
		state := c.state
		c.mu.Unlock()
		return Session{}, &errors.Error{
			Message:   "a session is already " + state.String(),
			Kind:      errors.StateInvalid,
			Operation: "StartSession",
			State:     state.String(),
		}
	}
	c.state = Starting
	ctx, epoch := c.begin(ctx)
	c.mu.Unlock()

	s, err := c.start(ctx, epoch, title)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return Session{}, closedErr("StartSession")
	}
	c.finish()
	if err != nil {
		c.state = NoSession
		c.log.Err(ctx, err)
		return Session{}, err
	}

	c.state = Active
	c.session = s
	c.log.Log(ctx, slog.LevelInfo, "session started",
		slog.String("session_id", s.SessionID),
		slog.String("recording_id", s.RecordingID),
	)
	return s, nil
}

func (c *Controller) start(
	ctx context.Context,
	epoch uint64,
	title string,
) (Session, error) {
	if err := c.transport.Connect(ctx); err != nil {
		return Session{}, err
	}

	requestID := uuid.NewString()

	// Registered before sending so a fast acknowledgement is not missed.
	acks := make(chan ack[startAck], 1)
	if !c.register(epoch, transport.SessionStarted, func(
		ctx context.Context,
		msg *transport.Message,
	) {
		var res startAck
		err := msg.Decode(&res)
		if err == nil && res.RequestID != "" && res.RequestID != requestID {
			c.log.Log(ctx, slog.LevelDebug, "ignoring uncorrelated session ack",
				slog.String("request_id", res.RequestID),
			)
			return
		}
		select {
		case acks <- ack[startAck]{res, err}:
		default:
		}
	}) {
		return Session{}, closedErr("StartSession")
	}
	defer c.retract(epoch, transport.SessionStarted)

	if err := c.transport.Send(ctx, transport.SessionStart, &startRequest{
		MeetingTitle: title,
		Timestamp:    wallclock.UnixMilli(),
		RequestID:    requestID,
	}); err != nil {
		return Session{}, err
	}

	res, err := await(ctx, c.ackTimeout, "StartSession", acks)
	if err != nil {
		return Session{}, err
	}
	if res.err != nil {
		return Session{}, res.err
	}
	if res.val.SessionID == "" {
		return Session{}, &errors.Error{
			Message:      "session acknowledgement has no session ID",
			Kind:         errors.PayloadInvalid,
			Operation:    "StartSession",
			PropertyName: "sessionId",
		}
	}
	return res.val.Session, nil
}

// EndSession asks the server to end the active session and waits for the
// acknowledgement. Without a session it does nothing. The arrival of the
// acknowledgement ends the session whatever its content; on timeout the
// session stays active so the caller can retry.
func (c *Controller) EndSession(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case NoSession:
		c.mu.Unlock()
		c.log.Log(ctx, slog.LevelDebug, "no active session to end")
		return nil

	case Starting, Ending:
		state := c.state
		c.mu.Unlock()
		return &errors.Error{
			Message:   "session is " + state.String(),
			Kind:      errors.StateInvalid,
			Operation: "EndSession",
			State:     state.String(),
		}
	}
	c.state = Ending
	s := c.session
	ctx, epoch := c.begin(ctx)
	c.mu.Unlock()

	err := c.end(ctx, epoch, s)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return nil
	}
	c.finish()
	if err != nil {
		c.state = Active
		c.log.Err(ctx, err)
		return err
	}

	c.state = NoSession
	c.session = Session{}
	c.log.Log(ctx, slog.LevelInfo, "session ended",
		slog.String("session_id", s.SessionID),
	)
	return nil
}

func (c *Controller) end(ctx context.Context, epoch uint64, s Session) error {
	acks := make(chan ack[struct{}], 1)
	if !c.register(epoch, transport.SessionEnded, func(
		context.Context,
		*transport.Message,
	) {
		select {
		case acks <- ack[struct{}]{}:
		default:
		}
	}) {
		return closedErr("EndSession")
	}
	defer c.retract(epoch, transport.SessionEnded)

	if err := c.transport.Send(ctx, transport.SessionEnd, &endRequest{
		Session:   s,
		Timestamp: wallclock.UnixMilli(),
	}); err != nil {
		return err
	}

	_, err := await(ctx, c.ackTimeout, "EndSession", acks)
	return err
}

// Start a handshake that Close can cancel. Must be called with c.mu held.
func (c *Controller) begin(ctx context.Context) (context.Context, uint64) {
	ctx, c.cancel = context.WithCancelCause(ctx)
	return ctx, c.epoch
}

// Release the handshake context. Must be called with c.mu held.
func (c *Controller) finish() {
	if c.cancel != nil {
		c.cancel(nil)
		c.cancel = nil
	}
}

// Register an ack handler unless the handshake has been closed.
func (c *Controller) register(
	epoch uint64,
	event transport.Event,
	handler transport.Handler,
) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.transport.On(event, handler)
	return true
}

// Remove an ack handler, unless Close already did and a later handshake may
// own the registration.
func (c *Controller) retract(epoch uint64, event transport.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch == epoch {
		c.transport.Off(event)
	}
}

func closedErr(op string) error {
	return &errors.Error{
		Message:   "session controller closed during " + op,
		Kind:      errors.Cancellation,
		Operation: op,
	}
}

// Wait for an acknowledgement, bounded by the ack timeout.
func await[T any](
	ctx context.Context,
	timeout time.Duration,
	op string,
	acks <-chan ack[T],
) (ack[T], error) {
	ctx, cancel := wallclock.Instance.WithTimeoutCause(
		ctx,
		timeout,
		&errors.Error{
			Message:      op + " acknowledgement timed out",
			Kind:         errors.SessionTimeoutError,
			Operation:    op,
			TimeoutName:  "AckTimeout",
			TimeoutValue: timeout,
		},
	)
	defer cancel()

	select {
	case res := <-acks:
		return res, nil
	case <-ctx.Done():
		return ack[T]{}, errors.Context(ctx, op)
	}
}

// SendSensorData forwards a sensor summary tagged with the session ID. Without
// an active session nothing is sent and a NoActiveSessionWarning is returned.
func (c *Controller) SendSensorData(ctx context.Context, data SensorData) error {
	s, err := c.active(ctx, transport.SensorData)
	if err != nil {
		return err
	}
	data.SessionID = s.SessionID
	return c.transport.Send(ctx, transport.SensorData, &data)
}

// SendKeyframe forwards keyframe metadata tagged with the session and
// recording IDs. Without an active session nothing is sent and a
// NoActiveSessionWarning is returned.
func (c *Controller) SendKeyframe(ctx context.Context, kf Keyframe) error {
	s, err := c.active(ctx, transport.Keyframe)
	if err != nil {
		return err
	}
	kf.SessionID = s.SessionID
	kf.RecordingID = s.RecordingID
	return c.transport.Send(ctx, transport.Keyframe, &kf)
}

func (c *Controller) active(
	ctx context.Context,
	event transport.Event,
) (Session, error) {
	c.mu.Lock()
	state, s := c.state, c.session
	c.mu.Unlock()

	if state == Active {
		return s, nil
	}
	err := &errors.Error{
		Message:       "no active session; " + event.String() + " dropped",
		Kind:          errors.NoActiveSessionWarning,
		Operation:     "Send",
		State:         state.String(),
		PropertyName:  "event",
		PropertyValue: event.String(),
	}
	c.log.Warn(ctx, err)
	return Session{}, err
}

// OnAnalysisResult registers the handler for server analysis results,
// replacing any previous one. A nil handler removes it.
func (c *Controller) OnAnalysisResult(handler transport.Handler) {
	c.forward(transport.AnalysisResult, handler)
}

// OnSummaryUpdate registers the handler for incremental meeting summaries,
// replacing any previous one. A nil handler removes it.
func (c *Controller) OnSummaryUpdate(handler transport.Handler) {
	c.forward(transport.SummaryUpdate, handler)
}

func (c *Controller) forward(event transport.Event, handler transport.Handler) {
	if handler == nil {
		c.transport.Off(event)
		return
	}
	c.transport.On(event, handler)
}

// Status returns a snapshot of the session and transport state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	state, s := c.state, c.session
	c.mu.Unlock()

	return Status{
		Session:          s,
		State:            state,
		Transport:        c.transport.State(),
		HasActiveSession: state == Active,
	}
}

// Close abandons any session without notifying the server and disconnects
// the transport. A pending StartSession returns a Cancellation error and a
// pending EndSession returns nil.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	c.epoch++
	c.state = NoSession
	c.session = Session{}
	if c.cancel != nil {
		c.cancel(closedErr("Close"))
		c.cancel = nil
	}
	c.transport.Off(transport.SessionStarted)
	c.transport.Off(transport.SessionEnded)
	c.mu.Unlock()

	return c.transport.Disconnect(ctx)
}
