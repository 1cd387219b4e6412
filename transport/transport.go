// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/visisec/edge-sdk/errors"
	"github.com/visisec/edge-sdk/internal/log"
	"github.com/visisec/edge-sdk/internal/wallclock"
	"github.com/visisec/edge-sdk/retry"
	"github.com/visisec/edge-sdk/transport/internal"
)

// Transport is a reconnecting bidirectional channel to the session server.
// It owns the connection; callers only see states, messages, and lifecycle
// notifications.
type Transport struct {
	dial           Dialer
	encoding       Encoding
	policy         retry.Policy
	connectTimeout time.Duration
	concurrency    uint
	log            internal.Logger

	// Guards all connection state below. Never held while calling handlers.
	mu    sync.Mutex
	state State
	conn  Conn

	// Incremented whenever the current connection or connection attempt is
	// superseded, so that stale goroutines can detect it.
	gen uint64

	// Closed when the in-flight connect or reconnect settles.
	settled chan struct{}

	cancelReconnect context.CancelFunc

	handlersMu sync.RWMutex
	handlers   [eventCount]Handler

	lifecycle *internal.AppendableListWithRemoval[LifecycleHandler]
}

const reconnectTask = "reconnect"

// New creates a transport over the given dialer. The transport starts
// Disconnected.
func New(dial Dialer, opt ...Option) (*Transport, error) {
	if dial == nil {
		return nil, &errors.Error{
			Message:      "dialer is required",
			Kind:         errors.ConfigurationInvalid,
			PropertyName: "Dialer",
		}
	}

	opts := Options{
		Encoding:             JSON,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		ReconnectDelay:       DefaultReconnectDelay,
		ConnectTimeout:       DefaultConnectTimeout,
		Concurrency:          1,
	}
	opts.Apply(opt)

	if opts.Encoding == nil {
		return nil, &errors.Error{
			Message:      "encoding is required",
			Kind:         errors.ConfigurationInvalid,
			PropertyName: "Encoding",
		}
	}
	if opts.ConnectTimeout < 0 || opts.ReconnectDelay < 0 {
		return nil, &errors.Error{
			Message:       "timeouts cannot be negative",
			Kind:          errors.ConfigurationInvalid,
			PropertyName:  "ConnectTimeout",
			PropertyValue: opts.ConnectTimeout,
		}
	}

	policy := opts.ReconnectPolicy
	if policy == nil {
		policy = &retry.Linear{
			MaxAttempts: opts.MaxReconnectAttempts,
			Interval:    opts.ReconnectDelay,
			Logger:      opts.Logger,
		}
	}

	return &Transport{
		dial:           dial,
		encoding:       opts.Encoding,
		policy:         policy,
		connectTimeout: opts.ConnectTimeout,
		concurrency:    opts.Concurrency,
		log:            internal.Logger{Logger: log.Wrap(opts.Logger)},
		lifecycle:      internal.NewAppendableListWithRemoval[LifecycleHandler](),
	}, nil
}

// State returns the current transport state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Encoding returns the payload encoding.
func (t *Transport) Encoding() Encoding {
	return t.encoding
}

// Connect establishes the connection. It returns immediately if already
// connected and waits for an in-flight connect or reconnect to settle rather
// than starting another. From Disconnected or Failed it makes a single dial
// attempt; automatic retries only follow an unexpected loss.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	switch t.state.Kind {
	case Connected:
		t.mu.Unlock()
		return nil

	case Connecting, Reconnecting:
		settled := t.settled
		t.mu.Unlock()
		return t.await(ctx, settled)
	}

	t.gen++
	gen := t.gen
	t.settled = make(chan struct{})
	t.setState(ctx, State{Kind: Connecting})
	t.mu.Unlock()

	conn, err := t.dialOnce(ctx)

	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return &errors.Error{
			Message:   "transport disconnected while connecting",
			Kind:      errors.StateInvalid,
			Operation: "Connect",
			State:     Disconnected.String(),
		}
	}

	if err != nil {
		t.setState(ctx, State{Kind: Disconnected})
		t.settle()
		state := t.state
		t.mu.Unlock()

		t.log.Err(ctx, err)
		t.notify(&LifecycleEvent{Kind: LifecycleError, State: state, Err: err})
		return err
	}

	t.attach(ctx, conn)
	t.settle()
	state := t.state
	t.mu.Unlock()

	t.notify(&LifecycleEvent{Kind: LifecycleConnected, State: state})
	return nil
}

// Wait for an in-flight connection attempt and report its outcome.
func (t *Transport) await(ctx context.Context, settled <-chan struct{}) error {
	select {
	case <-settled:
	case <-ctx.Done():
		return errors.Context(ctx, "connect")
	}

	state := t.State()
	if state.Kind == Connected {
		return nil
	}
	return &errors.Error{
		Message:   "connection attempt did not succeed",
		Kind:      errors.TransportError,
		Operation: "Connect",
		State:     state.String(),
	}
}

// Disconnect closes the connection and cancels any pending reconnection.
// The transport can be connected again afterwards.
func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	prev := t.state
	conn := t.conn
	t.conn = nil
	t.gen++
	if t.cancelReconnect != nil {
		t.cancelReconnect()
		t.cancelReconnect = nil
	}
	t.settle()
	t.setState(ctx, State{Kind: Disconnected})
	state := t.state
	t.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	if prev.Kind != Disconnected {
		t.notify(&LifecycleEvent{Kind: LifecycleDisconnected, State: state})
	}
	if err != nil {
		return errors.Normalize(err, "disconnect")
	}
	return nil
}

// Send encodes and writes an outbound event. It fails with a not connected
// error unless the transport is connected; nothing is queued across drops.
func (t *Transport) Send(ctx context.Context, event Event, payload any) error {
	if !event.Outbound() {
		return &errors.Error{
			Message:       "event cannot be sent by the client",
			Kind:          errors.ArgumentInvalid,
			Operation:     "Send",
			PropertyName:  "event",
			PropertyValue: event.String(),
		}
	}

	data, err := t.encoding.Marshal(payload)
	if err != nil {
		return &errors.Error{
			Message:     "cannot encode " + event.String() + " payload",
			Kind:        errors.PayloadInvalid,
			Operation:   "Send",
			NestedError: err,
		}
	}

	t.mu.Lock()
	state, conn := t.state, t.conn
	t.mu.Unlock()

	if state.Kind != Connected || conn == nil {
		return &errors.Error{
			Message:   "cannot send " + event.String() + ": transport not connected",
			Kind:      errors.NotConnectedError,
			Operation: "Send",
			State:     state.String(),
		}
	}

	t.log.Payload(ctx, "outbound", event.String(), payload)
	if err := conn.WriteMessage(ctx, event.String(), data); err != nil {
		e := &errors.Error{
			Message:     "cannot send " + event.String(),
			Kind:        errors.TransportError,
			Operation:   "Send",
			NestedError: err,
		}
		t.log.Err(ctx, e)
		t.notify(&LifecycleEvent{Kind: LifecycleError, State: state, Err: e})
		return e
	}
	return nil
}

// On registers the handler for an inbound event, replacing any existing one.
func (t *Transport) On(event Event, handler Handler) {
	if !event.valid() {
		return
	}
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.handlers[event] = handler
}

// Off removes the handler for an inbound event. Messages for events with no
// handler are dropped.
func (t *Transport) Off(event Event) {
	t.On(event, nil)
}

func (t *Transport) handler(event Event) Handler {
	t.handlersMu.RLock()
	defer t.handlersMu.RUnlock()
	return t.handlers[event]
}

// Dial once, bounded by the connect timeout.
func (t *Transport) dialOnce(ctx context.Context) (Conn, error) {
	if t.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = wallclock.Instance.WithTimeoutCause(
			ctx,
			t.connectTimeout,
			&errors.Error{
				Message:      "connect timed out",
				Kind:         errors.TransportError,
				TimeoutName:  "ConnectTimeout",
				TimeoutValue: t.connectTimeout,
			},
		)
		defer cancel()
	}

	conn, err := t.dial(ctx)
	if err == nil {
		return conn, nil
	}
	if ctx.Err() != nil {
		return nil, errors.Context(ctx, "connect")
	}
	if errors.IsKind(err, errors.TransportError) {
		return nil, err
	}
	return nil, &errors.Error{
		Message:     "cannot connect: " + err.Error(),
		Kind:        errors.TransportError,
		Operation:   "Connect",
		NestedError: err,
	}
}

// Adopt a connection and start reading from it. Must hold t.mu.
func (t *Transport) attach(ctx context.Context, conn Conn) {
	t.conn = conn
	t.setState(ctx, State{Kind: Connected})
	go t.read(conn, t.gen)
}

// Release anyone waiting on the in-flight attempt. Must hold t.mu.
func (t *Transport) settle() {
	if t.settled != nil {
		close(t.settled)
		t.settled = nil
	}
}

// Must hold t.mu.
func (t *Transport) setState(ctx context.Context, s State) {
	if t.state == s {
		return
	}
	t.log.Log(ctx, slog.LevelDebug, "transport state changed",
		slog.String("from", t.state.String()),
		slog.String("to", s.String()),
	)
	t.state = s
}

func (t *Transport) read(conn Conn, gen uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	dispatch, stop := internal.Concurrent(t.concurrency, t.dispatch)
	defer stop()
	defer cancel()

	for {
		name, payload, err := conn.ReadMessage(ctx)
		if errors.IsKind(err, errors.PayloadInvalid) {
			t.log.Warn(ctx, err)
			continue
		}
		if err != nil {
			t.lost(gen, err)
			return
		}

		event, ok := ParseEvent(name)
		if !ok || !event.Inbound() {
			t.log.Log(ctx, slog.LevelDebug, "dropping unknown inbound event",
				slog.String("event", name),
			)
			continue
		}
		dispatch(ctx, &Message{event, payload, t.encoding})
	}
}

func (t *Transport) dispatch(ctx context.Context, msg *Message) {
	handler := t.handler(msg.Event)
	if handler == nil {
		t.log.Log(ctx, slog.LevelDebug, "dropping message with no handler",
			slog.String("event", msg.Event.String()),
		)
		return
	}
	t.log.Payload(ctx, "inbound", msg.Event.String(), msg.Payload)
	handler(ctx, msg)
}

// Handle an unexpected connection loss by starting reconnection.
func (t *Transport) lost(gen uint64, cause error) {
	ctx := context.Background()

	t.mu.Lock()
	if t.gen != gen || t.state.Kind != Connected {
		// Superseded by Disconnect; nothing to recover.
		t.mu.Unlock()
		return
	}

	conn := t.conn
	t.conn = nil
	t.gen++
	rgen := t.gen
	settled := make(chan struct{})
	t.settled = settled
	rctx, cancel := context.WithCancel(ctx)
	t.cancelReconnect = cancel
	t.setState(ctx, State{Kind: Reconnecting, Attempt: 1})
	state := t.state
	t.mu.Unlock()

	_ = conn.Close()

	err := &errors.Error{
		Message:     "connection lost",
		Kind:        errors.TransportError,
		NestedError: cause,
	}
	t.log.Log(ctx, slog.LevelWarn, "connection lost; reconnecting",
		slog.String("error", cause.Error()),
	)
	t.notify(&LifecycleEvent{
		Kind:  LifecycleDisconnected,
		State: state,
		Err:   err,
	})

	go t.reconnect(rctx, cancel, rgen)
}

func (t *Transport) reconnect(
	ctx context.Context,
	cancel context.CancelFunc,
	gen uint64,
) {
	defer cancel()
	var attempts uint64

	err := t.policy.Start(ctx, reconnectTask, func(
		ctx context.Context,
		attempt uint64,
	) (bool, error) {
		attempts = attempt

		t.mu.Lock()
		if t.gen != gen {
			t.mu.Unlock()
			return false, context.Canceled
		}
		t.setState(ctx, State{Kind: Connecting, Attempt: attempt})
		t.mu.Unlock()

		conn, err := t.dialOnce(ctx)

		t.mu.Lock()
		if t.gen != gen {
			t.mu.Unlock()
			if conn != nil {
				_ = conn.Close()
			}
			return false, context.Canceled
		}

		if err != nil {
			t.setState(ctx, State{Kind: Reconnecting, Attempt: attempt + 1})
			state := t.state
			t.mu.Unlock()

			t.notify(&LifecycleEvent{
				Kind:    LifecycleError,
				State:   state,
				Attempt: attempt,
				Err:     err,
			})
			return true, err
		}

		t.attach(ctx, conn)
		t.settle()
		t.cancelReconnect = nil
		state := t.state
		t.mu.Unlock()

		t.log.Log(ctx, slog.LevelInfo, "reconnected",
			slog.Uint64("attempt", attempt),
		)
		t.notify(&LifecycleEvent{
			Kind:    LifecycleConnected,
			State:   state,
			Attempt: attempt,
		})
		return false, nil
	})
	if err == nil {
		return
	}

	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	t.setState(ctx, State{Kind: Failed, Attempt: attempts})
	t.settle()
	t.cancelReconnect = nil
	state := t.state
	t.mu.Unlock()

	failure := &errors.Error{
		Message:     "reconnection attempts exhausted",
		Kind:        errors.TransportError,
		NestedError: err,
	}
	t.log.Err(ctx, failure)
	t.notify(&LifecycleEvent{
		Kind:    LifecycleReconnectFailed,
		State:   state,
		Attempt: attempts,
		Err:     failure,
	})
}
