// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package transport

import (
	"context"
	"io"
	"sync"

	"github.com/visisec/edge-sdk/errors"
)

type (
	// Conn is a single established connection to the session server. It
	// carries (event name, encoded payload) pairs. WriteMessage may be called
	// concurrently with ReadMessage; the transport never issues concurrent
	// calls to the same method. ReadMessage must return an error once the
	// connection is closed from either side.
	Conn interface {
		WriteMessage(ctx context.Context, event string, payload []byte) error
		ReadMessage(ctx context.Context) (event string, payload []byte, err error)
		Close() error
	}

	// Dialer opens a new connection. The transport calls it once per connect
	// or reconnect attempt.
	Dialer func(context.Context) (Conn, error)

	pipeFrame struct {
		event   string
		payload []byte
	}

	pipeConn struct {
		in   <-chan pipeFrame
		out  chan<- pipeFrame
		done chan struct{}
		once *sync.Once
	}
)

const pipeBuffer = 64

// Pipe returns the two ends of an in-memory connection. Messages written on
// one end are read from the other. Closing either end closes both.
func Pipe() (Conn, Conn) {
	a := make(chan pipeFrame, pipeBuffer)
	b := make(chan pipeFrame, pipeBuffer)
	done := make(chan struct{})
	once := &sync.Once{}
	return &pipeConn{in: a, out: b, done: done, once: once},
		&pipeConn{in: b, out: a, done: done, once: once}
}

func (p *pipeConn) WriteMessage(
	ctx context.Context,
	event string,
	payload []byte,
) error {
	select {
	case <-p.done:
		return io.ErrClosedPipe
	default:
	}

	select {
	case p.out <- pipeFrame{event, payload}:
		return nil
	case <-p.done:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return errors.Context(ctx, "pipe write")
	}
}

func (p *pipeConn) ReadMessage(ctx context.Context) (string, []byte, error) {
	select {
	case f := <-p.in:
		return f.event, f.payload, nil
	case <-p.done:
		return "", nil, io.EOF
	case <-ctx.Done():
		return "", nil, errors.Context(ctx, "pipe read")
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
