// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/visisec/edge-sdk/errors"
	"github.com/visisec/edge-sdk/internal/wallclock"
)

type (
	// WebSocketConn carries enveloped events over a single WebSocket.
	WebSocketConn struct {
		conn     *websocket.Conn
		encoding Encoding

		// gorilla/websocket supports one concurrent writer.
		wmu sync.Mutex
	}
)

const closeGracePeriod = time.Second

// WebSocketConnection is a Dialer that connects to a session server over a
// WebSocket, enveloping each event with the given encoding.
func WebSocketConnection(
	url string,
	enc Encoding,
	header http.Header,
) Dialer {
	return func(ctx context.Context) (Conn, error) {
		conn, res, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if res != nil && res.Body != nil {
			_ = res.Body.Close()
		}
		if err != nil {
			e := &errors.Error{
				Message:       "error opening WebSocket connection",
				Kind:          errors.TransportError,
				NestedError:   err,
				PropertyName:  "url",
				PropertyValue: url,
			}
			if res != nil {
				e.PropertyName = "status"
				e.PropertyValue = res.StatusCode
			}
			return nil, e
		}
		return NewWebSocketConn(conn, enc), nil
	}
}

// NewWebSocketConn wraps an established WebSocket. It is also used on the
// server side of tests and loopback tools.
func NewWebSocketConn(conn *websocket.Conn, enc Encoding) *WebSocketConn {
	return &WebSocketConn{conn: conn, encoding: enc}
}

// WriteMessage implements Conn.
func (c *WebSocketConn) WriteMessage(
	ctx context.Context,
	event string,
	payload []byte,
) error {
	frame, err := c.encoding.Envelope(event, payload)
	if err != nil {
		return err
	}

	typ := websocket.TextMessage
	if c.encoding.Binary() {
		typ = websocket.BinaryMessage
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(typ, frame)
}

// ReadMessage implements Conn. Cancelling ctx unblocks a pending read, which
// also ends the connection.
func (c *WebSocketConn) ReadMessage(
	ctx context.Context,
) (string, []byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(wallclock.Instance.Now())
	})
	defer stop()

	for {
		typ, frame, err := c.conn.ReadMessage()
		if err != nil {
			return "", nil, err
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}

		event, payload, err := c.encoding.Open(frame)
		if err != nil {
			return "", nil, &errors.Error{
				Message:     "malformed WebSocket frame",
				Kind:        errors.PayloadInvalid,
				NestedError: err,
			}
		}
		return event, payload, nil
	}
}

// Close sends a close frame and closes the underlying connection.
func (c *WebSocketConn) Close() error {
	c.wmu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		wallclock.Instance.Now().Add(closeGracePeriod),
	)
	c.wmu.Unlock()
	return c.conn.Close()
}
