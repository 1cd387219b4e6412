// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package transport

import (
	"context"

	"github.com/visisec/edge-sdk/errors"
)

type (
	// Message is an inbound message delivered to an event handler.
	Message struct {
		Event   Event
		Payload []byte

		encoding Encoding
	}

	// Handler receives inbound messages for one event.
	Handler func(ctx context.Context, msg *Message)
)

// Decode unmarshals the payload into v using the connection's encoding.
func (m *Message) Decode(v any) error {
	if err := m.encoding.Unmarshal(m.Payload, v); err != nil {
		return &errors.Error{
			Message:       "cannot decode " + m.Event.String() + " payload",
			Kind:          errors.PayloadInvalid,
			NestedError:   err,
			PropertyName:  "payload",
			PropertyValue: len(m.Payload),
		}
	}
	return nil
}

// NewMessage creates a message over an already encoded payload.
func NewMessage(event Event, payload []byte, enc Encoding) *Message {
	return &Message{Event: event, Payload: payload, encoding: enc}
}
