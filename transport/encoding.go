// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package transport

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/visisec/edge-sdk/errors"
	"github.com/vmihailenco/msgpack/v5"
)

type (
	// Encoding translates payloads to and from their wire representation.
	// All encodings honour `json` struct tags so payload types are shared.
	Encoding interface {
		// Name is the configuration name of the encoding.
		Name() string

		// ContentType is the MIME type of an encoded payload.
		ContentType() string

		// Binary reports whether frames must be sent as binary messages.
		Binary() bool

		Marshal(v any) ([]byte, error)
		Unmarshal(data []byte, v any) error

		// Envelope wraps an event name and its encoded payload into a single
		// frame, for connections that carry all events on one channel.
		Envelope(event string, payload []byte) ([]byte, error)

		// Open reverses Envelope.
		Open(frame []byte) (event string, payload []byte, err error)
	}

	jsonEncoding    struct{}
	msgpackEncoding struct{}
	cborEncoding    struct{ dec cbor.DecMode }

	jsonEnvelope struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data,omitempty"`
	}

	msgpackEnvelope struct {
		Event string             `msgpack:"event"`
		Data  msgpack.RawMessage `msgpack:"data,omitempty"`
	}

	cborEnvelope struct {
		Event string          `cbor:"event"`
		Data  cbor.RawMessage `cbor:"data,omitempty"`
	}
)

// Available encodings.
var (
	JSON        Encoding = jsonEncoding{}
	MessagePack Encoding = msgpackEncoding{}
	CBOR        Encoding = newCBOR()
)

// EncodingByName resolves an encoding from its configuration name.
func EncodingByName(name string) (Encoding, error) {
	for _, e := range []Encoding{JSON, MessagePack, CBOR} {
		if e.Name() == name {
			return e, nil
		}
	}
	return nil, &errors.Error{
		Message:       "unknown encoding",
		Kind:          errors.ConfigurationInvalid,
		PropertyName:  "Encoding",
		PropertyValue: name,
	}
}

func (jsonEncoding) Name() string        { return "json" }
func (jsonEncoding) ContentType() string { return "application/json" }
func (jsonEncoding) Binary() bool        { return false }

func (jsonEncoding) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonEncoding) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonEncoding) Envelope(event string, payload []byte) ([]byte, error) {
	return json.Marshal(jsonEnvelope{event, payload})
}

func (jsonEncoding) Open(frame []byte) (string, []byte, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", nil, err
	}
	return env.Event, env.Data, nil
}

func (msgpackEncoding) Name() string        { return "msgpack" }
func (msgpackEncoding) ContentType() string { return "application/msgpack" }
func (msgpackEncoding) Binary() bool        { return true }

func (msgpackEncoding) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackEncoding) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

func (msgpackEncoding) Envelope(event string, payload []byte) ([]byte, error) {
	return msgpack.Marshal(msgpackEnvelope{event, payload})
}

func (msgpackEncoding) Open(frame []byte) (string, []byte, error) {
	var env msgpackEnvelope
	if err := msgpack.Unmarshal(frame, &env); err != nil {
		return "", nil, err
	}
	return env.Event, env.Data, nil
}

func newCBOR() cborEncoding {
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return cborEncoding{dec}
}

func (cborEncoding) Name() string        { return "cbor" }
func (cborEncoding) ContentType() string { return "application/cbor" }
func (cborEncoding) Binary() bool        { return true }

func (cborEncoding) Marshal(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

func (e cborEncoding) Unmarshal(data []byte, v any) error {
	return e.dec.Unmarshal(data, v)
}

func (cborEncoding) Envelope(event string, payload []byte) ([]byte, error) {
	return cbor.Marshal(cborEnvelope{event, payload})
}

func (e cborEncoding) Open(frame []byte) (string, []byte, error) {
	var env cborEnvelope
	if err := e.dec.Unmarshal(frame, &env); err != nil {
		return "", nil, err
	}
	return env.Event, env.Data, nil
}
