// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package errors

import "time"

type (
	// Error represents a structured edge SDK error.
	Error struct {
		Message string
		Kind    Kind

		NestedError error

		// Operation names the public operation that failed, where relevant.
		Operation string

		TimeoutName  string
		TimeoutValue time.Duration

		PropertyName  string
		PropertyValue any

		// State is the state of the component at the point of failure, for
		// errors raised by state machines.
		State string
	}

	// Kind defines the type of error being returned.
	Kind int
)

// The following are the defined error kinds.
const (
	// TransportError indicates a connect, send, or receive failure. These are
	// recoverable via reconnection.
	TransportError Kind = iota

	// NotConnectedError indicates a send was attempted while the transport was
	// not connected. Nothing is buffered across drops.
	NotConnectedError

	// SessionTimeoutError indicates a session start or end acknowledgement was
	// not received in time.
	SessionTimeoutError

	// NoActiveSessionWarning indicates sensor or keyframe data was offered
	// while no session was active. The data is dropped.
	NoActiveSessionWarning

	// DecodeError indicates frame data could not be decoded.
	DecodeError

	// InitError indicates a required runtime capability is unavailable.
	InitError

	// EmptyInputError indicates an aggregate was requested over no data.
	EmptyInputError

	// ExtractionError indicates text extraction failed for a keyframe.
	ExtractionError

	PayloadInvalid
	StateInvalid
	ConfigurationInvalid
	ArgumentInvalid
	Cancellation
	UnknownError
)

var kindNames = [...]string{
	TransportError:         "transport_error",
	NotConnectedError:      "not_connected",
	SessionTimeoutError:    "session_timeout",
	NoActiveSessionWarning: "no_active_session",
	DecodeError:            "decode_error",
	InitError:              "init_error",
	EmptyInputError:        "empty_input",
	ExtractionError:        "extraction_error",
	PayloadInvalid:         "payload_invalid",
	StateInvalid:           "state_invalid",
	ConfigurationInvalid:   "configuration_invalid",
	ArgumentInvalid:        "argument_invalid",
	Cancellation:           "cancellation",
	UnknownError:           "unknown_error",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown_error"
}

// Error returns the error as a string.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the nested error, if any.
func (e *Error) Unwrap() error {
	return e.NestedError
}
