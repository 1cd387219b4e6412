// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package transport

import "fmt"

type (
	// StateKind is the phase of the transport state machine.
	StateKind uint8

	// State is the transport state. Attempt is the reconnection attempt the
	// state refers to, and is zero outside of reconnection.
	State struct {
		Kind    StateKind
		Attempt uint64
	}
)

// Transport states.
const (
	Disconnected StateKind = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

var stateNames = [...]string{
	Disconnected: "disconnected",
	Connecting:   "connecting",
	Connected:    "connected",
	Reconnecting: "reconnecting",
	Failed:       "failed",
}

// String returns the name of the state kind.
func (k StateKind) String() string {
	if int(k) < len(stateNames) {
		return stateNames[k]
	}
	return "unknown"
}

// String renders the state, including the attempt when reconnecting.
func (s State) String() string {
	if s.Attempt > 0 {
		return fmt.Sprintf("%s(%d)", s.Kind, s.Attempt)
	}
	return s.Kind.String()
}
