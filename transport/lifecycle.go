// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package transport

type (
	// LifecycleKind identifies a connection lifecycle notification.
	LifecycleKind uint8

	// LifecycleEvent reports a change in connection health.
	LifecycleEvent struct {
		Kind LifecycleKind

		// State is the transport state after the change.
		State State

		// Attempt is the reconnection attempt the event belongs to, if any.
		Attempt uint64

		// Err is the failure that caused the event, if any.
		Err error
	}

	// LifecycleHandler observes lifecycle events. Handlers are called
	// synchronously in registration order and must not block.
	LifecycleHandler func(*LifecycleEvent)
)

// Lifecycle notifications.
const (
	LifecycleConnected LifecycleKind = iota
	LifecycleDisconnected
	LifecycleError
	LifecycleReconnectFailed
)

var lifecycleNames = [...]string{
	LifecycleConnected:       "connected",
	LifecycleDisconnected:    "disconnected",
	LifecycleError:           "error",
	LifecycleReconnectFailed: "reconnect_failed",
}

// String returns the notification name.
func (k LifecycleKind) String() string {
	if int(k) < len(lifecycleNames) {
		return lifecycleNames[k]
	}
	return "unknown"
}

// RegisterLifecycleHandler subscribes to lifecycle events. Any number of
// handlers may be registered; the returned function removes this one.
func (t *Transport) RegisterLifecycleHandler(
	handler LifecycleHandler,
) (remove func()) {
	return t.lifecycle.AppendEntry(handler)
}

func (t *Transport) notify(e *LifecycleEvent) {
	for handler := range t.lifecycle.All() {
		handler(e)
	}
}
