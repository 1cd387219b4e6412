// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package transport

// Event is the closed set of session messages exchanged with the server. The
// wire name of each event is fixed.
type Event uint8

// Outbound events.
const (
	SessionStart Event = iota
	SensorData
	Keyframe
	SessionEnd

	// Inbound events.
	SessionStarted
	SessionEnded
	AnalysisResult
	SummaryUpdate

	eventCount
)

var eventNames = [eventCount]string{
	SessionStart:   "session_start",
	SensorData:     "sensor_data",
	Keyframe:       "keyframe",
	SessionEnd:     "session_end",
	SessionStarted: "session_started",
	SessionEnded:   "session_ended",
	AnalysisResult: "analysis_result",
	SummaryUpdate:  "summary_update",
}

// String returns the wire name of the event.
func (e Event) String() string {
	if e.valid() {
		return eventNames[e]
	}
	return "unknown"
}

// Inbound reports whether the event is sent by the server.
func (e Event) Inbound() bool {
	return e >= SessionStarted && e < eventCount
}

// Outbound reports whether the event is sent by the client.
func (e Event) Outbound() bool {
	return e < SessionStarted
}

func (e Event) valid() bool {
	return e < eventCount
}

// ParseEvent resolves a wire name to its event.
func ParseEvent(name string) (Event, bool) {
	for e, n := range eventNames {
		if n == name {
			return Event(e), true
		}
	}
	return 0, false
}
