// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package session

import (
	"context"

	"github.com/visisec/edge-sdk/edge"
	"github.com/visisec/edge-sdk/sensor"
	"github.com/visisec/edge-sdk/transport"
)

type (
	// Transport is the connection the controller drives. It is satisfied by
	// *transport.Transport.
	Transport interface {
		Connect(ctx context.Context) error
		Disconnect(ctx context.Context) error
		State() transport.State
		Send(ctx context.Context, event transport.Event, payload any) error
		On(event transport.Event, handler transport.Handler)
		Off(event transport.Event)
	}

	// State is the phase of the session lifecycle.
	State uint8

	// Session identifies the server-side session and recording.
	Session struct {
		SessionID   string `json:"sessionId"`
		RecordingID string `json:"recordingId"`
	}

	// Status is a snapshot of the controller and its transport.
	Status struct {
		Session
		State            State
		Transport        transport.State
		HasActiveSession bool
	}

	// SensorData is the periodic sensor summary for one tick. The session
	// ID is filled in by the controller.
	SensorData struct {
		SessionID   string                  `json:"sessionId"`
		Timestamp   int64                   `json:"timestamp"`
		Motion      *sensor.MotionSummary   `json:"motion,omitempty"`
		AppState    *sensor.AppStateSummary `json:"appState,omitempty"`
		Attention   *edge.AttentionResult   `json:"attention,omitempty"`
		SceneChange *edge.ChangeResult      `json:"sceneChange,omitempty"`
	}

	// Keyframe describes a frame flagged as a scene transition. The session
	// and recording IDs are filled in by the controller.
	Keyframe struct {
		SessionID      string      `json:"sessionId"`
		RecordingID    string      `json:"recordingId"`
		Timestamp      int64       `json:"timestamp"`
		Source         edge.Source `json:"source,omitempty"`
		Format         string      `json:"format,omitempty"`
		Width          int         `json:"width,omitempty"`
		Height         int         `json:"height,omitempty"`
		ChangeRatio    float64     `json:"changeRatio"`
		Image          []byte      `json:"image,omitempty"`
		Text           string      `json:"text,omitempty"`
		TextConfidence float64     `json:"textConfidence,omitempty"`
	}

	startRequest struct {
		MeetingTitle string `json:"meetingTitle"`
		Timestamp    int64  `json:"timestamp"`
		RequestID    string `json:"requestId"`
	}

	startAck struct {
		Session
		RequestID string `json:"requestId,omitempty"`
	}

	endRequest struct {
		Session
		Timestamp int64 `json:"timestamp"`
	}
)

const (
	NoSession State = iota
	Starting
	Active
	Ending
)

var stateNames = [...]string{
	NoSession: "no_session",
	Starting:  "starting",
	Active:    "active",
	Ending:    "ending",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
