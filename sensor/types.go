// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package sensor

import "math"

type (
	// Vector3 is a three-axis acceleration reading in m/s².
	Vector3 struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
	}

	// RotationRate is a gyroscope reading in deg/s.
	RotationRate struct {
		Alpha float64 `json:"alpha"`
		Beta  float64 `json:"beta"`
		Gamma float64 `json:"gamma"`
	}

	// Sample is a single motion reading. Samples are treated as immutable
	// once recorded.
	Sample struct {
		// Timestamp in epoch milliseconds.
		Timestamp int64 `json:"timestamp"`

		// Acceleration excluding gravity. Nil when the device only reports
		// gravity-inclusive readings.
		Acceleration *Vector3 `json:"acceleration,omitempty"`

		AccelerationIncludingGravity *Vector3      `json:"accelerationIncludingGravity,omitempty"`
		RotationRate                 *RotationRate `json:"rotationRate,omitempty"`

		// Interval between readings reported by the provider, in
		// milliseconds.
		Interval float64 `json:"interval"`
	}

	// AppState is the foreground state of the host application.
	AppState string

	// AppStateRecord is one entry in the app-state history.
	AppStateRecord struct {
		Timestamp     int64    `json:"timestamp"`
		State         AppState `json:"state"`
		Reason        string   `json:"reason,omitempty"`
		PreviousState AppState `json:"previousState,omitempty"`
	}
)

// Application states.
const (
	Active     AppState = "active"
	Background AppState = "background"
)

// Magnitude returns the Euclidean norm of the vector.
func (v Vector3) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}
