// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package sensor

type (
	// Movement is the coarse classification of recent motion.
	Movement string

	// MotionSummary summarizes a recent window of motion samples.
	MotionSummary struct {
		Stable              bool     `json:"stable"`
		Movement            Movement `json:"movement"`
		AverageAcceleration float64  `json:"averageAcceleration"`
		DataPoints          int      `json:"dataPoints"`
	}

	// MotionAnalyzer summarizes the samples held in a rolling buffer.
	MotionAnalyzer struct {
		buffer *RollingBuffer[Sample]
	}
)

// Movement classes.
const (
	Minimal  Movement = "minimal"
	Moderate Movement = "moderate"
	Busy     Movement = "active"
)

// Analysis window constants.
const (
	// MotionWindow is the number of most recent samples averaged.
	MotionWindow = 20

	// MinMotionSamples is the number of buffered samples required before
	// motion is classified; below it the device is reported as stable.
	MinMotionSamples = 10

	stableThreshold   = 2.0
	minimalThreshold  = 1.0
	moderateThreshold = 5.0
)

// NewMotionAnalyzer creates an analyzer over the given buffer.
func NewMotionAnalyzer(buffer *RollingBuffer[Sample]) *MotionAnalyzer {
	return &MotionAnalyzer{buffer: buffer}
}

// Analyze summarizes the most recent samples in the buffer.
func (a *MotionAnalyzer) Analyze() MotionSummary {
	total := a.buffer.Len()
	return AnalyzeMotion(a.buffer.Latest(MotionWindow), total)
}

// AnalyzeMotion summarizes a recent window of samples, given the total number
// of samples available. Samples without gravity-excluded acceleration count
// towards the window with zero magnitude.
func AnalyzeMotion(window []Sample, total int) MotionSummary {
	if total < MinMotionSamples || len(window) == 0 {
		return MotionSummary{
			Stable:     true,
			Movement:   Minimal,
			DataPoints: total,
		}
	}

	var sum float64
	for _, s := range window {
		if s.Acceleration != nil {
			sum += s.Acceleration.Magnitude()
		}
	}
	avg := sum / float64(len(window))

	movement := Busy
	switch {
	case avg < minimalThreshold:
		movement = Minimal
	case avg < moderateThreshold:
		movement = Moderate
	}

	return MotionSummary{
		Stable:              avg < stableThreshold,
		Movement:            movement,
		AverageAcceleration: avg,
		DataPoints:          total,
	}
}
