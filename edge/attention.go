// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package edge

import (
	"context"
	"log/slog"

	"github.com/visisec/edge-sdk/errors"
	"github.com/visisec/edge-sdk/internal/log"
	"github.com/visisec/edge-sdk/internal/wallclock"
	"github.com/visisec/edge-sdk/sensor"
)

type (
	// Level is the discretized attention score.
	Level string

	// Factors records which inputs contributed to a score. Absent inputs are
	// reported as "unknown".
	Factors struct {
		Motion     string `json:"deviceMotion"`
		AppState   string `json:"appState"`
		Distracted bool   `json:"distracted"`
	}

	// AttentionResult is the attention score for one tick.
	AttentionResult struct {
		Score     float64 `json:"score"`
		Level     Level   `json:"level"`
		Factors   Factors `json:"factors"`
		Timestamp int64   `json:"timestamp"`
	}

	// AttentionInput carries the collaborator summaries for one tick. Either
	// summary may be nil when its provider is unavailable.
	AttentionInput struct {
		Motion   *sensor.MotionSummary
		AppState *sensor.AppStateSummary

		// Timestamp in epoch milliseconds; the current time is used if zero.
		Timestamp int64
	}

	// LowAttentionPeriod is a maximal run of consecutive low entries in a
	// timeline, by index (inclusive).
	LowAttentionPeriod struct {
		Start    int `json:"start"`
		End      int `json:"end"`
		Duration int `json:"duration"`
	}

	// Timeline aggregates attention over a sequence of ticks.
	Timeline struct {
		Entries             []AttentionResult    `json:"timeline"`
		LowAttentionPeriods []LowAttentionPeriod `json:"lowAttentionPeriods"`
		AverageScore        float64              `json:"averageScore"`
	}

	// AttentionScorer derives an attention score from motion and app-state
	// summaries. Scoring is a pure function of its inputs.
	AttentionScorer struct {
		log log.Logger
	}

	// ScorerOption represents a single attention scorer option.
	ScorerOption interface{ scorer(*ScorerOptions) }

	// ScorerOptions are the resolved attention scorer options.
	ScorerOptions struct {
		Logger *slog.Logger
	}
)

// Attention levels.
const (
	Low    Level = "low"
	Medium Level = "medium"
	High   Level = "high"
)

// Score penalties and level boundaries.
const (
	penaltyActiveMotion   = 0.3
	penaltyModerateMotion = 0.1
	penaltyDistracted     = 0.4
	penaltyBackground     = 0.5

	highAbove   = 0.7
	mediumAbove = 0.4

	unknownFactor = "unknown"
)

// Color returns the display color conventionally associated with the level.
func (l Level) Color() string {
	switch l {
	case High:
		return "green"
	case Medium:
		return "yellow"
	default:
		return "red"
	}
}

// LevelOf discretizes a score.
func LevelOf(score float64) Level {
	switch {
	case score > highAbove:
		return High
	case score > mediumAbove:
		return Medium
	default:
		return Low
	}
}

// NewAttentionScorer creates an attention scorer.
func NewAttentionScorer(opt ...ScorerOption) *AttentionScorer {
	var opts ScorerOptions
	for _, o := range opt {
		if o != nil {
			o.scorer(&opts)
		}
	}
	return &AttentionScorer{log: log.Wrap(opts.Logger)}
}

// Score computes the attention result for one tick. All penalties are applied
// before the score is clamped to [0,1].
func (s *AttentionScorer) Score(in AttentionInput) AttentionResult {
	score := 1.0
	factors := Factors{Motion: unknownFactor, AppState: unknownFactor}

	if m := in.Motion; m != nil {
		factors.Motion = string(m.Movement)
		switch m.Movement {
		case sensor.Busy:
			score -= penaltyActiveMotion
		case sensor.Moderate:
			score -= penaltyModerateMotion
		}
	}

	if a := in.AppState; a != nil {
		if a.CurrentState != "" {
			factors.AppState = string(a.CurrentState)
		}
		factors.Distracted = a.Distracted
		if a.Distracted {
			score -= penaltyDistracted
		}
		if a.CurrentState == sensor.Background {
			score -= penaltyBackground
		}
	}

	score = max(0, min(1, score))

	ts := in.Timestamp
	if ts == 0 {
		ts = wallclock.UnixMilli()
	}

	res := AttentionResult{
		Score:     score,
		Level:     LevelOf(score),
		Factors:   factors,
		Timestamp: ts,
	}
	s.log.Log(context.Background(), slog.LevelDebug, "attention scored",
		slog.Float64("score", res.Score),
		slog.String("level", string(res.Level)),
	)
	return res
}

// GenerateTimeline scores a sequence of inputs and extracts the low attention
// periods. An empty sequence is an error rather than an undefined average.
func (s *AttentionScorer) GenerateTimeline(inputs []AttentionInput) (*Timeline, error) {
	if len(inputs) == 0 {
		return nil, &errors.Error{
			Message:   "cannot generate a timeline from no data",
			Kind:      errors.EmptyInputError,
			Operation: "GenerateTimeline",
		}
	}

	entries := make([]AttentionResult, len(inputs))
	levels := make([]Level, len(inputs))
	var sum float64
	for i, in := range inputs {
		entries[i] = s.Score(in)
		levels[i] = entries[i].Level
		sum += entries[i].Score
	}

	return &Timeline{
		Entries:             entries,
		LowAttentionPeriods: LowAttentionPeriods(levels),
		AverageScore:        sum / float64(len(entries)),
	}, nil
}

// LowAttentionPeriods returns the maximal runs of Low in a level sequence.
func LowAttentionPeriods(levels []Level) []LowAttentionPeriod {
	periods := []LowAttentionPeriod{}
	start := -1
	for i, l := range levels {
		switch {
		case l == Low && start < 0:
			start = i
		case l != Low && start >= 0:
			periods = append(periods, LowAttentionPeriod{start, i - 1, i - start})
			start = -1
		}
	}
	if start >= 0 {
		n := len(levels)
		periods = append(periods, LowAttentionPeriod{start, n - 1, n - start})
	}
	return periods
}
