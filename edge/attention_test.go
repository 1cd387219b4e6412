// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package edge_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/visisec/edge-sdk/edge"
	"github.com/visisec/edge-sdk/errors"
	"github.com/visisec/edge-sdk/sensor"
)

func motion(m sensor.Movement) *sensor.MotionSummary {
	return &sensor.MotionSummary{Movement: m}
}

func appState(distracted bool, state sensor.AppState) *sensor.AppStateSummary {
	return &sensor.AppStateSummary{Distracted: distracted, CurrentState: state}
}

func TestScoreCompoundPenaltyClampsOnce(t *testing.T) {
	s := edge.NewAttentionScorer()
	res := s.Score(edge.AttentionInput{
		Motion:    motion(sensor.Busy),
		AppState:  appState(true, sensor.Background),
		Timestamp: 42,
	})

	require.Zero(t, res.Score)
	require.Equal(t, edge.Low, res.Level)
	require.Equal(t, int64(42), res.Timestamp)
	require.Equal(t, edge.Factors{
		Motion:     "active",
		AppState:   "background",
		Distracted: true,
	}, res.Factors)
}

func TestScoreFullAttention(t *testing.T) {
	s := edge.NewAttentionScorer()
	res := s.Score(edge.AttentionInput{
		Motion:   motion(sensor.Minimal),
		AppState: appState(false, sensor.Active),
	})

	require.Equal(t, 1.0, res.Score)
	require.Equal(t, edge.High, res.Level)
	require.NotZero(t, res.Timestamp)
}

func TestScoreLevels(t *testing.T) {
	s := edge.NewAttentionScorer()
	for _, tc := range []struct {
		name  string
		in    edge.AttentionInput
		score float64
		level edge.Level
	}{
		{"absent", edge.AttentionInput{}, 1.0, edge.High},
		{"moderate", edge.AttentionInput{Motion: motion(sensor.Moderate)}, 0.9, edge.High},
		{"distracted", edge.AttentionInput{AppState: appState(true, sensor.Active)}, 0.6, edge.Medium},
		{"background", edge.AttentionInput{AppState: appState(false, sensor.Background)}, 0.5, edge.Medium},
		{"distracted background", edge.AttentionInput{AppState: appState(true, sensor.Background)}, 0.1, edge.Low},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res := s.Score(tc.in)
			require.InDelta(t, tc.score, res.Score, 1e-9)
			require.Equal(t, tc.level, res.Level)
		})
	}
}

func TestScoreUnknownFactors(t *testing.T) {
	res := edge.NewAttentionScorer().Score(edge.AttentionInput{
		AppState: &sensor.AppStateSummary{TotalRecords: 1},
	})
	require.Equal(t, "unknown", res.Factors.Motion)
	require.Equal(t, "unknown", res.Factors.AppState)
}

func TestLevelColor(t *testing.T) {
	require.Equal(t, "green", edge.High.Color())
	require.Equal(t, "yellow", edge.Medium.Color())
	require.Equal(t, "red", edge.Low.Color())
}

func TestLowAttentionPeriods(t *testing.T) {
	got := edge.LowAttentionPeriods([]edge.Level{
		edge.Low, edge.Low, edge.Medium, edge.Low, edge.High, edge.Low,
	})
	require.Equal(t, []edge.LowAttentionPeriod{
		{Start: 0, End: 1, Duration: 2},
		{Start: 3, End: 3, Duration: 1},
		{Start: 5, End: 5, Duration: 1},
	}, got)

	require.Empty(t, edge.LowAttentionPeriods([]edge.Level{edge.High}))
}

func TestGenerateTimeline(t *testing.T) {
	low := edge.AttentionInput{AppState: appState(true, sensor.Background)}
	medium := edge.AttentionInput{AppState: appState(true, sensor.Active)}
	high := edge.AttentionInput{}

	tl, err := edge.NewAttentionScorer().GenerateTimeline(
		[]edge.AttentionInput{low, low, medium, low, high, low},
	)
	require.NoError(t, err)
	require.Len(t, tl.Entries, 6)
	require.Equal(t, []edge.LowAttentionPeriod{
		{Start: 0, End: 1, Duration: 2},
		{Start: 3, End: 3, Duration: 1},
		{Start: 5, End: 5, Duration: 1},
	}, tl.LowAttentionPeriods)
	require.InDelta(t, (0.1*4+0.6+1.0)/6, tl.AverageScore, 1e-9)
}

func TestGenerateTimelineEmpty(t *testing.T) {
	_, err := edge.NewAttentionScorer().GenerateTimeline(nil)
	require.True(t, errors.IsKind(err, errors.EmptyInputError))
}
