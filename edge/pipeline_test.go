// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package edge_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/visisec/edge-sdk/edge"
	"github.com/visisec/edge-sdk/errors"
	"github.com/visisec/edge-sdk/sensor"
)

type countingExtractor struct {
	calls atomic.Int32
	err   error
	conf  float64
}

func (c *countingExtractor) Extract(
	context.Context,
	[]byte,
) (*edge.TextResult, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &edge.TextResult{Text: "Quarterly results", Confidence: c.conf}, nil
}

func newPipeline(
	t *testing.T,
	x edge.TextExtractor,
) (*edge.Pipeline, *edge.Metrics) {
	t.Helper()
	m, err := edge.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	p, err := edge.NewPipeline(
		edge.NewSceneChangeDetector(edge.WithCanonicalSize(8)),
		edge.NewAttentionScorer(),
		edge.WithTextExtractor{TextExtractor: x},
		edge.WithMetrics{Metrics: m},
	)
	require.NoError(t, err)
	return p, m
}

func TestPipelineExtractsOnlyOnKeyframes(t *testing.T) {
	ctx := context.Background()
	x := &countingExtractor{conf: 0.9}
	p, m := newPipeline(t, x)

	in := edge.AttentionInput{Motion: &sensor.MotionSummary{Movement: sensor.Minimal}}

	// Bootstrap, small change, then a keyframe.
	for _, level := range []uint8{0, 51, 255} {
		_, err := p.ProcessFrame(ctx, grayFrame(t, level), in)
		require.NoError(t, err)
	}

	require.Equal(t, int32(1), x.calls.Load())
	require.Equal(t, 3.0, testutil.ToFloat64(m.Ticks))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Keyframes))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Extractions.WithLabelValues("succeeded")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.AttentionLast))
}

func TestPipelineKeyframeResult(t *testing.T) {
	ctx := context.Background()
	p, _ := newPipeline(t, &countingExtractor{conf: 0.75})

	_, err := p.ProcessFrame(ctx, grayFrame(t, 0), edge.AttentionInput{})
	require.NoError(t, err)

	res, err := p.ProcessFrame(ctx, grayFrame(t, 200), edge.AttentionInput{})
	require.NoError(t, err)
	require.True(t, res.IsKeyframe)
	require.NotNil(t, res.SceneChange)
	require.Equal(t, "Quarterly results", res.OCR.Text)
	require.Equal(t, res.Timestamp, res.OCR.Timestamp)
	require.Equal(t, edge.High, res.Attention.Level)
	require.NoError(t, res.OCRErr)
}

func TestPipelineDecodeErrorDoesNotAbort(t *testing.T) {
	p, m := newPipeline(t, nil)

	res, err := p.ProcessFrame(
		context.Background(),
		&edge.Frame{Image: []byte{0xde, 0xad}},
		edge.AttentionInput{},
	)
	require.NoError(t, err)
	require.Nil(t, res.SceneChange)
	require.True(t, errors.IsKind(res.SceneErr, errors.DecodeError))
	require.NotNil(t, res.Attention)
	require.Equal(t, 1.0, testutil.ToFloat64(m.SceneErrors.WithLabelValues("decode_error")))
}

func TestPipelineExtractionError(t *testing.T) {
	ctx := context.Background()
	p, m := newPipeline(t, &countingExtractor{err: fmt.Errorf("engine crashed")})

	_, err := p.ProcessFrame(ctx, grayFrame(t, 0), edge.AttentionInput{})
	require.NoError(t, err)
	res, err := p.ProcessFrame(ctx, grayFrame(t, 255), edge.AttentionInput{})
	require.NoError(t, err)

	require.True(t, res.IsKeyframe)
	require.Nil(t, res.OCR)
	require.True(t, errors.IsKind(res.OCRErr, errors.ExtractionError))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Extractions.WithLabelValues("failed")))
}

func TestPipelineConfidenceOutOfRange(t *testing.T) {
	ctx := context.Background()
	p, _ := newPipeline(t, &countingExtractor{conf: 1.5})

	_, err := p.ProcessFrame(ctx, grayFrame(t, 0), edge.AttentionInput{})
	require.NoError(t, err)
	res, err := p.ProcessFrame(ctx, grayFrame(t, 255), edge.AttentionInput{})
	require.NoError(t, err)
	require.True(t, errors.IsKind(res.OCRErr, errors.ExtractionError))
}

func TestPipelineSensorOnlyTick(t *testing.T) {
	p, _ := newPipeline(t, nil)
	res, err := p.ProcessFrame(context.Background(), nil, edge.AttentionInput{
		AppState: &sensor.AppStateSummary{CurrentState: sensor.Background},
	})
	require.NoError(t, err)
	require.Nil(t, res.SceneChange)
	require.NoError(t, res.SceneErr)
	require.Equal(t, edge.Medium, res.Attention.Level)
}

func TestPipelineCancelled(t *testing.T) {
	p, _ := newPipeline(t, &countingExtractor{conf: 0.5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ProcessFrame(ctx, grayFrame(t, 3), edge.AttentionInput{})
	require.True(t, errors.IsKind(err, errors.Cancellation))
}

func TestNewPipelineRequiresComponents(t *testing.T) {
	_, err := edge.NewPipeline(nil, edge.NewAttentionScorer())
	require.True(t, errors.IsKind(err, errors.ArgumentInvalid))
}
