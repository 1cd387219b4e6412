// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package edge

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/visisec/edge-sdk/errors"
	"github.com/visisec/edge-sdk/internal/log"
	"github.com/visisec/edge-sdk/internal/wallclock"
	"golang.org/x/sync/errgroup"
)

type (
	// TickResult is the unified result of one pipeline tick. Per-stage
	// failures are recorded on the result rather than aborting the tick.
	TickResult struct {
		Timestamp   int64            `json:"timestamp"`
		SceneChange *ChangeResult    `json:"sceneChange,omitempty"`
		SceneErr    error            `json:"-"`
		Attention   *AttentionResult `json:"attention"`
		OCR         *TextResult      `json:"ocr,omitempty"`
		OCRErr      error            `json:"-"`
		IsKeyframe  bool             `json:"isKeyframe"`
	}

	// Pipeline runs scene change detection and attention scoring for each
	// tick, invoking text extraction only on keyframes.
	Pipeline struct {
		detector  *SceneChangeDetector
		scorer    *AttentionScorer
		extractor TextExtractor
		metrics   *Metrics
		log       log.Logger
	}

	// PipelineOption represents a single pipeline option.
	PipelineOption interface{ pipeline(*PipelineOptions) }

	// PipelineOptions are the resolved pipeline options.
	PipelineOptions struct {
		Extractor TextExtractor
		Metrics   *Metrics
		Logger    *slog.Logger
	}

	// WithTextExtractor enables text extraction on keyframes.
	WithTextExtractor struct{ TextExtractor }

	// WithMetrics records pipeline activity.
	WithMetrics struct{ *Metrics }
)

// NewPipeline creates a pipeline over the given detector and scorer.
func NewPipeline(
	detector *SceneChangeDetector,
	scorer *AttentionScorer,
	opt ...PipelineOption,
) (*Pipeline, error) {
	if detector == nil || scorer == nil {
		return nil, &errors.Error{
			Message:      "detector and scorer are required",
			Kind:         errors.ArgumentInvalid,
			PropertyName: "detector",
		}
	}

	var opts PipelineOptions
	for _, o := range opt {
		if o != nil {
			o.pipeline(&opts)
		}
	}

	return &Pipeline{
		detector:  detector,
		scorer:    scorer,
		extractor: opts.Extractor,
		metrics:   opts.Metrics,
		log:       log.Wrap(opts.Logger),
	}, nil
}

// ProcessFrame runs one tick. The frame may be nil for sensor-only ticks, in
// which case no scene change is computed. Only cancellation of ctx returns an
// error; decode, initialization, and extraction failures are recorded on the
// result.
func (p *Pipeline) ProcessFrame(
	ctx context.Context,
	frame *Frame,
	in AttentionInput,
) (*TickResult, error) {
	if ctx.Err() != nil {
		return nil, errors.Context(ctx, "pipeline tick")
	}
	start := wallclock.Instance.Now()

	res := &TickResult{Timestamp: start.UnixMilli()}
	if frame != nil && frame.Timestamp != 0 {
		res.Timestamp = frame.Timestamp
	}
	if in.Timestamp == 0 {
		in.Timestamp = res.Timestamp
	}

	g, gctx := errgroup.WithContext(ctx)

	if frame != nil {
		g.Go(func() error {
			change, err := p.detector.DetectChange(gctx, frame)
			if err != nil {
				res.SceneErr = err
				return cancelled(gctx)
			}
			res.SceneChange = change
			res.IsKeyframe = change.IsKeyframe

			if !change.IsKeyframe || p.extractor == nil {
				return nil
			}
			res.OCR, res.OCRErr = extract(gctx, p.extractor, frame)
			return cancelled(gctx)
		})
	}

	g.Go(func() error {
		a := p.scorer.Score(in)
		res.Attention = &a
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if res.SceneErr != nil {
		p.log.Warn(ctx, res.SceneErr)
	}
	if res.OCRErr != nil {
		p.log.Warn(ctx, res.OCRErr)
	}
	p.log.Log(ctx, slog.LevelDebug, "tick processed",
		slog.Int64("timestamp", res.Timestamp),
		slog.Bool("keyframe", res.IsKeyframe),
		slog.Float64("attention", res.Attention.Score),
	)

	p.metrics.observe(res, wallclock.Instance.Now().Sub(start))
	return res, nil
}

// Scorer returns the attention scorer used for each tick.
func (p *Pipeline) Scorer() *AttentionScorer {
	return p.scorer
}

func cancelled(ctx context.Context) error {
	if ctx.Err() != nil {
		return errors.Context(ctx, "pipeline tick")
	}
	return nil
}

func errorKind(err error) string {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Kind.String()
	}
	return errors.UnknownError.String()
}

func (o WithTextExtractor) pipeline(opt *PipelineOptions) {
	opt.Extractor = o.TextExtractor
}

func (o WithMetrics) pipeline(opt *PipelineOptions) {
	opt.Metrics = o.Metrics
}
