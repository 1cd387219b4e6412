// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package edge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/visisec/edge-sdk/errors"
	"github.com/visisec/edge-sdk/internal/log"
	"github.com/visisec/edge-sdk/internal/wallclock"
)

type (
	// ChangeResult classifies one frame against the reference frame.
	ChangeResult struct {
		Changed     bool    `json:"changed"`
		ChangeRatio float64 `json:"changeRatio"`
		IsKeyframe  bool    `json:"isKeyframe"`
		Timestamp   int64   `json:"timestamp"`
	}

	// SceneChangeDetector compares each frame against the last frame judged
	// changed. It is insensitive to slow drift and reports step changes.
	SceneChangeDetector struct {
		threshold float64
		size      int
		decoder   Decoder
		log       log.Logger

		mu          sync.Mutex
		initialized bool
		reference   *tensor
		pool        sync.Pool
	}

	// SceneOption represents a single scene change detector option.
	SceneOption interface{ scene(*SceneOptions) }

	// SceneOptions are the resolved scene change detector options.
	SceneOptions struct {
		Threshold float64
		Size      int
		Decoder   Decoder
		Logger    *slog.Logger
	}

	// WithThreshold sets the change threshold θ. Frames with a change ratio
	// above θ are changed; above 2θ they are keyframes.
	WithThreshold float64

	// WithCanonicalSize sets the side length frames are resized to before
	// comparison.
	WithCanonicalSize int

	// WithDecoder replaces the frame decoder.
	WithDecoder struct{ Decoder }

	tensor struct{ data []float32 }
)

// Scene detector defaults.
const (
	DefaultThreshold     = 0.15
	DefaultCanonicalSize = 224
)

// NewSceneChangeDetector creates a detector. It is not initialized until
// Initialize or the first DetectChange call.
func NewSceneChangeDetector(opt ...SceneOption) *SceneChangeDetector {
	opts := SceneOptions{
		Threshold: DefaultThreshold,
		Size:      DefaultCanonicalSize,
		Decoder:   ImageDecoder{},
	}
	opts.Apply(opt)

	d := &SceneChangeDetector{
		threshold: opts.Threshold,
		size:      opts.Size,
		decoder:   opts.Decoder,
		log:       log.Wrap(opts.Logger),
	}
	d.pool.New = func() any {
		return &tensor{data: make([]float32, d.size*d.size*3)}
	}
	return d
}

// Initialize validates the configuration and checks that the decoder is
// functional. It is idempotent.
func (d *SceneChangeDetector) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialize()
}

func (d *SceneChangeDetector) initialize() error {
	if d.initialized {
		return nil
	}

	switch {
	case d.decoder == nil:
		return &errors.Error{
			Message:      "no frame decoder available",
			Kind:         errors.InitError,
			PropertyName: "Decoder",
		}
	case d.size <= 0:
		return &errors.Error{
			Message:       "canonical size must be positive",
			Kind:          errors.InitError,
			PropertyName:  "Size",
			PropertyValue: d.size,
		}
	case d.threshold <= 0 || d.threshold >= 1:
		return &errors.Error{
			Message:       "threshold must be in (0,1)",
			Kind:          errors.InitError,
			PropertyName:  "Threshold",
			PropertyValue: d.threshold,
		}
	}

	probe := d.acquire()
	defer d.release(probe)
	if err := d.decoder.Decode(probeImage(), d.size, probe.data); err != nil {
		return &errors.Error{
			Message:     "frame decoder is not functional",
			Kind:        errors.InitError,
			NestedError: err,
		}
	}

	d.initialized = true
	d.log.Log(context.Background(), slog.LevelInfo, "scene detector initialized",
		slog.Float64("threshold", d.threshold),
		slog.Int("size", d.size),
	)
	return nil
}

// DetectChange classifies a frame against the current reference. The first
// frame after initialization or Reset becomes the reference and is reported as
// unchanged.
func (d *SceneChangeDetector) DetectChange(
	ctx context.Context,
	frame *Frame,
) (*ChangeResult, error) {
	if err := d.Initialize(); err != nil {
		return nil, err
	}
	if frame == nil {
		return nil, &errors.Error{
			Message:      "frame is required",
			Kind:         errors.ArgumentInvalid,
			PropertyName: "frame",
		}
	}

	cur := d.acquire()
	retained := false
	defer func() {
		if !retained {
			d.release(cur)
		}
	}()

	if err := d.decoder.Decode(frame.Image, d.size, cur.data); err != nil {
		if !errors.IsKind(err, errors.DecodeError) {
			err = &errors.Error{
				Message:     "cannot decode frame",
				Kind:        errors.DecodeError,
				NestedError: err,
			}
		}
		return nil, err
	}

	ts := frame.Timestamp
	if ts == 0 {
		ts = wallclock.UnixMilli()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reference == nil {
		d.reference = cur
		retained = true
		return &ChangeResult{Timestamp: ts}, nil
	}

	res := Classify(meanAbsDiff(cur.data, d.reference.data), d.threshold)
	res.Timestamp = ts

	if res.Changed {
		old := d.reference
		d.reference = cur
		retained = true
		d.release(old)
	}

	d.log.Log(ctx, slog.LevelDebug, "scene compared",
		slog.Float64("change_ratio", res.ChangeRatio),
		slog.Bool("changed", res.Changed),
		slog.Bool("keyframe", res.IsKeyframe),
	)
	return &res, nil
}

// Reset releases the reference frame so the next frame bootstraps a new one.
func (d *SceneChangeDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reference != nil {
		d.release(d.reference)
		d.reference = nil
	}
}

// Close releases all held resources and returns the detector to the
// uninitialized state.
func (d *SceneChangeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reference != nil {
		d.release(d.reference)
		d.reference = nil
	}
	d.initialized = false
	return nil
}

// Threshold returns the configured change threshold.
func (d *SceneChangeDetector) Threshold() float64 {
	return d.threshold
}

// Classify applies the change and keyframe thresholds to a change ratio.
func Classify(ratio, threshold float64) ChangeResult {
	return ChangeResult{
		Changed:     ratio > threshold,
		ChangeRatio: ratio,
		IsKeyframe:  ratio > 2*threshold,
	}
}

func meanAbsDiff(a, b []float32) float64 {
	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		if diff < 0 {
			diff = -diff
		}
		sum += diff
	}
	return sum / float64(len(a))
}

func (d *SceneChangeDetector) acquire() *tensor {
	return d.pool.Get().(*tensor)
}

func (d *SceneChangeDetector) release(t *tensor) {
	d.pool.Put(t)
}

// Apply resolves the provided list of options.
func (o *SceneOptions) Apply(opts []SceneOption, rest ...SceneOption) {
	for _, opt := range opts {
		if opt != nil {
			opt.scene(o)
		}
	}
	for _, opt := range rest {
		if opt != nil {
			opt.scene(o)
		}
	}
}

func (o *SceneOptions) scene(opt *SceneOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithThreshold) scene(opt *SceneOptions) {
	opt.Threshold = float64(o)
}

func (o WithCanonicalSize) scene(opt *SceneOptions) {
	opt.Size = int(o)
}

func (o WithDecoder) scene(opt *SceneOptions) {
	opt.Decoder = o.Decoder
}
