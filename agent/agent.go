// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package agent

import (
	"context"
	"log/slog"

	"github.com/visisec/edge-sdk/edge"
	"github.com/visisec/edge-sdk/errors"
	"github.com/visisec/edge-sdk/internal/log"
	"github.com/visisec/edge-sdk/sensor"
	"github.com/visisec/edge-sdk/session"
	"github.com/visisec/edge-sdk/transport"
	"github.com/visisec/edge-sdk/upload"
)

type (
	// Session is the session the agent reports to. It is satisfied by
	// *session.Controller.
	Session interface {
		StartSession(ctx context.Context, title string) (session.Session, error)
		EndSession(ctx context.Context) error
		SendSensorData(ctx context.Context, data session.SensorData) error
		SendKeyframe(ctx context.Context, kf session.Keyframe) error
		Status() session.Status
	}

	// Uploader sends recorded media. It is satisfied by *upload.Client.
	Uploader interface {
		Upload(
			ctx context.Context,
			kind upload.Kind,
			name string,
			contentType string,
			data []byte,
		) (string, error)
	}

	// Agent ties sensor ingestion, the analysis pipeline, and the session
	// together. Sample ingestion never touches the network; each tick
	// analyzes the buffered state and forwards the result to the session.
	Agent struct {
		samples  *sensor.RollingBuffer[sensor.Sample]
		motion   *sensor.MotionAnalyzer
		appState *sensor.AppStateMonitor
		pipeline *edge.Pipeline
		session  Session
		uploader Uploader
		metrics  *Metrics
		images   bool
		log      log.Logger

		// Attention inputs of the current session, for its timeline.
		timeline *sensor.RollingBuffer[edge.AttentionInput]
	}
)

// New creates an agent over the given pipeline and session.
func New(
	pipeline *edge.Pipeline,
	sess Session,
	opt ...Option,
) (*Agent, error) {
	if pipeline == nil || sess == nil {
		return nil, &errors.Error{
			Message:      "pipeline and session are required",
			Kind:         errors.ArgumentInvalid,
			PropertyName: "pipeline",
		}
	}

	opts := Options{
		BufferCapacity:   sensor.DefaultCapacity,
		TimelineCapacity: DefaultTimelineCapacity,
	}
	opts.Apply(opt)

	samples := sensor.NewRollingBuffer[sensor.Sample](opts.BufferCapacity)
	return &Agent{
		samples:  samples,
		motion:   sensor.NewMotionAnalyzer(samples),
		appState: sensor.NewAppStateMonitor(opts.BufferCapacity, opts.Logger),
		pipeline: pipeline,
		session:  sess,
		uploader: opts.Uploader,
		metrics:  opts.Metrics,
		images:   opts.KeyframeImages,
		log:      log.Wrap(opts.Logger),
		timeline: sensor.NewRollingBuffer[edge.AttentionInput](
			opts.TimelineCapacity,
		),
	}, nil
}

// IngestSample buffers a motion sample. It never blocks on the network.
func (a *Agent) IngestSample(s sensor.Sample) {
	a.samples.Push(s)
	a.metrics.sample()
}

// RecordAppState records an app visibility transition.
func (a *Agent) RecordAppState(
	state sensor.AppState,
	reason string,
) sensor.AppStateRecord {
	return a.appState.Record(state, reason)
}

// Tick analyzes the buffered sensor state and the frame, which may be nil,
// and forwards the result to the active session. Only cancellation returns
// an error; analysis and send failures are logged.
func (a *Agent) Tick(ctx context.Context, frame *edge.Frame) (*edge.TickResult, error) {
	motion := a.motion.Analyze()
	app := a.appState.Analyze()
	in := edge.AttentionInput{Motion: &motion, AppState: &app}

	res, err := a.pipeline.ProcessFrame(ctx, frame, in)
	if err != nil {
		return nil, err
	}
	if !a.session.Status().HasActiveSession {
		a.metrics.dropped(transport.SensorData.String())
		a.log.Log(ctx, slog.LevelDebug, "no active session; tick not sent",
			slog.Int64("timestamp", res.Timestamp),
		)
		return res, nil
	}

	in.Timestamp = res.Timestamp
	a.timeline.Push(in)

	a.send(ctx, transport.SensorData, a.session.SendSensorData(ctx, session.SensorData{
		Timestamp:   res.Timestamp,
		Motion:      &motion,
		AppState:    &app,
		Attention:   res.Attention,
		SceneChange: res.SceneChange,
	}))

	if res.IsKeyframe && frame != nil {
		kf := session.Keyframe{
			Timestamp:   res.Timestamp,
			Source:      frame.Source,
			Format:      frame.Format,
			Width:       frame.Width,
			Height:      frame.Height,
			ChangeRatio: res.SceneChange.ChangeRatio,
		}
		if a.images {
			kf.Image = frame.Image
		}
		if res.OCR != nil {
			kf.Text = res.OCR.Text
			kf.TextConfidence = res.OCR.Confidence
		}
		a.send(ctx, transport.Keyframe, a.session.SendKeyframe(ctx, kf))
	}

	return res, nil
}

func (a *Agent) send(ctx context.Context, event transport.Event, err error) {
	switch {
	case err == nil:
		a.metrics.sent(event.String())
	case errors.IsKind(err, errors.NoActiveSessionWarning):
		// The session ended between the status check and the send.
		a.metrics.dropped(event.String())
	default:
		a.metrics.failed(event.String())
		a.log.Err(ctx, err)
	}
}

// Start begins a new session. The session timeline starts empty.
func (a *Agent) Start(ctx context.Context, title string) (session.Session, error) {
	s, err := a.session.StartSession(ctx, title)
	if err != nil {
		return session.Session{}, err
	}
	a.timeline.Clear()
	a.metrics.active(true)
	return s, nil
}

// Stop ends the session and returns the attention timeline of its ticks,
// or nil if there were none. The timeline is handed over once.
func (a *Agent) Stop(ctx context.Context) (*edge.Timeline, error) {
	if err := a.session.EndSession(ctx); err != nil {
		return nil, err
	}
	a.metrics.active(false)

	inputs := a.timeline.All()
	a.timeline.Clear()
	if len(inputs) == 0 {
		return nil, nil
	}
	return a.pipeline.Scorer().GenerateTimeline(inputs)
}

// Upload sends recorded media through the configured uploader.
func (a *Agent) Upload(
	ctx context.Context,
	kind upload.Kind,
	name string,
	contentType string,
	data []byte,
) (string, error) {
	if a.uploader == nil {
		return "", &errors.Error{
			Message:      "uploads are not configured",
			Kind:         errors.ConfigurationInvalid,
			PropertyName: "UploadURL",
		}
	}
	return a.uploader.Upload(ctx, kind, name, contentType, data)
}

// ObserveLifecycle is a transport lifecycle handler recording connection
// health.
func (a *Agent) ObserveLifecycle(e *transport.LifecycleEvent) {
	a.metrics.lifecycle(e.Kind.String())

	ctx := context.Background()
	attrs := []slog.Attr{
		slog.String("kind", e.Kind.String()),
		slog.String("state", e.State.String()),
	}
	if e.Attempt > 0 {
		attrs = append(attrs, slog.Uint64("attempt", e.Attempt))
	}

	switch e.Kind {
	case transport.LifecycleConnected:
		a.log.Log(ctx, slog.LevelInfo, "transport connected", attrs...)
	case transport.LifecycleReconnectFailed:
		a.log.Log(ctx, slog.LevelError, "transport gave up reconnecting", attrs...)
	default:
		if e.Err != nil {
			attrs = append(attrs, slog.String("error", e.Err.Error()))
		}
		a.log.Log(ctx, slog.LevelWarn, "transport "+e.Kind.String(), attrs...)
	}
}

// Samples returns the number of buffered motion samples.
func (a *Agent) Samples() int {
	return a.samples.Len()
}
