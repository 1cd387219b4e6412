// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/visisec/edge-sdk/agent"
	"github.com/visisec/edge-sdk/config"
	"github.com/visisec/edge-sdk/edge"
	"github.com/visisec/edge-sdk/sensor"
	"github.com/visisec/edge-sdk/session"
	"github.com/visisec/edge-sdk/transport"
	"github.com/visisec/edge-sdk/upload"
)

type flags struct {
	config      string
	connStr     string
	title       string
	frames      string
	samples     string
	interval    time.Duration
	metricsAddr string
}

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var f flags
	flagSet := pflag.NewFlagSet("edge-agent", pflag.ContinueOnError)
	flagSet.StringVar(&f.config, "config", "", "YAML settings file")
	flagSet.StringVar(&f.connStr, "connection-string", "", "settings as Key=Value;... (overrides --config)")
	flagSet.StringVar(&f.title, "title", "Edge session", "meeting title for the session")
	flagSet.StringVar(&f.frames, "frames", "", "directory of captured frames to replay in name order")
	flagSet.StringVar(&f.samples, "samples", "", "JSON-lines file of motion samples to replay")
	flagSet.DurationVar(&f.interval, "interval", 0, "tick interval (overrides settings)")
	flagSet.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	settings, err := loadSettings(f)
	if err != nil {
		return err
	}
	if f.interval > 0 {
		settings.TickInterval = config.Duration(f.interval)
	}

	level, err := settings.Level()
	if err != nil {
		return err
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	edgeMetrics, err := edge.NewMetrics(reg)
	if err != nil {
		return err
	}
	agentMetrics, err := agent.NewMetrics(reg)
	if err != nil {
		return err
	}

	enc, err := settings.Codec()
	if err != nil {
		return err
	}
	dial, err := settings.Dialer(enc)
	if err != nil {
		return err
	}
	tr, err := transport.New(dial, settings.TransportOptions(enc, logger)...)
	if err != nil {
		return err
	}
	ctrl, err := session.NewController(tr, settings.SessionOptions(logger)...)
	if err != nil {
		return err
	}
	defer ctrl.Close(context.Background())

	detector := edge.NewSceneChangeDetector(settings.SceneOptions(logger)...)
	defer detector.Close()
	if err := detector.Initialize(); err != nil {
		// Ticks still score attention; scene results report the failure.
		logger.Warn("scene change detection unavailable", slog.Any("error", err))
	}

	pipeline, err := edge.NewPipeline(
		detector,
		edge.NewAttentionScorer(edge.WithLogger(logger)),
		edge.WithMetrics{Metrics: edgeMetrics},
		edge.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	opts := []agent.Option{
		agent.WithBufferCapacity(settings.BufferCapacity),
		agent.WithMetrics{Metrics: agentMetrics},
		agent.WithLogger(logger),
	}
	if settings.UploadURL != "" {
		up, err := upload.NewClient(settings.UploadURL, upload.WithLogger(logger))
		if err != nil {
			return err
		}
		opts = append(opts, agent.WithUploader{Uploader: up})
	}
	a, err := agent.New(pipeline, ctrl, opts...)
	if err != nil {
		return err
	}
	defer tr.RegisterLifecycleHandler(a.ObserveLifecycle)()

	ctrl.OnAnalysisResult(logInbound(logger))
	ctrl.OnSummaryUpdate(logInbound(logger))

	if f.metricsAddr != "" {
		srv := serveMetrics(f.metricsAddr, reg, logger)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	frames, err := listFrames(f.frames)
	if err != nil {
		return err
	}
	samples, err := readSamples(f.samples)
	if err != nil {
		return err
	}

	s, err := a.Start(ctx, f.title)
	if err != nil {
		return err
	}
	logger.Info("session started",
		slog.String("session_id", s.SessionID),
		slog.String("title", f.title),
	)

	replay(ctx, a, frames, samples, time.Duration(settings.TickInterval), logger)

	// The run context may already be cancelled by a signal.
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	timeline, err := a.Stop(sctx)
	if err != nil {
		return err
	}
	if timeline != nil {
		logger.Info("session ended",
			slog.Int("ticks", len(timeline.Entries)),
			slog.Float64("average_attention", timeline.AverageScore),
			slog.Int("low_attention_periods", len(timeline.LowAttentionPeriods)),
		)
	}
	return nil
}

func loadSettings(f flags) (config.Settings, error) {
	s := config.Default()
	if f.config != "" {
		if err := s.ApplyFile(f.config); err != nil {
			return s, err
		}
	}
	if f.connStr != "" {
		if err := s.ApplyConnectionString(f.connStr); err != nil {
			return s, err
		}
	}
	if err := s.ApplyEnv(os.Environ()); err != nil {
		return s, err
	}
	return s, s.Validate()
}

// Replay frames and samples at the tick interval. Samples are spread evenly
// across the frames; without frames, the agent ticks on sensor data alone
// until the samples run out, or until cancelled if there are none.
func replay(
	ctx context.Context,
	a *agent.Agent,
	frames []string,
	samples []sensor.Sample,
	interval time.Duration,
	logger *slog.Logger,
) {
	ticks := len(frames)
	if ticks == 0 && len(samples) > 0 {
		ticks = (len(samples) + sensor.MotionWindow - 1) / sensor.MotionWindow
	}
	perTick := len(samples)
	if ticks > 0 {
		perTick = (len(samples) + ticks - 1) / ticks
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ticks == 0 || i < ticks; i++ {
		for range min(perTick, len(samples)) {
			a.IngestSample(samples[0])
			samples = samples[1:]
		}

		var frame *edge.Frame
		if i < len(frames) {
			var err error
			if frame, err = readFrame(frames[i]); err != nil {
				logger.Warn("skipping unreadable frame",
					slog.String("path", frames[i]),
					slog.Any("error", err),
				)
			}
		}

		if _, err := a.Tick(ctx, frame); err != nil {
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func logInbound(logger *slog.Logger) transport.Handler {
	return func(ctx context.Context, msg *transport.Message) {
		var v map[string]any
		if err := msg.Decode(&v); err != nil {
			logger.WarnContext(ctx, "undecodable server message", slog.Any("error", err))
			return
		}
		logger.InfoContext(ctx, msg.Event.String(), slog.Any("payload", v))
	}
}

func serveMetrics(
	addr string,
	reg *prometheus.Registry,
	logger *slog.Logger,
) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil &&
			!stderrors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server exited", slog.Any("error", err))
		}
	}()
	return srv
}
