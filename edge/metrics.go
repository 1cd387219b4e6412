// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package edge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records pipeline activity. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Ticks         prometheus.Counter
	Keyframes     prometheus.Counter
	SceneErrors   *prometheus.CounterVec
	Extractions   *prometheus.CounterVec
	TickDuration  prometheus.Histogram
	AttentionLast prometheus.Gauge
	ChangeRatio   prometheus.Histogram
}

const metricsNamespace = "edge"

// NewMetrics creates the pipeline metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ticks_total",
			Help:      "Total frames or sensor ticks processed by the pipeline.",
		}),
		Keyframes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "keyframes_total",
			Help:      "Ticks whose scene change qualified as a keyframe.",
		}),
		SceneErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "scene_errors_total",
			Help:      "Scene change failures by error kind.",
		}, []string{"kind"}),
		Extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "text_extractions_total",
			Help:      "Text extraction invocations by outcome.",
		}, []string{"outcome"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent processing one tick.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		AttentionLast: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "attention_score",
			Help:      "Most recent attention score.",
		}),
		ChangeRatio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "scene_change_ratio",
			Help:      "Distribution of scene change ratios.",
			Buckets:   prometheus.LinearBuckets(0.05, 0.05, 10),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.Ticks,
		m.Keyframes,
		m.SceneErrors,
		m.Extractions,
		m.TickDuration,
		m.AttentionLast,
		m.ChangeRatio,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(res *TickResult, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.Ticks.Inc()
	m.TickDuration.Observe(elapsed.Seconds())
	if res.Attention != nil {
		m.AttentionLast.Set(res.Attention.Score)
	}
	if res.SceneChange != nil {
		m.ChangeRatio.Observe(res.SceneChange.ChangeRatio)
	}
	if res.IsKeyframe {
		m.Keyframes.Inc()
	}
	if res.SceneErr != nil {
		m.SceneErrors.WithLabelValues(errorKind(res.SceneErr)).Inc()
	}
	switch {
	case res.OCRErr != nil:
		m.Extractions.WithLabelValues("failed").Inc()
	case res.OCR != nil:
		m.Extractions.WithLabelValues("succeeded").Inc()
	}
}
