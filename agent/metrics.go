// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package agent

import "github.com/prometheus/client_golang/prometheus"

// Metrics records agent activity. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Samples   prometheus.Counter
	Sent      *prometheus.CounterVec
	Dropped   *prometheus.CounterVec
	Failed    *prometheus.CounterVec
	Lifecycle *prometheus.CounterVec
	Active    prometheus.Gauge
}

const (
	metricsNamespace = "edge"
	metricsSubsystem = "agent"
)

// NewMetrics creates the agent metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "samples_total",
			Help:      "Motion samples ingested.",
		}),
		Sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_sent_total",
			Help:      "Session messages sent by event.",
		}, []string{"event"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_dropped_total",
			Help:      "Session messages dropped for lack of an active session.",
		}, []string{"event"}),
		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_failed_total",
			Help:      "Session messages that could not be sent.",
		}, []string{"event"}),
		Lifecycle: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "transport_lifecycle_total",
			Help:      "Transport lifecycle notifications by kind.",
		}, []string{"kind"}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "session_active",
			Help:      "1 while a session is active.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.Samples,
		m.Sent,
		m.Dropped,
		m.Failed,
		m.Lifecycle,
		m.Active,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) sample() {
	if m != nil {
		m.Samples.Inc()
	}
}

func (m *Metrics) sent(event string) {
	if m != nil {
		m.Sent.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) dropped(event string) {
	if m != nil {
		m.Dropped.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) failed(event string) {
	if m != nil {
		m.Failed.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) lifecycle(kind string) {
	if m != nil {
		m.Lifecycle.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) active(on bool) {
	if m == nil {
		return
	}
	if on {
		m.Active.Set(1)
	} else {
		m.Active.Set(0)
	}
}
