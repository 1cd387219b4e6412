// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package sensor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/visisec/edge-sdk/internal/log"
	"github.com/visisec/edge-sdk/internal/wallclock"
)

type (
	// AppStateSummary summarizes the app-state history.
	AppStateSummary struct {
		Distracted bool `json:"distracted"`
		Switches   int  `json:"switches"`

		// CurrentState is empty when too few records exist to analyze.
		CurrentState AppState `json:"currentState,omitempty"`
		TotalRecords int      `json:"totalRecords"`
	}

	// AppStateMonitor records foreground/background transitions of the host
	// application in a bounded history.
	AppStateMonitor struct {
		mu      sync.Mutex
		current AppState
		history *RollingBuffer[AppStateRecord]
		log     log.Logger
	}
)

// DistractionSwitches is the number of background records above which the
// user is considered distracted.
const DistractionSwitches = 3

// NewAppStateMonitor creates a monitor that starts in the active state and
// keeps at most capacity records.
func NewAppStateMonitor(capacity int, logger *slog.Logger) *AppStateMonitor {
	return &AppStateMonitor{
		current: Active,
		history: NewRollingBuffer[AppStateRecord](capacity),
		log:     log.Wrap(logger),
	}
}

// Record appends a state transition.
func (m *AppStateMonitor) Record(state AppState, reason string) AppStateRecord {
	m.mu.Lock()
	rec := AppStateRecord{
		Timestamp:     wallclock.UnixMilli(),
		State:         state,
		Reason:        reason,
		PreviousState: m.current,
	}
	m.current = state
	m.history.Push(rec)
	m.mu.Unlock()

	m.log.Log(context.Background(), slog.LevelDebug, "app state changed",
		slog.String("from", string(rec.PreviousState)),
		slog.String("to", string(state)),
		slog.String("reason", reason),
	)
	return rec
}

// Current returns the most recently recorded state.
func (m *AppStateMonitor) Current() AppState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns a copy of the recorded transitions in order.
func (m *AppStateMonitor) History() []AppStateRecord {
	return m.history.All()
}

// Analyze summarizes the recorded history.
func (m *AppStateMonitor) Analyze() AppStateSummary {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()
	return AnalyzeAppState(m.history.All(), current)
}

// AnalyzeAppState summarizes a history of app-state records.
func AnalyzeAppState(history []AppStateRecord, current AppState) AppStateSummary {
	if len(history) < 2 {
		return AppStateSummary{TotalRecords: len(history)}
	}

	var switches int
	for _, r := range history {
		if r.State == Background {
			switches++
		}
	}

	return AppStateSummary{
		Distracted:   switches > DistractionSwitches,
		Switches:     switches,
		CurrentState: current,
		TotalRecords: len(history),
	}
}
