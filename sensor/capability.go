// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package sensor

import (
	"context"
	"log/slog"

	"github.com/visisec/edge-sdk/errors"
	"github.com/visisec/edge-sdk/internal/log"
)

type (
	// Capability is an independently startable sensor source.
	Capability struct {
		Name  string
		Start func(context.Context) error
		Stop  func(context.Context) error
	}

	// Outcome records whether a capability started.
	Outcome struct {
		Name    string
		Started bool
		Err     error
	}

	// StartupReport collects the outcome of starting a set of capabilities.
	// A failed capability is reported as unavailable; no substitute data is
	// produced for it.
	StartupReport struct {
		Outcomes []Outcome
	}
)

// StartAll starts each capability independently. A failure in one does not
// prevent the others from starting.
func StartAll(
	ctx context.Context,
	logger *slog.Logger,
	caps ...Capability,
) *StartupReport {
	l := log.Wrap(logger)
	report := &StartupReport{Outcomes: make([]Outcome, 0, len(caps))}

	for _, c := range caps {
		o := Outcome{Name: c.Name}
		if c.Start == nil {
			o.Err = &errors.Error{
				Message:      "capability has no start function",
				Kind:         errors.InitError,
				PropertyName: c.Name,
			}
		} else if err := c.Start(ctx); err != nil {
			o.Err = &errors.Error{
				Message:     "capability " + c.Name + " unavailable",
				Kind:        errors.InitError,
				NestedError: err,
			}
		} else {
			o.Started = true
		}

		if o.Err != nil {
			l.Warn(ctx, o.Err)
		} else {
			l.Log(ctx, slog.LevelInfo, "capability started",
				slog.String("name", c.Name),
			)
		}
		report.Outcomes = append(report.Outcomes, o)
	}
	return report
}

// StopAll stops the capabilities that started, in reverse order.
func (r *StartupReport) StopAll(ctx context.Context, caps ...Capability) {
	started := make(map[string]bool, len(r.Outcomes))
	for _, o := range r.Outcomes {
		started[o.Name] = o.Started
	}
	for i := len(caps) - 1; i >= 0; i-- {
		c := caps[i]
		if started[c.Name] && c.Stop != nil {
			_ = c.Stop(ctx)
		}
	}
}

// Available reports whether the named capability started.
func (r *StartupReport) Available(name string) bool {
	for _, o := range r.Outcomes {
		if o.Name == name {
			return o.Started
		}
	}
	return false
}

// Unavailable returns the outcomes of the capabilities that failed to start.
func (r *StartupReport) Unavailable() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.Started {
			out = append(out, o)
		}
	}
	return out
}
