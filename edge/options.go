// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package edge

import "log/slog"

type withLogger struct{ *slog.Logger }

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) interface {
	SceneOption
	ScorerOption
	PipelineOption
} {
	return withLogger{logger}
}

func (o withLogger) scene(opt *SceneOptions) {
	opt.Logger = o.Logger
}

func (o withLogger) scorer(opt *ScorerOptions) {
	opt.Logger = o.Logger
}

func (o withLogger) pipeline(opt *PipelineOptions) {
	opt.Logger = o.Logger
}
