// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package edge

import (
	"context"

	"github.com/visisec/edge-sdk/errors"
)

type (
	// TextResult is the output of text extraction on a keyframe.
	TextResult struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
		Timestamp  int64   `json:"timestamp"`
	}

	// TextExtractor extracts text from encoded image bytes. Implementations
	// are expected to be expensive and are only invoked on keyframes.
	TextExtractor interface {
		Extract(ctx context.Context, image []byte) (*TextResult, error)
	}

	// ExtractorFunc adapts a function to the TextExtractor interface.
	ExtractorFunc func(ctx context.Context, image []byte) (*TextResult, error)
)

// Extract calls the function.
func (f ExtractorFunc) Extract(
	ctx context.Context,
	image []byte,
) (*TextResult, error) {
	return f(ctx, image)
}

// extract runs the extractor and normalizes its failures into extraction
// errors.
func extract(
	ctx context.Context,
	x TextExtractor,
	frame *Frame,
) (*TextResult, error) {
	res, err := x.Extract(ctx, frame.Image)
	switch {
	case err != nil:
		if errors.IsKind(err, errors.ExtractionError) {
			return nil, err
		}
		return nil, &errors.Error{
			Message:     "text extraction failed",
			Kind:        errors.ExtractionError,
			NestedError: err,
		}
	case res == nil:
		return nil, &errors.Error{
			Message: "text extraction returned no result",
			Kind:    errors.ExtractionError,
		}
	case res.Confidence < 0 || res.Confidence > 1:
		return nil, &errors.Error{
			Message:       "text extraction confidence out of range",
			Kind:          errors.ExtractionError,
			PropertyName:  "Confidence",
			PropertyValue: res.Confidence,
		}
	}

	if res.Timestamp == 0 {
		res.Timestamp = frame.Timestamp
	}
	return res, nil
}
