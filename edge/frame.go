// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package edge

import (
	"encoding/base64"
	"strings"

	"github.com/visisec/edge-sdk/errors"
	"github.com/visisec/edge-sdk/internal/wallclock"
)

type (
	// Source identifies which camera captured a frame.
	Source string

	// Frame is a single captured image. A frame is handed to the detector for
	// one comparison and is not retained by the caller afterwards.
	Frame struct {
		Timestamp int64  `json:"timestamp"`
		Source    Source `json:"source"`
		Format    string `json:"format"`
		Image     []byte `json:"-"`
		Width     int    `json:"width,omitempty"`
		Height    int    `json:"height,omitempty"`
	}
)

// Camera sources.
const (
	Front Source = "front"
	Rear  Source = "rear"
)

// FrameFromBase64 builds a frame from base64 image data, optionally given as a
// data URL ("data:image/jpeg;base64,..."), in which case the format is taken
// from the media type.
func FrameFromBase64(src Source, data string) (*Frame, error) {
	format := ""
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return nil, &errors.Error{
				Message:      "malformed data URL",
				Kind:         errors.DecodeError,
				PropertyName: "data",
			}
		}
		format = strings.TrimPrefix(strings.TrimSuffix(meta, ";base64"), "image/")
		data = payload
	}

	img, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, &errors.Error{
			Message:     "invalid base64 frame data",
			Kind:        errors.DecodeError,
			NestedError: err,
		}
	}

	return &Frame{
		Timestamp: wallclock.UnixMilli(),
		Source:    src,
		Format:    format,
		Image:     img,
	}, nil
}
