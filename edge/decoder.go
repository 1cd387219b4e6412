// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package edge

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"  // Register GIF decoding.
	_ "image/jpeg" // Register JPEG decoding.
	"image/png"

	"github.com/visisec/edge-sdk/errors"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoding.
)

// Decoder converts encoded image bytes into a size×size RGB tensor with
// channel values in [0,1], laid out row-major as R,G,B triples. dst always has
// length size*size*3.
type Decoder interface {
	Decode(img []byte, size int, dst []float32) error
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(img []byte, size int, dst []float32) error

// Decode calls the function.
func (f DecoderFunc) Decode(img []byte, size int, dst []float32) error {
	return f(img, size, dst)
}

// ImageDecoder decodes JPEG, PNG, GIF, and WebP frames using nearest-neighbour
// resampling to the canonical resolution.
type ImageDecoder struct {
	// Scaler overrides the resampling kernel.
	Scaler draw.Scaler
}

// Decode implements Decoder.
func (d ImageDecoder) Decode(img []byte, size int, dst []float32) error {
	if len(img) == 0 {
		return &errors.Error{
			Message: "empty frame",
			Kind:    errors.DecodeError,
		}
	}

	src, format, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return &errors.Error{
			Message:     "cannot decode frame",
			Kind:        errors.DecodeError,
			NestedError: err,
		}
	}
	if b := src.Bounds(); b.Empty() {
		return &errors.Error{
			Message:       "frame has no pixels",
			Kind:          errors.DecodeError,
			PropertyName:  "format",
			PropertyValue: format,
		}
	}

	scaler := d.Scaler
	if scaler == nil {
		scaler = draw.NearestNeighbor
	}

	rgba := image.NewRGBA(image.Rect(0, 0, size, size))
	scaler.Scale(rgba, rgba.Bounds(), src, src.Bounds(), draw.Src, nil)

	i := 0
	for p := 0; p < len(rgba.Pix); p += 4 {
		dst[i] = float32(rgba.Pix[p]) / 255
		dst[i+1] = float32(rgba.Pix[p+1]) / 255
		dst[i+2] = float32(rgba.Pix[p+2]) / 255
		i += 3
	}
	return nil
}

// probeImage is a 1×1 PNG used to check that a decoder is functional.
func probeImage() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
