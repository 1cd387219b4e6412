// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package main

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/visisec/edge-sdk/edge"
	"github.com/visisec/edge-sdk/internal/wallclock"
	"github.com/visisec/edge-sdk/sensor"
)

var frameFormats = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// List the image files of a capture directory in name order.
func listFrames(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if _, ok := frameFormats[ext]; ok && !e.IsDir() {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// Read a captured frame, stamped with the current time.
func readFrame(path string) (*edge.Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	f := &edge.Frame{
		Timestamp: wallclock.UnixMilli(),
		Source:    edge.Rear,
		Format:    frameFormats[strings.ToLower(filepath.Ext(path))],
		Image:     data,
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		f.Width, f.Height = cfg.Width, cfg.Height
	}
	return f, nil
}

func readSamples(path string) ([]sensor.Sample, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return sensor.ReadSamples(f)
}
