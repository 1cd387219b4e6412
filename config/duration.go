// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that parses from ISO 8601 ("PT2S"), Go syntax
// ("2s"), or a bare number of milliseconds.
type Duration time.Duration

// ParseDuration parses a duration in any of the accepted forms.
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "P") || strings.HasPrefix(s, "-P") {
		d, err := duration.Parse(s)
		if err != nil {
			return 0, err
		}
		return Duration(d.ToTimeDuration()), nil
	}

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Duration(time.Duration(ms) * time.Millisecond), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return Duration(d), nil
}

// String renders the duration in ISO 8601.
func (d Duration) String() string {
	return duration.Format(time.Duration(d))
}

// UnmarshalYAML decodes a duration scalar.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalYAML encodes the duration in ISO 8601.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
