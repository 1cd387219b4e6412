// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package config

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/visisec/edge-sdk/errors"
	"gopkg.in/yaml.v3"
)

// EnvPrefix marks the environment variables read by ApplyEnv.
const EnvPrefix = "EDGE_"

// Load reads settings from a YAML file over the defaults and validates them.
func Load(path string) (Settings, error) {
	s := Default()
	if err := s.ApplyFile(path); err != nil {
		return Settings{}, err
	}
	return s, s.Validate()
}

// FromConnectionString parses settings from a connection string over the
// defaults and validates them. Example:
// ServerUrl=ws://localhost:5124/ws;Transport=websocket;ReconnectDelay=PT2S.
func FromConnectionString(cs string) (Settings, error) {
	s := Default()
	if err := s.ApplyConnectionString(cs); err != nil {
		return Settings{}, err
	}
	return s, s.Validate()
}

// FromEnv parses settings from EDGE_* environment variables over the defaults
// and validates them. Example: EDGE_SERVER_URL=ws://localhost:5124/ws.
func FromEnv() (Settings, error) {
	s := Default()
	if err := s.ApplyEnv(os.Environ()); err != nil {
		return Settings{}, err
	}
	return s, s.Validate()
}

// ApplyFile overlays the settings present in a YAML file.
func (s *Settings) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &errors.Error{
			Message:       "cannot read settings file",
			Kind:          errors.ConfigurationInvalid,
			NestedError:   err,
			PropertyName:  "path",
			PropertyValue: path,
		}
	}
	return s.ApplyYAML(bytes.NewReader(data))
}

// ApplyYAML overlays the settings present in a YAML document. Unknown keys
// are rejected.
func (s *Settings) ApplyYAML(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && err != io.EOF {
		return &errors.Error{
			Message:     "invalid settings document: " + err.Error(),
			Kind:        errors.ConfigurationInvalid,
			NestedError: err,
		}
	}
	return nil
}

// ApplyConnectionString overlays the settings present in a semicolon
// delimited Key=Value connection string. Keys are case-insensitive.
func (s *Settings) ApplyConnectionString(cs string) error {
	settings := make(map[string]string)
	for _, param := range strings.Split(strings.TrimSuffix(cs, ";"), ";") {
		kv := strings.SplitN(param, "=", 2)
		if len(kv) == 2 {
			settings[normalize(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return s.apply(settings)
}

// ApplyEnv overlays the settings present in EDGE_* variables of the given
// environment.
func (s *Settings) ApplyEnv(environ []string) error {
	settings := make(map[string]string)
	for _, env := range environ {
		kv := strings.SplitN(env, "=", 2)
		if len(kv) == 2 && strings.HasPrefix(kv[0], EnvPrefix) {
			key := normalize(strings.TrimPrefix(kv[0], EnvPrefix))
			settings[key] = strings.TrimSpace(kv[1])
		}
	}
	return s.apply(settings)
}

func normalize(key string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), "_", ""))
}

func (s *Settings) apply(settings map[string]string) error {
	assignIfExists(settings, "serverurl", &s.ServerURL)
	assignIfExists(settings, "transport", &s.Transport)
	assignIfExists(settings, "encoding", &s.Encoding)
	assignIfExists(settings, "namespace", &s.Namespace)
	assignIfExists(settings, "clientid", &s.ClientID)
	assignIfExists(settings, "username", &s.Username)
	assignIfExists(settings, "password", &s.Password)
	assignIfExists(settings, "cafile", &s.CAFile)
	assignIfExists(settings, "uploadurl", &s.UploadURL)
	assignIfExists(settings, "loglevel", &s.LogLevel)

	s.Transport = strings.ToLower(s.Transport)
	s.Encoding = strings.ToLower(s.Encoding)

	for key, field := range map[string]*Duration{
		"reconnectdelay": &s.ReconnectDelay,
		"connecttimeout": &s.ConnectTimeout,
		"acktimeout":     &s.AckTimeout,
		"tickinterval":   &s.TickInterval,
	} {
		value, exists := settings[key]
		if !exists {
			continue
		}
		d, err := ParseDuration(value)
		if err != nil {
			return &errors.Error{
				Message:       "invalid duration for " + key,
				Kind:          errors.ConfigurationInvalid,
				NestedError:   err,
				PropertyName:  key,
				PropertyValue: value,
			}
		}
		*field = d
	}

	if value, exists := settings["reconnectattempts"]; exists {
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return numberError("reconnectattempts", value, err)
		}
		s.ReconnectAttempts = n
	}
	if value, exists := settings["scenethreshold"]; exists {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return numberError("scenethreshold", value, err)
		}
		s.SceneThreshold = f
	}
	for key, field := range map[string]*int{
		"canonicalsize":  &s.CanonicalSize,
		"buffercapacity": &s.BufferCapacity,
	} {
		value, exists := settings[key]
		if !exists {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return numberError(key, value, err)
		}
		*field = n
	}

	return nil
}

func numberError(key, value string, err error) error {
	return &errors.Error{
		Message:       "invalid number for " + key,
		Kind:          errors.ConfigurationInvalid,
		NestedError:   err,
		PropertyName:  key,
		PropertyValue: value,
	}
}

// assignIfExists assigns non-empty string values to the corresponding field.
func assignIfExists(settings map[string]string, key string, field *string) {
	if value, exists := settings[key]; exists && value != "" {
		*field = value
	}
}
