// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package config

import (
	"net/url"
	"time"

	"github.com/visisec/edge-sdk/edge"
	"github.com/visisec/edge-sdk/errors"
	"github.com/visisec/edge-sdk/sensor"
	"github.com/visisec/edge-sdk/session"
	"github.com/visisec/edge-sdk/transport"
)

// Settings configures an edge agent. Zero values are replaced by defaults
// when loading.
type Settings struct {
	// ServerURL locates the session server: ws:// or wss:// for the
	// WebSocket transport, mqtt:// or mqtts:// for MQTT.
	ServerURL string `yaml:"serverUrl"`

	// Transport selects the connection provider: websocket or mqtt.
	Transport string `yaml:"transport"`

	// Encoding selects the wire encoding: json, msgpack, or cbor.
	Encoding string `yaml:"encoding"`

	// MQTT only.
	Namespace string `yaml:"namespace,omitempty"`
	ClientID  string `yaml:"clientId,omitempty"`
	Username  string `yaml:"username,omitempty"`
	Password  string `yaml:"password,omitempty"`
	CAFile    string `yaml:"caFile,omitempty"`

	// UploadURL is the base URL for media uploads. Uploads are disabled
	// when empty.
	UploadURL string `yaml:"uploadUrl,omitempty"`

	ReconnectAttempts uint64   `yaml:"reconnectAttempts"`
	ReconnectDelay    Duration `yaml:"reconnectDelay"`
	ConnectTimeout    Duration `yaml:"connectTimeout"`
	AckTimeout        Duration `yaml:"ackTimeout"`

	SceneThreshold float64  `yaml:"sceneThreshold"`
	CanonicalSize  int      `yaml:"canonicalSize"`
	BufferCapacity int      `yaml:"bufferCapacity"`
	TickInterval   Duration `yaml:"tickInterval"`

	LogLevel string `yaml:"logLevel"`
}

// Transport names.
const (
	WebSocket = "websocket"
	MQTT      = "mqtt"
)

// DefaultTickInterval is the default analysis cadence.
const DefaultTickInterval = time.Second

// Default returns settings populated with every default.
func Default() Settings {
	return Settings{
		Transport:         WebSocket,
		Encoding:          transport.JSON.Name(),
		Namespace:         transport.DefaultNamespace,
		ReconnectAttempts: transport.DefaultMaxReconnectAttempts,
		ReconnectDelay:    Duration(transport.DefaultReconnectDelay),
		ConnectTimeout:    Duration(transport.DefaultConnectTimeout),
		AckTimeout:        Duration(session.DefaultAckTimeout),
		SceneThreshold:    edge.DefaultThreshold,
		CanonicalSize:     edge.DefaultCanonicalSize,
		BufferCapacity:    sensor.DefaultCapacity,
		TickInterval:      Duration(DefaultTickInterval),
		LogLevel:          "info",
	}
}

// Validate checks the settings for consistency.
func (s *Settings) Validate() error {
	if s.ServerURL == "" {
		return invalid("ServerURL", s.ServerURL, "server URL must not be empty")
	}
	u, err := url.Parse(s.ServerURL)
	if err != nil {
		return invalid("ServerURL", s.ServerURL, "server URL is not valid")
	}

	switch s.Transport {
	case WebSocket:
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return invalid("ServerURL", s.ServerURL,
				"websocket transport requires a ws:// or wss:// URL")
		}
	case MQTT:
		if u.Scheme != "mqtt" && u.Scheme != "mqtts" {
			return invalid("ServerURL", s.ServerURL,
				"mqtt transport requires a mqtt:// or mqtts:// URL")
		}
		if u.Port() == "" {
			return invalid("ServerURL", s.ServerURL,
				"mqtt server URL must include a port")
		}
	default:
		return invalid("Transport", s.Transport, "unknown transport")
	}

	if _, err := transport.EncodingByName(s.Encoding); err != nil {
		return err
	}

	if s.UploadURL != "" {
		if u, err := url.Parse(s.UploadURL); err != nil ||
			(u.Scheme != "http" && u.Scheme != "https") {
			return invalid("UploadURL", s.UploadURL,
				"upload URL must be http:// or https://")
		}
	}

	switch {
	case s.ReconnectAttempts == 0:
		return invalid("ReconnectAttempts", s.ReconnectAttempts,
			"reconnect attempts must be positive")
	case s.ReconnectDelay < 0:
		return invalid("ReconnectDelay", s.ReconnectDelay,
			"reconnect delay cannot be negative")
	case s.ConnectTimeout < 0:
		return invalid("ConnectTimeout", s.ConnectTimeout,
			"connect timeout cannot be negative")
	case s.AckTimeout <= 0:
		return invalid("AckTimeout", s.AckTimeout,
			"ack timeout must be positive")
	case s.SceneThreshold <= 0 || s.SceneThreshold >= 1:
		return invalid("SceneThreshold", s.SceneThreshold,
			"scene threshold must be between 0 and 1")
	case s.CanonicalSize <= 0:
		return invalid("CanonicalSize", s.CanonicalSize,
			"canonical size must be positive")
	case s.BufferCapacity <= 0:
		return invalid("BufferCapacity", s.BufferCapacity,
			"buffer capacity must be positive")
	case s.TickInterval <= 0:
		return invalid("TickInterval", s.TickInterval,
			"tick interval must be positive")
	}

	_, err = s.Level()
	return err
}

func invalid(name string, value any, msg string) error {
	return &errors.Error{
		Message:       msg,
		Kind:          errors.ConfigurationInvalid,
		PropertyName:  name,
		PropertyValue: value,
	}
}
