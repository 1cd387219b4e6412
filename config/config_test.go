// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/visisec/edge-sdk/config"
	"github.com/visisec/edge-sdk/errors"
	"github.com/visisec/edge-sdk/transport"
)

func TestParseDuration(t *testing.T) {
	for in, want := range map[string]time.Duration{
		"PT2S":    2 * time.Second,
		"PT1M30S": 90 * time.Second,
		"5s":      5 * time.Second,
		"250ms":   250 * time.Millisecond,
		"2000":    2 * time.Second,
	} {
		d, err := config.ParseDuration(in)
		require.NoError(t, err, in)
		require.Equal(t, want, time.Duration(d), in)
	}

	_, err := config.ParseDuration("soon")
	require.Error(t, err)

	require.Equal(t, "PT2S", config.Duration(2*time.Second).String())
}

func TestDefaults(t *testing.T) {
	s := config.Default()
	require.Equal(t, config.WebSocket, s.Transport)
	require.Equal(t, "json", s.Encoding)
	require.Equal(t, uint64(5), s.ReconnectAttempts)
	require.Equal(t, 2*time.Second, time.Duration(s.ReconnectDelay))
	require.Equal(t, 5*time.Second, time.Duration(s.AckTimeout))
	require.Equal(t, 0.15, s.SceneThreshold)
	require.Equal(t, 1000, s.BufferCapacity)

	// A server URL is the only required setting.
	err := s.Validate()
	require.True(t, errors.IsKind(err, errors.ConfigurationInvalid))
	s.ServerURL = "ws://localhost:5124/ws"
	require.NoError(t, s.Validate())
}

func TestFromConnectionString(t *testing.T) {
	s, err := config.FromConnectionString(
		"ServerUrl=mqtt://broker:1883;Transport=MQTT;Encoding=cbor;" +
			"ClientId=cam1;ReconnectDelay=PT1S;ReconnectAttempts=3;" +
			"AckTimeout=1500;SceneThreshold=0.2;",
	)
	require.NoError(t, err)
	require.Equal(t, "mqtt://broker:1883", s.ServerURL)
	require.Equal(t, config.MQTT, s.Transport)
	require.Equal(t, "cbor", s.Encoding)
	require.Equal(t, "cam1", s.ClientID)
	require.Equal(t, time.Second, time.Duration(s.ReconnectDelay))
	require.Equal(t, uint64(3), s.ReconnectAttempts)
	require.Equal(t, 1500*time.Millisecond, time.Duration(s.AckTimeout))
	require.Equal(t, 0.2, s.SceneThreshold)

	enc, err := s.Codec()
	require.NoError(t, err)
	require.Equal(t, transport.CBOR, enc)

	dial, err := s.Dialer(enc)
	require.NoError(t, err)
	require.NotNil(t, dial)
}

func TestFromConnectionStringInvalid(t *testing.T) {
	for name, cs := range map[string]string{
		"missing url":    "Transport=websocket",
		"wrong scheme":   "ServerUrl=mqtt://broker:1883;Transport=websocket",
		"no mqtt port":   "ServerUrl=mqtt://broker;Transport=mqtt",
		"bad transport":  "ServerUrl=ws://x;Transport=carrier-pigeon",
		"bad encoding":   "ServerUrl=ws://x;Encoding=xml",
		"bad duration":   "ServerUrl=ws://x;ReconnectDelay=later",
		"bad threshold":  "ServerUrl=ws://x;SceneThreshold=1.5",
		"bad attempts":   "ServerUrl=ws://x;ReconnectAttempts=-1",
		"zero attempts":  "ServerUrl=ws://x;ReconnectAttempts=0",
		"bad upload url": "ServerUrl=ws://x;UploadUrl=ftp://x",
		"bad log level":  "ServerUrl=ws://x;LogLevel=chatty",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := config.FromConnectionString(cs)
			require.True(t, errors.IsKind(err, errors.ConfigurationInvalid), err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	s := config.Default()
	require.NoError(t, s.ApplyEnv([]string{
		"EDGE_SERVER_URL=wss://edge.example.com/ws",
		"EDGE_TICK_INTERVAL=500ms",
		"EDGE_BUFFER_CAPACITY=200",
		"EDGE_LOG_LEVEL=debug",
		"OTHER_SERVER_URL=ignored",
	}))
	require.NoError(t, s.Validate())
	require.Equal(t, "wss://edge.example.com/ws", s.ServerURL)
	require.Equal(t, 500*time.Millisecond, time.Duration(s.TickInterval))
	require.Equal(t, 200, s.BufferCapacity)

	level, err := s.Level()
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
serverUrl: ws://localhost:5124/ws
encoding: msgpack
reconnectDelay: PT3S
connectTimeout: 4s
uploadUrl: http://localhost:5124
canonicalSize: 128
`), 0o600))

	s, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "msgpack", s.Encoding)
	require.Equal(t, 3*time.Second, time.Duration(s.ReconnectDelay))
	require.Equal(t, 4*time.Second, time.Duration(s.ConnectTimeout))
	require.Equal(t, 128, s.CanonicalSize)
	require.Equal(t, uint64(5), s.ReconnectAttempts)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serverUrl: ws://x\nretries: 3\n"), 0o600))

	_, err := config.Load(path)
	require.True(t, errors.IsKind(err, errors.ConfigurationInvalid))

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.True(t, errors.IsKind(err, errors.ConfigurationInvalid))
}

func TestPrecedence(t *testing.T) {
	s := config.Default()
	require.NoError(t, s.ApplyYAML(strings.NewReader("serverUrl: ws://file/ws\nencoding: cbor\n")))
	require.NoError(t, s.ApplyConnectionString("ServerUrl=ws://conn/ws"))
	require.NoError(t, s.ApplyEnv([]string{"EDGE_ENCODING=msgpack"}))
	require.NoError(t, s.Validate())

	require.Equal(t, "ws://conn/ws", s.ServerURL)
	require.Equal(t, "msgpack", s.Encoding)
}

func TestMQTTTLSCAFile(t *testing.T) {
	s := config.Default()
	s.ServerURL = "mqtts://broker:8883"
	s.Transport = config.MQTT
	s.CAFile = filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(s.CAFile, []byte("not a certificate"), 0o600))
	require.NoError(t, s.Validate())

	_, err := s.Dialer(transport.JSON)
	require.True(t, errors.IsKind(err, errors.ConfigurationInvalid))
}
