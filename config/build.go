// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/visisec/edge-sdk/edge"
	"github.com/visisec/edge-sdk/errors"
	"github.com/visisec/edge-sdk/session"
	"github.com/visisec/edge-sdk/transport"
)

// Codec resolves the configured wire encoding.
func (s *Settings) Codec() (transport.Encoding, error) {
	return transport.EncodingByName(s.Encoding)
}

// Level resolves the configured log level.
func (s *Settings) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, invalid("LogLevel", s.LogLevel, "unknown log level")
	}
	return level, nil
}

// Dialer builds the connection provider for the configured transport.
func (s *Settings) Dialer(enc transport.Encoding) (transport.Dialer, error) {
	switch s.Transport {
	case WebSocket:
		return transport.WebSocketConnection(s.ServerURL, enc, nil), nil

	case MQTT:
		u, err := url.Parse(s.ServerURL)
		if err != nil {
			return nil, invalid("ServerURL", s.ServerURL, "server URL is not valid")
		}
		port, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, invalid("ServerURL", s.ServerURL, "server URL port is not valid")
		}

		settings := transport.MQTTSettings{
			Hostname:    u.Hostname(),
			Port:        port,
			Namespace:   s.Namespace,
			ClientID:    s.ClientID,
			Username:    s.Username,
			ContentType: enc.ContentType(),
		}
		if s.Password != "" {
			settings.Password = []byte(s.Password)
		}
		if u.Scheme == "mqtts" {
			if settings.TLS, err = s.tlsConfig(); err != nil {
				return nil, err
			}
		}
		return transport.MQTTConnection(settings)

	default:
		return nil, invalid("Transport", s.Transport, "unknown transport")
	}
}

func (s *Settings) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if s.CAFile == "" {
		return cfg, nil
	}

	pem, err := os.ReadFile(s.CAFile)
	if err != nil {
		return nil, &errors.Error{
			Message:       "cannot read CA file",
			Kind:          errors.ConfigurationInvalid,
			NestedError:   err,
			PropertyName:  "CAFile",
			PropertyValue: s.CAFile,
		}
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, invalid("CAFile", s.CAFile, "CA file contains no certificates")
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// TransportOptions translates the settings into transport options.
func (s *Settings) TransportOptions(
	enc transport.Encoding,
	logger *slog.Logger,
) []transport.Option {
	return []transport.Option{
		transport.WithEncoding{Encoding: enc},
		transport.WithMaxReconnectAttempts(s.ReconnectAttempts),
		transport.WithReconnectDelay(time.Duration(s.ReconnectDelay)),
		transport.WithConnectTimeout(time.Duration(s.ConnectTimeout)),
		transport.WithLogger(logger),
	}
}

// SessionOptions translates the settings into session controller options.
func (s *Settings) SessionOptions(logger *slog.Logger) []session.Option {
	return []session.Option{
		session.WithAckTimeout(time.Duration(s.AckTimeout)),
		session.WithLogger(logger),
	}
}

// SceneOptions translates the settings into scene detector options.
func (s *Settings) SceneOptions(logger *slog.Logger) []edge.SceneOption {
	return []edge.SceneOption{
		edge.WithThreshold(s.SceneThreshold),
		edge.WithCanonicalSize(s.CanonicalSize),
		edge.WithLogger(logger),
	}
}
