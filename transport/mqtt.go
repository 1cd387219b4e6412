// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/eclipse/paho.golang/packets"
	"github.com/eclipse/paho.golang/paho"
	"github.com/visisec/edge-sdk/errors"
	"github.com/visisec/edge-sdk/transport/internal"
)

type (
	// MQTTSettings configures the MQTT connection provider. Each event is
	// carried on its own topic under the namespace and client ID:
	// {namespace}/{clientId}/up/{event} for outbound events and
	// {namespace}/{clientId}/down/{event} for inbound events.
	MQTTSettings struct {
		Hostname string
		Port     int

		// TLS enables TLS with the given configuration when non-nil.
		TLS *tls.Config

		// Namespace prefixes every topic. Defaults to DefaultNamespace.
		Namespace string

		// ClientID identifies this device. A random ID is generated per
		// dialer if unset.
		ClientID string

		Username string
		Password []byte

		// KeepAlive in seconds. Defaults to 60.
		KeepAlive uint16

		// ContentType is attached to each published message.
		ContentType string
	}

	mqttConn struct {
		client      *paho.Client
		up          *internal.TopicPattern
		contentType string

		in   chan pipeFrame
		done chan struct{}
		err  error
		once sync.Once
	}
)

// MQTT defaults.
const (
	DefaultNamespace = "visisec"
	defaultKeepAlive = 60
	inboundBuffer    = 64
)

// MQTTConnection is a Dialer that carries session events over an MQTT v5
// broker. The server side subscribes to the up topics and publishes to the
// down topics of each device.
func MQTTConnection(settings MQTTSettings) (Dialer, error) {
	if settings.Namespace == "" {
		settings.Namespace = DefaultNamespace
	}
	if settings.ClientID == "" {
		settings.ClientID = internal.RandomClientID("edge")
	}
	if settings.KeepAlive == 0 {
		settings.KeepAlive = defaultKeepAlive
	}

	tokens := map[string]string{"clientId": settings.ClientID}
	up, err := internal.NewTopicPattern(
		"up",
		"{clientId}/up/{event}",
		tokens,
		settings.Namespace,
	)
	if err != nil {
		return nil, err
	}
	down, err := internal.NewTopicPattern(
		"down",
		"{clientId}/down/{event}",
		tokens,
		settings.Namespace,
	)
	if err != nil {
		return nil, err
	}
	filter, err := down.Filter()
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) (Conn, error) {
		nc, err := dialNet(ctx, settings)
		if err != nil {
			return nil, err
		}

		c := &mqttConn{
			up:          up,
			contentType: settings.ContentType,
			in:          make(chan pipeFrame, inboundBuffer),
			done:        make(chan struct{}),
		}
		c.client = paho.NewClient(paho.ClientConfig{
			ClientID: settings.ClientID,
			Conn:     nc,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					tokens, ok := filter.Tokens(pr.Packet.Topic)
					if !ok {
						return false, nil
					}
					select {
					case c.in <- pipeFrame{tokens["event"], pr.Packet.Payload}:
					case <-c.done:
					}
					return true, nil
				},
			},
			OnClientError: func(err error) {
				c.shutdown(err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				c.shutdown(fmt.Errorf(
					"server disconnected with reason code %d",
					d.ReasonCode,
				))
			},
		})

		connack, err := c.client.Connect(ctx, &paho.Connect{
			ClientID:     settings.ClientID,
			CleanStart:   true,
			KeepAlive:    settings.KeepAlive,
			Username:     settings.Username,
			UsernameFlag: settings.Username != "",
			Password:     settings.Password,
			PasswordFlag: len(settings.Password) != 0,
		})
		if err == nil && connack != nil && connack.ReasonCode >= 0x80 {
			err = fmt.Errorf("connack reason code %d", connack.ReasonCode)
		}
		if err != nil {
			_ = nc.Close()
			return nil, &errors.Error{
				Message:     "MQTT connect failed",
				Kind:        errors.TransportError,
				NestedError: err,
			}
		}

		if _, err := c.client.Subscribe(ctx, &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{{
				Topic: filter.Filter(),
				QoS:   1,
			}},
		}); err != nil {
			_ = c.Close()
			return nil, &errors.Error{
				Message:       "MQTT subscribe failed",
				Kind:          errors.TransportError,
				NestedError:   err,
				PropertyName:  "topic",
				PropertyValue: filter.Filter(),
			}
		}

		return c, nil
	}, nil
}

func dialNet(ctx context.Context, s MQTTSettings) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", s.Hostname, s.Port)

	var (
		conn net.Conn
		err  error
	)
	if s.TLS != nil {
		d := tls.Dialer{Config: s.TLS}
		conn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, &errors.Error{
			Message:       "error opening MQTT network connection",
			Kind:          errors.TransportError,
			NestedError:   err,
			PropertyName:  "address",
			PropertyValue: addr,
		}
	}
	return packets.NewThreadSafeConn(conn), nil
}

func (c *mqttConn) WriteMessage(
	ctx context.Context,
	event string,
	payload []byte,
) error {
	topic, err := c.up.Topic(map[string]string{"event": event})
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return c.closedErr()
	default:
	}

	_, err = c.client.Publish(ctx, &paho.Publish{
		QoS:     1,
		Topic:   topic,
		Payload: payload,
		Properties: &paho.PublishProperties{
			ContentType: c.contentType,
		},
	})
	return err
}

func (c *mqttConn) ReadMessage(ctx context.Context) (string, []byte, error) {
	select {
	case f := <-c.in:
		return f.event, f.payload, nil
	case <-c.done:
		return "", nil, c.closedErr()
	case <-ctx.Done():
		return "", nil, errors.Context(ctx, "mqtt read")
	}
}

func (c *mqttConn) Close() error {
	closing := false
	c.once.Do(func() {
		closing = true
		c.err = io.EOF
		close(c.done)
	})
	if !closing {
		return nil
	}
	return c.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}

func (c *mqttConn) shutdown(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

func (c *mqttConn) closedErr() error {
	if c.err != nil {
		return c.err
	}
	return io.EOF
}
