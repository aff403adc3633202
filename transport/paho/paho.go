// Package paho implements transport.Conn on top of
// github.com/eclipse/paho.mqtt.golang, the way the teacher's
// messenger/mqtt/paho.go wraps the same library for the generic Otto
// messenger.
package paho

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	gomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rustyeddy/tbmqtt/config"
	"github.com/rustyeddy/tbmqtt/transport"
)

// Paho is a transport.Conn backed by a paho.mqtt.golang client.
type Paho struct {
	opts *gomqtt.ClientOptions
	c    gomqtt.Client

	onConnect        func()
	onConnectionLost func(error)
}

// New builds a Paho transport from a transport configuration. If
// cfg.Credentials.ClientID is empty a random one is generated with
// google/uuid, the way production device fleets avoid client-id collisions.
func New(cfg config.Transport) (*Paho, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientID := cfg.Credentials.ClientID
	if clientID == "" {
		clientID = "tbmqtt-" + uuid.NewString()
	}

	opts := gomqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(15 * time.Second).
		SetCleanSession(true)

	switch cfg.Credentials.Kind {
	case config.CredentialsAccessToken:
		opts.SetUsername(cfg.Credentials.AccessToken)
	case config.CredentialsBasicMQTT:
		opts.SetUsername(cfg.Credentials.Username)
		opts.SetPassword(cfg.Credentials.Password)
	}

	if cfg.TLS() {
		tlsCfg, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	p := &Paho{opts: opts}

	if cfg.WebSocket() {
		opts.SetCustomOpenConnectionFn(websocketDialer(cfg))
	}

	opts.SetConnectionLostHandler(func(_ gomqtt.Client, err error) {
		if p.onConnectionLost != nil {
			p.onConnectionLost(err)
		}
	})
	opts.OnConnect = func(_ gomqtt.Client) {
		if p.onConnect != nil {
			p.onConnect()
		}
	}

	return p, nil
}

func (p *Paho) OnConnect(fn func())              { p.onConnect = fn }
func (p *Paho) OnConnectionLost(fn func(error))  { p.onConnectionLost = fn }

func (p *Paho) Connect(ctx context.Context) error {
	if p.c == nil {
		p.c = gomqtt.NewClient(p.opts)
	}
	tok := p.c.Connect()
	if !tok.WaitTimeout(15 * time.Second) {
		return errors.New("paho: connect timeout")
	}
	return tok.Error()
}

func (p *Paho) Disconnect() {
	if p.c != nil {
		p.c.Disconnect(250)
	}
}

func (p *Paho) IsConnected() bool {
	return p.c != nil && p.c.IsConnected()
}

func (p *Paho) SetWill(topic string, payload []byte, retain bool, qos byte) error {
	if p.opts == nil {
		return errors.New("paho: options not initialized")
	}
	p.opts.SetWill(topic, string(payload), qos, retain)
	return nil
}

func (p *Paho) Publish(ctx context.Context, topic string, payload []byte, retain bool, qos byte) error {
	if p.c == nil {
		return errors.New("paho: not connected")
	}
	tok := p.c.Publish(topic, qos, retain, payload)
	if qos > 0 {
		if !tok.WaitTimeout(10 * time.Second) {
			return errors.New("paho: publish timeout")
		}
	}
	return tok.Error()
}

func (p *Paho) Subscribe(ctx context.Context, topic string, qos byte, handler func(transport.Message)) (func() error, error) {
	if p.c == nil {
		return nil, errors.New("paho: not connected")
	}
	tok := p.c.Subscribe(topic, qos, func(_ gomqtt.Client, msg gomqtt.Message) {
		handler(transport.Message{
			Topic:   msg.Topic(),
			Payload: msg.Payload(),
			Retain:  msg.Retained(),
			QoS:     msg.Qos(),
		})
	})
	if !tok.WaitTimeout(10 * time.Second) {
		return nil, errors.New("paho: subscribe timeout")
	}
	if tok.Error() != nil {
		return nil, tok.Error()
	}

	return func() error {
		ut := p.c.Unsubscribe(topic)
		if !ut.WaitTimeout(10 * time.Second) {
			return errors.New("paho: unsubscribe timeout")
		}
		return ut.Error()
	}, nil
}
