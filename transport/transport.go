// Package transport abstracts the MQTT client operations the engine
// depends on, the way the teacher's messenger.Conn interface decoupled
// Otto's messaging layer from a concrete Paho client.
package transport

import "context"

// Message is a decoded MQTT message delivered to a Subscribe handler.
type Message struct {
	Topic   string
	Payload []byte
	Retain  bool
	QoS     byte
}

// Conn abstracts a connected MQTT client. A concrete implementation lives
// in transport/paho.
type Conn interface {
	// Connect blocks until the broker has accepted the connection, the
	// attempt fails, or the implementation's connect timeout elapses. The
	// paho implementation does not consult ctx.
	Connect(ctx context.Context) error

	// Disconnect tears down the connection. Safe to call when not
	// connected.
	Disconnect()

	IsConnected() bool

	// Publish should be safe to call from multiple goroutines.
	Publish(ctx context.Context, topic string, payload []byte, retain bool, qos byte) error

	// Subscribe registers handler for topic and returns a function that
	// unsubscribes.
	Subscribe(ctx context.Context, topic string, qos byte, handler func(Message)) (unsubscribe func() error, err error)

	SetWill(topic string, payload []byte, retain bool, qos byte) error

	// OnConnect registers fn to run every time the connection is
	// established, including after an automatic reconnect.
	OnConnect(fn func())

	// OnConnectionLost registers fn to run when the connection drops.
	OnConnectionLost(fn func(error))
}
