// Package tbmqtt is a client library that lets a constrained device
// participate in the ThingsBoard IoT platform over MQTT. Client is the
// request/response correlation and lifecycle engine: it multiplexes
// telemetry, attribute, RPC, firmware and provisioning conversations over
// one MQTT connection, matching responses to requests, sweeping timeouts,
// and handing domain formatting off to the helper registries.
package tbmqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/tbmqtt/helper"
	"github.com/rustyeddy/tbmqtt/internal/pending"
	"github.com/rustyeddy/tbmqtt/internal/reassemble"
	"github.com/rustyeddy/tbmqtt/internal/router"
	"github.com/rustyeddy/tbmqtt/transport"
)

// DefaultTimeout is the compile-time TIMEOUT spec.md §4.4 calls for.
const DefaultTimeout = 30 * time.Second

// subscribeTimeout bounds the connect-time fan-out across the six inbound
// topics; it is not part of the engine's steady-state request timeout.
const subscribeTimeout = 15 * time.Second

// ErrNotConnected is returned by fire-and-forget publishes issued while the
// connection is not Connected.
var ErrNotConnected = errors.New("tbmqtt: not connected")

// Client is the low-level engine: connection lifecycle, the pending
// request table, the reassembler, the router, the timeout sweeper, and a
// helper.Manager wired to format and decode domain requests on top of it.
type Client struct {
	conn        transport.Conn
	table       *pending.Table
	reassembler *reassemble.Reassembler
	router      *router.Router
	helper      *helper.Manager

	timeout time.Duration

	mu        sync.Mutex
	state     State
	lastCheck time.Time

	onConnected    func()
	onDisconnected func()
}

// New returns a Client driving conn. The helper.Manager is created
// immediately and wired to the router's broadcast handlers; register
// attribute keys and a server-RPC handler on it before Connect to avoid
// racing the broker's first pushes.
func New(conn transport.Conn) *Client {
	c := &Client{
		conn:        conn,
		table:       pending.New(),
		reassembler: reassemble.New(),
		timeout:     DefaultTimeout,
		state:       Disconnected,
	}
	c.router = router.New(c.table)
	c.helper = helper.NewManager(c)
	c.router.OnSharedAttribute = c.helper.HandleSharedAttribute
	c.router.OnServerRPC = c.helper.HandleServerRPC
	return c
}

// Helper returns the attribute/RPC/OTA/provisioning registry wired to this
// Client, for callers who want direct access instead of the convenience
// methods below.
func (c *Client) Helper() *helper.Manager { return c.helper }

// OnConnected registers fn to run once the connection reaches Connected,
// i.e. after every inbound subscription has been dispatched.
func (c *Client) OnConnected(fn func()) { c.onConnected = fn }

// OnDisconnected registers fn to run after a disconnect has drained the
// pending table as bulk timeouts.
func (c *Client) OnDisconnected(fn func()) { c.onDisconnected = fn }

// Connect initiates the underlying MQTT connection. State moves to
// Connecting immediately; it only reaches Connected once the broker's
// connect-ack fires and all six inbound subscriptions are dispatched.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(Connecting)
	c.conn.OnConnect(c.handleConnected)
	c.conn.OnConnectionLost(c.handleConnectionLost)

	if err := c.conn.Connect(ctx); err != nil {
		c.setState(Disconnected)
		return fmt.Errorf("tbmqtt: connect: %w", err)
	}
	return nil
}

// handleConnected subscribes to the six inbound topics concurrently and
// only moves to Connected once every subscribe has been dispatched,
// matching spec.md §4.6.
func (c *Client) handleConnected() {
	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range router.SubscribeTopics() {
		topic := topic
		g.Go(func() error {
			_, err := c.conn.Subscribe(gctx, topic, 1, c.handleMessage)
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", topic, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("tbmqtt: connect-time subscribe fan-out failed", "error", err)
		return
	}

	c.setState(Connected)
	if c.onConnected != nil {
		c.onConnected()
	}
}

// handleMessage feeds one inbound MQTT message through the reassembler and,
// once a complete message is available, the router. paho.mqtt.golang
// defragments at the packet layer, so every event reaching here already
// carries offset 0 and a total equal to its own length — the reassembler
// still runs on every message for parity with transports that deliver true
// multi-fragment data events.
func (c *Client) handleMessage(msg transport.Message) {
	payload, complete, violation, err := c.reassembler.Feed(msg.Topic, msg.Payload, 0, len(msg.Payload))
	if err != nil {
		slog.Warn("tbmqtt: reassembly aborted", "topic", msg.Topic, "error", err)
		return
	}
	if violation || !complete {
		return
	}
	c.router.Route(msg.Topic, payload)
}

// handleConnectionLost treats the disconnect as a bulk timeout of every
// pending entry, per spec.md §4.6, then fires the user's callback.
func (c *Client) handleConnectionLost(err error) {
	if err != nil {
		slog.Warn("tbmqtt: connection lost", "error", err)
	}
	c.teardown()
}

// Disconnect tears the connection down explicitly. Equivalent to an
// unsolicited connection loss as far as the pending table is concerned.
func (c *Client) Disconnect() {
	c.conn.Disconnect()
	c.teardown()
}

func (c *Client) teardown() {
	c.setState(Disconnected)
	c.reassembler.Reset()

	for _, e := range c.table.DrainAll() {
		if e.OnTimeout != nil {
			e.OnTimeout(e.ID)
		}
	}

	if c.onDisconnected != nil {
		c.onDisconnected()
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// GetState returns the current connection state.
func (c *Client) GetState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) IsConnected() bool    { return c.GetState() == Connected }
func (c *Client) IsConnecting() bool   { return c.GetState() == Connecting }
func (c *Client) IsDisconnected() bool { return c.GetState() == Disconnected }

// Request implements helper.Requester: it allocates/reuses a correlation
// id and inserts a pending entry unconditionally, but only publishes while
// Connected. A request submitted while Disconnected is never published;
// its timeout fires at the next CheckTimeout after DefaultTimeout or at
// disconnect, whichever comes first.
func (c *Client) Request(family pending.Family, idHint int64, topic func(id int64) string, payload []byte, qos byte,
	onResponse pending.ResponseFunc, onTimeout pending.TimeoutFunc) (int64, error) {
	id, err := c.table.Insert(family, idHint, nil, onResponse, onTimeout)
	if err != nil {
		return 0, err
	}
	if !c.IsConnected() {
		return id, nil
	}
	if err := c.conn.Publish(context.Background(), topic(id), payload, false, qos); err != nil {
		return id, fmt.Errorf("tbmqtt: publish: %w", err)
	}
	return id, nil
}

// Publish implements helper.Requester's fire-and-forget path.
func (c *Client) Publish(topic string, payload []byte, retain bool, qos byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := c.conn.Publish(context.Background(), topic, payload, retain, qos); err != nil {
		return fmt.Errorf("tbmqtt: publish: %w", err)
	}
	return nil
}
