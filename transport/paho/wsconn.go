package paho

import (
	"io"
	"net"
	"net/url"
	"time"

	gomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/rustyeddy/tbmqtt/config"
)

// websocketDialer returns a paho CustomOpenConnectionFn that dials the
// broker with gorilla/websocket and adapts the resulting *websocket.Conn to
// net.Conn, the interface paho's packet reader/writer expects. paho ships
// its own websocket support, but wiring gorilla/websocket explicitly gives
// this client control over the TLS dial used for wss (cfg.Verification /
// cfg.Authentication), matching the ClientOptions.SetCustomOpenConnectionFn
// pattern used for socket tuning elsewhere in the pack.
func websocketDialer(cfg config.Transport) func(uri *url.URL, opts gomqtt.ClientOptions) (net.Conn, error) {
	return func(uri *url.URL, opts gomqtt.ClientOptions) (net.Conn, error) {
		dialer := &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
			Subprotocols:     []string{"mqtt"},
		}
		if cfg.TLS() {
			dialer.TLSClientConfig = opts.TLSConfig
		}

		ws, _, err := dialer.Dial(uri.String(), nil)
		if err != nil {
			return nil, err
		}
		return &wsConn{Conn: ws}, nil
	}
}

// wsConn adapts a *websocket.Conn to net.Conn by framing each Read/Write as
// one binary websocket message, which is the framing paho.mqtt.golang's
// own websocket support uses internally.
type wsConn struct {
	*websocket.Conn
	reader io.Reader
}

func (c *wsConn) Read(b []byte) (int, error) {
	for {
		if c.reader == nil {
			_, r, err := c.Conn.NextReader()
			if err != nil {
				return 0, err
			}
			c.reader = r
		}
		n, err := c.reader.Read(b)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(b []byte) (int, error) {
	if err := c.Conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.Conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.Conn.SetWriteDeadline(t)
}
