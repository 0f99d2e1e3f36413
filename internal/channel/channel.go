// Package channel manages the persistent connection to the Lost & Found
// backend as an explicit state machine, independent of any caller. Multiple
// observers can subscribe to decoded push messages and to state changes;
// fan-out never blocks the read loop.
//
// The machine has three states: Disconnected, Connecting, and Connected.
// Connect is opportunistic and non-blocking; callers that need delivery while
// a connect is pending use the HTTP fallback instead of waiting.
package channel

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/metrics"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/monitoring"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/pingwire"
)

// State is the connection state of the persistent channel.
type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
)

// ErrNotConnected is returned by Send when the channel is not in the
// Connected state.
var ErrNotConnected = fmt.Errorf("persistent channel not connected")

// ErrClosed is returned once the channel has been torn down.
var ErrClosed = fmt.Errorf("persistent channel closed")

// Conn is the minimal websocket surface the channel needs; *websocket.Conn
// satisfies it, and tests substitute a fake.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer establishes a websocket connection to the given URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

// GorillaDialer dials with the default gorilla websocket dialer.
func GorillaDialer(ctx context.Context, wsURL string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// DeriveURL maps the configured API base URL to the channel endpoint: same
// host, protocol upgraded, path /ws.
func DeriveURL(apiBase string) (string, error) {
	u, err := url.Parse(apiBase)
	if err != nil {
		return "", fmt.Errorf("invalid api base %q: %w", apiBase, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
		// already a socket URL
	default:
		return "", fmt.Errorf("unsupported api base scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// Channel is the persistent channel state machine. One Channel instance owns
// one socket at a time; instances are never shared.
type Channel struct {
	url      string
	deviceID string
	dial     Dialer

	mu      sync.Mutex
	writeMu sync.Mutex // serialises socket writes

	state     State
	conn      Conn
	closed    bool
	lastErr   string
	msgSubs   map[string]chan *pingwire.Envelope
	stateSubs map[string]chan State
}

// New creates a channel for the given endpoint and device. The device is
// subscribed on every successful connect.
func New(wsURL, deviceID string, dial Dialer) *Channel {
	if dial == nil {
		dial = GorillaDialer
	}
	return &Channel{
		url:       wsURL,
		deviceID:  deviceID,
		dial:      dial,
		state:     Disconnected,
		msgSubs:   make(map[string]chan *pingwire.Envelope),
		stateSubs: make(map[string]chan State),
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recent connection error message, if any.
func (c *Channel) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// SubscribeMessages registers an observer for decoded push messages. The
// returned ID is used to unsubscribe.
func (c *Channel) SubscribeMessages() (string, <-chan *pingwire.Envelope) {
	id := randomID()
	ch := make(chan *pingwire.Envelope, 16)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgSubs[id] = ch
	return id, ch
}

// SubscribeStates registers an observer for state transitions.
func (c *Channel) SubscribeStates() (string, <-chan State) {
	id := randomID()
	ch := make(chan State, 4)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateSubs[id] = ch
	return id, ch
}

// Unsubscribe removes an observer registered by either Subscribe call.
func (c *Channel) Unsubscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.msgSubs[id]; ok {
		close(ch)
		delete(c.msgSubs, id)
	}
	if ch, ok := c.stateSubs[id]; ok {
		close(ch)
		delete(c.stateSubs, id)
	}
}

// setState must be called with c.mu held.
func (c *Channel) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	for _, ch := range c.stateSubs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Connect starts an asynchronous connection attempt if the channel is
// currently disconnected. It never blocks on the dial; completion is
// observable through SubscribeStates. Connect on a closed channel is a no-op.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.state != Disconnected {
		c.mu.Unlock()
		return
	}
	c.setState(Connecting)
	c.mu.Unlock()

	go c.connect(ctx)
}

func (c *Channel) connect(ctx context.Context) {
	conn, err := c.dial(ctx, c.url)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.lastErr = err.Error()
		c.setState(Disconnected)
		c.mu.Unlock()
		metrics.ChannelConnects.WithLabelValues("error").Inc()
		monitoring.Logf("channel connect failed: %v", err)
		return
	}
	c.conn = conn
	c.lastErr = ""
	c.setState(Connected)
	c.mu.Unlock()
	metrics.ChannelConnects.WithLabelValues("ok").Inc()

	if frame, err := pingwire.EncodeSubscribe(c.deviceID); err == nil {
		c.writeMu.Lock()
		err = conn.WriteMessage(websocket.TextMessage, frame)
		c.writeMu.Unlock()
		if err != nil {
			monitoring.Logf("channel subscribe write failed: %v", err)
		}
	}

	go c.readLoop(conn)
}

// readLoop pumps frames from the socket to message observers until the
// connection drops. Malformed frames are dropped without affecting channel
// health.
func (c *Channel) readLoop(conn Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
				if !c.closed {
					if !isExpectedClose(err) {
						c.lastErr = err.Error()
					}
					c.setState(Disconnected)
				}
			}
			c.mu.Unlock()
			return
		}

		env, err := pingwire.Decode(raw)
		if err != nil {
			monitoring.Logf("dropping malformed channel frame: %v", err)
			continue
		}

		c.mu.Lock()
		for _, ch := range c.msgSubs {
			select {
			case ch <- env:
			default:
				// slow observer, skip rather than stall the read loop
			}
		}
		c.mu.Unlock()
	}
}

func isExpectedClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}

// Send writes one frame over the socket. It fails immediately with
// ErrNotConnected when the channel is not connected; callers fall back to
// the HTTP path in that case.
func (c *Channel) Send(frame []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != Connected || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	err := conn.WriteMessage(websocket.TextMessage, frame)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
			c.lastErr = err.Error()
			c.setState(Disconnected)
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// Close tears the channel down: the socket is closed, all observers are
// closed, and further Connect/Send calls are refused. Close is idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.setState(Disconnected)
	for id, ch := range c.msgSubs {
		close(ch)
		delete(c.msgSubs, id)
	}
	for id, ch := range c.stateSubs {
		close(ch)
		delete(c.stateSubs, id)
	}
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}
