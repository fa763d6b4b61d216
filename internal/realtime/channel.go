package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"gopkg.in/op/go-logging.v1"

	"chatsecure/internal/domain"
)

// Event names on the wire.
const (
	EventMessage    = "message"
	EventPeerJoined = "peer-joined"
	EventPeerLeft   = "peer-left"
)

// Frame is the envelope every event travels in.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Channel is a websocket-backed domain.RealtimeChannel.
type Channel struct {
	url string
	log *logging.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	events domain.ChannelEvents

	writeMu sync.Mutex
}

// New returns an unconnected Channel for the given websocket URL.
func New(url string, log *logging.Logger) *Channel {
	return &Channel{url: url, log: log}
}

// SetEvents registers the inbound handlers. Must be called before Connect.
func (c *Channel) SetEvents(ev domain.ChannelEvents) {
	c.mu.Lock()
	c.events = ev
	c.mu.Unlock()
}

// Connect dials the server, authenticating with the token. Calling it
// while already connected is a no-op.
func (c *Channel) Connect(ctx context.Context, authToken string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	hdr := http.Header{}
	hdr.Set("Authorization", "Token "+authToken)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, hdr)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChannelConnection, err)
	}
	c.conn = conn
	go c.readLoop(conn)
	return nil
}

// Disconnect tears down the connection; safe to call when not connected.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// EmitMessage sends a message event. Fire-and-forget: no acknowledgement
// is awaited or tracked.
func (c *Channel) EmitMessage(m domain.WireMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: not connected", domain.ErrChannelConnection)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(Frame{Event: EventMessage, Data: data}); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChannelConnection, err)
	}
	return nil
}

// readLoop dispatches inbound frames, in the order the transport delivers
// them, until the connection dies.
func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			c.log.Debugf("read loop ended: %v", err)
			return
		}
		c.dispatch(f)
	}
}

func (c *Channel) dispatch(f Frame) {
	c.mu.Lock()
	ev := c.events
	c.mu.Unlock()

	switch f.Event {
	case EventMessage:
		var m domain.WireMessage
		if err := json.Unmarshal(f.Data, &m); err != nil {
			c.log.Warningf("bad message payload: %v", err)
			return
		}
		if ev.OnMessage != nil {
			ev.OnMessage(m)
		}
	case EventPeerJoined:
		var p domain.Peer
		if err := json.Unmarshal(f.Data, &p); err != nil {
			c.log.Warningf("bad peer-joined payload: %v", err)
			return
		}
		p.Online = true
		if ev.OnPeerJoined != nil {
			ev.OnPeerJoined(p)
		}
	case EventPeerLeft:
		var p domain.Peer
		if err := json.Unmarshal(f.Data, &p); err != nil {
			c.log.Warningf("bad peer-left payload: %v", err)
			return
		}
		p.Online = false
		if ev.OnPeerLeft != nil {
			ev.OnPeerLeft(p)
		}
	default:
		c.log.Debugf("ignoring unknown event %q", f.Event)
	}
}

// Compile-time assertion that Channel implements domain.RealtimeChannel.
var _ domain.RealtimeChannel = (*Channel)(nil)
