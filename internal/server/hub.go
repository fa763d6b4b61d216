package server

import (
	"github.com/gofiber/contrib/websocket"
	"gopkg.in/op/go-logging.v1"

	"chatsecure/internal/realtime"
)

// client is one connected websocket session.
type client struct {
	userID string
	conn   *websocket.Conn
	send   chan realtime.Frame
}

func (c *client) writePump() {
	for f := range c.send {
		if err := c.conn.WriteJSON(f); err != nil {
			return
		}
	}
}

type directed struct {
	to    string
	frame realtime.Frame
}

// hub owns the set of live connections and all frame routing. One
// goroutine serializes every mutation, so handlers only ever talk to it
// through channels.
type hub struct {
	log *logging.Logger

	register   chan *client
	unregister chan *client
	broadcast  chan realtime.Frame
	direct     chan directed

	clients map[string]*client // by user id
}

func newHub(log *logging.Logger) *hub {
	return &hub{
		log:        log,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan realtime.Frame, 16),
		direct:     make(chan directed, 16),
		clients:    make(map[string]*client),
	}
}

func (h *hub) run() {
	for {
		select {
		case c := <-h.register:
			// A reconnect replaces the previous session for that user.
			if prev, ok := h.clients[c.userID]; ok {
				close(prev.send)
			}
			h.clients[c.userID] = c
		case c := <-h.unregister:
			if cur, ok := h.clients[c.userID]; ok && cur == c {
				delete(h.clients, c.userID)
				close(c.send)
			}
		case f := <-h.broadcast:
			for _, c := range h.clients {
				h.push(c, f)
			}
		case d := <-h.direct:
			if c, ok := h.clients[d.to]; ok {
				h.push(c, d.frame)
			}
		}
	}
}

func (h *hub) push(c *client, f realtime.Frame) {
	select {
	case c.send <- f:
	default:
		h.log.Warningf("dropping frame for slow client %q", c.userID)
	}
}
