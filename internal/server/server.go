package server

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gopkg.in/op/go-logging.v1"

	"chatsecure/internal/crypto"
	"chatsecure/internal/domain"
	"chatsecure/internal/realtime"
)

// user is a registered identity plus its auth token.
type user struct {
	peer  domain.Peer
	token string
}

// Server is the in-memory directory and event server.
type Server struct {
	log     *logging.Logger
	app     *fiber.App
	hub     *hub
	hubOnce sync.Once

	mu           sync.Mutex
	usersByFP    map[string]*user
	usersByID    map[string]*user
	usersByToken map[string]*user
	groupMsgs    []domain.WireMessage
	directMsgs   []domain.WireMessage
}

// New builds the server with all routes registered.
func New(log *logging.Logger) *Server {
	s := &Server{
		log:          log,
		hub:          newHub(log),
		usersByFP:    make(map[string]*user),
		usersByID:    make(map[string]*user),
		usersByToken: make(map[string]*user),
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Post("/login", s.handleLogin)

	authed := app.Group("", s.requireToken)
	authed.Get("/users", s.handleUsers)
	authed.Get("/group_msg", s.handleGroupHistory)
	authed.Get("/user_msg/:id", s.handleDirectHistory)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		u, ok := s.userForToken(tokenFromHeader(c.Get(fiber.HeaderAuthorization)))
		if !ok {
			return fiber.ErrUnauthorized
		}
		c.Locals("user_id", u.peer.ID)
		return c.Next()
	})
	app.Get("/ws", websocket.New(s.handleSocket))

	s.app = app
	return s
}

// Listen serves until the listener fails.
func (s *Server) Listen(addr string) error {
	s.hubOnce.Do(func() { go s.hub.run() })
	s.log.Noticef("listening on %s", addr)
	return s.app.Listen(addr)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	s.hubOnce.Do(func() { go s.hub.run() })
	return s.app
}

// handleLogin registers a display name + public key, or re-issues the
// existing id/token when the key's fingerprint is already known.
func (s *Server) handleLogin(c *fiber.Ctx) error {
	var in struct {
		Name   string `json:"name"`
		Pubkey string `json:"pubkey"`
	}
	if err := json.Unmarshal(c.Body(), &in); err != nil {
		return fiber.ErrBadRequest
	}
	key, err := crypto.ParsePublicArmor(in.Pubkey)
	if err != nil {
		return fiber.ErrBadRequest
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = key.DisplayName
	}
	if name == "" {
		return fiber.ErrBadRequest
	}

	s.mu.Lock()
	u, ok := s.usersByFP[key.Fingerprint]
	if !ok {
		u = &user{
			peer: domain.Peer{
				ID:          uuid.NewString(),
				DisplayName: name,
				PublicKey:   in.Pubkey,
				Fingerprint: key.Fingerprint,
			},
			token: uuid.NewString(),
		}
		s.usersByFP[key.Fingerprint] = u
		s.usersByID[u.peer.ID] = u
		s.usersByToken[u.token] = u
		s.log.Infof("registered %q (%s)", name, u.peer.ID)
	}
	s.mu.Unlock()

	return c.JSON(domain.LoginResult{ServerID: u.peer.ID, AuthToken: u.token})
}

func (s *Server) handleUsers(c *fiber.Ctx) error {
	s.mu.Lock()
	peers := make([]domain.Peer, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		peers = append(peers, u.peer)
	}
	s.mu.Unlock()
	return c.JSON(peers)
}

func (s *Server) handleGroupHistory(c *fiber.Ctx) error {
	s.mu.Lock()
	out := append([]domain.WireMessage(nil), s.groupMsgs...)
	s.mu.Unlock()
	return c.JSON(out)
}

func (s *Server) handleDirectHistory(c *fiber.Ctx) error {
	me := c.Locals("user_id").(string)
	other := c.Params("id")

	s.mu.Lock()
	var out []domain.WireMessage
	for _, m := range s.directMsgs {
		if (m.Sender == me && m.Recipient == other) || (m.Sender == other && m.Recipient == me) {
			out = append(out, m)
		}
	}
	s.mu.Unlock()
	if out == nil {
		out = []domain.WireMessage{}
	}
	return c.JSON(out)
}

// handleSocket runs one websocket session: announce the peer, pump frames
// both ways, and announce the departure when the read loop ends.
func (s *Server) handleSocket(conn *websocket.Conn) {
	userID := conn.Locals("user_id").(string)
	u, ok := s.userByID(userID)
	if !ok {
		_ = conn.Close()
		return
	}

	s.setOnline(userID, true)
	cl := &client{userID: userID, conn: conn, send: make(chan realtime.Frame, 32)}
	s.hub.register <- cl
	s.announce(realtime.EventPeerJoined, u.peer)

	go cl.writePump()
	for {
		var f realtime.Frame
		if err := conn.ReadJSON(&f); err != nil {
			break
		}
		if f.Event != realtime.EventMessage {
			continue
		}
		var m domain.WireMessage
		if err := json.Unmarshal(f.Data, &m); err != nil {
			continue
		}
		s.routeMessage(userID, m)
	}

	s.hub.unregister <- cl
	s.setOnline(userID, false)
	s.announce(realtime.EventPeerLeft, domain.Peer{ID: u.peer.ID, DisplayName: u.peer.DisplayName})
}

// routeMessage stamps and stores a message, then fans it out: broadcast
// goes to every connected client (senders filter their own echo), direct
// goes to the recipient only.
func (s *Server) routeMessage(senderID string, m domain.WireMessage) {
	m.ID = uuid.NewString()
	m.Sender = senderID // never trust the client-supplied sender
	m.Timestamp = time.Now().Unix()

	if m.IsBroadcast {
		m.Recipient = string(domain.BroadcastConversation)
	}

	s.mu.Lock()
	if m.IsBroadcast {
		s.groupMsgs = append(s.groupMsgs, m)
	} else {
		s.directMsgs = append(s.directMsgs, m)
	}
	s.mu.Unlock()

	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	frame := realtime.Frame{Event: realtime.EventMessage, Data: data}
	if m.IsBroadcast {
		s.hub.broadcast <- frame
	} else {
		s.hub.direct <- directed{to: m.Recipient, frame: frame}
	}
}

func (s *Server) announce(event string, p domain.Peer) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	s.hub.broadcast <- realtime.Frame{Event: event, Data: data}
}

func (s *Server) requireToken(c *fiber.Ctx) error {
	u, ok := s.userForToken(tokenFromHeader(c.Get(fiber.HeaderAuthorization)))
	if !ok {
		return fiber.ErrUnauthorized
	}
	c.Locals("user_id", u.peer.ID)
	return c.Next()
}

func (s *Server) userForToken(token string) (*user, bool) {
	if token == "" {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usersByToken[token]
	return u, ok
}

func (s *Server) userByID(id string) (*user, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usersByID[id]
	return u, ok
}

func (s *Server) setOnline(id string, online bool) {
	s.mu.Lock()
	if u, ok := s.usersByID[id]; ok {
		u.peer.Online = online
	}
	s.mu.Unlock()
}

// tokenFromHeader parses "Token <value>" authorization headers.
func tokenFromHeader(h string) string {
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "token") {
		return ""
	}
	return parts[1]
}
