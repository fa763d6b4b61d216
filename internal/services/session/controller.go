package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"chatsecure/internal/crypto"
	"chatsecure/internal/domain"
	"chatsecure/internal/services/conversation"
	"chatsecure/internal/services/keys"
)

// ErrNoSession is returned by session-scoped operations before a
// successful SignUp, ImportKey or Resume.
var ErrNoSession = errors.New("no active session")

// Controller wires the key manager, credential store, directory, channel
// and engine into one authenticated session.
type Controller struct {
	keys    *keys.Service
	creds   domain.CredentialStore
	dir     domain.DirectoryClient
	channel domain.RealtimeChannel
	roster  domain.Roster
	archive domain.MessageArchive
	log     *logging.Logger
	hooks   conversation.Hooks

	mu       sync.Mutex
	identity *crypto.Identity
	serverID string
	token    string
	engine   *conversation.Engine
}

// New constructs a Controller from its collaborators. archive may be nil.
func New(
	ks *keys.Service,
	creds domain.CredentialStore,
	dir domain.DirectoryClient,
	channel domain.RealtimeChannel,
	roster domain.Roster,
	archive domain.MessageArchive,
	log *logging.Logger,
	hooks conversation.Hooks,
) *Controller {
	return &Controller{
		keys:    ks,
		creds:   creds,
		dir:     dir,
		channel: channel,
		roster:  roster,
		archive: archive,
		log:     log,
		hooks:   hooks,
	}
}

// SignUp generates a fresh identity for displayName, authenticates it and
// starts the session.
func (c *Controller) SignUp(ctx context.Context, displayName string) error {
	id, err := c.keys.Generate(displayName)
	if err != nil {
		return err
	}
	return c.loginAndStart(ctx, id)
}

// ImportKey resumes an identity from an exported private key and starts
// the session.
func (c *Controller) ImportKey(ctx context.Context, armoredText string) error {
	id, err := c.keys.Import(armoredText)
	if err != nil {
		return err
	}
	return c.loginAndStart(ctx, id)
}

// Resume restores the persisted session, if any. It reports false when no
// usable record exists. A record that is present but no longer parseable
// is fatal to the stored session: it is cleared and the error surfaced.
func (c *Controller) Resume(ctx context.Context) (bool, error) {
	rec, ok, err := c.creds.Restore()
	if err != nil || !ok {
		return false, err
	}
	id, err := c.keys.Import(rec.PrivateKey)
	if err != nil {
		// A token was persisted but the key no longer parses: log out.
		_ = c.creds.Clear()
		return false, fmt.Errorf("restoring persisted session: %w", err)
	}

	c.mu.Lock()
	c.identity = id
	c.serverID = rec.ServerID
	c.token = rec.AuthToken
	c.mu.Unlock()

	c.dir.SetToken(rec.AuthToken)
	if err := c.start(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// loginAndStart authenticates id with the directory, persists the session
// record (only now that a token exists) and starts the live session.
func (c *Controller) loginAndStart(ctx context.Context, id *crypto.Identity) error {
	pub, err := id.PublicArmor()
	if err != nil {
		return err
	}
	res, err := c.dir.Login(ctx, id.DisplayName, pub)
	if err != nil {
		return err
	}
	c.dir.SetToken(res.AuthToken)

	priv, err := id.PrivateArmor()
	if err != nil {
		return err
	}
	rec := domain.SessionRecord{
		ServerID:    res.ServerID,
		DisplayName: id.DisplayName,
		AuthToken:   res.AuthToken,
		PrivateKey:  priv,
		PublicKey:   pub,
	}
	if err := c.creds.Save(rec); err != nil {
		return err
	}

	c.mu.Lock()
	c.identity = id
	c.serverID = res.ServerID
	c.token = res.AuthToken
	c.mu.Unlock()

	return c.start(ctx)
}

// start builds the engine, connects the channel and bootstraps roster and
// broadcast history. A roster fetch failure during session start is fatal:
// it logs the session out.
func (c *Controller) start(ctx context.Context) error {
	c.mu.Lock()
	engine := conversation.New(
		c.serverID, c.identity, c.dir, c.channel, c.roster, c.archive, c.log, c.hooks,
	)
	c.engine = engine
	selfID := c.serverID
	token := c.token
	c.mu.Unlock()

	c.channel.SetEvents(domain.ChannelEvents{
		OnMessage: engine.HandleRealtime,
		OnPeerJoined: func(p domain.Peer) {
			if p.ID == selfID {
				return
			}
			c.roster.Upsert(p)
			if c.hooks.OnRefresh != nil {
				c.hooks.OnRefresh()
			}
		},
		OnPeerLeft: func(p domain.Peer) {
			c.roster.MarkOffline(p.ID)
			if c.hooks.OnRefresh != nil {
				c.hooks.OnRefresh()
			}
		},
	})
	if err := c.channel.Connect(ctx, token); err != nil {
		return err
	}

	peers, err := c.dir.FetchRoster(ctx)
	if err != nil {
		c.log.Errorf("roster fetch during session start: %v", err)
		c.Logout()
		return fmt.Errorf("session start: %w", err)
	}
	for _, p := range peers {
		if p.ID == selfID {
			continue
		}
		c.roster.Upsert(p)
	}

	engine.SelectConversation(ctx, domain.BroadcastConversation)
	return nil
}

// Logout clears the persisted credentials and tears down the connection.
func (c *Controller) Logout() {
	if err := c.creds.Clear(); err != nil {
		c.log.Warningf("clearing credentials: %v", err)
	}
	if err := c.channel.Disconnect(); err != nil {
		c.log.Warningf("disconnect: %v", err)
	}
	c.mu.Lock()
	c.identity = nil
	c.serverID = ""
	c.token = ""
	c.engine = nil
	c.mu.Unlock()
}

// Engine returns the conversation engine, or nil before a session starts.
func (c *Controller) Engine() *conversation.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

// Identity returns the authenticated identity.
func (c *Controller) Identity() (*crypto.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return nil, ErrNoSession
	}
	return c.identity, nil
}

// ServerID returns the directory-assigned id for this session.
func (c *Controller) ServerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverID
}

// ExportKey serializes the session's private key for download.
func (c *Controller) ExportKey() (string, error) {
	id, err := c.Identity()
	if err != nil {
		return "", err
	}
	return c.keys.Export(id)
}

// Send passes plaintext to the engine for the active conversation.
func (c *Controller) Send(plaintext string) (domain.Message, error) {
	e := c.Engine()
	if e == nil {
		return domain.Message{}, ErrNoSession
	}
	return e.Send(plaintext)
}

// SelectConversation switches the active conversation.
func (c *Controller) SelectConversation(ctx context.Context, id domain.ConversationID) error {
	e := c.Engine()
	if e == nil {
		return ErrNoSession
	}
	e.SelectConversation(ctx, id)
	return nil
}
