package domain

import "context"

// CredentialStore persists the minimal session record across restarts.
type CredentialStore interface {
	// Save persists the record. Implementations must refuse a record
	// without an auth token and must write atomically.
	Save(rec SessionRecord) error
	// Restore returns the persisted record if one exists. It fails open:
	// a missing or unreadable record is (zero, false, nil), never an
	// error surfaced to the caller.
	Restore() (SessionRecord, bool, error)
	// Clear erases the record; after Clear, Restore reports nothing.
	Clear() error
}

// DirectoryClient is the request/response collaborator for login, roster
// and history. Every failure wraps ErrDirectoryUnavailable.
type DirectoryClient interface {
	Login(ctx context.Context, displayName, publicKeyArmored string) (LoginResult, error)
	SetToken(token string)
	FetchRoster(ctx context.Context) ([]Peer, error)
	FetchBroadcastHistory(ctx context.Context) ([]WireMessage, error)
	FetchDirectHistory(ctx context.Context, peerID string) ([]WireMessage, error)
}

// ChannelEvents are the inbound event handlers a RealtimeChannel dispatches
// to, in the order events arrive on the transport. Nil handlers are skipped.
type ChannelEvents struct {
	OnMessage    func(WireMessage)
	OnPeerJoined func(Peer)
	OnPeerLeft   func(Peer)
}

// RealtimeChannel is one persistent, authenticated event connection.
type RealtimeChannel interface {
	// SetEvents registers handlers; it must be called before Connect.
	SetEvents(ev ChannelEvents)
	// Connect is idempotent: connecting while connected is a no-op.
	Connect(ctx context.Context, authToken string) error
	// Disconnect is safe to call when not connected.
	Disconnect() error
	// EmitMessage is fire-and-forget; no acknowledgement is tracked.
	EmitMessage(m WireMessage) error
}

// Roster is the local registry of known peers and their online state.
type Roster interface {
	Upsert(p Peer)
	MarkOffline(id string)
	// OrderedView returns all peers, online first, ties keeping prior
	// relative order. This ordering is the presentation contract.
	OrderedView() []Peer
	Peer(id string) (Peer, bool)
}

// MessageArchive is the optional local cache of decrypted history.
// All writes are best-effort from the engine's point of view.
type MessageArchive interface {
	Append(conv ConversationID, m Message) error
	History(conv ConversationID) ([]Message, error)
	Close() error
}
