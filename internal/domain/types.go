package domain

// ConversationID names a conversation: either the broadcast sentinel or a
// peer id.
type ConversationID string

// BroadcastConversation is the shared group channel every client joins.
const BroadcastConversation ConversationID = "broadcast"

// Peer is a directory entry for another user. Peers are never removed once
// seen in a session; going away only flips Online.
type Peer struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	PublicKey   string `json:"public_key,omitempty"` // armored; absent on peer-left
	Fingerprint string `json:"fingerprint,omitempty"`
	Online      bool   `json:"online"`
}

// Message is a decrypted, conversation-local message as the engine renders
// it. Immutable once created.
type Message struct {
	ID           string         `json:"id"`
	Sender       string         `json:"sender"`
	Conversation ConversationID `json:"conversation"`
	Body         string         `json:"body"`
	Timestamp    int64          `json:"ts"`

	// Unverified marks a message whose signature could not be checked.
	// Policy is lenient: the message is still rendered and the caller
	// decides how to flag it.
	Unverified bool `json:"unverified,omitempty"`
	// Corrupt marks a message whose ciphertext could not be decrypted;
	// Body is empty and the caller renders a placeholder.
	Corrupt bool `json:"corrupt,omitempty"`
}

// WireMessage is the `message` event payload and the history record shape.
// Ciphertext is an armored blob opaque to the transport.
type WireMessage struct {
	ID          string `json:"id,omitempty"` // server-assigned
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	Ciphertext  string `json:"ciphertext"`
	IsBroadcast bool   `json:"is_broadcast"`
	Timestamp   int64  `json:"ts,omitempty"`
}

// LoginResult is what the directory hands back on a successful login.
type LoginResult struct {
	ServerID  string `json:"id"`
	AuthToken string `json:"token"`
}

// SessionRecord is the single persisted credential record. It must
// round-trip byte-for-byte through save/restore without loss of key
// material.
type SessionRecord struct {
	ServerID    string `json:"server_id"`
	DisplayName string `json:"display_name"`
	AuthToken   string `json:"auth_token"`
	PrivateKey  string `json:"private_key"` // armored, optionally envelope-wrapped
	PublicKey   string `json:"public_key"`  // armored

	// Protected is set when PrivateKey is sealed with a passphrase-derived
	// key rather than stored as plain armor.
	Protected bool `json:"protected,omitempty"`
}
