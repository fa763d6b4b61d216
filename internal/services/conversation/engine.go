package conversation

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/op/go-logging.v1"

	"chatsecure/internal/crypto"
	"chatsecure/internal/domain"
)

// State of a single conversation.
type State int

const (
	// StateIdle means history has not been loaded.
	StateIdle State = iota
	// StateLoading means a history fetch is in flight.
	StateLoading
	// StateReady means messages are available.
	StateReady
)

// Hooks are optional side-channel callbacks for the presentation layer.
// Both may be nil and both may be invoked from the engine's goroutines.
type Hooks struct {
	// OnRefresh fires after any state change worth re-rendering.
	OnRefresh func()
	// OnError surfaces non-fatal failures (history loads, emits).
	OnError func(error)
}

// Engine arbitrates conversation switches, inbound events and sends.
//
// All authoritative state lives here, guarded by one mutex; handlers read
// this single source of truth rather than shadow copies.
type Engine struct {
	selfID  string
	ident   *crypto.Identity
	dir     domain.DirectoryClient
	channel domain.RealtimeChannel
	roster  domain.Roster
	archive domain.MessageArchive // may be nil
	log     *logging.Logger
	hooks   Hooks

	mu     sync.Mutex
	active domain.ConversationID
	states map[domain.ConversationID]State
	msgs   map[domain.ConversationID][]domain.Message
	unread map[domain.ConversationID]int

	// epoch identifies the most recent accepted select; a history load
	// carrying an older epoch is stale and discarded. loading doubles as
	// the switch guard for duplicate selects of the same target.
	epoch   uint64
	loading bool

	keyCache map[string]cachedKey
}

type cachedKey struct {
	fingerprint string
	key         *crypto.PublicKey
}

// New returns an engine for the authenticated identity selfID.
func New(
	selfID string,
	ident *crypto.Identity,
	dir domain.DirectoryClient,
	channel domain.RealtimeChannel,
	roster domain.Roster,
	archive domain.MessageArchive,
	log *logging.Logger,
	hooks Hooks,
) *Engine {
	return &Engine{
		selfID:   selfID,
		ident:    ident,
		dir:      dir,
		channel:  channel,
		roster:   roster,
		archive:  archive,
		log:      log,
		hooks:    hooks,
		active:   domain.BroadcastConversation,
		states:   make(map[domain.ConversationID]State),
		msgs:     make(map[domain.ConversationID][]domain.Message),
		unread:   make(map[domain.ConversationID]int),
		keyCache: make(map[string]cachedKey),
	}
}

// SelectConversation makes id the active conversation, clears its unread
// count and (re)loads its history.
//
// Re-selecting the conversation whose load is already in flight is a no-op
// rather than a duplicate fetch. Selecting a different conversation while
// a load is in flight supersedes it: the older load's result is discarded
// when it eventually resolves.
func (e *Engine) SelectConversation(ctx context.Context, id domain.ConversationID) {
	e.mu.Lock()
	if e.loading && e.active == id {
		e.mu.Unlock()
		return
	}
	e.epoch++
	epoch := e.epoch
	e.loading = true
	e.active = id
	delete(e.unread, id)
	e.states[id] = StateLoading
	e.mu.Unlock()

	go e.loadHistory(ctx, epoch, id)
}

func (e *Engine) loadHistory(ctx context.Context, epoch uint64, id domain.ConversationID) {
	var wire []domain.WireMessage
	var err error
	if id == domain.BroadcastConversation {
		wire, err = e.dir.FetchBroadcastHistory(ctx)
	} else {
		wire, err = e.dir.FetchDirectHistory(ctx, string(id))
	}

	var history []domain.Message
	if err == nil {
		history = make([]domain.Message, 0, len(wire))
		for _, wm := range wire {
			history = append(history, e.decryptWire(wm, id))
		}
	}

	e.mu.Lock()
	if epoch != e.epoch {
		// A newer select superseded this load; its owner clears the guard.
		e.mu.Unlock()
		e.log.Debugf("discarding stale history for %q", id)
		return
	}
	e.loading = false
	if err != nil {
		e.states[id] = StateIdle
		e.msgs[id] = nil
		e.mu.Unlock()
		e.fail(fmt.Errorf("history for %q: %w", id, err))
		return
	}
	e.msgs[id] = history
	e.states[id] = StateReady
	e.mu.Unlock()
	e.refresh()
}

// HandleRealtime routes an inbound message event. A message for the active
// conversation is appended to its list; a message for any other
// conversation increments that conversation's unread count instead.
func (e *Engine) HandleRealtime(wm domain.WireMessage) {
	if wm.Sender == e.selfID {
		// Echo suppression: the optimistic copy was appended on send.
		return
	}
	if !wm.IsBroadcast && wm.Recipient != e.selfID {
		e.log.Warningf("dropping direct message not addressed to us (sender %q)", wm.Sender)
		return
	}

	conv := domain.ConversationID(wm.Sender)
	if wm.IsBroadcast {
		conv = domain.BroadcastConversation
	}
	msg := e.decryptWire(wm, conv)

	e.mu.Lock()
	if conv == e.active {
		e.msgs[conv] = append(e.msgs[conv], msg)
	} else {
		e.unread[conv]++
	}
	e.mu.Unlock()

	e.archiveAppend(conv, msg)
	e.refresh()
}

// Send encrypts plaintext for the active conversation's recipient set,
// appends an optimistic local copy and hands the payload to the channel.
//
// The optimistic copy is kept even when transmission fails; the error is
// the side channel, there is no resend.
func (e *Engine) Send(plaintext string) (domain.Message, error) {
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()

	recipients, err := e.recipientsFor(active)
	if err != nil {
		return domain.Message{}, err
	}
	ciphertext, err := crypto.Encrypt([]byte(plaintext), recipients, e.ident)
	if err != nil {
		return domain.Message{}, err
	}

	now := time.Now()
	msg := domain.Message{
		ID:           localMessageID(now),
		Sender:       e.selfID,
		Conversation: active,
		Body:         plaintext,
		Timestamp:    now.Unix(),
	}

	e.mu.Lock()
	e.msgs[active] = append(e.msgs[active], msg)
	e.mu.Unlock()
	e.archiveAppend(active, msg)
	e.refresh()

	wm := domain.WireMessage{
		ID:          msg.ID,
		Sender:      e.selfID,
		Recipient:   string(active),
		Ciphertext:  ciphertext,
		IsBroadcast: active == domain.BroadcastConversation,
		Timestamp:   msg.Timestamp,
	}
	if err := e.channel.EmitMessage(wm); err != nil {
		e.fail(fmt.Errorf("send to %q: %w", active, err))
		return msg, err
	}
	return msg, nil
}

// Active returns the selected conversation id.
func (e *Engine) Active() domain.ConversationID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// State returns the load state of a conversation.
func (e *Engine) State(id domain.ConversationID) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[id]
}

// Messages returns a copy of a conversation's message list.
func (e *Engine) Messages(id domain.ConversationID) []domain.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Message, len(e.msgs[id]))
	copy(out, e.msgs[id])
	return out
}

// Unread returns the unread count for a conversation; the active
// conversation always reports zero.
func (e *Engine) Unread(id domain.ConversationID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unread[id]
}

// UnreadCounts returns a copy of the whole unread index. A conversation
// absent from the map has a count of zero.
func (e *Engine) UnreadCounts() map[domain.ConversationID]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[domain.ConversationID]int, len(e.unread))
	for k, v := range e.unread {
		out[k] = v
	}
	return out
}

// recipientsFor resolves the recipient key set: for broadcast, every known
// peer with a parsable key; for a direct conversation, that peer's key.
// The sender's own key is added by Encrypt.
func (e *Engine) recipientsFor(id domain.ConversationID) ([]*crypto.PublicKey, error) {
	if id == domain.BroadcastConversation {
		var keys []*crypto.PublicKey
		for _, p := range e.roster.OrderedView() {
			if p.ID == e.selfID {
				continue
			}
			if k := e.peerKey(p); k != nil {
				keys = append(keys, k)
			}
		}
		return keys, nil
	}

	p, ok := e.roster.Peer(string(id))
	if !ok {
		return nil, fmt.Errorf("unknown peer %q", id)
	}
	k := e.peerKey(p)
	if k == nil {
		return nil, fmt.Errorf("%w: peer %q has no usable key", domain.ErrKeyParse, id)
	}
	return []*crypto.PublicKey{k}, nil
}

// peerKey returns the parsed key for p, reparsing when the roster entry's
// fingerprint changed under us.
func (e *Engine) peerKey(p domain.Peer) *crypto.PublicKey {
	if p.PublicKey == "" {
		return nil
	}
	e.mu.Lock()
	cached, ok := e.keyCache[p.ID]
	e.mu.Unlock()
	if ok && (p.Fingerprint == "" || cached.fingerprint == p.Fingerprint) {
		return cached.key
	}

	key, err := crypto.ParsePublicArmor(p.PublicKey)
	if err != nil {
		e.log.Warningf("unparsable key for peer %q: %v", p.ID, err)
		return nil
	}
	e.mu.Lock()
	e.keyCache[p.ID] = cachedKey{fingerprint: key.Fingerprint, key: key}
	e.mu.Unlock()
	return key
}

// decryptWire turns a wire message into a renderable one. A ciphertext
// that cannot be decrypted yields a Corrupt placeholder rather than
// aborting the surrounding load.
func (e *Engine) decryptWire(wm domain.WireMessage, conv domain.ConversationID) domain.Message {
	msg := domain.Message{
		ID:           wm.ID,
		Sender:       wm.Sender,
		Conversation: conv,
		Timestamp:    wm.Timestamp,
	}
	if msg.ID == "" {
		msg.ID = localMessageID(time.Now())
	}

	var verifiers []*crypto.PublicKey
	if p, ok := e.roster.Peer(wm.Sender); ok {
		if k := e.peerKey(p); k != nil {
			verifiers = append(verifiers, k)
		}
	}
	plaintext, unverified, err := crypto.Decrypt(wm.Ciphertext, e.ident, verifiers)
	if err != nil {
		e.log.Warningf("undecryptable message %q from %q: %v", msg.ID, wm.Sender, err)
		msg.Corrupt = true
		return msg
	}
	msg.Body = string(plaintext)
	msg.Unverified = unverified
	return msg
}

func (e *Engine) archiveAppend(conv domain.ConversationID, m domain.Message) {
	if e.archive == nil {
		return
	}
	if err := e.archive.Append(conv, m); err != nil {
		e.log.Warningf("archive append: %v", err)
	}
}

func (e *Engine) refresh() {
	if e.hooks.OnRefresh != nil {
		e.hooks.OnRefresh()
	}
}

func (e *Engine) fail(err error) {
	e.log.Errorf("%v", err)
	if e.hooks.OnError != nil {
		e.hooks.OnError(err)
	}
}

// localMessageID builds a monotonic-ish id for locally created messages.
// The uuid suffix guards against two messages sharing a millisecond.
func localMessageID(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10) + "-" + uuid.NewString()[:8]
}
