package conversation_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatsecure/internal/crypto"
	"chatsecure/internal/domain"
	logpkg "chatsecure/internal/log"
	"chatsecure/internal/realtime"
	"chatsecure/internal/services/conversation"
	"chatsecure/internal/services/roster"
)

// fakeDirectory serves canned history and can hold a fetch open until the
// test releases it.
type fakeDirectory struct {
	mu        sync.Mutex
	broadcast []domain.WireMessage
	direct    map[string][]domain.WireMessage
	err       error

	broadcastGate  chan struct{}
	broadcastCalls atomic.Int32
	directCalls    atomic.Int32
}

func (f *fakeDirectory) Login(context.Context, string, string) (domain.LoginResult, error) {
	return domain.LoginResult{}, nil
}

func (f *fakeDirectory) SetToken(string) {}

func (f *fakeDirectory) FetchRoster(context.Context) ([]domain.Peer, error) { return nil, nil }

func (f *fakeDirectory) FetchBroadcastHistory(context.Context) ([]domain.WireMessage, error) {
	f.broadcastCalls.Add(1)
	f.mu.Lock()
	gate, msgs, err := f.broadcastGate, f.broadcast, f.err
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return msgs, err
}

func (f *fakeDirectory) FetchDirectHistory(_ context.Context, peerID string) ([]domain.WireMessage, error) {
	f.directCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.direct[peerID], f.err
}

// fakeChannel records every emitted message.
type fakeChannel struct {
	mu      sync.Mutex
	emitted []domain.WireMessage
	emitErr error
}

func (f *fakeChannel) SetEvents(domain.ChannelEvents)          {}
func (f *fakeChannel) Connect(context.Context, string) error   { return nil }
func (f *fakeChannel) Disconnect() error                       { return nil }
func (f *fakeChannel) EmitMessage(m domain.WireMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emitted = append(f.emitted, m)
	return nil
}

func (f *fakeChannel) sent() []domain.WireMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.WireMessage, len(f.emitted))
	copy(out, f.emitted)
	return out
}

var _ domain.DirectoryClient = (*fakeDirectory)(nil)
var _ domain.RealtimeChannel = (*fakeChannel)(nil)

type fixture struct {
	alice  *crypto.Identity
	bob    *crypto.Identity
	dir    *fakeDirectory
	ch     *fakeChannel
	roster domain.Roster
	engine *conversation.Engine
	errs   chan error
}

const (
	aliceID = "u-alice"
	bobID   = "u-bob"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	alice, err := crypto.GenerateIdentity("alice")
	require.NoError(t, err)
	bob, err := crypto.GenerateIdentity("bob")
	require.NoError(t, err)

	bobArmor, err := bob.PublicArmor()
	require.NoError(t, err)

	r := roster.New()
	r.Upsert(domain.Peer{
		ID:          bobID,
		DisplayName: "bob",
		PublicKey:   bobArmor,
		Fingerprint: bob.Fingerprint,
		Online:      true,
	})

	f := &fixture{
		alice:  alice,
		bob:    bob,
		dir:    &fakeDirectory{direct: make(map[string][]domain.WireMessage)},
		ch:     &fakeChannel{},
		roster: r,
		errs:   make(chan error, 8),
	}
	f.engine = conversation.New(
		aliceID, alice, f.dir, f.ch, r, nil,
		logpkg.NewDiscard().GetLogger("engine"),
		conversation.Hooks{OnError: func(err error) { f.errs <- err }},
	)
	return f
}

// fromBob builds a wire message encrypted for alice and signed by bob.
func (f *fixture) fromBob(t *testing.T, id, body string, broadcast bool) domain.WireMessage {
	t.Helper()
	ct, err := crypto.Encrypt([]byte(body), []*crypto.PublicKey{f.alice.Public()}, f.bob)
	require.NoError(t, err)
	wm := domain.WireMessage{ID: id, Sender: bobID, Ciphertext: ct, Timestamp: time.Now().Unix()}
	if broadcast {
		wm.IsBroadcast = true
	} else {
		wm.Recipient = aliceID
	}
	return wm
}

func waitReady(t *testing.T, e *conversation.Engine, id domain.ConversationID) {
	t.Helper()
	require.Eventually(t, func() bool {
		return e.State(id) == conversation.StateReady
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSelect_LoadsAndDecryptsHistory(t *testing.T) {
	f := newFixture(t)
	f.dir.broadcast = []domain.WireMessage{
		f.fromBob(t, "m-1", "first", true),
		f.fromBob(t, "m-2", "second", true),
		f.fromBob(t, "m-3", "third", true),
	}

	f.engine.SelectConversation(context.Background(), domain.BroadcastConversation)
	waitReady(t, f.engine, domain.BroadcastConversation)

	msgs := f.engine.Messages(domain.BroadcastConversation)
	require.Len(t, msgs, 3)
	for i, body := range []string{"first", "second", "third"} {
		require.Equal(t, body, msgs[i].Body)
		require.Equal(t, bobID, msgs[i].Sender)
		require.False(t, msgs[i].Corrupt)
		require.False(t, msgs[i].Unverified)
	}
	require.Empty(t, f.engine.UnreadCounts())
}

func TestSelect_CorruptCiphertextBecomesPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.dir.broadcast = []domain.WireMessage{
		{ID: "m-1", Sender: bobID, Ciphertext: "not a pgp message", IsBroadcast: true},
		f.fromBob(t, "m-2", "readable", true),
	}

	f.engine.SelectConversation(context.Background(), domain.BroadcastConversation)
	waitReady(t, f.engine, domain.BroadcastConversation)

	msgs := f.engine.Messages(domain.BroadcastConversation)
	require.Len(t, msgs, 2)
	require.True(t, msgs[0].Corrupt)
	require.Empty(t, msgs[0].Body)
	require.Equal(t, "readable", msgs[1].Body)
}

func TestSelect_FailureLeavesIdleAndReportsError(t *testing.T) {
	f := newFixture(t)
	f.dir.err = domain.ErrDirectoryUnavailable

	f.engine.SelectConversation(context.Background(), domain.BroadcastConversation)

	select {
	case err := <-f.errs:
		require.ErrorIs(t, err, domain.ErrDirectoryUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("no error surfaced")
	}
	require.Eventually(t, func() bool {
		return f.engine.State(domain.BroadcastConversation) == conversation.StateIdle
	}, 2*time.Second, 10*time.Millisecond)
	require.Empty(t, f.engine.Messages(domain.BroadcastConversation))
}

func TestSelect_NewerSelectSupersedesInFlightLoad(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.dir.broadcastGate = gate
	f.dir.broadcast = []domain.WireMessage{f.fromBob(t, "m-1", "stale", true)}
	f.dir.direct[bobID] = []domain.WireMessage{f.fromBob(t, "m-2", "direct", false)}

	f.engine.SelectConversation(context.Background(), domain.BroadcastConversation)
	f.engine.SelectConversation(context.Background(), domain.ConversationID(bobID))
	close(gate)

	waitReady(t, f.engine, domain.ConversationID(bobID))
	require.Equal(t, domain.ConversationID(bobID), f.engine.Active())

	msgs := f.engine.Messages(domain.ConversationID(bobID))
	require.Len(t, msgs, 1)
	require.Equal(t, "direct", msgs[0].Body)

	// The superseded broadcast load must not have landed.
	require.Empty(t, f.engine.Messages(domain.BroadcastConversation))
}

func TestSelect_ReselectWhileLoadingFetchesOnce(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.dir.broadcastGate = gate

	f.engine.SelectConversation(context.Background(), domain.BroadcastConversation)
	f.engine.SelectConversation(context.Background(), domain.BroadcastConversation)
	f.engine.SelectConversation(context.Background(), domain.BroadcastConversation)
	close(gate)

	waitReady(t, f.engine, domain.BroadcastConversation)
	require.Equal(t, int32(1), f.dir.broadcastCalls.Load())
}

func TestHandleRealtime_ActiveAppends_InactiveCountsUnread(t *testing.T) {
	f := newFixture(t)
	f.engine.SelectConversation(context.Background(), domain.BroadcastConversation)
	waitReady(t, f.engine, domain.BroadcastConversation)

	// Broadcast while broadcast is active: visible immediately.
	f.engine.HandleRealtime(f.fromBob(t, "m-1", "hello room", true))
	msgs := f.engine.Messages(domain.BroadcastConversation)
	require.Len(t, msgs, 1)
	require.Equal(t, "hello room", msgs[0].Body)
	require.Zero(t, f.engine.Unread(domain.BroadcastConversation))

	// Direct message while broadcast is active: unread, not visible.
	f.engine.HandleRealtime(f.fromBob(t, "m-2", "psst", false))
	require.Equal(t, 1, f.engine.Unread(domain.ConversationID(bobID)))
	require.Empty(t, f.engine.Messages(domain.ConversationID(bobID)))

	// Opening the conversation clears the counter.
	f.engine.SelectConversation(context.Background(), domain.ConversationID(bobID))
	waitReady(t, f.engine, domain.ConversationID(bobID))
	require.Zero(t, f.engine.Unread(domain.ConversationID(bobID)))
}

func TestHandleRealtime_SuppressesOwnEcho(t *testing.T) {
	f := newFixture(t)
	f.engine.SelectConversation(context.Background(), domain.BroadcastConversation)
	waitReady(t, f.engine, domain.BroadcastConversation)

	f.engine.HandleRealtime(domain.WireMessage{
		ID: "m-1", Sender: aliceID, Ciphertext: "whatever", IsBroadcast: true,
	})
	require.Empty(t, f.engine.Messages(domain.BroadcastConversation))
	require.Empty(t, f.engine.UnreadCounts())
}

func TestHandleRealtime_DropsMisaddressedDirect(t *testing.T) {
	f := newFixture(t)
	wm := f.fromBob(t, "m-1", "not for you", false)
	wm.Recipient = "u-someone-else"

	f.engine.HandleRealtime(wm)
	require.Empty(t, f.engine.UnreadCounts())
	require.Empty(t, f.engine.Messages(domain.ConversationID(bobID)))
}

func TestSend_OptimisticAppendAndRecipientCanDecrypt(t *testing.T) {
	f := newFixture(t)
	f.engine.SelectConversation(context.Background(), domain.BroadcastConversation)
	waitReady(t, f.engine, domain.BroadcastConversation)

	msg, err := f.engine.Send("hi everyone")
	require.NoError(t, err)
	require.Equal(t, aliceID, msg.Sender)
	require.Equal(t, "hi everyone", msg.Body)

	msgs := f.engine.Messages(domain.BroadcastConversation)
	require.Len(t, msgs, 1)
	require.Equal(t, msg.ID, msgs[0].ID)

	sent := f.ch.sent()
	require.Len(t, sent, 1)
	require.True(t, sent[0].IsBroadcast)
	require.Equal(t, aliceID, sent[0].Sender)

	// Bob decrypts what went over the wire and sees alice's signature.
	alicePub := f.alice.Public()
	plain, unverified, err := crypto.Decrypt(sent[0].Ciphertext, f.bob, []*crypto.PublicKey{alicePub})
	require.NoError(t, err)
	require.Equal(t, "hi everyone", string(plain))
	require.False(t, unverified)
}

func TestSend_DirectUsesPeerKey(t *testing.T) {
	f := newFixture(t)
	f.dir.direct[bobID] = nil
	f.engine.SelectConversation(context.Background(), domain.ConversationID(bobID))
	waitReady(t, f.engine, domain.ConversationID(bobID))

	_, err := f.engine.Send("just for bob")
	require.NoError(t, err)

	sent := f.ch.sent()
	require.Len(t, sent, 1)
	require.False(t, sent[0].IsBroadcast)
	require.Equal(t, bobID, sent[0].Recipient)

	plain, _, err := crypto.Decrypt(sent[0].Ciphertext, f.bob, nil)
	require.NoError(t, err)
	require.Equal(t, "just for bob", string(plain))
}

func TestSend_KeepsLocalCopyWhenEmitFails(t *testing.T) {
	f := newFixture(t)
	f.engine.SelectConversation(context.Background(), domain.BroadcastConversation)
	waitReady(t, f.engine, domain.BroadcastConversation)

	f.ch.mu.Lock()
	f.ch.emitErr = errors.New("transport down")
	f.ch.mu.Unlock()

	msg, err := f.engine.Send("lost in transit")
	require.Error(t, err)

	msgs := f.engine.Messages(domain.BroadcastConversation)
	require.Len(t, msgs, 1)
	require.Equal(t, msg.ID, msgs[0].ID)

	select {
	case hookErr := <-f.errs:
		require.Error(t, hookErr)
	case <-time.After(time.Second):
		t.Fatal("emit failure not surfaced via hook")
	}
}

func TestSend_UnknownDirectPeerFails(t *testing.T) {
	f := newFixture(t)
	f.dir.direct["u-ghost"] = nil
	f.engine.SelectConversation(context.Background(), domain.ConversationID("u-ghost"))
	waitReady(t, f.engine, domain.ConversationID("u-ghost"))

	_, err := f.engine.Send("hello?")
	require.Error(t, err)
	require.Empty(t, f.ch.sent())
}

// The channel's own decode path and the engine compose: a frame arriving on
// the wire format ends up rendered.
func TestWireFrameRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.engine.SelectConversation(context.Background(), domain.BroadcastConversation)
	waitReady(t, f.engine, domain.BroadcastConversation)

	wm := f.fromBob(t, "m-9", "over the wire", true)
	data, err := json.Marshal(wm)
	require.NoError(t, err)
	frame := realtime.Frame{Event: realtime.EventMessage, Data: data}

	var decoded domain.WireMessage
	require.NoError(t, json.Unmarshal(frame.Data, &decoded))
	f.engine.HandleRealtime(decoded)

	msgs := f.engine.Messages(domain.BroadcastConversation)
	require.Len(t, msgs, 1)
	require.Equal(t, "over the wire", msgs[0].Body)
}
