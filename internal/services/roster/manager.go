package roster

import (
	"sort"
	"sync"

	"chatsecure/internal/domain"
)

// Manager is the in-memory roster.
type Manager struct {
	mu    sync.RWMutex
	peers map[string]domain.Peer
	order []string // first-seen order, the tie-break for OrderedView
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{peers: make(map[string]domain.Peer)}
}

// Upsert replaces or inserts a peer by id.
//
// A peer-left payload may omit the public key; an upsert with an empty key
// keeps the one already known so key material is never lost mid-session.
func (m *Manager) Upsert(p domain.Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, seen := m.peers[p.ID]
	if !seen {
		m.order = append(m.order, p.ID)
	}
	if p.PublicKey == "" && seen {
		p.PublicKey = prev.PublicKey
		if p.Fingerprint == "" {
			p.Fingerprint = prev.Fingerprint
		}
	}
	m.peers[p.ID] = p
}

// MarkOffline flips the peer offline without removing the entry. Unknown
// ids are ignored.
func (m *Manager) MarkOffline(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.peers[id]
	if !ok {
		return
	}
	p.Online = false
	m.peers[id] = p
}

// Peer returns the entry for id.
func (m *Manager) Peer(id string) (domain.Peer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.peers[id]
	return p, ok
}

// OrderedView returns all peers sorted with online peers strictly first;
// the sort is stable so ties keep their prior relative order. This is the
// ordering the presentation layer consumes directly.
func (m *Manager) OrderedView() []domain.Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Peer, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.peers[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Online && !out[j].Online
	})
	return out
}

// Compile-time assertion that Manager implements domain.Roster.
var _ domain.Roster = (*Manager)(nil)
