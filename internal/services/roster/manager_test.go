package roster_test

import (
	"testing"

	"chatsecure/internal/domain"
	"chatsecure/internal/services/roster"
)

func peer(id string, online bool) domain.Peer {
	return domain.Peer{ID: id, DisplayName: "user-" + id, PublicKey: "key-" + id, Online: online}
}

func ids(peers []domain.Peer) []string {
	out := make([]string, len(peers))
	for i, p := range peers {
		out[i] = p.ID
	}
	return out
}

func TestUpsert_ReplacesByID(t *testing.T) {
	m := roster.New()
	m.Upsert(peer("a", true))
	m.Upsert(domain.Peer{ID: "a", DisplayName: "renamed", PublicKey: "key-a2", Online: true})

	got, ok := m.Peer("a")
	if !ok {
		t.Fatal("peer missing")
	}
	if got.DisplayName != "renamed" || got.PublicKey != "key-a2" {
		t.Fatalf("upsert did not replace: %+v", got)
	}
	if len(m.OrderedView()) != 1 {
		t.Fatal("upsert must not duplicate")
	}
}

func TestUpsert_KeepsKnownKeyWhenOmitted(t *testing.T) {
	m := roster.New()
	m.Upsert(peer("a", true))
	// A peer-left payload carries no public key.
	m.Upsert(domain.Peer{ID: "a", DisplayName: "user-a", Online: false})

	got, _ := m.Peer("a")
	if got.PublicKey != "key-a" {
		t.Fatalf("known key lost: %+v", got)
	}
}

func TestMarkOffline_RetainsPeer(t *testing.T) {
	m := roster.New()
	m.Upsert(peer("a", true))
	m.MarkOffline("a")

	got, ok := m.Peer("a")
	if !ok {
		t.Fatal("offline peer must be retained")
	}
	if got.Online {
		t.Fatal("peer should be offline")
	}

	// Unknown ids are ignored.
	m.MarkOffline("ghost")
	if len(m.OrderedView()) != 1 {
		t.Fatal("markOffline must not create entries")
	}
}

func TestOrderedView_OnlineFirst_Stable(t *testing.T) {
	m := roster.New()
	m.Upsert(peer("a", false))
	m.Upsert(peer("b", true))
	m.Upsert(peer("c", false))
	m.Upsert(peer("d", true))

	view := m.OrderedView()
	want := []string{"b", "d", "a", "c"}
	for i, id := range ids(view) {
		if id != want[i] {
			t.Fatalf("order %v, want %v", ids(view), want)
		}
	}

	// Every online peer strictly precedes every offline peer.
	seenOffline := false
	for _, p := range view {
		if !p.Online {
			seenOffline = true
		} else if seenOffline {
			t.Fatalf("online peer after offline one: %v", ids(view))
		}
	}

	// Flipping d offline keeps prior relative order among the rest.
	m.MarkOffline("d")
	want = []string{"b", "a", "c", "d"}
	for i, id := range ids(m.OrderedView()) {
		if id != want[i] {
			t.Fatalf("order after markOffline %v, want %v", ids(m.OrderedView()), want)
		}
	}
}
