package crypto_test

import (
	"errors"
	"testing"

	"chatsecure/internal/crypto"
)

func TestSealOpen_RoundTrip(t *testing.T) {
	blob, err := crypto.Seal("hunter2 but longer", []byte("key material"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := crypto.Open("hunter2 but longer", blob)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(got) != "key material" {
		t.Fatalf("plaintext mismatch: %q", got)
	}
}

func TestOpen_WrongPassphrase(t *testing.T) {
	blob, err := crypto.Seal("correct", []byte("key material"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := crypto.Open("wrong", blob); !errors.Is(err, crypto.ErrWrongPassphrase) {
		t.Fatalf("want ErrWrongPassphrase, got %v", err)
	}
}
