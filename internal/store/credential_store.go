package store

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"chatsecure/internal/crypto"
	"chatsecure/internal/domain"
)

const sessionFile = "session.json"

// ErrUnauthenticated is returned when Save is handed a record without an
// auth token; an unauthenticated identity is never persisted.
var ErrUnauthenticated = errors.New("refusing to persist an unauthenticated session")

// CredentialFileStore persists the session record to disk.
//
// With a non-empty passphrase the private key armor is sealed with a
// passphrase-derived key before it touches disk; with an empty passphrase
// the armor is stored as-is.
type CredentialFileStore struct {
	dir        string
	passphrase string
	mu         sync.Mutex
}

// NewCredentialFileStore returns a store rooted at dir.
func NewCredentialFileStore(dir, passphrase string) *CredentialFileStore {
	return &CredentialFileStore{dir: dir, passphrase: passphrase}
}

// Save writes the record atomically. Called only after authentication
// succeeds; a record without a token is refused.
func (s *CredentialFileStore) Save(rec domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.AuthToken == "" {
		return ErrUnauthenticated
	}
	if s.passphrase != "" {
		blob, err := crypto.Seal(s.passphrase, []byte(rec.PrivateKey))
		if err != nil {
			return err
		}
		rec.PrivateKey = base64.StdEncoding.EncodeToString(blob)
		rec.Protected = true
	}
	return writeJSON(s.path(), rec, 0o600)
}

// Restore reads the persisted record, if present. It fails open: a missing,
// unreadable or unopenable record reports (zero, false, nil).
func (s *CredentialFileStore) Restore() (domain.SessionRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec domain.SessionRecord
	existed, err := readJSON(s.path(), &rec)
	if err != nil || !existed {
		return domain.SessionRecord{}, false, nil
	}
	if rec.Protected {
		blob, err := base64.StdEncoding.DecodeString(rec.PrivateKey)
		if err != nil {
			return domain.SessionRecord{}, false, nil
		}
		armored, err := crypto.Open(s.passphrase, blob)
		if err != nil {
			return domain.SessionRecord{}, false, nil
		}
		rec.PrivateKey = string(armored)
		rec.Protected = false
	}
	return rec, true, nil
}

// Clear erases the persisted record.
func (s *CredentialFileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *CredentialFileStore) path() string {
	return filepath.Join(s.dir, sessionFile)
}

// Compile-time assertion that CredentialFileStore implements
// domain.CredentialStore.
var _ domain.CredentialStore = (*CredentialFileStore)(nil)
