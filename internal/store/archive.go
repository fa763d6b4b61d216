package store

import (
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"chatsecure/internal/domain"
)

// BoltArchive caches decrypted messages per conversation, one bucket per
// conversation id, keyed by insertion sequence so History returns them in
// append order.
type BoltArchive struct {
	db *bolt.DB
}

// OpenArchive opens (or creates) the archive database at path.
func OpenArchive(path string) (*BoltArchive, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	return &BoltArchive{db: db}, nil
}

// Append stores m at the tail of the conversation's bucket.
func (a *BoltArchive) Append(conv domain.ConversationID, m domain.Message) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(conv))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		val, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return b.Put(key[:], val)
	})
}

// History returns the archived messages for conv in append order.
func (a *BoltArchive) History(conv domain.ConversationID) ([]domain.Message, error) {
	var out []domain.Message
	err := a.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(conv))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var m domain.Message
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			out = append(out, m)
			return nil
		})
	})
	return out, err
}

// Close closes the underlying database.
func (a *BoltArchive) Close() error { return a.db.Close() }

// Compile-time assertion that BoltArchive implements domain.MessageArchive.
var _ domain.MessageArchive = (*BoltArchive)(nil)
