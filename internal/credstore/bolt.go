package credstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var credBucket = []byte("wa_credentials")

// BoltStore keeps credential blobs in a single-file bbolt database under
// the application workdir. This is the default backend.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "credstore: open bolt file")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "credstore: create bucket")
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Load(_ context.Context, sessionID string) ([]byte, error) {
	var blob []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(credBucket).Get([]byte(sessionID))
		if v != nil {
			blob = make([]byte, len(v))
			copy(blob, v)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "credstore: load")
	}
	return blob, nil
}

func (s *BoltStore) Save(_ context.Context, sessionID string, blob []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credBucket).Put([]byte(sessionID), blob)
	})
	return errors.Wrap(err, "credstore: save")
}

func (s *BoltStore) Purge(_ context.Context, sessionID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credBucket).Delete([]byte(sessionID))
	})
	return errors.Wrap(err, "credstore: purge")
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
