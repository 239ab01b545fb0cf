package kv

import (
	"context"
	"fmt"

	"chatflow/pkg/chaterr"

	bolt "go.etcd.io/bbolt"
)

// BoltStore keeps values in one bucket of a bbolt database file.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
}

// NewBoltStore opens (or creates with 0600 permissions) the database at path and
// makes sure bucket exists.
func NewBoltStore(path string, bucket string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket %q: %w", bucket, err)
	}

	return &BoltStore{db: db, bucket: []byte(bucket)}, nil
}

func (s *BoltStore) Get(_ context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}

		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		// v is only valid inside the transaction.
		value = string(v)
		found = true
		return nil
	})
	if err != nil {
		return "", false, chaterr.Storage(err, "bolt get")
	}

	return value, found, nil
}

func (s *BoltStore) Set(_ context.Context, key string, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), []byte(value))
	})
	return chaterr.Storage(err, "bolt put")
}

func (s *BoltStore) Remove(_ context.Context, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	return chaterr.Storage(err, "bolt delete")
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
