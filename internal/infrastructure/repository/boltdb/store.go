package boltdb

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	bolt "go.etcd.io/bbolt"
)

// Keys of the two persisted blobs
const (
	PendingProductsKey  = "PendingProducts"
	FavoriteProductsKey = "FavoriteProducts"
)

var (
	bucketName = []byte("catalog")
	json       = jsoniter.ConfigCompatibleWithStandardLibrary
)

// Store is a small key-value facade over a bbolt file. Each key holds one
// serialized blob that is rewritten as a whole on every mutation.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file at path
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database file
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns a copy of the blob stored under key, or nil when absent
func (s *Store) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketName).Get([]byte(key)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

// Put replaces the blob stored under key
func (s *Store) Put(key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), value)
	})
}

// Update rewrites the blob under key inside a single write transaction.
// fn receives the current blob (nil when absent) and returns the
// replacement; a nil replacement leaves the key untouched.
func (s *Store) Update(key string, fn func(current []byte) ([]byte, error)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		next, err := fn(bucket.Get([]byte(key)))
		if err != nil || next == nil {
			return err
		}
		return bucket.Put([]byte(key), next)
	})
}
