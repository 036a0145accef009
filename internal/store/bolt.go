// Package store persists all service state in a single BoltDB file.
// Values are JSON; secondary indexes live in the same bucket under
// "idx::"-prefixed keys.
package store

import (
	"bytes"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketUsers         = []byte("users")
	bucketSessions      = []byte("sessions")
	bucketChallenges    = []byte("challenges")
	bucketCredentials   = []byte("credentials")
	bucketProfiles      = []byte("profiles")
	bucketPosts         = []byte("posts")
	bucketConversations = []byte("conversations")
)

// Store wraps a BoltDB database.
type Store struct {
	db *bolt.DB
}

// Open creates or opens a BoltDB database at the given path and ensures
// all required buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketUsers, bucketSessions, bucketChallenges, bucketCredentials, bucketProfiles, bucketPosts, bucketConversations} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying BoltDB.
func (s *Store) Close() error {
	return s.db.Close()
}

var indexPrefix = []byte("idx::")

func isIndexKey(k []byte) bool {
	return bytes.HasPrefix(k, indexPrefix)
}
