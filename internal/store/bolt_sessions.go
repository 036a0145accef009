package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/corvid-app/corvid/internal/auth"
)

func sessionUserIndexKey(userID, token string) []byte {
	return []byte("idx::user::" + userID + "::" + token)
}

func sessionUserIndexPrefix(userID string) []byte {
	return []byte("idx::user::" + userID + "::")
}

// CreateSession persists a session keyed by its token.
func (s *Store) CreateSession(session auth.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if err := b.Put([]byte(session.Token), data); err != nil {
			return err
		}
		return b.Put(sessionUserIndexKey(session.UserID, session.Token), []byte(""))
	})
}

// GetSession retrieves a session by token. Returns nil, nil when absent.
func (s *Store) GetSession(token string) (*auth.Session, error) {
	var session *auth.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSessions).Get([]byte(token))
		if v == nil {
			return nil
		}
		var sess auth.Session
		if err := json.Unmarshal(v, &sess); err != nil {
			return err
		}
		session = &sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// DeleteSession removes a session and its user index. Idempotent.
func (s *Store) DeleteSession(token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		v := b.Get([]byte(token))
		if v == nil {
			return nil
		}
		var sess auth.Session
		if err := json.Unmarshal(v, &sess); err == nil {
			_ = b.Delete(sessionUserIndexKey(sess.UserID, token))
		}
		return b.Delete([]byte(token))
	})
}

// DeleteSessionsForUser revokes every session belonging to a user.
func (s *Store) DeleteSessionsForUser(userID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		prefix := sessionUserIndexPrefix(userID)
		c := b.Cursor()

		var tokens [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			tokens = append(tokens, append([]byte(nil), k[len(prefix):]...))
		}
		for _, token := range tokens {
			if err := b.Delete(sessionUserIndexKey(userID, string(token))); err != nil {
				return err
			}
			if err := b.Delete(token); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteExpiredSessions removes sessions past their expiry. Returns how many.
func (s *Store) DeleteExpiredSessions() (int, error) {
	deleted := 0
	now := time.Now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		c := b.Cursor()

		var expired []auth.Session
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if isIndexKey(k) {
				continue
			}
			var sess auth.Session
			if err := json.Unmarshal(v, &sess); err != nil {
				continue
			}
			if now.After(sess.ExpiresAt) {
				expired = append(expired, sess)
			}
		}
		for _, sess := range expired {
			if err := b.Delete([]byte(sess.Token)); err != nil {
				return err
			}
			_ = b.Delete(sessionUserIndexKey(sess.UserID, sess.Token))
			deleted++
		}
		return nil
	})
	return deleted, err
}
