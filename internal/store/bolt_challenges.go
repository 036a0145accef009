package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/corvid-app/corvid/internal/auth"
)

func challengeActiveIndexKey(userID, purpose string) []byte {
	return []byte("idx::active::" + userID + "::" + purpose)
}

// PutChallenge stores a challenge. When the challenge names a user, any
// outstanding challenge for the same (user, purpose) is replaced so at most
// one ceremony per purpose is ever live for an account. Anonymous challenges
// (device-initiated sign-in) are keyed by ID alone.
func (s *Store) PutChallenge(ch auth.Challenge) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChallenges)

		if ch.UserID != "" {
			idxKey := challengeActiveIndexKey(ch.UserID, ch.Purpose)
			if prev := b.Get(idxKey); prev != nil {
				if err := b.Delete(prev); err != nil {
					return err
				}
			}
			if err := b.Put(idxKey, []byte(ch.ID)); err != nil {
				return err
			}
		}
		return b.Put([]byte(ch.ID), data)
	})
}

// GetChallenge retrieves a challenge by ID. A record past its TTL is removed
// and reported as not found.
func (s *Store) GetChallenge(id string) (*auth.Challenge, error) {
	var ch auth.Challenge
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChallenges)
		v := b.Get([]byte(id))
		if v == nil {
			return auth.ErrChallengeNotFound
		}
		if err := json.Unmarshal(v, &ch); err != nil {
			return fmt.Errorf("unmarshal challenge: %w", err)
		}
		if time.Now().After(ch.ExpiresAt) {
			_ = b.Delete([]byte(id))
			if ch.UserID != "" {
				_ = b.Delete(challengeActiveIndexKey(ch.UserID, ch.Purpose))
			}
			return auth.ErrChallengeNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// DeleteChallenge removes a challenge and its active index. Idempotent.
func (s *Store) DeleteChallenge(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChallenges)
		v := b.Get([]byte(id))
		if v == nil {
			return nil
		}
		var ch auth.Challenge
		if err := json.Unmarshal(v, &ch); err == nil && ch.UserID != "" {
			idxKey := challengeActiveIndexKey(ch.UserID, ch.Purpose)
			// Only clear the index if it still points at this challenge.
			if prev := b.Get(idxKey); prev != nil && string(prev) == id {
				_ = b.Delete(idxKey)
			}
		}
		return b.Delete([]byte(id))
	})
}

// DeleteExpiredChallenges removes challenges past their TTL. Returns how many.
func (s *Store) DeleteExpiredChallenges() (int, error) {
	deleted := 0
	now := time.Now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChallenges)
		c := b.Cursor()

		var expired []auth.Challenge
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if isIndexKey(k) {
				continue
			}
			var ch auth.Challenge
			if err := json.Unmarshal(v, &ch); err != nil {
				continue
			}
			if now.After(ch.ExpiresAt) {
				expired = append(expired, ch)
			}
		}
		for _, ch := range expired {
			if err := b.Delete([]byte(ch.ID)); err != nil {
				return err
			}
			if ch.UserID != "" {
				idxKey := challengeActiveIndexKey(ch.UserID, ch.Purpose)
				if prev := b.Get(idxKey); prev != nil && string(prev) == ch.ID {
					_ = b.Delete(idxKey)
				}
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}
