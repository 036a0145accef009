package store

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/corvid-app/corvid/internal/auth"
)

func emailIndexKey(email string) []byte {
	return []byte("idx::email::" + email)
}

// CreateUser persists a new user and its email index atomically.
// Returns an error if the email is already taken.
func (s *Store) CreateUser(user auth.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)

		if existing := b.Get(emailIndexKey(user.Email)); existing != nil {
			return fmt.Errorf("email %q already registered", user.Email)
		}

		if err := b.Put([]byte(user.ID), data); err != nil {
			return err
		}
		return b.Put(emailIndexKey(user.Email), []byte(user.ID))
	})
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(id string) (*auth.User, error) {
	var user auth.User
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		v := b.Get([]byte(id))
		if v == nil {
			return auth.ErrUserNotFound
		}
		return json.Unmarshal(v, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by normalized email. Absence is not an
// error: the caller decides whether to provision.
func (s *Store) GetUserByEmail(email string) (*auth.User, error) {
	var user *auth.User
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)

		idBytes := b.Get(emailIndexKey(email))
		if idBytes == nil {
			return nil
		}
		v := b.Get(idBytes)
		if v == nil {
			return fmt.Errorf("user index orphan for %q", email)
		}
		var u auth.User
		if err := json.Unmarshal(v, &u); err != nil {
			return err
		}
		user = &u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUser updates an existing user record. If the email has changed,
// the secondary index is updated atomically.
func (s *Store) UpdateUser(user auth.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)

		old := b.Get([]byte(user.ID))
		if old != nil {
			var prev auth.User
			if err := json.Unmarshal(old, &prev); err == nil && prev.Email != user.Email {
				if err := b.Delete(emailIndexKey(prev.Email)); err != nil {
					return err
				}
			}
		}

		if err := b.Put([]byte(user.ID), data); err != nil {
			return err
		}
		return b.Put(emailIndexKey(user.Email), []byte(user.ID))
	})
}

// DeleteUser removes a user and its email index. Idempotent.
func (s *Store) DeleteUser(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		v := b.Get([]byte(id))
		if v == nil {
			return nil
		}
		var user auth.User
		if err := json.Unmarshal(v, &user); err == nil {
			_ = b.Delete(emailIndexKey(user.Email))
		}
		return b.Delete([]byte(id))
	})
}

// UserCount returns the number of user records (indexes excluded).
func (s *Store) UserCount() (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketUsers).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if !isIndexKey(k) {
				count++
			}
		}
		return nil
	})
	return count, err
}
