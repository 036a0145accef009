package store

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/corvid-app/corvid/internal/auth"
)

func credentialKey(credID []byte) []byte {
	return []byte(base64.RawURLEncoding.EncodeToString(credID))
}

func credentialUserIndexKey(userID string, credID []byte) []byte {
	return []byte("idx::user::" + userID + "::" + base64.RawURLEncoding.EncodeToString(credID))
}

func credentialUserIndexPrefix(userID string) []byte {
	return []byte("idx::user::" + userID + "::")
}

func handleIndexKey(handle []byte) []byte {
	return []byte("idx::handle::" + base64.RawURLEncoding.EncodeToString(handle))
}

// CreateCredential stores a credential and its indexes: the user index for
// listing and the handle index for discoverable sign-in. The primary key is
// the base64url credential ID, so device-cookie lookups are exact.
func (s *Store) CreateCredential(cred auth.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		if err := b.Put(credentialKey(cred.ID), data); err != nil {
			return err
		}
		if err := b.Put(credentialUserIndexKey(cred.UserID, cred.ID), []byte("")); err != nil {
			return err
		}
		// Handle -> user index for sign-ins that present a user handle.
		ub := tx.Bucket(bucketUsers)
		uv := ub.Get([]byte(cred.UserID))
		if uv != nil {
			var user auth.User
			if err := json.Unmarshal(uv, &user); err == nil && len(user.WebAuthnUserID) > 0 {
				if err := b.Put(handleIndexKey(user.WebAuthnUserID), []byte(cred.UserID)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// GetCredential retrieves a credential by its raw ID.
func (s *Store) GetCredential(credID []byte) (*auth.Credential, error) {
	var cred auth.Credential
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCredentials).Get(credentialKey(credID))
		if v == nil {
			return auth.ErrCredentialNotFound
		}
		return json.Unmarshal(v, &cred)
	})
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// ListCredentialsForUser returns all credentials for a user.
func (s *Store) ListCredentialsForUser(userID string) ([]auth.Credential, error) {
	var creds []auth.Credential
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		prefix := credentialUserIndexPrefix(userID)
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			credB64 := string(k[len(prefix):])
			credID, err := base64.RawURLEncoding.DecodeString(credB64)
			if err != nil {
				continue
			}
			v := b.Get(credentialKey(credID))
			if v == nil {
				continue
			}
			var cred auth.Credential
			if err := json.Unmarshal(v, &cred); err != nil {
				continue
			}
			creds = append(creds, cred)
		}
		return nil
	})
	return creds, err
}

// GetCredentialsByIDs resolves credential IDs through the primary key.
// Unknown IDs are skipped.
func (s *Store) GetCredentialsByIDs(credIDs [][]byte) ([]auth.Credential, error) {
	var creds []auth.Credential
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		for _, id := range credIDs {
			v := b.Get(credentialKey(id))
			if v == nil {
				continue
			}
			var cred auth.Credential
			if err := json.Unmarshal(v, &cred); err != nil {
				continue
			}
			creds = append(creds, cred)
		}
		return nil
	})
	return creds, err
}

// UpdateCredentialSignCount persists the authenticator counter after a
// verified assertion, read-modify-write in one transaction.
func (s *Store) UpdateCredentialSignCount(credID []byte, signCount uint32, cloneWarning bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		key := credentialKey(credID)
		v := b.Get(key)
		if v == nil {
			return auth.ErrCredentialNotFound
		}
		var cred auth.Credential
		if err := json.Unmarshal(v, &cred); err != nil {
			return fmt.Errorf("unmarshal credential: %w", err)
		}
		cred.Authenticator.SignCount = signCount
		cred.Authenticator.CloneWarning = cloneWarning
		data, err := json.Marshal(cred)
		if err != nil {
			return fmt.Errorf("marshal credential: %w", err)
		}
		return b.Put(key, data)
	})
}

// DeleteCredential removes a credential and its user index. Idempotent.
// The handle index stays: the user may register another credential later.
func (s *Store) DeleteCredential(credID []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		key := credentialKey(credID)
		v := b.Get(key)
		if v == nil {
			return nil
		}
		var cred auth.Credential
		if err := json.Unmarshal(v, &cred); err != nil {
			return b.Delete(key)
		}
		if err := b.Delete(key); err != nil {
			return err
		}
		_ = b.Delete(credentialUserIndexKey(cred.UserID, cred.ID))
		return nil
	})
}

// GetUserByHandle looks up a user by WebAuthn user handle.
func (s *Store) GetUserByHandle(handle []byte) (*auth.User, error) {
	var user auth.User
	err := s.db.View(func(tx *bolt.Tx) error {
		cb := tx.Bucket(bucketCredentials)
		userID := cb.Get(handleIndexKey(handle))
		if userID == nil {
			return auth.ErrCredentialNotFound
		}
		v := tx.Bucket(bucketUsers).Get(userID)
		if v == nil {
			return auth.ErrCredentialNotFound
		}
		return json.Unmarshal(v, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// AnyCredentialsExist checks if any passkeys are registered system-wide.
func (s *Store) AnyCredentialsExist() (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCredentials).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if !isIndexKey(k) {
				exists = true
				return nil
			}
		}
		return nil
	})
	return exists, err
}
