package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/corvid-app/corvid/internal/social"
)

var (
	ErrProfileNotFound      = fmt.Errorf("profile not found")
	ErrPostNotFound         = fmt.Errorf("post not found")
	ErrConversationNotFound = fmt.Errorf("conversation not found")
)

func usernameIndexKey(username string) []byte {
	return []byte("idx::username::" + username)
}

func profileUserIndexKey(userID string) []byte {
	return []byte("idx::user::" + userID)
}

func postProfileIndexKey(profileID, postID string) []byte {
	return []byte("idx::profile::" + profileID + "::" + postID)
}

func postProfileIndexPrefix(profileID string) []byte {
	return []byte("idx::profile::" + profileID + "::")
}

func conversationOwnerIndexKey(ownerID, convID string) []byte {
	return []byte("idx::owner::" + ownerID + "::" + convID)
}

func conversationOwnerIndexPrefix(ownerID string) []byte {
	return []byte("idx::owner::" + ownerID + "::")
}

// ============================================================
// Profiles
// ============================================================

// CreateProfileForUser provisions the profile document for a new account.
// The requested username gets a numeric suffix if already taken.
func (s *Store) CreateProfileForUser(userID, username string) (string, error) {
	profile := social.Profile{
		ID:          social.NewID(),
		UserID:      userID,
		Username:    username,
		DisplayName: username,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfiles)

		name := username
		for i := 1; b.Get(usernameIndexKey(name)) != nil; i++ {
			name = username + strconv.Itoa(i)
		}
		profile.Username = name
		profile.DisplayName = name

		data, err := json.Marshal(profile)
		if err != nil {
			return fmt.Errorf("marshal profile: %w", err)
		}
		if err := b.Put([]byte(profile.ID), data); err != nil {
			return err
		}
		if err := b.Put(usernameIndexKey(profile.Username), []byte(profile.ID)); err != nil {
			return err
		}
		return b.Put(profileUserIndexKey(userID), []byte(profile.ID))
	})
	if err != nil {
		return "", err
	}
	return profile.ID, nil
}

// GetProfile retrieves a profile by ID.
func (s *Store) GetProfile(id string) (*social.Profile, error) {
	var profile social.Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketProfiles).Get([]byte(id))
		if v == nil {
			return ErrProfileNotFound
		}
		return json.Unmarshal(v, &profile)
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetProfileByUsername retrieves a profile by its unique username.
func (s *Store) GetProfileByUsername(username string) (*social.Profile, error) {
	var profile social.Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		id := b.Get(usernameIndexKey(username))
		if id == nil {
			return ErrProfileNotFound
		}
		v := b.Get(id)
		if v == nil {
			return ErrProfileNotFound
		}
		return json.Unmarshal(v, &profile)
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetProfileByUser retrieves the profile belonging to a user ID.
func (s *Store) GetProfileByUser(userID string) (*social.Profile, error) {
	var profile social.Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		id := b.Get(profileUserIndexKey(userID))
		if id == nil {
			return ErrProfileNotFound
		}
		v := b.Get(id)
		if v == nil {
			return ErrProfileNotFound
		}
		return json.Unmarshal(v, &profile)
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile updates a profile record, maintaining the username index.
func (s *Store) UpdateProfile(profile social.Profile) error {
	profile.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		old := b.Get([]byte(profile.ID))
		if old == nil {
			return ErrProfileNotFound
		}
		var prev social.Profile
		if err := json.Unmarshal(old, &prev); err == nil && prev.Username != profile.Username {
			if taken := b.Get(usernameIndexKey(profile.Username)); taken != nil {
				return fmt.Errorf("username %q already taken", profile.Username)
			}
			if err := b.Delete(usernameIndexKey(prev.Username)); err != nil {
				return err
			}
			if err := b.Put(usernameIndexKey(profile.Username), []byte(profile.ID)); err != nil {
				return err
			}
		}
		return b.Put([]byte(profile.ID), data)
	})
}

// DeleteProfile removes a profile and its indexes. Idempotent.
func (s *Store) DeleteProfile(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		v := b.Get([]byte(id))
		if v == nil {
			return nil
		}
		var profile social.Profile
		if err := json.Unmarshal(v, &profile); err == nil {
			_ = b.Delete(usernameIndexKey(profile.Username))
			_ = b.Delete(profileUserIndexKey(profile.UserID))
		}
		return b.Delete([]byte(id))
	})
}

// ============================================================
// Posts
// ============================================================

// CreatePost persists a post and its profile index.
func (s *Store) CreatePost(post social.Post) error {
	data, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("marshal post: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPosts)
		if err := b.Put([]byte(post.ID), data); err != nil {
			return err
		}
		return b.Put(postProfileIndexKey(post.ProfileID, post.ID), []byte(""))
	})
}

// GetPost retrieves a post by ID.
func (s *Store) GetPost(id string) (*social.Post, error) {
	var post social.Post
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPosts).Get([]byte(id))
		if v == nil {
			return ErrPostNotFound
		}
		return json.Unmarshal(v, &post)
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// ListPostsByProfile returns a profile's posts, newest first.
func (s *Store) ListPostsByProfile(profileID string) ([]social.Post, error) {
	var posts []social.Post
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPosts)
		prefix := postProfileIndexPrefix(profileID)
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			postID := k[len(prefix):]
			v := b.Get(postID)
			if v == nil {
				continue
			}
			var post social.Post
			if err := json.Unmarshal(v, &post); err != nil {
				continue
			}
			posts = append(posts, post)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Newest first for feed rendering.
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	return posts, nil
}

// UpdatePost replaces a post record (likes, caption edits).
func (s *Store) UpdatePost(post social.Post) error {
	data, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("marshal post: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPosts)
		if b.Get([]byte(post.ID)) == nil {
			return ErrPostNotFound
		}
		return b.Put([]byte(post.ID), data)
	})
}

// DeletePost removes a post and its profile index. Idempotent.
func (s *Store) DeletePost(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPosts)
		v := b.Get([]byte(id))
		if v == nil {
			return nil
		}
		var post social.Post
		if err := json.Unmarshal(v, &post); err == nil {
			_ = b.Delete(postProfileIndexKey(post.ProfileID, post.ID))
		}
		return b.Delete([]byte(id))
	})
}

// ============================================================
// Conversations
// ============================================================

// SaveConversation creates or replaces a conversation mockup.
func (s *Store) SaveConversation(conv social.Conversation) error {
	conv.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		if err := b.Put([]byte(conv.ID), data); err != nil {
			return err
		}
		return b.Put(conversationOwnerIndexKey(conv.OwnerProfileID, conv.ID), []byte(""))
	})
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(id string) (*social.Conversation, error) {
	var conv social.Conversation
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketConversations).Get([]byte(id))
		if v == nil {
			return ErrConversationNotFound
		}
		return json.Unmarshal(v, &conv)
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversationsByOwner returns all conversations owned by a profile.
func (s *Store) ListConversationsByOwner(ownerProfileID string) ([]social.Conversation, error) {
	var convs []social.Conversation
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		prefix := conversationOwnerIndexPrefix(ownerProfileID)
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			convID := k[len(prefix):]
			v := b.Get(convID)
			if v == nil {
				continue
			}
			var conv social.Conversation
			if err := json.Unmarshal(v, &conv); err != nil {
				continue
			}
			convs = append(convs, conv)
		}
		return nil
	})
	return convs, err
}

// DeleteConversation removes a conversation and its owner index. Idempotent.
func (s *Store) DeleteConversation(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		v := b.Get([]byte(id))
		if v == nil {
			return nil
		}
		var conv social.Conversation
		if err := json.Unmarshal(v, &conv); err == nil {
			_ = b.Delete(conversationOwnerIndexKey(conv.OwnerProfileID, conv.ID))
		}
		return b.Delete([]byte(id))
	})
}
