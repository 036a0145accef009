// Package social holds the document types the service stores alongside
// accounts: profiles, posts, and iMessage-style conversation mockups.
package social

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Profile is the public face of an account.
type Profile struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	Bio          string    `json:"bio,omitempty"`
	AvatarFileID string    `json:"avatar_file_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Post is a media post owned by a profile.
type Post struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profile_id"`
	Caption   string    `json:"caption,omitempty"`
	FileIDs   []string  `json:"file_ids,omitempty"`
	Likes     []string  `json:"likes,omitempty"` // profile IDs
	CreatedAt time.Time `json:"created_at"`
}

// Message is a single bubble in a conversation mockup.
type Message struct {
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
	FromMe bool      `json:"from_me"`
	Read   bool      `json:"read"`
}

// Conversation is an iMessage-style conversation mockup owned by a profile.
type Conversation struct {
	ID             string    `json:"id"`
	OwnerProfileID string    `json:"owner_profile_id"`
	Title          string    `json:"title"`
	Participants   []string  `json:"participants"`
	Messages       []Message `json:"messages"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewID generates a document ID.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether s is a canonical document ID. Index keys share
// the document buckets, so only IDs in this shape are accepted from clients.
func ValidID(s string) bool {
	return len(s) == 36 && uuid.Validate(s) == nil
}

var usernameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._+-]{0,31}$`)

// ValidUsername reports whether s can be used as a profile username.
// Usernames derived from normalized email local parts fit this shape.
func ValidUsername(s string) bool {
	return usernameRe.MatchString(s)
}

// HasLiked reports whether a profile already likes the post.
func (p *Post) HasLiked(profileID string) bool {
	for _, id := range p.Likes {
		if id == profileID {
			return true
		}
	}
	return false
}

// ToggleLike adds or removes a like and reports the new state.
func (p *Post) ToggleLike(profileID string) bool {
	for i, id := range p.Likes {
		if id == profileID {
			p.Likes = append(p.Likes[:i], p.Likes[i+1:]...)
			return false
		}
	}
	p.Likes = append(p.Likes, profileID)
	return true
}
