package store

import (
	"errors"
	"testing"
	"time"

	"github.com/corvid-app/corvid/internal/social"
)

func TestCreateProfileForUser(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateProfileForUser("u1", "alice")
	if err != nil {
		t.Fatalf("CreateProfileForUser: %v", err)
	}

	profile, err := s.GetProfile(id)
	if err != nil {
		t.Fatal(err)
	}
	if profile.Username != "alice" || profile.UserID != "u1" {
		t.Errorf("profile = %+v", profile)
	}

	byName, err := s.GetProfileByUsername("alice")
	if err != nil || byName.ID != id {
		t.Errorf("GetProfileByUsername = %+v, %v", byName, err)
	}
	byUser, err := s.GetProfileByUser("u1")
	if err != nil || byUser.ID != id {
		t.Errorf("GetProfileByUser = %+v, %v", byUser, err)
	}
}

func TestCreateProfileUsernameCollision(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.CreateProfileForUser("u1", "alice"); err != nil {
		t.Fatal(err)
	}
	id2, err := s.CreateProfileForUser("u2", "alice")
	if err != nil {
		t.Fatal(err)
	}

	p2, err := s.GetProfile(id2)
	if err != nil {
		t.Fatal(err)
	}
	if p2.Username != "alice1" {
		t.Errorf("second username = %q, want alice1", p2.Username)
	}
}

func TestUpdateProfileReindexesUsername(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateProfileForUser("u1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	profile, _ := s.GetProfile(id)
	profile.Username = "wonderland"
	if err := s.UpdateProfile(*profile); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	if _, err := s.GetProfileByUsername("alice"); !errors.Is(err, ErrProfileNotFound) {
		t.Error("old username still resolves")
	}
	if p, err := s.GetProfileByUsername("wonderland"); err != nil || p.ID != id {
		t.Errorf("new username lookup = %+v, %v", p, err)
	}
}

func TestUpdateProfileRejectsTakenUsername(t *testing.T) {
	s := newTestStore(t)

	id1, _ := s.CreateProfileForUser("u1", "alice")
	if _, err := s.CreateProfileForUser("u2", "bob"); err != nil {
		t.Fatal(err)
	}

	profile, _ := s.GetProfile(id1)
	profile.Username = "bob"
	if err := s.UpdateProfile(*profile); err == nil {
		t.Error("expected taken username to be rejected")
	}
}

func TestDeleteProfile(t *testing.T) {
	s := newTestStore(t)

	id, _ := s.CreateProfileForUser("u1", "alice")
	if err := s.DeleteProfile(id); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteProfile(id); err != nil {
		t.Errorf("second delete: %v", err)
	}
	if _, err := s.GetProfileByUsername("alice"); !errors.Is(err, ErrProfileNotFound) {
		t.Error("username index survived delete")
	}
	if _, err := s.GetProfileByUser("u1"); !errors.Is(err, ErrProfileNotFound) {
		t.Error("user index survived delete")
	}
}

func TestPostsOrderedNewestFirst(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"p1", "p2", "p3"} {
		post := social.Post{
			ID:        id,
			ProfileID: "prof1",
			Caption:   id,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.CreatePost(post); err != nil {
			t.Fatal(err)
		}
	}

	posts, err := s.ListPostsByProfile("prof1")
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 3 {
		t.Fatalf("got %d posts", len(posts))
	}
	if posts[0].ID != "p3" || posts[2].ID != "p1" {
		t.Errorf("order = %s, %s, %s", posts[0].ID, posts[1].ID, posts[2].ID)
	}
}

func TestPostLikesPersist(t *testing.T) {
	s := newTestStore(t)

	post := social.Post{ID: "p1", ProfileID: "prof1", CreatedAt: time.Now().UTC()}
	if err := s.CreatePost(post); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetPost("p1")
	if !got.ToggleLike("prof2") {
		t.Fatal("first toggle should like")
	}
	if err := s.UpdatePost(*got); err != nil {
		t.Fatal(err)
	}

	reread, _ := s.GetPost("p1")
	if !reread.HasLiked("prof2") {
		t.Error("like not persisted")
	}
}

func TestDeletePostRemovesIndex(t *testing.T) {
	s := newTestStore(t)

	_ = s.CreatePost(social.Post{ID: "p1", ProfileID: "prof1", CreatedAt: time.Now().UTC()})
	if err := s.DeletePost("p1"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeletePost("p1"); err != nil {
		t.Errorf("second delete: %v", err)
	}
	posts, _ := s.ListPostsByProfile("prof1")
	if len(posts) != 0 {
		t.Errorf("posts after delete = %v", posts)
	}
	if _, err := s.GetPost("p1"); !errors.Is(err, ErrPostNotFound) {
		t.Errorf("GetPost after delete = %v", err)
	}
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestStore(t)

	conv := social.Conversation{
		ID:             "c1",
		OwnerProfileID: "prof1",
		Title:          "group chat",
		Participants:   []string{"Maya", "Jon"},
		Messages: []social.Message{
			{Sender: "Maya", Text: "hey", SentAt: time.Now().UTC()},
		},
	}
	if err := s.SaveConversation(conv); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetConversation("c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "group chat" || len(got.Messages) != 1 {
		t.Errorf("conversation = %+v", got)
	}

	// Save replaces in place.
	conv.Title = "renamed"
	if err := s.SaveConversation(conv); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetConversation("c1")
	if got.Title != "renamed" {
		t.Errorf("title = %q", got.Title)
	}

	list, err := s.ListConversationsByOwner("prof1")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListConversationsByOwner = %v, %v", list, err)
	}
	if list, _ := s.ListConversationsByOwner("other"); len(list) != 0 {
		t.Errorf("foreign owner sees %v", list)
	}

	if err := s.DeleteConversation("c1"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteConversation("c1"); err != nil {
		t.Errorf("second delete: %v", err)
	}
	if _, err := s.GetConversation("c1"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("GetConversation after delete = %v", err)
	}
}
