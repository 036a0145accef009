package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/corvid-app/corvid/internal/auth"
	"github.com/corvid-app/corvid/internal/social"
)

// ownProfile resolves the caller's profile. Writes the error response
// itself and returns nil when the profile cannot be resolved.
func (s *Server) ownProfile(w http.ResponseWriter, r *http.Request) *social.Profile {
	rc := auth.GetRequestContext(r.Context())
	profile, err := s.deps.Profiles.GetProfileByUser(rc.User.ID)
	if err != nil || profile == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return nil
	}
	return profile
}

func (s *Server) apiMyProfile(w http.ResponseWriter, r *http.Request) {
	if profile := s.ownProfile(w, r); profile != nil {
		writeJSON(w, http.StatusOK, profile)
	}
}

type profilePatch struct {
	Username     *string `json:"username"`
	DisplayName  *string `json:"display_name"`
	Bio          *string `json:"bio"`
	AvatarFileID *string `json:"avatar_file_id"`
}

func (s *Server) apiUpdateProfile(w http.ResponseWriter, r *http.Request) {
	profile := s.ownProfile(w, r)
	if profile == nil {
		return
	}
	var patch profilePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if patch.Username != nil {
		if !social.ValidUsername(*patch.Username) {
			writeError(w, http.StatusBadRequest, "invalid username")
			return
		}
		profile.Username = *patch.Username
	}
	if patch.DisplayName != nil {
		profile.DisplayName = *patch.DisplayName
	}
	if patch.Bio != nil {
		profile.Bio = *patch.Bio
	}
	if patch.AvatarFileID != nil {
		profile.AvatarFileID = *patch.AvatarFileID
	}
	profile.UpdatedAt = time.Now().UTC()

	if err := s.deps.Profiles.UpdateProfile(*profile); err != nil {
		writeError(w, http.StatusConflict, "profile update failed")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) apiGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.deps.Profiles.GetProfileByUsername(r.PathValue("username"))
	if err != nil || profile == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) apiListProfilePosts(w http.ResponseWriter, r *http.Request) {
	profile, err := s.deps.Profiles.GetProfileByUsername(r.PathValue("username"))
	if err != nil || profile == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	posts, err := s.deps.Posts.ListPostsByProfile(profile.ID)
	if err != nil {
		s.deps.Log.Error("list posts failed", "profile", profile.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

type createPostBody struct {
	Caption string   `json:"caption"`
	FileIDs []string `json:"file_ids"`
}

func (s *Server) apiCreatePost(w http.ResponseWriter, r *http.Request) {
	profile := s.ownProfile(w, r)
	if profile == nil {
		return
	}
	var body createPostBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Caption == "" && len(body.FileIDs) == 0 {
		writeError(w, http.StatusBadRequest, "post is empty")
		return
	}

	post := social.Post{
		ID:        social.NewID(),
		ProfileID: profile.ID,
		Caption:   body.Caption,
		FileIDs:   body.FileIDs,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.deps.Posts.CreatePost(post); err != nil {
		s.deps.Log.Error("create post failed", "profile", profile.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) apiGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.deps.Posts.GetPost(r.PathValue("id"))
	if err != nil || post == nil {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) apiToggleLike(w http.ResponseWriter, r *http.Request) {
	profile := s.ownProfile(w, r)
	if profile == nil {
		return
	}
	post, err := s.deps.Posts.GetPost(r.PathValue("id"))
	if err != nil || post == nil {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}

	liked := post.ToggleLike(profile.ID)
	if err := s.deps.Posts.UpdatePost(*post); err != nil {
		s.deps.Log.Error("like update failed", "post", post.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"liked": liked, "likes": len(post.Likes)})
}

func (s *Server) apiDeletePost(w http.ResponseWriter, r *http.Request) {
	profile := s.ownProfile(w, r)
	if profile == nil {
		return
	}
	post, err := s.deps.Posts.GetPost(r.PathValue("id"))
	if err != nil || post == nil {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if post.ProfileID != profile.ID {
		writeError(w, http.StatusForbidden, "not your post")
		return
	}
	if err := s.deps.Posts.DeletePost(post.ID); err != nil {
		s.deps.Log.Error("delete post failed", "post", post.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) apiListConversations(w http.ResponseWriter, r *http.Request) {
	profile := s.ownProfile(w, r)
	if profile == nil {
		return
	}
	convs, err := s.deps.Conversations.ListConversationsByOwner(profile.ID)
	if err != nil {
		s.deps.Log.Error("list conversations failed", "profile", profile.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if participant := r.URL.Query().Get("participant"); participant != "" {
		convs = social.FilterByParticipant(convs, participant)
	}
	if r.URL.Query().Get("unread") == "true" {
		convs = social.FilterUnread(convs)
	}
	social.SortByRecent(convs)
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

type saveConversationBody struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Participants []string         `json:"participants"`
	Messages     []social.Message `json:"messages"`
}

func (s *Server) apiSaveConversation(w http.ResponseWriter, r *http.Request) {
	profile := s.ownProfile(w, r)
	if profile == nil {
		return
	}
	var body saveConversationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.Participants) == 0 {
		writeError(w, http.StatusBadRequest, "participants required")
		return
	}
	if body.ID != "" && !social.ValidID(body.ID) {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	conv := social.Conversation{
		ID:             body.ID,
		OwnerProfileID: profile.ID,
		Title:          body.Title,
		Participants:   body.Participants,
		Messages:       body.Messages,
		UpdatedAt:      time.Now().UTC(),
	}
	if conv.ID == "" {
		conv.ID = social.NewID()
	} else if existing, err := s.deps.Conversations.GetConversation(conv.ID); err == nil && existing != nil && existing.OwnerProfileID != profile.ID {
		writeError(w, http.StatusForbidden, "not your conversation")
		return
	}
	social.SortMessages(conv.Messages)

	if err := s.deps.Conversations.SaveConversation(conv); err != nil {
		s.deps.Log.Error("save conversation failed", "conversation", conv.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) apiGetConversation(w http.ResponseWriter, r *http.Request) {
	profile := s.ownProfile(w, r)
	if profile == nil {
		return
	}
	conv, err := s.deps.Conversations.GetConversation(r.PathValue("id"))
	if err != nil || conv == nil || conv.OwnerProfileID != profile.ID {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) apiDeleteConversation(w http.ResponseWriter, r *http.Request) {
	profile := s.ownProfile(w, r)
	if profile == nil {
		return
	}
	conv, err := s.deps.Conversations.GetConversation(r.PathValue("id"))
	if err != nil || conv == nil || conv.OwnerProfileID != profile.ID {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err := s.deps.Conversations.DeleteConversation(conv.ID); err != nil {
		s.deps.Log.Error("delete conversation failed", "conversation", conv.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
