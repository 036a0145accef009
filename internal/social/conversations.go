package social

import (
	"sort"
	"strings"
	"time"
)

// LatestMessage returns the most recent message in a conversation, or nil
// when the conversation is empty.
func (c *Conversation) LatestMessage() *Message {
	var latest *Message
	for i := range c.Messages {
		if latest == nil || c.Messages[i].SentAt.After(latest.SentAt) {
			latest = &c.Messages[i]
		}
	}
	return latest
}

// UnreadCount counts messages from other participants that are not read yet.
func (c *Conversation) UnreadCount() int {
	n := 0
	for _, m := range c.Messages {
		if !m.FromMe && !m.Read {
			n++
		}
	}
	return n
}

// lastActivity orders conversations: latest message time, falling back to
// the conversation's own update time when it has no messages.
func (c *Conversation) lastActivity() time.Time {
	if m := c.LatestMessage(); m != nil {
		return m.SentAt
	}
	return c.UpdatedAt
}

// SortByRecent orders conversations most-recently-active first, in place.
// Ties keep a stable order so repeated renders don't shuffle.
func SortByRecent(convs []Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].lastActivity().After(convs[j].lastActivity())
	})
}

// FilterByParticipant returns conversations that include the participant,
// matched case-insensitively.
func FilterByParticipant(convs []Conversation, participant string) []Conversation {
	participant = strings.ToLower(participant)
	var result []Conversation
	for _, c := range convs {
		for _, p := range c.Participants {
			if strings.ToLower(p) == participant {
				result = append(result, c)
				break
			}
		}
	}
	return result
}

// FilterUnread returns conversations with at least one unread message.
func FilterUnread(convs []Conversation) []Conversation {
	var result []Conversation
	for _, c := range convs {
		if c.UnreadCount() > 0 {
			result = append(result, c)
		}
	}
	return result
}

// SortMessages orders a conversation's messages oldest first, in place.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].SentAt.Before(msgs[j].SentAt)
	})
}
