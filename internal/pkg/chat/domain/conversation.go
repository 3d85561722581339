package chat

import "time"

// Conversation is the canonical record for one unordered participant pair.
// ParticipantLow < ParticipantHigh always holds, so the pair {A,B} and
// {B,A} resolve to the same row. Created lazily on first message, never
// deleted in normal operation. The unread map is a derived counter; the
// message log stays authoritative.
type Conversation struct {
	ID              string         `db:"id" json:"id"`
	ParticipantLow  string         `db:"participant_low" json:"participant_low"`
	ParticipantHigh string         `db:"participant_high" json:"participant_high"`
	LastMessageID   *string        `db:"last_message_id" json:"last_message_id,omitempty"`
	LastMessageAt   *time.Time     `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	Unread          map[string]int `json:"-"`
}

// CanonicalPair orders two participant ids into their (low, high) form.
func CanonicalPair(a, b string) (low, high string) {
	if a > b {
		return b, a
	}
	return a, b
}

// HasParticipant tells whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	if c == nil {
		return false
	}
	return userID == c.ParticipantLow || userID == c.ParticipantHigh
}

// OtherParticipant returns the participant that is not userID. Empty when
// userID is not a participant.
func (c *Conversation) OtherParticipant(userID string) string {
	switch userID {
	case c.ParticipantLow:
		return c.ParticipantHigh
	case c.ParticipantHigh:
		return c.ParticipantLow
	}
	return ""
}

// UnreadFor returns the unread counter for userID, zero when absent.
func (c *Conversation) UnreadFor(userID string) int {
	if c == nil || c.Unread == nil {
		return 0
	}
	return c.Unread[userID]
}
