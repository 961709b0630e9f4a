package domain

import "time"

// Conversation is a two-party thread. ParticipantA < ParticipantB always holds.
type Conversation struct {
	CreatedAt     time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"column:updated_at;index" json:"updatedAt"`
	LastMessageID *string   `gorm:"column:last_message_id;type:varchar(36)" json:"lastMessageId,omitempty"`
	ID            string    `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	ParticipantA  string    `gorm:"column:participant_a;type:varchar(36);not null;uniqueIndex:idx_conversation_pair,priority:1" json:"participantA"`
	ParticipantB  string    `gorm:"column:participant_b;type:varchar(36);not null;uniqueIndex:idx_conversation_pair,priority:2;index" json:"participantB"`
	UnreadCount   int       `gorm:"column:unread_count;default:0" json:"unreadCount"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// CanonicalPair orders two participant ids so [A,B] and [B,A] map to the same key
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// HasParticipant reports whether userID is one of the two participants
func (c *Conversation) HasParticipant(userID string) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// Other returns the participant that is not userID
func (c *Conversation) Other(userID string) string {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// ConversationView is the populated conversation returned by the REST gateway
type ConversationView struct {
	UpdatedAt    time.Time     `json:"updatedAt"`
	LastMessage  *Message      `json:"lastMessage,omitempty"`
	ID           string        `json:"id"`
	Participants []Participant `json:"participants"`
	UnreadCount  int           `json:"unreadCount"`
}
