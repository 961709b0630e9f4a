package domain

import (
	"strings"
	"time"
)

// ContentType message payload kind
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentVideo ContentType = "video"
)

// MessageStatus delivery status; advances sent -> delivered -> read only
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Valid reports whether s is a known status
func (s MessageStatus) Valid() bool {
	return s.rank() > 0
}

// CanAdvanceTo reports whether moving from s to next is a forward transition
func (s MessageStatus) CanAdvanceTo(next MessageStatus) bool {
	return next.rank() > s.rank()
}

// Message is a single chat message
type Message struct {
	CreatedAt      time.Time     `gorm:"column:created_at;index" json:"createdAt"`
	Content        *string       `gorm:"column:content;type:text" json:"content,omitempty"`
	MediaURL       *string       `gorm:"column:media_url;type:varchar(1000)" json:"mediaUrl,omitempty"`
	Sender         *UserSummary  `gorm:"-" json:"sender,omitempty"`
	Receiver       *UserSummary  `gorm:"-" json:"receiver,omitempty"`
	ID             string        `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	ConversationID string        `gorm:"column:conversation_id;type:varchar(36);not null;index" json:"conversationId"`
	SenderID       string        `gorm:"column:sender_id;type:varchar(36);not null;index" json:"senderId"`
	ReceiverID     string        `gorm:"column:receiver_id;type:varchar(36);not null;index" json:"receiverId"`
	ContentType    ContentType   `gorm:"column:content_type;type:varchar(16);not null" json:"contentType"`
	Status         MessageStatus `gorm:"column:status;type:varchar(16);not null;default:sent;index" json:"status"`
	Reactions      []Reaction    `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"reactions"`
}

func (Message) TableName() string {
	return "messages"
}

// HasContent reports whether a non-blank text payload is present
func (m *Message) HasContent() bool {
	return m.Content != nil && strings.TrimSpace(*m.Content) != ""
}

// HasMedia reports whether a media url is present
func (m *Message) HasMedia() bool {
	return m.MediaURL != nil && *m.MediaURL != ""
}

// Reaction is one principal's emoji on a message (at most one per principal)
type Reaction struct {
	CreatedAt time.Time    `gorm:"column:created_at" json:"createdAt"`
	User      *UserSummary `gorm:"-" json:"user,omitempty"`
	MessageID string       `gorm:"column:message_id;type:varchar(36);not null;uniqueIndex:idx_reaction_user,priority:1" json:"messageId"`
	UserID    string       `gorm:"column:user_id;type:varchar(36);not null;uniqueIndex:idx_reaction_user,priority:2" json:"userId"`
	Emoji     string       `gorm:"column:emoji;type:varchar(32);not null" json:"emoji"`
	ID        uint         `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
}

func (Reaction) TableName() string {
	return "message_reactions"
}

// ReadRequest bulk mark-as-read body
type ReadRequest struct {
	MessageIDs []string `json:"messageIds" binding:"required,min=1,dive,required"`
}
