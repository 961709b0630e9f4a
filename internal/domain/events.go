package domain

import "time"

// Live channel event names
const (
	EventIdentify       = "identify"
	EventQueryStatus    = "query-status"
	EventSend           = "send"
	EventMessageAck     = "message-ack"
	EventMessageForward = "message-forward"
	EventMessageError   = "message-error"
	EventStatusChange   = "status-change"
	EventTypingStart    = "typing-start"
	EventTypingStop     = "typing-stop"
	EventTypingNotify   = "typing-notify"
	EventReadReceipt    = "read-receipt"
	EventStatusUpdate   = "status-update"
	EventReaction       = "reaction"
	EventReactionUpdate = "reaction-update"
	EventDelete         = "delete"
	EventMessageDeleted = "message-deleted"
)

// StatusChangePayload is broadcast when a principal connects or disconnects
type StatusChangePayload struct {
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
	PrincipalID string     `json:"principalId"`
	Online      bool       `json:"online"`
}

// TypingPayload is sent by clients on typing-start / typing-stop
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	ReceiverID     string `json:"receiverId"`
}

// TypingNotifyPayload is pushed to the receiver of a typing indicator
type TypingNotifyPayload struct {
	PrincipalID    string `json:"principalId"`
	ConversationID string `json:"conversationId"`
	Typing         bool   `json:"typing"`
}

// ReadReceiptPayload acknowledges a batch of messages from one sender
type ReadReceiptPayload struct {
	SenderID   string   `json:"senderId"`
	MessageIDs []string `json:"messageIds"`
}

// StatusUpdatePayload tells a sender that its messages changed status
type StatusUpdatePayload struct {
	Status     MessageStatus `json:"status"`
	MessageIDs []string      `json:"messageIds"`
}

// ReactionPayload toggles an emoji on a message
type ReactionPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	ReactorID string `json:"reactorId"`
}

// ReactionUpdatePayload carries the complete reaction list of a message
type ReactionUpdatePayload struct {
	MessageID string     `json:"messageId"`
	Reactions []Reaction `json:"reactions"`
}

// DeletePayload asks the server to delete a message
type DeletePayload struct {
	MessageID string `json:"messageId"`
}

// MessageDeletedPayload tells the other participant a message is gone
type MessageDeletedPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// MessageErrorPayload reports a failed live send
type MessageErrorPayload struct {
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error"`
}
