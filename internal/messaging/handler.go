package messaging

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/presence"
	"github.com/damoang/angple-chat/internal/repository"
	pkglogger "github.com/damoang/angple-chat/pkg/logger"
	"github.com/rs/zerolog"
)

// Frame is the wire shape of every live event in both directions
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ref   string          `json:"ref,omitempty"`
}

// Conn is the transport side of a session
type Conn interface {
	presence.Handle
	// Reply sends an event correlated with an inbound frame's ref
	Reply(event, ref string, payload interface{}) bool
}

// Presence is the subset of the tracker the protocol needs
type Presence interface {
	presence.Notifier
	Announce(ctx context.Context, principalID string, handle presence.Handle)
	Retire(ctx context.Context, principalID string, handle presence.Handle) bool
	Lookup(principalID string) (presence.Handle, bool)
	QueryStatus(ctx context.Context, principalID string) (domain.PresenceStatus, error)
	StartTyping(principalID, conversationID, receiverID string)
	StopTyping(principalID, conversationID string)
}

// Populator joins display fields into outgoing messages
type Populator interface {
	PopulateMessages(ctx context.Context, msgs ...*domain.Message)
}

// Handler builds sessions sharing one tracker and store
type Handler struct {
	presence      Presence
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	populator     Populator
	log           zerolog.Logger
}

// NewHandler creates a Handler. populator may be nil.
func NewHandler(p Presence, conversations repository.ConversationRepository, messages repository.MessageRepository, populator Populator) *Handler {
	return &Handler{
		presence:      p,
		conversations: conversations,
		messages:      messages,
		populator:     populator,
		log:           pkglogger.WithComponent("messaging"),
	}
}

// NewSession starts an unidentified session for an authenticated principal
func (h *Handler) NewSession(principalID string, conn Conn) *Session {
	return &Session{
		h:           h,
		conn:        conn,
		principalID: principalID,
		log:         h.log.With().Str("user_id", principalID).Logger(),
	}
}

func (h *Handler) populate(ctx context.Context, msgs ...*domain.Message) {
	if h.populator != nil && len(msgs) > 0 {
		h.populator.PopulateMessages(ctx, msgs...)
	}
}

// decodeID accepts either a bare JSON string or {"principalId": "..."}
func decodeID(data json.RawMessage) string {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var obj struct {
		PrincipalID string `json:"principalId"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return strings.TrimSpace(obj.PrincipalID)
	}
	return ""
}
