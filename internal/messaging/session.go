package messaging

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/rs/zerolog"
)

// State of a live session
type State int

const (
	StateUnidentified State = iota
	StateIdentified
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnidentified:
		return "unidentified"
	case StateIdentified:
		return "identified"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the per-connection protocol state machine.
// Dispatch and Close must be called from the connection's read goroutine only.
type Session struct {
	h           *Handler
	conn        Conn
	log         zerolog.Logger
	// conversation id -> other participant, "" when the principal is not a member
	peers       map[string]string
	principalID string
	state       State
}

// State returns the current session state
func (s *Session) State() State {
	return s.state
}

// PrincipalID returns the authenticated principal bound to the connection
func (s *Session) PrincipalID() string {
	return s.principalID
}

// Dispatch handles one inbound frame. It reports whether the frame was acted on;
// frames arriving in the wrong state or with bad payloads are dropped.
func (s *Session) Dispatch(ctx context.Context, f Frame) bool {
	switch s.state {
	case StateClosed:
		s.ignore(f, "session closed")
		return false
	case StateUnidentified:
		if f.Event != domain.EventIdentify {
			s.ignore(f, "not identified")
			return false
		}
		return s.identify(ctx, f)
	}

	switch f.Event {
	case domain.EventIdentify:
		// already bound; repeated identify refreshes the registration
		return s.identify(ctx, f)
	case domain.EventQueryStatus:
		return s.queryStatus(ctx, f)
	case domain.EventSend:
		return s.send(ctx, f)
	case domain.EventTypingStart, domain.EventTypingStop:
		return s.typing(ctx, f)
	case domain.EventReadReceipt:
		return s.readReceipt(ctx, f)
	case domain.EventReaction:
		return s.reaction(ctx, f)
	case domain.EventDelete:
		return s.deleteMessage(ctx, f)
	default:
		s.ignore(f, "unknown event")
		return false
	}
}

// Close retires the session from presence. Later frames are dropped.
func (s *Session) Close(ctx context.Context) {
	if s.state == StateClosed {
		return
	}
	if s.state == StateIdentified {
		s.h.presence.Retire(ctx, s.principalID, s.conn)
	}
	s.state = StateClosed
}

func (s *Session) identify(ctx context.Context, f Frame) bool {
	claimed := decodeID(f.Data)
	if claimed == "" || claimed != s.principalID {
		s.ignore(f, "identify does not match authenticated principal")
		return false
	}
	s.h.presence.Announce(ctx, s.principalID, s.conn)
	s.state = StateIdentified
	return true
}

func (s *Session) queryStatus(ctx context.Context, f Frame) bool {
	target := decodeID(f.Data)
	if target == "" {
		s.ignore(f, "missing principal")
		return false
	}
	status, err := s.h.presence.QueryStatus(ctx, target)
	if err != nil {
		s.log.Warn().Err(err).Str("target", target).Msg("query status failed")
		return false
	}
	s.conn.Reply(domain.EventQueryStatus, f.Ref, status)
	return true
}

// send is a notify layer over an already persisted (or optimistic) message; it never writes new rows
func (s *Session) send(ctx context.Context, f Frame) bool {
	var msg domain.Message
	if err := json.Unmarshal(f.Data, &msg); err != nil || msg.ReceiverID == "" {
		s.conn.Send(domain.EventMessageError, domain.MessageErrorPayload{MessageID: msg.ID, Error: "invalid message payload"})
		return false
	}
	if msg.SenderID == "" {
		msg.SenderID = s.principalID
	}
	if msg.SenderID != s.principalID || msg.ReceiverID == s.principalID {
		s.conn.Send(domain.EventMessageError, domain.MessageErrorPayload{MessageID: msg.ID, Error: "invalid sender or receiver"})
		return false
	}
	if !msg.Status.Valid() {
		msg.Status = domain.StatusSent
	}

	out := &msg
	if msg.ID != "" {
		stored, err := s.h.messages.FindByID(ctx, msg.ID)
		switch {
		case err == nil:
			if stored.SenderID != s.principalID {
				s.conn.Send(domain.EventMessageError, domain.MessageErrorPayload{MessageID: msg.ID, Error: "invalid sender or receiver"})
				return false
			}
			out = stored
		case errors.Is(err, common.ErrMessageNotFound):
			// optimistic echo of a record the REST path has not stored yet
		default:
			s.log.Error().Err(err).Str("message_id", msg.ID).Msg("load message for send failed")
			s.conn.Send(domain.EventMessageError, domain.MessageErrorPayload{MessageID: msg.ID, Error: "failed to deliver message"})
			return false
		}
	}

	if _, live := s.h.presence.Lookup(out.ReceiverID); live {
		if out != &msg {
			moved, err := s.h.messages.MarkDelivered(ctx, out.ID)
			if err != nil {
				s.log.Error().Err(err).Str("message_id", out.ID).Msg("mark delivered failed")
				s.conn.Send(domain.EventMessageError, domain.MessageErrorPayload{MessageID: out.ID, Error: "failed to deliver message"})
				return false
			}
			if moved {
				out.Status = domain.StatusDelivered
			}
		}
		s.h.populate(ctx, out)
		s.h.presence.SendTo(out.ReceiverID, domain.EventMessageForward, out)
	} else {
		s.h.populate(ctx, out)
	}

	s.conn.Reply(domain.EventMessageAck, f.Ref, out)
	return true
}

func (s *Session) typing(ctx context.Context, f Frame) bool {
	var p domain.TypingPayload
	if err := json.Unmarshal(f.Data, &p); err != nil || p.ConversationID == "" {
		s.ignore(f, "bad typing payload")
		return false
	}
	if f.Event == domain.EventTypingStart {
		peer, ok := s.peerIn(ctx, p.ConversationID)
		if !ok || (p.ReceiverID != "" && p.ReceiverID != peer) {
			s.ignore(f, "typing receiver is not the other participant")
			return false
		}
		s.h.presence.StartTyping(s.principalID, p.ConversationID, peer)
		return true
	}
	s.h.presence.StopTyping(s.principalID, p.ConversationID)
	return true
}

func (s *Session) readReceipt(ctx context.Context, f Frame) bool {
	var p domain.ReadReceiptPayload
	if err := json.Unmarshal(f.Data, &p); err != nil || len(p.MessageIDs) == 0 {
		s.ignore(f, "bad read receipt payload")
		return false
	}

	updated, err := s.h.messages.MarkReadByIDs(ctx, p.MessageIDs, s.principalID)
	if err != nil {
		s.log.Error().Err(err).Msg("mark read failed")
		return false
	}

	for senderID, ids := range idsBySender(updated) {
		s.h.presence.SendTo(senderID, domain.EventStatusUpdate, domain.StatusUpdatePayload{
			MessageIDs: ids,
			Status:     domain.StatusRead,
		})
	}
	return true
}

func (s *Session) reaction(ctx context.Context, f Frame) bool {
	var p domain.ReactionPayload
	if err := json.Unmarshal(f.Data, &p); err != nil || p.MessageID == "" {
		s.ignore(f, "bad reaction payload")
		return false
	}
	if p.ReactorID == "" {
		p.ReactorID = s.principalID
	}
	if p.ReactorID != s.principalID {
		s.ignore(f, "reactor does not match principal")
		return false
	}

	msg, err := s.h.messages.UpsertReaction(ctx, p.MessageID, p.ReactorID, p.Emoji)
	if err != nil {
		s.log.Warn().Err(err).Str("message_id", p.MessageID).Msg("reaction failed")
		return false
	}
	s.h.populate(ctx, msg)

	update := domain.ReactionUpdatePayload{MessageID: msg.ID, Reactions: msg.Reactions}
	s.h.presence.SendTo(msg.SenderID, domain.EventReactionUpdate, update)
	s.h.presence.SendTo(msg.ReceiverID, domain.EventReactionUpdate, update)
	return true
}

func (s *Session) deleteMessage(ctx context.Context, f Frame) bool {
	var p domain.DeletePayload
	if err := json.Unmarshal(f.Data, &p); err != nil || p.MessageID == "" {
		s.ignore(f, "bad delete payload")
		return false
	}

	msg, err := s.h.messages.Delete(ctx, p.MessageID, s.principalID)
	if err != nil {
		s.log.Warn().Err(err).Str("message_id", p.MessageID).Msg("delete failed")
		return false
	}

	s.h.presence.SendTo(msg.ReceiverID, domain.EventMessageDeleted, domain.MessageDeletedPayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
	})
	return true
}

// peerIn returns the other participant of a conversation the principal belongs to.
// Answers are cached for the session since participants never change.
func (s *Session) peerIn(ctx context.Context, conversationID string) (string, bool) {
	if peer, ok := s.peers[conversationID]; ok {
		return peer, peer != ""
	}
	conv, err := s.h.conversations.FindByID(ctx, conversationID)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrConversationNotFound):
		conv = nil
	default:
		s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("load conversation failed")
		return "", false
	}

	peer := ""
	if conv != nil && conv.HasParticipant(s.principalID) {
		peer = conv.Other(s.principalID)
	}
	if s.peers == nil {
		s.peers = make(map[string]string)
	}
	s.peers[conversationID] = peer
	return peer, peer != ""
}

func (s *Session) ignore(f Frame, reason string) {
	s.log.Debug().Str("event", f.Event).Str("state", s.state.String()).Str("reason", reason).Msg("event dropped")
}

// idsBySender groups message ids by their sender, keeping input order
func idsBySender(msgs []*domain.Message) map[string][]string {
	out := make(map[string][]string)
	for _, m := range msgs {
		out[m.SenderID] = append(out[m.SenderID], m.ID)
	}
	return out
}
