// Package chatclient keeps a client-side view of conversations in sync with the live channel.
//
// REST snapshots seed the State; live events are layered on top with Apply.
// Locally sent messages start as optimistic records under a temporary id and
// are swapped in place once the server confirms them.
package chatclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TempPrefix marks ids generated locally for optimistic records
const TempPrefix = "temp-"

// Local-only statuses; the server never emits these
const (
	StatusSending = "sending"
	StatusFailed  = "failed"
)

var statusRank = map[string]int{"sent": 1, "delivered": 2, "read": 3}

// ErrUnknownRecord is returned when a confirmation names no pending record
var ErrUnknownRecord = errors.New("no pending record for id")

// Reaction is one principal's emoji on a message
type Reaction struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

// Message mirrors the server's message record
type Message struct {
	CreatedAt      time.Time  `json:"createdAt"`
	Content        *string    `json:"content,omitempty"`
	MediaURL       *string    `json:"mediaUrl,omitempty"`
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	ReceiverID     string     `json:"receiverId"`
	ContentType    string     `json:"contentType"`
	Status         string     `json:"status"`
	Reactions      []Reaction `json:"reactions"`
}

// Pending reports whether m is an unconfirmed optimistic record
func (m *Message) Pending() bool {
	return strings.HasPrefix(m.ID, TempPrefix)
}

// Conversation is the summary row shown in a conversation list
type Conversation struct {
	UpdatedAt   time.Time `json:"updatedAt"`
	LastMessage *Message  `json:"lastMessage,omitempty"`
	ID          string    `json:"id"`
	UnreadCount int       `json:"unreadCount"`
}

// Presence is the last known online state of a principal
type Presence struct {
	LastSeen *time.Time `json:"lastSeen,omitempty"`
	Online   bool       `json:"online"`
}

// Event is one inbound live frame
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ref   string          `json:"ref,omitempty"`
}

// State is safe for concurrent use
type State struct {
	index         map[string]*Message
	conversations map[string]*Conversation
	typing        map[string]map[string]struct{}
	presence      map[string]Presence
	seen          map[string]struct{}
	now           func() time.Time
	self          string
	current       string
	messages      []*Message
	mu            sync.RWMutex
}

// NewState creates an empty State for principal self
func NewState(self string) *State {
	return &State{
		self:          self,
		index:         make(map[string]*Message),
		conversations: make(map[string]*Conversation),
		typing:        make(map[string]map[string]struct{}),
		presence:      make(map[string]Presence),
		seen:          make(map[string]struct{}),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Self returns the principal this state belongs to
func (s *State) Self() string {
	return s.self
}

// LoadConversations replaces the conversation list with a REST snapshot
func (s *State) LoadConversations(convs []Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = make(map[string]*Conversation, len(convs))
	for i := range convs {
		c := convs[i]
		s.conversations[c.ID] = &c
	}
}

// OpenConversation makes conversationID current and replaces the message list with history.
// Pending optimistic records of that conversation survive the reload.
func (s *State) OpenConversation(conversationID string, history []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*Message
	for _, m := range s.messages {
		if m.Pending() && m.ConversationID == conversationID {
			pending = append(pending, m)
		}
	}

	s.current = conversationID
	s.messages = make([]*Message, 0, len(history)+len(pending))
	s.index = make(map[string]*Message, len(history)+len(pending))
	for i := range history {
		m := history[i]
		if _, dup := s.index[m.ID]; dup {
			continue
		}
		s.messages = append(s.messages, &m)
		s.index[m.ID] = &m
		s.seen[m.ID] = struct{}{}
	}
	for _, m := range pending {
		s.messages = append(s.messages, m)
		s.index[m.ID] = m
	}
	if c, ok := s.conversations[conversationID]; ok {
		c.UnreadCount = 0
	}
}

// BeginSend inserts an optimistic record and returns a copy of it
func (s *State) BeginSend(conversationID, receiverID, content string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := &Message{
		ID:             TempPrefix + uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       s.self,
		ReceiverID:     receiverID,
		ContentType:    "text",
		Status:         StatusSending,
		CreatedAt:      s.now(),
		Reactions:      []Reaction{},
	}
	m.Content = &content

	s.messages = append(s.messages, m)
	s.index[m.ID] = m
	return *m
}

// ConfirmSend swaps the optimistic record tempID for the durable msg, keeping its position
func (s *State) ConfirmSend(tempID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmLocked(tempID, msg)
}

func (s *State) confirmLocked(tempID string, msg Message) error {
	rec, ok := s.index[tempID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRecord, tempID)
	}
	delete(s.index, tempID)

	if _, known := s.index[msg.ID]; known && msg.ID != tempID {
		// the durable record arrived first through another path
		s.removeLocked(rec)
		return nil
	}

	*rec = msg
	s.seen[msg.ID] = struct{}{}
	if rec.Reactions == nil {
		rec.Reactions = []Reaction{}
	}
	s.index[rec.ID] = rec
	s.touchConversationLocked(rec, false)
	return nil
}

// FailSend marks the optimistic record tempID as failed
func (s *State) FailSend(tempID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.index[tempID]
	if !ok || !rec.Pending() {
		return fmt.Errorf("%w: %s", ErrUnknownRecord, tempID)
	}
	rec.Status = StatusFailed
	return nil
}

// Apply folds one live event into the state. Unknown events are ignored.
func (s *State) Apply(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Event {
	case "message-forward":
		var m Message
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Event, err)
		}
		s.receiveLocked(m)

	case "message-ack":
		var m Message
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Event, err)
		}
		if ev.Ref != "" {
			if err := s.confirmLocked(ev.Ref, m); err == nil {
				return nil
			}
		}
		if rec, ok := s.index[m.ID]; ok && statusRank[m.Status] > statusRank[rec.Status] {
			rec.Status = m.Status
		}

	case "message-error":
		var p struct {
			MessageID string `json:"messageId"`
		}
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Event, err)
		}
		id := p.MessageID
		if id == "" {
			id = ev.Ref
		}
		if rec, ok := s.index[id]; ok && rec.Pending() {
			rec.Status = StatusFailed
		}

	case "status-update":
		var p struct {
			Status     string   `json:"status"`
			MessageIDs []string `json:"messageIds"`
		}
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Event, err)
		}
		for _, id := range p.MessageIDs {
			if rec, ok := s.index[id]; ok && statusRank[p.Status] > statusRank[rec.Status] {
				rec.Status = p.Status
			}
		}

	case "reaction-update":
		var p struct {
			MessageID string     `json:"messageId"`
			Reactions []Reaction `json:"reactions"`
		}
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Event, err)
		}
		if rec, ok := s.index[p.MessageID]; ok {
			rec.Reactions = append([]Reaction{}, p.Reactions...)
		}

	case "message-deleted":
		var p struct {
			MessageID      string `json:"messageId"`
			ConversationID string `json:"conversationId"`
		}
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Event, err)
		}
		if rec, ok := s.index[p.MessageID]; ok {
			s.removeLocked(rec)
		}
		if c, ok := s.conversations[p.ConversationID]; ok && c.LastMessage != nil && c.LastMessage.ID == p.MessageID {
			c.LastMessage = nil
		}

	case "typing-notify":
		var p struct {
			PrincipalID    string `json:"principalId"`
			ConversationID string `json:"conversationId"`
			Typing         bool   `json:"typing"`
		}
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Event, err)
		}
		set := s.typing[p.ConversationID]
		if p.Typing {
			if set == nil {
				set = make(map[string]struct{})
				s.typing[p.ConversationID] = set
			}
			set[p.PrincipalID] = struct{}{}
		} else if set != nil {
			delete(set, p.PrincipalID)
			if len(set) == 0 {
				delete(s.typing, p.ConversationID)
			}
		}

	case "status-change", "query-status":
		var p struct {
			LastSeen    *time.Time `json:"lastSeen"`
			PrincipalID string     `json:"principalId"`
			Online      bool       `json:"online"`
		}
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Event, err)
		}
		if p.PrincipalID == "" {
			return nil
		}
		prev := s.presence[p.PrincipalID]
		next := Presence{Online: p.Online, LastSeen: p.LastSeen}
		if next.LastSeen == nil {
			next.LastSeen = prev.LastSeen
		}
		s.presence[p.PrincipalID] = next
	}
	return nil
}

// receiveLocked appends an inbound message unless its id is already known
func (s *State) receiveLocked(m Message) {
	if _, known := s.index[m.ID]; known {
		return
	}
	if _, seen := s.seen[m.ID]; seen {
		return
	}
	s.seen[m.ID] = struct{}{}
	if m.Reactions == nil {
		m.Reactions = []Reaction{}
	}
	rec := &m
	if m.ConversationID == s.current {
		s.messages = append(s.messages, rec)
		s.index[rec.ID] = rec
	}
	s.touchConversationLocked(rec, m.ReceiverID == s.self && m.ConversationID != s.current)
}

func (s *State) touchConversationLocked(m *Message, unread bool) {
	if m.ConversationID == "" {
		return
	}
	c, ok := s.conversations[m.ConversationID]
	if !ok {
		c = &Conversation{ID: m.ConversationID}
		s.conversations[c.ID] = c
	}
	preview := *m
	c.LastMessage = &preview
	if m.CreatedAt.After(c.UpdatedAt) {
		c.UpdatedAt = m.CreatedAt
	}
	if unread {
		c.UnreadCount++
	}
}

func (s *State) removeLocked(rec *Message) {
	delete(s.index, rec.ID)
	for i, m := range s.messages {
		if m == rec {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

// Messages returns a copy of the open conversation's messages in display order
func (s *State) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = *m
	}
	return out
}

// Message returns the record with id, optimistic ones included
func (s *State) Message(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.index[id]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// Conversations returns the summaries, most recently updated first
func (s *State) Conversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Typing returns the principals currently typing in conversationID, sorted
func (s *State) Typing(conversationID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.typing[conversationID]))
	for id := range s.typing[conversationID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Presence returns the last known presence of principalID
func (s *State) Presence(principalID string) (Presence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presence[principalID]
	return p, ok
}
