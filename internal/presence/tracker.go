package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	pkglogger "github.com/damoang/angple-chat/pkg/logger"
	"github.com/rs/zerolog"
)

// DefaultTypingTimeout is the quiet period after which a typing indicator clears itself
const DefaultTypingTimeout = 3 * time.Second

// Handle is a live session the tracker can push events to.
// Implementations must be comparable (pointer types) and Send must not block.
type Handle interface {
	Send(event string, payload interface{}) bool
}

// Notifier pushes events to live principals
type Notifier interface {
	SendTo(principalID, event string, payload interface{}) bool
	BroadcastAll(event string, payload interface{})
}

// UserStore persists presence fields and serves last-seen for offline principals
type UserStore interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	SetPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error
}

// Options tune a Tracker
type Options struct {
	Now           func() time.Time
	TypingTimeout time.Duration
}

// principalLock orders one principal's presence writes and broadcasts
type principalLock struct {
	mu   sync.Mutex
	refs int
}

type typingEntry struct {
	timer      *time.Timer
	receiverID string
	gen        uint64
}

// Tracker owns the principal -> session map and the typing table
type Tracker struct {
	users   UserStore
	now     func() time.Time
	handles map[string]Handle
	// owner principal -> conversation id -> entry
	typing  map[string]map[string]*typingEntry
	locks   map[string]*principalLock
	log     zerolog.Logger
	timeout time.Duration
	gen     uint64
	mu      sync.Mutex
	closed  bool
}

// New creates a Tracker. Call Close on shutdown to stop pending timers.
func New(users UserStore, opts Options) *Tracker {
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = DefaultTypingTimeout
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Tracker{
		users:   users,
		now:     opts.Now,
		handles: make(map[string]Handle),
		typing:  make(map[string]map[string]*typingEntry),
		locks:   make(map[string]*principalLock),
		log:     pkglogger.WithComponent("presence"),
		timeout: opts.TypingTimeout,
	}
}

// Announce registers handle as the live session of principalID (last connection wins),
// persists the online flag and tells every other session.
func (t *Tracker) Announce(ctx context.Context, principalID string, handle Handle) {
	unlock := t.lockPrincipal(principalID)
	defer unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.handles[principalID] = handle
	others := t.snapshotLocked(principalID)
	t.mu.Unlock()

	now := t.now()
	if err := t.users.SetPresence(ctx, principalID, true, now); err != nil {
		t.log.Warn().Err(err).Str("user_id", principalID).Msg("persist online failed")
	}

	payload := domain.StatusChangePayload{PrincipalID: principalID, Online: true}
	for _, h := range others {
		h.Send(domain.EventStatusChange, payload)
	}
	t.log.Debug().Str("user_id", principalID).Int("online", len(others)+1).Msg("announced")
}

// Lookup returns the live session of principalID
func (t *Tracker) Lookup(principalID string) (Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[principalID]
	return h, ok
}

// IsOnline reports whether principalID has a live session
func (t *Tracker) IsOnline(principalID string) bool {
	_, ok := t.Lookup(principalID)
	return ok
}

// QueryStatus combines the live map with the persisted last-seen
func (t *Tracker) QueryStatus(ctx context.Context, principalID string) (domain.PresenceStatus, error) {
	status := domain.PresenceStatus{PrincipalID: principalID, Online: t.IsOnline(principalID)}

	user, err := t.users.FindByID(ctx, principalID)
	switch {
	case err == nil:
		status.LastSeen = user.LastSeen
	case errors.Is(err, common.ErrNotFound):
		// never connected and no profile yet
	default:
		return status, err
	}
	return status, nil
}

// Retire removes handle if it is still the registered session of principalID.
// It cascade-clears the principal's typing entries, persists offline + last-seen
// and broadcasts the change. Returns false for a stale handle.
func (t *Tracker) Retire(ctx context.Context, principalID string, handle Handle) bool {
	unlock := t.lockPrincipal(principalID)
	defer unlock()

	t.mu.Lock()
	if current, ok := t.handles[principalID]; !ok || current != handle {
		t.mu.Unlock()
		return false
	}
	delete(t.handles, principalID)

	type clearNotice struct {
		target         Handle
		conversationID string
	}
	var notices []clearNotice
	for convID, e := range t.typing[principalID] {
		e.timer.Stop()
		if h, ok := t.handles[e.receiverID]; ok {
			notices = append(notices, clearNotice{target: h, conversationID: convID})
		}
	}
	delete(t.typing, principalID)
	others := t.snapshotLocked(principalID)
	t.mu.Unlock()

	for _, n := range notices {
		n.target.Send(domain.EventTypingNotify, domain.TypingNotifyPayload{
			PrincipalID:    principalID,
			ConversationID: n.conversationID,
			Typing:         false,
		})
	}

	now := t.now()
	if err := t.users.SetPresence(ctx, principalID, false, now); err != nil {
		t.log.Warn().Err(err).Str("user_id", principalID).Msg("persist offline failed")
	}

	payload := domain.StatusChangePayload{PrincipalID: principalID, Online: false, LastSeen: &now}
	for _, h := range others {
		h.Send(domain.EventStatusChange, payload)
	}
	t.log.Debug().Str("user_id", principalID).Int("typing_cleared", len(notices)).Msg("retired")
	return true
}

// StartTyping sets the (principal, conversation) entry and re-arms its auto-clear timer.
// The receiver is notified on every call.
func (t *Tracker) StartTyping(principalID, conversationID, receiverID string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	entries := t.typing[principalID]
	if entries == nil {
		entries = make(map[string]*typingEntry)
		t.typing[principalID] = entries
	}
	if prev := entries[conversationID]; prev != nil {
		prev.timer.Stop()
	}
	t.gen++
	gen := t.gen
	entries[conversationID] = &typingEntry{
		receiverID: receiverID,
		gen:        gen,
		timer: time.AfterFunc(t.timeout, func() {
			t.expireTyping(principalID, conversationID, gen)
		}),
	}
	target, ok := t.handles[receiverID]
	t.mu.Unlock()

	if ok {
		target.Send(domain.EventTypingNotify, domain.TypingNotifyPayload{
			PrincipalID:    principalID,
			ConversationID: conversationID,
			Typing:         true,
		})
	}
}

// StopTyping clears the entry and cancels its timer. No-op when no entry is active.
func (t *Tracker) StopTyping(principalID, conversationID string) {
	t.mu.Lock()
	entry := t.removeTypingLocked(principalID, conversationID, 0)
	var target Handle
	if entry != nil {
		entry.timer.Stop()
		target = t.handles[entry.receiverID]
	}
	t.mu.Unlock()

	if target != nil {
		target.Send(domain.EventTypingNotify, domain.TypingNotifyPayload{
			PrincipalID:    principalID,
			ConversationID: conversationID,
			Typing:         false,
		})
	}
}

// IsTyping reports whether principalID has an active entry for conversationID
func (t *Tracker) IsTyping(principalID, conversationID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.typing[principalID][conversationID]
	return ok
}

func (t *Tracker) expireTyping(principalID, conversationID string, gen uint64) {
	t.mu.Lock()
	entry := t.removeTypingLocked(principalID, conversationID, gen)
	var target Handle
	if entry != nil {
		target = t.handles[entry.receiverID]
	}
	t.mu.Unlock()

	if target != nil {
		target.Send(domain.EventTypingNotify, domain.TypingNotifyPayload{
			PrincipalID:    principalID,
			ConversationID: conversationID,
			Typing:         false,
		})
	}
}

// removeTypingLocked deletes the entry; gen 0 matches any generation
func (t *Tracker) removeTypingLocked(principalID, conversationID string, gen uint64) *typingEntry {
	entries := t.typing[principalID]
	entry := entries[conversationID]
	if entry == nil || (gen != 0 && entry.gen != gen) {
		return nil
	}
	delete(entries, conversationID)
	if len(entries) == 0 {
		delete(t.typing, principalID)
	}
	return entry
}

// SendTo pushes an event to principalID's live session; false when unreachable
func (t *Tracker) SendTo(principalID, event string, payload interface{}) bool {
	h, ok := t.Lookup(principalID)
	if !ok {
		return false
	}
	return h.Send(event, payload)
}

// BroadcastAll pushes an event to every live session
func (t *Tracker) BroadcastAll(event string, payload interface{}) {
	t.mu.Lock()
	all := t.snapshotLocked("")
	t.mu.Unlock()
	for _, h := range all {
		h.Send(event, payload)
	}
}

// OnlineCount returns the number of live principals
func (t *Tracker) OnlineCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}

// Close stops every pending typing timer and rejects further announcements
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for owner, entries := range t.typing {
		for _, e := range entries {
			e.timer.Stop()
		}
		delete(t.typing, owner)
	}
}

// lockPrincipal serializes Announce and Retire of one principal, store write and fan-out included
func (t *Tracker) lockPrincipal(principalID string) func() {
	t.mu.Lock()
	l := t.locks[principalID]
	if l == nil {
		l = &principalLock{}
		t.locks[principalID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, principalID)
		}
		t.mu.Unlock()
	}
}

func (t *Tracker) snapshotLocked(except string) []Handle {
	out := make([]Handle, 0, len(t.handles))
	for id, h := range t.handles {
		if id != except {
			out = append(out, h)
		}
	}
	return out
}
