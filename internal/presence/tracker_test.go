package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	payload interface{}
	event   string
}

type fakeHandle struct {
	events []sentEvent
	mu     sync.Mutex
}

func (h *fakeHandle) Send(event string, payload interface{}) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, sentEvent{event: event, payload: payload})
	return true
}

func (h *fakeHandle) named(event string) []sentEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []sentEvent
	for _, e := range h.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (h *fakeHandle) typing() []domain.TypingNotifyPayload {
	var out []domain.TypingNotifyPayload
	for _, e := range h.named(domain.EventTypingNotify) {
		out = append(out, e.payload.(domain.TypingNotifyPayload))
	}
	return out
}

type fakeUsers struct {
	users map[string]*domain.User
	err   error
	mu    sync.Mutex
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[string]*domain.User)}
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) SetPresence(_ context.Context, id string, online bool, lastSeen time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	u, ok := f.users[id]
	if !ok {
		u = &domain.User{ID: id}
		f.users[id] = u
	}
	u.IsOnline = online
	u.LastSeen = &lastSeen
	return nil
}

func newTestTracker(t *testing.T, timeout time.Duration) (*Tracker, *fakeUsers) {
	t.Helper()
	users := newFakeUsers()
	tr := New(users, Options{TypingTimeout: timeout})
	t.Cleanup(tr.Close)
	return tr, users
}

func TestAnnounceBroadcastsToOthers(t *testing.T) {
	tr, users := newTestTracker(t, time.Second)
	ctx := context.Background()
	alice, bob := &fakeHandle{}, &fakeHandle{}

	tr.Announce(ctx, "alice", alice)
	tr.Announce(ctx, "bob", bob)

	assert.Empty(t, bob.named(domain.EventStatusChange), "own announcement is not echoed")
	changes := alice.named(domain.EventStatusChange)
	require.Len(t, changes, 1)
	assert.Equal(t, domain.StatusChangePayload{PrincipalID: "bob", Online: true}, changes[0].payload)

	u, err := users.FindByID(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, u.IsOnline)
	assert.True(t, tr.IsOnline("bob"))
	assert.Equal(t, 2, tr.OnlineCount())
}

func TestReconnectLastConnectionWins(t *testing.T) {
	tr, _ := newTestTracker(t, time.Second)
	ctx := context.Background()
	first, second := &fakeHandle{}, &fakeHandle{}

	tr.Announce(ctx, "alice", first)
	tr.Announce(ctx, "alice", second)

	h, ok := tr.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, second, h)

	// the old socket closing must not take the new one offline
	assert.False(t, tr.Retire(ctx, "alice", first))
	assert.True(t, tr.IsOnline("alice"))

	assert.True(t, tr.Retire(ctx, "alice", second))
	assert.False(t, tr.IsOnline("alice"))
}

// gatedUsers blocks the first offline write until release is closed
type gatedUsers struct {
	*fakeUsers
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedUsers) SetPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error {
	if !online {
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
	return g.fakeUsers.SetPresence(ctx, id, online, lastSeen)
}

func TestReconnectDuringRetireEndsOnline(t *testing.T) {
	users := &gatedUsers{fakeUsers: newFakeUsers(), entered: make(chan struct{}), release: make(chan struct{})}
	tr := New(users, Options{TypingTimeout: time.Second})
	t.Cleanup(tr.Close)
	ctx := context.Background()

	observer, old, fresh := &fakeHandle{}, &fakeHandle{}, &fakeHandle{}
	tr.Announce(ctx, "bob", observer)
	tr.Announce(ctx, "alice", old)

	retired := make(chan bool)
	go func() { retired <- tr.Retire(ctx, "alice", old) }()
	<-users.entered

	announced := make(chan struct{})
	go func() {
		tr.Announce(ctx, "alice", fresh)
		close(announced)
	}()

	close(users.release)
	assert.True(t, <-retired)
	select {
	case <-announced:
	case <-time.After(2 * time.Second):
		t.Fatal("announce did not finish")
	}

	assert.True(t, tr.IsOnline("alice"))
	u, err := users.FindByID(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, u.IsOnline, "stored flag follows the newest connection")

	changes := observer.named(domain.EventStatusChange)
	require.NotEmpty(t, changes)
	last := changes[len(changes)-1].payload.(domain.StatusChangePayload)
	assert.Equal(t, "alice", last.PrincipalID)
	assert.True(t, last.Online, "last broadcast follows the newest connection")
}

func TestRetirePersistsAndBroadcasts(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	users := newFakeUsers()
	tr := New(users, Options{Now: func() time.Time { return now }})
	t.Cleanup(tr.Close)
	ctx := context.Background()
	alice, bob := &fakeHandle{}, &fakeHandle{}

	tr.Announce(ctx, "alice", alice)
	tr.Announce(ctx, "bob", bob)
	require.True(t, tr.Retire(ctx, "bob", bob))

	changes := alice.named(domain.EventStatusChange)
	require.Len(t, changes, 2)
	last := changes[1].payload.(domain.StatusChangePayload)
	assert.False(t, last.Online)
	require.NotNil(t, last.LastSeen)
	assert.Equal(t, now, *last.LastSeen)

	status, err := tr.QueryStatus(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, status.Online)
	require.NotNil(t, status.LastSeen)
	assert.Equal(t, now, *status.LastSeen)
}

func TestQueryStatusUnknownPrincipal(t *testing.T) {
	tr, _ := newTestTracker(t, time.Second)

	status, err := tr.QueryStatus(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, status.Online)
	assert.Nil(t, status.LastSeen)
}

func TestPersistFailureStillUpdatesMemory(t *testing.T) {
	tr, users := newTestTracker(t, time.Second)
	users.err = errors.New("db down")

	tr.Announce(context.Background(), "alice", &fakeHandle{})
	assert.True(t, tr.IsOnline("alice"))
}

func TestTypingAutoClears(t *testing.T) {
	tr, _ := newTestTracker(t, 50*time.Millisecond)
	ctx := context.Background()
	alice, bob := &fakeHandle{}, &fakeHandle{}
	tr.Announce(ctx, "alice", alice)
	tr.Announce(ctx, "bob", bob)

	tr.StartTyping("alice", "c1", "bob")
	assert.True(t, tr.IsTyping("alice", "c1"))

	assert.Eventually(t, func() bool { return len(bob.typing()) == 2 }, time.Second, 5*time.Millisecond)
	got := bob.typing()
	assert.True(t, got[0].Typing)
	assert.False(t, got[1].Typing)
	assert.Equal(t, "alice", got[1].PrincipalID)
	assert.Equal(t, "c1", got[1].ConversationID)
	assert.False(t, tr.IsTyping("alice", "c1"))
}

func TestTypingRestartPostponesClear(t *testing.T) {
	tr, _ := newTestTracker(t, 200*time.Millisecond)
	ctx := context.Background()
	bob := &fakeHandle{}
	tr.Announce(ctx, "bob", bob)

	tr.StartTyping("alice", "c1", "bob")
	time.Sleep(100 * time.Millisecond)
	tr.StartTyping("alice", "c1", "bob")
	time.Sleep(150 * time.Millisecond)

	// first deadline has passed but the entry was re-armed
	assert.True(t, tr.IsTyping("alice", "c1"))

	assert.Eventually(t, func() bool { return !tr.IsTyping("alice", "c1") }, time.Second, 5*time.Millisecond)
	time.Sleep(250 * time.Millisecond)

	var clears int
	for _, p := range bob.typing() {
		if !p.Typing {
			clears++
		}
	}
	assert.Equal(t, 1, clears)
}

func TestStopTypingIsIdempotent(t *testing.T) {
	tr, _ := newTestTracker(t, time.Second)
	ctx := context.Background()
	bob := &fakeHandle{}
	tr.Announce(ctx, "bob", bob)

	tr.StopTyping("alice", "c1")
	assert.Empty(t, bob.typing())

	tr.StartTyping("alice", "c1", "bob")
	tr.StopTyping("alice", "c1")
	tr.StopTyping("alice", "c1")

	got := bob.typing()
	require.Len(t, got, 2)
	assert.True(t, got[0].Typing)
	assert.False(t, got[1].Typing)
}

func TestRetireCascadesTyping(t *testing.T) {
	tr, _ := newTestTracker(t, 60*time.Millisecond)
	ctx := context.Background()
	alice, bob, carol := &fakeHandle{}, &fakeHandle{}, &fakeHandle{}
	tr.Announce(ctx, "alice", alice)
	tr.Announce(ctx, "bob", bob)
	tr.Announce(ctx, "carol", carol)

	tr.StartTyping("alice", "c-ab", "bob")
	tr.StartTyping("alice", "c-ac", "carol")
	require.True(t, tr.Retire(ctx, "alice", alice))

	assert.False(t, tr.IsTyping("alice", "c-ab"))
	assert.False(t, tr.IsTyping("alice", "c-ac"))

	// wait past the original deadline: cancelled timers must not fire again
	time.Sleep(150 * time.Millisecond)

	for _, h := range []*fakeHandle{bob, carol} {
		got := h.typing()
		require.Len(t, got, 2)
		assert.True(t, got[0].Typing)
		assert.False(t, got[1].Typing)
	}
}

func TestSendToAndBroadcast(t *testing.T) {
	tr, _ := newTestTracker(t, time.Second)
	ctx := context.Background()
	alice, bob := &fakeHandle{}, &fakeHandle{}
	tr.Announce(ctx, "alice", alice)
	tr.Announce(ctx, "bob", bob)

	assert.True(t, tr.SendTo("bob", "ping", 1))
	assert.False(t, tr.SendTo("carol", "ping", 1))
	tr.BroadcastAll("hello", nil)

	assert.Len(t, bob.named("ping"), 1)
	assert.Len(t, alice.named("hello"), 1)
	assert.Len(t, bob.named("hello"), 1)
}

func TestCloseStopsTimers(t *testing.T) {
	users := newFakeUsers()
	tr := New(users, Options{TypingTimeout: 30 * time.Millisecond})
	bob := &fakeHandle{}
	tr.Announce(context.Background(), "bob", bob)

	tr.StartTyping("alice", "c1", "bob")
	tr.Close()
	time.Sleep(80 * time.Millisecond)

	require.Len(t, bob.typing(), 1)
	tr.Announce(context.Background(), "carol", &fakeHandle{})
	assert.False(t, tr.IsOnline("carol"))
}
