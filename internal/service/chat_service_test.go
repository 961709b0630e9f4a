package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/repository"
	"github.com/damoang/angple-chat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// MockMediaStore is a mock implementation of MediaStore
type MockMediaStore struct {
	mock.Mock
}

func (m *MockMediaStore) Store(ctx context.Context, prefix, filename, contentType string, body io.Reader, size int64) (string, error) {
	args := m.Called(ctx, prefix, filename, contentType, body, size)
	return args.String(0), args.Error(1)
}

type pushed struct {
	payload     interface{}
	principalID string
	event       string
}

// fakeNotifier records pushes and answers IsOnline from a fixed set
type fakeNotifier struct {
	online map[string]bool
	pushes []pushed
	mu     sync.Mutex
}

func newFakeNotifier(online ...string) *fakeNotifier {
	n := &fakeNotifier{online: make(map[string]bool)}
	for _, id := range online {
		n.online[id] = true
	}
	return n
}

func (n *fakeNotifier) SendTo(principalID, event string, payload interface{}) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.online[principalID] {
		return false
	}
	n.pushes = append(n.pushes, pushed{principalID: principalID, event: event, payload: payload})
	return true
}

func (n *fakeNotifier) BroadcastAll(event string, payload interface{}) {
	for id := range n.online {
		n.SendTo(id, event, payload)
	}
}

func (n *fakeNotifier) IsOnline(principalID string) bool {
	return n.online[principalID]
}

func (n *fakeNotifier) QueryStatus(_ context.Context, principalID string) (domain.PresenceStatus, error) {
	return domain.PresenceStatus{PrincipalID: principalID, Online: n.online[principalID]}, nil
}

func (n *fakeNotifier) to(principalID, event string) []pushed {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []pushed
	for _, p := range n.pushes {
		if p.principalID == principalID && p.event == event {
			out = append(out, p)
		}
	}
	return out
}

type chatFixture struct {
	db       *gorm.DB
	svc      ChatService
	users    UserService
	notifier *fakeNotifier
	media    *MockMediaStore
	msgs     repository.MessageRepository
}

func newChatFixture(t *testing.T, online ...string) *chatFixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &chatFixture{
		db:       db,
		notifier: newFakeNotifier(online...),
		media:    &MockMediaStore{},
		msgs:     repository.NewMessageRepository(db),
	}
	userRepo := repository.NewUserRepository(db)
	for _, u := range []*domain.User{{ID: "alice", UserName: "Alice"}, {ID: "bob", UserName: "Bob"}} {
		require.NoError(t, userRepo.Upsert(context.Background(), u))
	}
	f.users = NewUserService(userRepo, f.notifier, nil)
	f.svc = NewChatService(repository.NewConversationRepository(db), f.msgs, f.users, f.notifier, f.media)
	return f
}

func (f *chatFixture) sendText(t *testing.T, from, to, text string) *domain.Message {
	t.Helper()
	msg, err := f.svc.SendMessage(context.Background(), from, &SendMessageInput{ReceiverID: to, Content: text})
	require.NoError(t, err)
	return msg
}

func TestSendMessageOnlineReceiver(t *testing.T) {
	f := newChatFixture(t, "bob")

	msg := f.sendText(t, "alice", "bob", "hi")

	assert.Equal(t, domain.StatusDelivered, msg.Status)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "Alice", msg.Sender.UserName)

	forwards := f.notifier.to("bob", domain.EventMessageForward)
	require.Len(t, forwards, 1)
	assert.Equal(t, msg.ID, forwards[0].payload.(*domain.Message).ID)

	stored, err := f.msgs.FindByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, stored.Status)
}

func TestSendMessageOfflineReceiverThenFetch(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	msg := f.sendText(t, "alice", "bob", "hi")
	assert.Equal(t, domain.StatusSent, msg.Status)
	assert.Empty(t, f.notifier.pushes)

	history, err := f.svc.GetMessages(ctx, "bob", msg.ConversationID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.StatusRead, history[0].Status)

	stored, err := f.msgs.FindByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRead, stored.Status)

	convs, err := f.svc.ListConversations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 0, convs[0].UnreadCount)

	// fetching again is a no-op
	_, err = f.svc.GetMessages(ctx, "bob", msg.ConversationID)
	require.NoError(t, err)
}

func TestGetMessagesAccessRules(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	msg := f.sendText(t, "alice", "bob", "private")

	_, err := f.svc.GetMessages(ctx, "mallory", msg.ConversationID)
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = f.svc.GetMessages(ctx, "alice", "missing")
	assert.ErrorIs(t, err, common.ErrConversationNotFound)
}

func TestGetMessagesNotifiesSenderOfReads(t *testing.T) {
	f := newChatFixture(t, "alice")
	msg := f.sendText(t, "alice", "bob", "ping")

	_, err := f.svc.GetMessages(context.Background(), "bob", msg.ConversationID)
	require.NoError(t, err)

	updates := f.notifier.to("alice", domain.EventStatusUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, []string{msg.ID}, updates[0].payload.(domain.StatusUpdatePayload).MessageIDs)
}

func TestListConversationsPopulated(t *testing.T) {
	f := newChatFixture(t, "bob")
	ctx := context.Background()
	f.sendText(t, "alice", "bob", "first")
	last := f.sendText(t, "bob", "alice", "second")
	f.sendText(t, "alice", "carol", "other thread")

	convs, err := f.svc.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, convs, 2)

	// carol thread was updated last
	assert.Equal(t, "carol", convs[0].Participants[1].ID)

	withBob := convs[1]
	require.NotNil(t, withBob.LastMessage)
	assert.Equal(t, last.ID, withBob.LastMessage.ID)
	require.Len(t, withBob.Participants, 2)
	assert.Equal(t, "Alice", withBob.Participants[0].UserName)
	assert.True(t, withBob.Participants[1].IsOnline)
}

func TestSendMessageValidation(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		in      *SendMessageInput
		wantErr error
	}{
		{"no receiver", &SendMessageInput{Content: "hi"}, common.ErrInvalidInput},
		{"self", &SendMessageInput{ReceiverID: "alice", Content: "hi"}, common.ErrInvalidInput},
		{"empty", &SendMessageInput{ReceiverID: "bob", Content: "  "}, common.ErrEmptyMessage},
		{"bad media", &SendMessageInput{ReceiverID: "bob", Media: &domain.MediaFile{Name: "a.pdf", ContentType: "application/pdf"}}, common.ErrUnsupportedMedia},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SendMessage(ctx, "alice", tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	f.media.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageWithMedia(t *testing.T) {
	f := newChatFixture(t)
	body := strings.NewReader("png-bytes")
	f.media.On("Store", mock.Anything, "messages", "cat.png", "image/png", body, int64(9)).
		Return("https://cdn.example.com/chat/messages/cat.png", nil).Once()

	msg, err := f.svc.SendMessage(context.Background(), "alice", &SendMessageInput{
		ReceiverID: "bob",
		Content:    "look",
		Media:      &domain.MediaFile{Body: body, Name: "cat.png", ContentType: "image/png", Size: 9},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ContentImage, msg.ContentType)
	require.NotNil(t, msg.MediaURL)
	assert.Equal(t, "https://cdn.example.com/chat/messages/cat.png", *msg.MediaURL)
	require.NotNil(t, msg.Content)
	assert.Equal(t, "look", *msg.Content)
	f.media.AssertExpectations(t)
}

func TestSendMessageMediaFailure(t *testing.T) {
	f := newChatFixture(t)
	f.media.On("Store", mock.Anything, "messages", "clip.mp4", "video/mp4", mock.Anything, int64(3)).
		Return("", errors.New("s3 down")).Once()

	_, err := f.svc.SendMessage(context.Background(), "alice", &SendMessageInput{
		ReceiverID: "bob",
		Media:      &domain.MediaFile{Body: strings.NewReader("abc"), Name: "clip.mp4", ContentType: "video/mp4", Size: 3},
	})
	assert.ErrorIs(t, err, common.ErrUpstream)

	// nothing persisted when the upload fails
	var count int64
	require.NoError(t, f.db.Model(&domain.Message{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSendMessageMediaUnavailable(t *testing.T) {
	db := testutil.NewDB(t)
	notifier := newFakeNotifier()
	users := NewUserService(repository.NewUserRepository(db), notifier, nil)
	svc := NewChatService(repository.NewConversationRepository(db), repository.NewMessageRepository(db), users, notifier, nil)

	_, err := svc.SendMessage(context.Background(), "alice", &SendMessageInput{
		ReceiverID: "bob",
		Media:      &domain.MediaFile{Body: strings.NewReader("x"), Name: "x.png", ContentType: "image/png", Size: 1},
	})
	assert.ErrorIs(t, err, common.ErrMediaUnavailable)
}

func TestMarkRead(t *testing.T) {
	f := newChatFixture(t, "alice")
	ctx := context.Background()
	m1 := f.sendText(t, "alice", "bob", "one")
	m2 := f.sendText(t, "bob", "alice", "two")

	_, err := f.svc.MarkRead(ctx, "bob", nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	updated, err := f.svc.MarkRead(ctx, "bob", []string{m1.ID, m2.ID, m1.ID})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, m1.ID, updated[0].ID)

	updates := f.notifier.to("alice", domain.EventStatusUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, domain.StatusUpdatePayload{MessageIDs: []string{m1.ID}, Status: domain.StatusRead}, updates[0].payload)
}

func TestDeleteMessage(t *testing.T) {
	f := newChatFixture(t, "bob")
	ctx := context.Background()
	msg := f.sendText(t, "alice", "bob", "regret")

	assert.ErrorIs(t, f.svc.DeleteMessage(ctx, "bob", msg.ID), common.ErrUnauthorized)
	require.NoError(t, f.svc.DeleteMessage(ctx, "alice", msg.ID))
	assert.ErrorIs(t, f.svc.DeleteMessage(ctx, "alice", msg.ID), common.ErrMessageNotFound)

	deleted := f.notifier.to("bob", domain.EventMessageDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, msg.ID, deleted[0].payload.(domain.MessageDeletedPayload).MessageID)

	history, err := f.svc.GetMessages(ctx, "bob", msg.ConversationID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

// appendAfterList stores one more incoming message right after the history is read
type appendAfterList struct {
	repository.MessageRepository
	late *domain.Message
	once sync.Once
}

func (r *appendAfterList) ListByConversation(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	msgs, err := r.MessageRepository.ListByConversation(ctx, conversationID)
	r.once.Do(func() {
		if err == nil && r.late != nil {
			r.late.ConversationID = conversationID
			err = r.MessageRepository.Append(ctx, r.late)
		}
	})
	return msgs, err
}

func TestGetMessagesLeavesLateArrivalsUnread(t *testing.T) {
	f := newChatFixture(t, "alice")
	ctx := context.Background()
	first := f.sendText(t, "alice", "bob", "first")

	late := &domain.Message{SenderID: "alice", ReceiverID: "bob", Content: testutil.StrPtr("late")}
	racing := &appendAfterList{MessageRepository: f.msgs, late: late}
	svc := NewChatService(repository.NewConversationRepository(f.db), racing, f.users, f.notifier, nil)

	history, err := svc.GetMessages(ctx, "bob", first.ConversationID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.StatusRead, history[0].Status)

	stored, err := f.msgs.FindByID(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, stored.Status, "a message the caller never saw stays unread")

	updates := f.notifier.to("alice", domain.EventStatusUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, []string{first.ID}, updates[0].payload.(domain.StatusUpdatePayload).MessageIDs)

	convs, err := f.svc.ListConversations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 1, convs[0].UnreadCount)
}
