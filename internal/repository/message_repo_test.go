package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatFixture struct {
	convs ConversationRepository
	msgs  MessageRepository
	conv  *domain.Conversation
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	db := setupTestDB(t)
	f := &chatFixture{
		convs: NewConversationRepository(db),
		msgs:  NewMessageRepository(db),
	}
	f.conv = mustConversation(t, f.convs, "alice", "bob")
	return f
}

func (f *chatFixture) send(t *testing.T, from, to, text string) *domain.Message {
	t.Helper()
	msg := textMessage(f.conv, from, to, text)
	require.NoError(t, f.msgs.Append(context.Background(), msg))
	return msg
}

func TestAppendValidatesPayload(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		msg      *domain.Message
		wantErr  error
		wantKind domain.ContentType
	}{
		{
			name:     "text only",
			msg:      &domain.Message{Content: strPtr("hi")},
			wantKind: domain.ContentText,
		},
		{
			name:    "blank text",
			msg:     &domain.Message{Content: strPtr("   ")},
			wantErr: common.ErrEmptyMessage,
		},
		{
			name:    "nothing",
			msg:     &domain.Message{},
			wantErr: common.ErrEmptyMessage,
		},
		{
			name:     "image with caption",
			msg:      &domain.Message{MediaURL: strPtr("https://cdn/x.png"), ContentType: domain.ContentImage, Content: strPtr("look")},
			wantKind: domain.ContentImage,
		},
		{
			name:    "media without kind",
			msg:     &domain.Message{MediaURL: strPtr("https://cdn/x.bin")},
			wantErr: common.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.msg.ConversationID = f.conv.ID
			tt.msg.SenderID = "alice"
			tt.msg.ReceiverID = "bob"
			err := f.msgs.Append(ctx, tt.msg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, tt.msg.ContentType)
			assert.Equal(t, domain.StatusSent, tt.msg.Status)
			assert.NotEmpty(t, tt.msg.ID)
		})
	}
}

func TestAppendRejectsOutsiders(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	err := f.msgs.Append(ctx, textMessage(f.conv, "mallory", "bob", "hi"))
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	missing := &domain.Conversation{ID: "missing"}
	err = f.msgs.Append(ctx, textMessage(missing, "alice", "bob", "hi"))
	assert.ErrorIs(t, err, common.ErrConversationNotFound)
}

func TestAppendUpdatesConversationInSameUnit(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	f.send(t, "alice", "bob", "one")
	last := f.send(t, "alice", "bob", "two")

	conv, err := f.convs.FindByID(ctx, f.conv.ID)
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessageID)
	assert.Equal(t, last.ID, *conv.LastMessageID)
	assert.Equal(t, 2, conv.UnreadCount)
}

func TestListByConversationOrdered(t *testing.T) {
	f := newChatFixture(t)

	const n = 12
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			f.send(t, "alice", "bob", fmt.Sprintf("m%d", i))
		} else {
			f.send(t, "bob", "alice", fmt.Sprintf("m%d", i))
		}
	}

	msgs, err := f.msgs.ListByConversation(context.Background(), f.conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, n)
	for i := 1; i < n; i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt), "history must be non-decreasing")
	}
	assert.Equal(t, "m0", *msgs[0].Content)
	assert.NotNil(t, msgs[0].Reactions)
}

func TestMarkConversationRead(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	toBob1 := f.send(t, "alice", "bob", "a")
	toBob2 := f.send(t, "alice", "bob", "b")
	toAlice := f.send(t, "bob", "alice", "c")
	_, err := f.msgs.MarkDelivered(ctx, toBob2.ID)
	require.NoError(t, err)

	late := f.send(t, "alice", "bob", "not listed yet")

	updated, err := f.msgs.MarkConversationRead(ctx, f.conv.ID, "bob", []string{toBob1.ID, toBob2.ID, toAlice.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{toBob1.ID, toBob2.ID}, updated)

	for _, id := range []string{toBob1.ID, toBob2.ID} {
		m, err := f.msgs.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRead, m.Status)
	}
	other, err := f.msgs.FindByID(ctx, toAlice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, other.Status)

	stillUnread, err := f.msgs.FindByID(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, stillUnread.Status)

	conv, err := f.convs.FindByID(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.UnreadCount)

	again, err := f.msgs.MarkConversationRead(ctx, f.conv.ID, "bob", []string{toBob1.ID, late.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{late.ID}, again)

	conv, err = f.convs.FindByID(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadCount)
}

func TestMarkReadByIDsScopedToReceiver(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	toBob := f.send(t, "alice", "bob", "for bob")
	toAlice := f.send(t, "bob", "alice", "for alice")

	updated, err := f.msgs.MarkReadByIDs(ctx, []string{toBob.ID, toAlice.ID, "unknown"}, "bob")
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, toBob.ID, updated[0].ID)
	assert.Equal(t, domain.StatusRead, updated[0].Status)

	untouched, err := f.msgs.FindByID(ctx, toAlice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, untouched.Status)

	empty, err := f.msgs.MarkReadByIDs(ctx, nil, "bob")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMarkDeliveredNeverRegresses(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	msg := f.send(t, "alice", "bob", "hi")

	moved, err := f.msgs.MarkDelivered(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = f.msgs.MarkDelivered(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, moved)

	_, err = f.msgs.MarkReadByIDs(ctx, []string{msg.ID}, "bob")
	require.NoError(t, err)

	moved, err = f.msgs.MarkDelivered(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, moved)

	stored, err := f.msgs.FindByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRead, stored.Status)
}

func TestDeleteMessage(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	first := f.send(t, "alice", "bob", "first")
	second := f.send(t, "alice", "bob", "second")

	_, err := f.msgs.Delete(ctx, second.ID, "bob")
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	deleted, err := f.msgs.Delete(ctx, second.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, second.ID, deleted.ID)

	_, err = f.msgs.Delete(ctx, second.ID, "alice")
	assert.ErrorIs(t, err, common.ErrMessageNotFound)

	history, err := f.msgs.ListByConversation(ctx, f.conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, first.ID, history[0].ID)

	conv, err := f.convs.FindByID(ctx, f.conv.ID)
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessageID)
	assert.Equal(t, first.ID, *conv.LastMessageID)

	_, err = f.msgs.Delete(ctx, first.ID, "alice")
	require.NoError(t, err)
	conv, err = f.convs.FindByID(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Nil(t, conv.LastMessageID)
}

func TestUpsertReactionToggle(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	msg := f.send(t, "alice", "bob", "react to me")

	updated, err := f.msgs.UpsertReaction(ctx, msg.ID, "bob", "👍")
	require.NoError(t, err)
	require.Len(t, updated.Reactions, 1)
	assert.Equal(t, "👍", updated.Reactions[0].Emoji)

	updated, err = f.msgs.UpsertReaction(ctx, msg.ID, "alice", "😂")
	require.NoError(t, err)
	require.Len(t, updated.Reactions, 2)

	// changing emoji replaces in place and keeps one entry per reactor
	updated, err = f.msgs.UpsertReaction(ctx, msg.ID, "bob", "❤️")
	require.NoError(t, err)
	require.Len(t, updated.Reactions, 2)
	assert.Equal(t, "bob", updated.Reactions[0].UserID)
	assert.Equal(t, "❤️", updated.Reactions[0].Emoji)

	// same emoji again removes it
	updated, err = f.msgs.UpsertReaction(ctx, msg.ID, "bob", "❤️")
	require.NoError(t, err)
	require.Len(t, updated.Reactions, 1)
	assert.Equal(t, "alice", updated.Reactions[0].UserID)
}

func TestUpsertReactionErrors(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	msg := f.send(t, "alice", "bob", "hello")

	_, err := f.msgs.UpsertReaction(ctx, "missing", "bob", "👍")
	assert.ErrorIs(t, err, common.ErrMessageNotFound)

	_, err = f.msgs.UpsertReaction(ctx, msg.ID, "mallory", "👍")
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = f.msgs.UpsertReaction(ctx, msg.ID, "bob", " ")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
