package service

import (
	"context"
	"testing"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/repository"
	"github.com/damoang/angple-chat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateProfileKeepsPresence(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewUserRepository(db)
	svc := NewUserService(repo, newFakeNotifier(), nil)
	ctx := context.Background()

	user, err := svc.UpdateProfile(ctx, "alice", &domain.UpdateProfileRequest{UserName: " Alice ", About: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.UserName)

	require.NoError(t, repo.SetPresence(ctx, "alice", true, user.UpdatedAt))

	user, err = svc.UpdateProfile(ctx, "alice", &domain.UpdateProfileRequest{UserName: "Alice B"})
	require.NoError(t, err)
	assert.Equal(t, "Alice B", user.UserName)
	assert.True(t, user.IsOnline, "profile upsert must not reset presence")

	_, err = svc.UpdateProfile(ctx, "alice", &domain.UpdateProfileRequest{UserName: "   "})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestSummariesFallBackToID(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewUserRepository(db)
	require.NoError(t, repo.Upsert(context.Background(), &domain.User{ID: "alice", UserName: "Alice"}))
	svc := NewUserService(repo, newFakeNotifier(), nil)

	got := svc.Summaries(context.Background(), []string{"alice", "ghost", "alice", ""})
	require.Len(t, got, 2)
	assert.Equal(t, "Alice", got["alice"].UserName)
	assert.Equal(t, &domain.UserSummary{ID: "ghost"}, got["ghost"])
}

func TestPopulateMessagesJoinsReactors(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewUserRepository(db)
	for _, u := range []*domain.User{{ID: "alice", UserName: "Alice"}, {ID: "bob", UserName: "Bob"}} {
		require.NoError(t, repo.Upsert(context.Background(), u))
	}
	svc := NewUserService(repo, newFakeNotifier(), nil)

	msg := &domain.Message{
		SenderID:   "alice",
		ReceiverID: "bob",
		Reactions:  []domain.Reaction{{UserID: "bob", Emoji: "👍"}},
	}
	svc.PopulateMessages(context.Background(), msg, nil)

	assert.Equal(t, "Alice", msg.Sender.UserName)
	assert.Equal(t, "Bob", msg.Receiver.UserName)
	assert.Equal(t, "Bob", msg.Reactions[0].User.UserName)
}

func TestGetStatus(t *testing.T) {
	svc := NewUserService(repository.NewUserRepository(testutil.NewDB(t)), newFakeNotifier("bob"), nil)

	status, err := svc.GetStatus(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, status.Online)

	_, err = svc.GetStatus(context.Background(), " ")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
