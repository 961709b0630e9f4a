package repository

import (
	"context"
	"testing"

	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	return testutil.NewDB(t)
}

func strPtr(s string) *string { return testutil.StrPtr(s) }

func textMessage(conv *domain.Conversation, from, to, text string) *domain.Message {
	return &domain.Message{
		ConversationID: conv.ID,
		SenderID:       from,
		ReceiverID:     to,
		Content:        strPtr(text),
	}
}

func mustConversation(t *testing.T, repo ConversationRepository, a, b string) *domain.Conversation {
	t.Helper()
	conv, err := repo.FindOrCreate(context.Background(), a, b)
	require.NoError(t, err)
	return conv
}
