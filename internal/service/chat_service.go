package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/presence"
	"github.com/damoang/angple-chat/internal/repository"
	pkglogger "github.com/damoang/angple-chat/pkg/logger"
)

// MediaStore is the binary storage collaborator: store(file) -> durable url
type MediaStore interface {
	Store(ctx context.Context, prefix, filename, contentType string, body io.Reader, size int64) (string, error)
}

// mediaRemover is implemented by stores that can delete objects
type mediaRemover interface {
	Remove(ctx context.Context, url string) error
}

// LiveNotifier pushes events to live sessions
type LiveNotifier interface {
	presence.Notifier
	IsOnline(principalID string) bool
}

// SendMessageInput is a parsed POST /messages request
type SendMessageInput struct {
	Media      *domain.MediaFile
	ReceiverID string
	Content    string
}

// ChatService conversation and message use cases for the REST gateway
type ChatService interface {
	ListConversations(ctx context.Context, userID string) ([]*domain.ConversationView, error)
	GetMessages(ctx context.Context, userID, conversationID string) ([]*domain.Message, error)
	SendMessage(ctx context.Context, senderID string, in *SendMessageInput) (*domain.Message, error)
	MarkRead(ctx context.Context, userID string, messageIDs []string) ([]*domain.Message, error)
	DeleteMessage(ctx context.Context, userID, messageID string) error
}

type chatService struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	users    UserService
	notifier LiveNotifier
	media    MediaStore
}

// NewChatService creates a new ChatService. media may be nil when storage is not configured.
func NewChatService(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	users UserService,
	notifier LiveNotifier,
	media MediaStore,
) ChatService {
	return &chatService{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		users:    users,
		notifier: notifier,
		media:    media,
	}
}

// ListConversations returns the caller's conversations, most recently updated first
func (s *chatService) ListConversations(ctx context.Context, userID string) ([]*domain.ConversationView, error) {
	convs, err := s.convRepo.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]*domain.ConversationView, 0, len(convs))
	if len(convs) == 0 {
		return views, nil
	}

	var lastIDs, participantIDs []string
	for _, c := range convs {
		if c.LastMessageID != nil {
			lastIDs = append(lastIDs, *c.LastMessageID)
		}
		participantIDs = append(participantIDs, c.ParticipantA, c.ParticipantB)
	}

	lastMessages, err := s.msgRepo.FindByIDs(ctx, lastIDs)
	if err != nil {
		return nil, err
	}
	s.users.PopulateMessages(ctx, lastMessages...)
	byID := make(map[string]*domain.Message, len(lastMessages))
	for _, m := range lastMessages {
		byID[m.ID] = m
	}

	participants, err := s.users.Participants(ctx, participantIDs)
	if err != nil {
		return nil, err
	}

	for _, c := range convs {
		view := &domain.ConversationView{
			ID:           c.ID,
			UpdatedAt:    c.UpdatedAt,
			UnreadCount:  c.UnreadCount,
			Participants: []domain.Participant{participants[c.ParticipantA], participants[c.ParticipantB]},
		}
		if c.LastMessageID != nil {
			view.LastMessage = byID[*c.LastMessageID]
		}
		views = append(views, view)
	}
	return views, nil
}

// GetMessages returns the history and marks the caller's incoming messages read
func (s *chatService) GetMessages(ctx context.Context, userID, conversationID string) ([]*domain.Message, error) {
	conv, err := s.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, common.ErrForbidden
	}

	msgs, err := s.msgRepo.ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	var incoming []string
	for _, m := range msgs {
		if m.ReceiverID == userID && m.Status != domain.StatusRead {
			incoming = append(incoming, m.ID)
		}
	}
	// only the listed messages are marked read; later arrivals stay unread
	readIDs, err := s.msgRepo.MarkConversationRead(ctx, conv.ID, userID, incoming)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if m.ReceiverID == userID {
			m.Status = domain.StatusRead
		}
	}
	if len(readIDs) > 0 {
		s.notifier.SendTo(conv.Other(userID), domain.EventStatusUpdate, domain.StatusUpdatePayload{
			MessageIDs: readIDs,
			Status:     domain.StatusRead,
		})
	}

	s.users.PopulateMessages(ctx, msgs...)
	return msgs, nil
}

// SendMessage stores media first, appends the message and forwards it when the receiver is live
func (s *chatService) SendMessage(ctx context.Context, senderID string, in *SendMessageInput) (*domain.Message, error) {
	receiverID := strings.TrimSpace(in.ReceiverID)
	if receiverID == "" || receiverID == senderID {
		return nil, fmt.Errorf("%w: receiverId is required and must differ from sender", common.ErrInvalidInput)
	}

	msg := &domain.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     domain.StatusSent,
	}
	if content := strings.TrimSpace(in.Content); content != "" {
		msg.Content = &content
	}

	if in.Media != nil {
		url, kind, err := s.storeMedia(ctx, in.Media)
		if err != nil {
			return nil, err
		}
		msg.MediaURL = &url
		msg.ContentType = kind
	} else if msg.Content == nil {
		return nil, common.ErrEmptyMessage
	}

	conv, err := s.convRepo.FindOrCreate(ctx, senderID, receiverID)
	if err != nil {
		s.discardMedia(msg)
		return nil, err
	}
	msg.ConversationID = conv.ID

	if err := s.msgRepo.Append(ctx, msg); err != nil {
		s.discardMedia(msg)
		return nil, err
	}

	if s.notifier.IsOnline(receiverID) {
		moved, err := s.msgRepo.MarkDelivered(ctx, msg.ID)
		if err != nil {
			pkglogger.GetLogger().Error().Err(err).Str("message_id", msg.ID).Msg("mark delivered failed")
		} else if moved {
			msg.Status = domain.StatusDelivered
		}
		s.users.PopulateMessages(ctx, msg)
		s.notifier.SendTo(receiverID, domain.EventMessageForward, msg)
		return msg, nil
	}

	s.users.PopulateMessages(ctx, msg)
	return msg, nil
}

func (s *chatService) storeMedia(ctx context.Context, file *domain.MediaFile) (string, domain.ContentType, error) {
	kind, err := domain.MediaContentType(file.ContentType)
	if err != nil {
		return "", "", err
	}
	if s.media == nil {
		return "", "", common.ErrMediaUnavailable
	}
	url, err := s.media.Store(ctx, "messages", file.Name, file.ContentType, file.Body, file.Size)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", common.ErrUpstream, err)
	}
	return url, kind, nil
}

func (s *chatService) discardMedia(msg *domain.Message) {
	if msg.HasMedia() {
		removeMedia(s.media, *msg.MediaURL)
	}
}

// removeMedia deletes a stored object when the store supports it; failures only leave an orphan
func removeMedia(store MediaStore, url string) {
	remover, ok := store.(mediaRemover)
	if !ok {
		return
	}
	if err := remover.Remove(context.Background(), url); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Str("url", url).Msg("orphaned media not removed")
	}
}

// MarkRead marks the given messages read for the caller and tells each sender
func (s *chatService) MarkRead(ctx context.Context, userID string, messageIDs []string) ([]*domain.Message, error) {
	ids := uniqueIDs(messageIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: messageIds must not be empty", common.ErrInvalidInput)
	}

	updated, err := s.msgRepo.MarkReadByIDs(ctx, ids, userID)
	if err != nil {
		return nil, err
	}

	bySender := make(map[string][]string)
	for _, m := range updated {
		bySender[m.SenderID] = append(bySender[m.SenderID], m.ID)
	}
	for senderID, ids := range bySender {
		s.notifier.SendTo(senderID, domain.EventStatusUpdate, domain.StatusUpdatePayload{
			MessageIDs: ids,
			Status:     domain.StatusRead,
		})
	}
	return updated, nil
}

// DeleteMessage deletes the caller's own message and tells the other participant
func (s *chatService) DeleteMessage(ctx context.Context, userID, messageID string) error {
	msg, err := s.msgRepo.Delete(ctx, messageID, userID)
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			pkglogger.GetLogger().Warn().Str("user_id", userID).Str("message_id", messageID).Msg("delete by non-sender rejected")
		}
		return err
	}

	s.notifier.SendTo(msg.ReceiverID, domain.EventMessageDeleted, domain.MessageDeletedPayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
	})
	return nil
}
