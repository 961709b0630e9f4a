package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// unreadStatuses are the statuses a read transition may start from
var unreadStatuses = []domain.MessageStatus{domain.StatusSent, domain.StatusDelivered}

// MessageRepository message data access interface
type MessageRepository interface {
	Append(ctx context.Context, msg *domain.Message) error
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	FindByIDs(ctx context.Context, ids []string) ([]*domain.Message, error)
	ListByConversation(ctx context.Context, conversationID string) ([]*domain.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, receiverID string, ids []string) ([]string, error)
	MarkReadByIDs(ctx context.Context, ids []string, receiverID string) ([]*domain.Message, error)
	MarkDelivered(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id, requesterID string) (*domain.Message, error)
	UpsertReaction(ctx context.Context, messageID, reactorID, emoji string) (*domain.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Append validates and stores a message, then moves the conversation's
// last-message pointer and unread counter in the same transaction.
func (r *messageRepository) Append(ctx context.Context, msg *domain.Message) error {
	if err := msg.ValidatePayload(); err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if !msg.Status.Valid() {
		msg.Status = domain.StatusSent
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv domain.Conversation
		if err := tx.Where("id = ?", msg.ConversationID).First(&conv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.ErrConversationNotFound
			}
			return err
		}
		if msg.SenderID == msg.ReceiverID || !conv.HasParticipant(msg.SenderID) || !conv.HasParticipant(msg.ReceiverID) {
			return fmt.Errorf("%w: sender and receiver must be the conversation participants", common.ErrInvalidInput)
		}

		if err := tx.Omit(clause.Associations).Create(msg).Error; err != nil {
			return err
		}

		return tx.Model(&domain.Conversation{}).
			Where("id = ?", conv.ID).
			UpdateColumns(map[string]interface{}{
				"last_message_id": msg.ID,
				"unread_count":    gorm.Expr("unread_count + 1"),
				"updated_at":      msg.CreatedAt,
			}).Error
	})
	if err != nil {
		return err
	}

	if msg.Reactions == nil {
		msg.Reactions = []domain.Reaction{}
	}
	return nil
}

// FindByID finds a message by ID with its reactions
func (r *messageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	return findMessage(r.db.WithContext(ctx), id)
}

func findMessage(db *gorm.DB, id string) (*domain.Message, error) {
	var msg domain.Message
	err := db.Preload("Reactions", orderByID).Where("id = ?", id).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	normalizeReactions(&msg)
	return &msg, nil
}

// FindByIDs finds messages by IDs; unknown ids are skipped
func (r *messageRepository) FindByIDs(ctx context.Context, ids []string) ([]*domain.Message, error) {
	if len(ids) == 0 {
		return []*domain.Message{}, nil
	}
	var msgs []*domain.Message
	err := r.db.WithContext(ctx).
		Preload("Reactions", orderByID).
		Where("id IN ?", ids).
		Order("created_at ASC").
		Find(&msgs).Error
	for _, m := range msgs {
		normalizeReactions(m)
	}
	return msgs, err
}

// ListByConversation returns the whole history ordered by creation time
func (r *messageRepository) ListByConversation(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	var msgs []*domain.Message
	err := r.db.WithContext(ctx).
		Preload("Reactions", orderByID).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		normalizeReactions(m)
	}
	return msgs, nil
}

// MarkConversationRead moves the listed unread messages addressed to receiverID to read and
// returns the ids it changed. The unread counter becomes the receiver's remaining unread count.
func (r *messageRepository) MarkConversationRead(ctx context.Context, conversationID, receiverID string, ids []string) ([]string, error) {
	updated := []string{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(ids) > 0 {
			if err := tx.Model(&domain.Message{}).
				Where("conversation_id = ? AND receiver_id = ? AND id IN ? AND status IN ?", conversationID, receiverID, ids, unreadStatuses).
				Order("created_at ASC").
				Pluck("id", &updated).Error; err != nil {
				return err
			}
		}
		if len(updated) > 0 {
			if err := tx.Model(&domain.Message{}).
				Where("id IN ?", updated).
				Update("status", domain.StatusRead).Error; err != nil {
				return err
			}
		}

		var remaining int64
		if err := tx.Model(&domain.Message{}).
			Where("conversation_id = ? AND receiver_id = ? AND status IN ?", conversationID, receiverID, unreadStatuses).
			Count(&remaining).Error; err != nil {
			return err
		}
		// UpdateColumn keeps updated_at untouched so reading does not reorder the conversation list
		return tx.Model(&domain.Conversation{}).
			Where("id = ?", conversationID).
			UpdateColumn("unread_count", remaining).Error
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkReadByIDs marks the given messages read when addressed to receiverID and returns them
func (r *messageRepository) MarkReadByIDs(ctx context.Context, ids []string, receiverID string) ([]*domain.Message, error) {
	if len(ids) == 0 {
		return []*domain.Message{}, nil
	}

	var msgs []*domain.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id IN ? AND receiver_id = ?", ids, receiverID).
			Order("created_at ASC").
			Find(&msgs).Error; err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}

		owned := make([]string, len(msgs))
		for i, m := range msgs {
			owned[i] = m.ID
		}
		return tx.Model(&domain.Message{}).
			Where("id IN ? AND status IN ?", owned, unreadStatuses).
			Update("status", domain.StatusRead).Error
	})
	if err != nil {
		return nil, err
	}

	for _, m := range msgs {
		m.Status = domain.StatusRead
		normalizeReactions(m)
	}
	return msgs, nil
}

// MarkDelivered advances a message from sent to delivered; reports whether it moved
func (r *messageRepository) MarkDelivered(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ? AND status = ?", id, domain.StatusSent).
		Update("status", domain.StatusDelivered)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Delete removes a message owned by requesterID and repoints the conversation preview
func (r *messageRepository) Delete(ctx context.Context, id, requesterID string) (*domain.Message, error) {
	var deleted domain.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&deleted).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.ErrMessageNotFound
			}
			return err
		}
		if deleted.SenderID != requesterID {
			return common.ErrUnauthorized
		}

		if err := tx.Where("message_id = ?", id).Delete(&domain.Reaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", id).Delete(&domain.Message{}).Error; err != nil {
			return err
		}

		var latest domain.Message
		var lastID interface{}
		err := tx.Where("conversation_id = ?", deleted.ConversationID).
			Order("created_at DESC").
			First(&latest).Error
		switch {
		case err == nil:
			lastID = latest.ID
		case errors.Is(err, gorm.ErrRecordNotFound):
			lastID = nil
		default:
			return err
		}

		return tx.Model(&domain.Conversation{}).
			Where("id = ? AND last_message_id = ?", deleted.ConversationID, id).
			UpdateColumn("last_message_id", lastID).Error
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}

// UpsertReaction toggles reactorID's emoji on a message: add, replace in place, or remove when repeated
func (r *messageRepository) UpsertReaction(ctx context.Context, messageID, reactorID, emoji string) (*domain.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || reactorID == "" {
		return nil, fmt.Errorf("%w: reaction needs reactor and emoji", common.ErrInvalidInput)
	}

	var result *domain.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg domain.Message
		if err := tx.Where("id = ?", messageID).First(&msg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.ErrMessageNotFound
			}
			return err
		}
		if reactorID != msg.SenderID && reactorID != msg.ReceiverID {
			return common.ErrForbidden
		}

		var existing domain.Reaction
		err := tx.Where("message_id = ? AND user_id = ?", messageID, reactorID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&domain.Reaction{
				MessageID: messageID,
				UserID:    reactorID,
				Emoji:     emoji,
				CreatedAt: time.Now().UTC(),
			}).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		case existing.Emoji == emoji:
			if err := tx.Delete(&domain.Reaction{}, existing.ID).Error; err != nil {
				return err
			}
		default:
			if err := tx.Model(&domain.Reaction{}).
				Where("id = ?", existing.ID).
				Update("emoji", emoji).Error; err != nil {
				return err
			}
		}

		reloaded, err := findMessage(tx, messageID)
		if err != nil {
			return err
		}
		result = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func orderByID(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

func normalizeReactions(m *domain.Message) {
	if m.Reactions == nil {
		m.Reactions = []domain.Reaction{}
	}
}
