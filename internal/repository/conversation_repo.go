package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepository conversation data access interface
type ConversationRepository interface {
	FindOrCreate(ctx context.Context, userA, userB string) (*domain.Conversation, error)
	FindByID(ctx context.Context, id string) (*domain.Conversation, error)
	ListByParticipant(ctx context.Context, userID string) ([]*domain.Conversation, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new ConversationRepository
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// FindOrCreate returns the conversation for the unordered pair, creating it on first use.
// Concurrent creators race on the unique pair index; the loser re-reads the winner's row.
func (r *conversationRepository) FindOrCreate(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	a, b := domain.CanonicalPair(userA, userB)
	if a == "" || a == b {
		return nil, fmt.Errorf("%w: conversation needs two distinct participants", common.ErrInvalidInput)
	}

	db := r.db.WithContext(ctx)

	conv, err := r.findPair(db, a, b)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := &domain.Conversation{
		ID:           uuid.NewString(),
		ParticipantA: a,
		ParticipantB: b,
		UnreadCount:  0,
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(created).Error; err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	return r.findPair(db, a, b)
}

func (r *conversationRepository) findPair(db *gorm.DB, a, b string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := db.Where("participant_a = ? AND participant_b = ?", a, b).First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindByID finds a conversation by ID
func (r *conversationRepository) FindByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListByParticipant returns a user's conversations, most recently updated first
func (r *conversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	var convs []*domain.Conversation
	err := r.db.WithContext(ctx).
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("updated_at DESC").
		Find(&convs).Error
	return convs, err
}
