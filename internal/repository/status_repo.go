package repository

import (
	"context"
	"errors"
	"time"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatusRepository status post data access interface
type StatusRepository interface {
	Create(ctx context.Context, status *domain.StatusPost) error
	FindByID(ctx context.Context, id string) (*domain.StatusPost, error)
	ListActive(ctx context.Context, now time.Time) ([]*domain.StatusPost, error)
	AddViewer(ctx context.Context, statusID, userID string) error
	Delete(ctx context.Context, id, requesterID string) (*domain.StatusPost, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type statusRepository struct {
	db *gorm.DB
}

// NewStatusRepository creates a new StatusRepository
func NewStatusRepository(db *gorm.DB) StatusRepository {
	return &statusRepository{db: db}
}

// Create stores a status post
func (r *statusRepository) Create(ctx context.Context, status *domain.StatusPost) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(status).Error
}

// FindByID finds a status with its viewers
func (r *statusRepository) FindByID(ctx context.Context, id string) (*domain.StatusPost, error) {
	var status domain.StatusPost
	err := r.db.WithContext(ctx).Preload("Viewers", orderByID).Where("id = ?", id).First(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrStatusNotFound
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// ListActive returns unexpired statuses, newest first
func (r *statusRepository) ListActive(ctx context.Context, now time.Time) ([]*domain.StatusPost, error) {
	var statuses []*domain.StatusPost
	err := r.db.WithContext(ctx).
		Preload("Viewers", orderByID).
		Where("expires_at > ?", now).
		Order("created_at DESC").
		Find(&statuses).Error
	return statuses, err
}

// AddViewer records a view once per user
func (r *statusRepository) AddViewer(ctx context.Context, statusID, userID string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.StatusView{
		StatusID:  statusID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}).Error
}

// Delete removes a status owned by requesterID
func (r *statusRepository) Delete(ctx context.Context, id, requesterID string) (*domain.StatusPost, error) {
	var status domain.StatusPost
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&status).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.ErrStatusNotFound
			}
			return err
		}
		if status.UserID != requesterID {
			return common.ErrUnauthorized
		}
		if err := tx.Where("status_id = ?", id).Delete(&domain.StatusView{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.StatusPost{}).Error
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// DeleteExpired purges statuses whose expiry is at or before now
func (r *statusRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var purged int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired := tx.Model(&domain.StatusPost{}).Select("id").Where("expires_at <= ?", now)
		if err := tx.Where("status_id IN (?)", expired).Delete(&domain.StatusView{}).Error; err != nil {
			return err
		}
		res := tx.Where("expires_at <= ?", now).Delete(&domain.StatusPost{})
		purged = res.RowsAffected
		return res.Error
	})
	return purged, err
}
