package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/repository"
	"github.com/google/uuid"
)

// DefaultStatusTTL is how long a status stays visible
const DefaultStatusTTL = 24 * time.Hour

// CreateStatusInput is a parsed POST /statuses request
type CreateStatusInput struct {
	Media   *domain.MediaFile
	Content string
}

// StatusService ephemeral status posts
type StatusService interface {
	Create(ctx context.Context, userID string, in *CreateStatusInput) (*domain.StatusPost, error)
	ListActive(ctx context.Context) ([]*domain.StatusPost, error)
	View(ctx context.Context, statusID, viewerID string) (*domain.StatusPost, error)
	Delete(ctx context.Context, statusID, userID string) (*domain.StatusPost, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

type statusService struct {
	repo  repository.StatusRepository
	users UserService
	media MediaStore
	now   func() time.Time
	ttl   time.Duration
}

// NewStatusService creates a new StatusService
func NewStatusService(repo repository.StatusRepository, users UserService, media MediaStore, ttl time.Duration) StatusService {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &statusService{
		repo:  repo,
		users: users,
		media: media,
		ttl:   ttl,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create posts a text or media status that expires after the configured TTL
func (s *statusService) Create(ctx context.Context, userID string, in *CreateStatusInput) (*domain.StatusPost, error) {
	now := s.now()
	status := &domain.StatusPost{
		ID:          uuid.NewString(),
		UserID:      userID,
		ContentType: domain.ContentText,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	switch {
	case in.Media != nil:
		kind, err := domain.MediaContentType(in.Media.ContentType)
		if err != nil {
			return nil, err
		}
		if s.media == nil {
			return nil, common.ErrMediaUnavailable
		}
		url, err := s.media.Store(ctx, "statuses", in.Media.Name, in.Media.ContentType, in.Media.Body, in.Media.Size)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrUpstream, err)
		}
		status.Content = url
		status.ContentType = kind
	case strings.TrimSpace(in.Content) != "":
		status.Content = strings.TrimSpace(in.Content)
	default:
		return nil, fmt.Errorf("%w: status content is required", common.ErrInvalidInput)
	}

	if err := s.repo.Create(ctx, status); err != nil {
		return nil, err
	}
	s.populate(ctx, status)
	return status, nil
}

// ListActive returns unexpired statuses, newest first
func (s *statusService) ListActive(ctx context.Context) ([]*domain.StatusPost, error) {
	statuses, err := s.repo.ListActive(ctx, s.now())
	if err != nil {
		return nil, err
	}
	s.populate(ctx, statuses...)
	return statuses, nil
}

// View records viewerID as a viewer and returns the updated status
func (s *statusService) View(ctx context.Context, statusID, viewerID string) (*domain.StatusPost, error) {
	status, err := s.repo.FindByID(ctx, statusID)
	if err != nil {
		return nil, err
	}
	if status.Expired(s.now()) {
		return nil, common.ErrStatusNotFound
	}

	if status.UserID != viewerID {
		if err := s.repo.AddViewer(ctx, statusID, viewerID); err != nil {
			return nil, err
		}
		if status, err = s.repo.FindByID(ctx, statusID); err != nil {
			return nil, err
		}
	}
	s.populate(ctx, status)
	return status, nil
}

// Delete removes the caller's own status
func (s *statusService) Delete(ctx context.Context, statusID, userID string) (*domain.StatusPost, error) {
	status, err := s.repo.Delete(ctx, statusID, userID)
	if err != nil {
		return nil, err
	}
	if status.ContentType != domain.ContentText {
		removeMedia(s.media, status.Content)
	}
	s.populate(ctx, status)
	return status, nil
}

// PurgeExpired removes statuses past their expiry
func (s *statusService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

func (s *statusService) populate(ctx context.Context, statuses ...*domain.StatusPost) {
	var ids []string
	for _, st := range statuses {
		ids = append(ids, st.UserID)
		for _, v := range st.Viewers {
			ids = append(ids, v.UserID)
		}
	}
	summaries := s.users.Summaries(ctx, ids)

	for _, st := range statuses {
		st.User = summaries[st.UserID]
		st.ViewerList = make([]domain.UserSummary, 0, len(st.Viewers))
		for _, v := range st.Viewers {
			if u := summaries[v.UserID]; u != nil {
				st.ViewerList = append(st.ViewerList, *u)
			}
		}
	}
}
