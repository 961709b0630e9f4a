package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/repository"
	"github.com/damoang/angple-chat/pkg/cache"
	pkglogger "github.com/damoang/angple-chat/pkg/logger"
)

// PresenceReader is the read side of the presence tracker
type PresenceReader interface {
	IsOnline(principalID string) bool
	QueryStatus(ctx context.Context, principalID string) (domain.PresenceStatus, error)
}

// UserService profiles, presence lookups and the display-field populate step
type UserService interface {
	GetStatus(ctx context.Context, userID string) (domain.PresenceStatus, error)
	UpdateProfile(ctx context.Context, userID string, req *domain.UpdateProfileRequest) (*domain.User, error)
	Summaries(ctx context.Context, ids []string) map[string]*domain.UserSummary
	Participants(ctx context.Context, ids []string) (map[string]domain.Participant, error)
	PopulateMessages(ctx context.Context, msgs ...*domain.Message)
}

type userService struct {
	repo     repository.UserRepository
	presence PresenceReader
	cache    cache.Service
}

// NewUserService creates a new UserService. cache may be nil.
func NewUserService(repo repository.UserRepository, presence PresenceReader, c cache.Service) UserService {
	if c == nil {
		c = cache.NewService(nil)
	}
	return &userService{repo: repo, presence: presence, cache: c}
}

// GetStatus returns live presence plus persisted last-seen
func (s *userService) GetStatus(ctx context.Context, userID string) (domain.PresenceStatus, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.PresenceStatus{}, common.ErrInvalidInput
	}
	return s.presence.QueryStatus(ctx, userID)
}

// UpdateProfile creates or updates the caller's profile
func (s *userService) UpdateProfile(ctx context.Context, userID string, req *domain.UpdateProfileRequest) (*domain.User, error) {
	name := strings.TrimSpace(req.UserName)
	if name == "" {
		return nil, common.ErrInvalidInput
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:        userID,
		UserName:  name,
		AvatarURL: strings.TrimSpace(req.AvatarURL),
		About:     strings.TrimSpace(req.About),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Upsert(ctx, user); err != nil {
		return nil, err
	}
	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Str("user_id", userID).Msg("user cache invalidate failed")
	}
	return s.repo.FindByID(ctx, userID)
}

// Summaries resolves display fields for ids, cache first. Unknown ids get an id-only summary.
func (s *userService) Summaries(ctx context.Context, ids []string) map[string]*domain.UserSummary {
	ids = uniqueIDs(ids)
	out := make(map[string]*domain.UserSummary, len(ids))
	if len(ids) == 0 {
		return out
	}

	missing, err := s.cache.GetUsers(ctx, ids, func(id string, raw []byte) {
		var summary domain.UserSummary
		if json.Unmarshal(raw, &summary) == nil {
			out[id] = &summary
		}
	})
	if err != nil {
		pkglogger.GetLogger().Warn().Err(err).Msg("user cache read failed")
		missing = ids
	}

	if len(missing) > 0 {
		users, err := s.repo.FindByIDs(ctx, missing)
		if err != nil {
			pkglogger.GetLogger().Error().Err(err).Msg("load user summaries failed")
		}
		for _, u := range users {
			summary := u.Summary()
			out[u.ID] = summary
			if err := s.cache.SetUser(ctx, u.ID, summary); err != nil {
				pkglogger.GetLogger().Warn().Err(err).Str("user_id", u.ID).Msg("user cache write failed")
			}
		}
	}

	for _, id := range ids {
		if _, ok := out[id]; !ok {
			out[id] = &domain.UserSummary{ID: id}
		}
	}
	return out
}

// Participants resolves display fields plus presence; last-seen always comes from the store
func (s *userService) Participants(ctx context.Context, ids []string) (map[string]domain.Participant, error) {
	ids = uniqueIDs(ids)
	users, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make(map[string]domain.Participant, len(ids))
	for _, u := range users {
		out[u.ID] = domain.Participant{UserSummary: *u.Summary(), LastSeen: u.LastSeen}
	}
	for _, id := range ids {
		p, ok := out[id]
		if !ok {
			p = domain.Participant{UserSummary: domain.UserSummary{ID: id}}
		}
		p.IsOnline = s.presence.IsOnline(id)
		out[id] = p
	}
	return out, nil
}

// PopulateMessages joins sender, receiver and reactor display fields
func (s *userService) PopulateMessages(ctx context.Context, msgs ...*domain.Message) {
	var ids []string
	for _, m := range msgs {
		if m == nil {
			continue
		}
		ids = append(ids, m.SenderID, m.ReceiverID)
		for _, r := range m.Reactions {
			ids = append(ids, r.UserID)
		}
	}
	summaries := s.Summaries(ctx, ids)

	for _, m := range msgs {
		if m == nil {
			continue
		}
		m.Sender = summaries[m.SenderID]
		m.Receiver = summaries[m.ReceiverID]
		if m.Reactions == nil {
			m.Reactions = []domain.Reaction{}
		}
		for i := range m.Reactions {
			m.Reactions[i].User = summaries[m.Reactions[i].UserID]
		}
	}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
