package domain

import "time"

// StatusPost is an ephemeral 24h status update
type StatusPost struct {
	CreatedAt   time.Time     `gorm:"column:created_at;index" json:"createdAt"`
	ExpiresAt   time.Time     `gorm:"column:expires_at;not null;index" json:"expiresAt"`
	User        *UserSummary  `gorm:"-" json:"user,omitempty"`
	ID          string        `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	UserID      string        `gorm:"column:user_id;type:varchar(36);not null;index" json:"userId"`
	Content     string        `gorm:"column:content;type:text;not null" json:"content"`
	ContentType ContentType   `gorm:"column:content_type;type:varchar(16);not null;default:text" json:"contentType"`
	Viewers     []StatusView  `gorm:"foreignKey:StatusID;constraint:OnDelete:CASCADE" json:"-"`
	ViewerList  []UserSummary `gorm:"-" json:"viewers"`
}

func (StatusPost) TableName() string {
	return "statuses"
}

// Expired reports whether the status is past its expiry at now
func (s *StatusPost) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// StatusView records that a user viewed a status
type StatusView struct {
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	StatusID  string    `gorm:"column:status_id;type:varchar(36);not null;uniqueIndex:idx_status_viewer,priority:1" json:"statusId"`
	UserID    string    `gorm:"column:user_id;type:varchar(36);not null;uniqueIndex:idx_status_viewer,priority:2" json:"userId"`
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
}

func (StatusView) TableName() string {
	return "status_viewers"
}
