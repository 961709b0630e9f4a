package domain

import "time"

// User is an authenticated principal. IsOnline and LastSeen are written only by the presence tracker.
type User struct {
	CreatedAt   time.Time  `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"column:updated_at" json:"updatedAt"`
	LastSeen    *time.Time `gorm:"column:last_seen" json:"lastSeen,omitempty"`
	Email       *string    `gorm:"column:email;type:varchar(255);uniqueIndex" json:"email,omitempty"`
	PhoneNumber *string    `gorm:"column:phone_number;type:varchar(32);uniqueIndex" json:"phoneNumber,omitempty"`
	ID          string     `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	UserName    string     `gorm:"column:user_name;type:varchar(100)" json:"userName"`
	AvatarURL   string     `gorm:"column:avatar_url;type:varchar(500)" json:"avatarUrl,omitempty"`
	About       string     `gorm:"column:about;type:varchar(500)" json:"about,omitempty"`
	IsOnline    bool       `gorm:"column:is_online;default:false" json:"isOnline"`
}

func (User) TableName() string {
	return "users"
}

// UserSummary display fields joined into messages and conversations
type UserSummary struct {
	ID        string `json:"id"`
	UserName  string `json:"userName"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Summary returns the display projection of the user
func (u *User) Summary() *UserSummary {
	return &UserSummary{ID: u.ID, UserName: u.UserName, AvatarURL: u.AvatarURL}
}

// Participant is a conversation member with presence fields
type Participant struct {
	LastSeen *time.Time `json:"lastSeen,omitempty"`
	UserSummary
	IsOnline bool `json:"isOnline"`
}

// UpdateProfileRequest upserts the caller's profile
type UpdateProfileRequest struct {
	UserName  string `json:"userName" binding:"required,max=100"`
	AvatarURL string `json:"avatarUrl" binding:"omitempty,url,max=500"`
	About     string `json:"about" binding:"max=500"`
}

// PresenceStatus is the answer to a status query
type PresenceStatus struct {
	LastSeen    *time.Time `json:"lastSeen"`
	PrincipalID string     `json:"principalId"`
	Online      bool       `json:"online"`
}
