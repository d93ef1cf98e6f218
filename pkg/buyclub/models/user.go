package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// SystemRole represents a user's system-wide role
type SystemRole string

const (
	SystemRoleAdmin SystemRole = "admin"
	SystemRoleUser  SystemRole = "user"
)

// User represents a user in the system
type User struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	Username     string         `gorm:"index" json:"username"`
	FirstName    string         `json:"firstName,omitempty"`
	LastName     string         `json:"lastName,omitempty"`
	PasswordHash string         `json:"-"`
	SystemRole   SystemRole     `gorm:"type:varchar(20);default:'user'" json:"systemRole"`

	// Relationships
	GroupMemberships []GroupMembership `gorm:"foreignKey:UserID" json:"groupMemberships,omitempty"`
}

// UserSummary is the public view of a user attached to products, messages and events
type UserSummary struct {
	ID          uint   `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// DisplayName prefers the username, then the full name, then the email address.
func (u User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	full := strings.TrimSpace(strings.Join([]string{u.FirstName, u.LastName}, " "))
	if full != "" {
		return full
	}
	return u.Email
}

// Summary returns the public summary of the user
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName(),
	}
}
