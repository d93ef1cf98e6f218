package models

import "time"

// GroupMessage is a post on a group's discussion board
type GroupMessage struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	GroupID   uint      `gorm:"not null;index" json:"groupId"`
	AuthorID  uint      `gorm:"not null;index" json:"authorId"`
	Content   string    `gorm:"not null;size:5000" json:"content"`
	Pinned    bool      `json:"pinned"`

	// Relationships
	Author User `gorm:"foreignKey:AuthorID" json:"-"`
}
