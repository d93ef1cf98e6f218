package models

import "time"

// GroupEvent is a dated happening (pickup, meeting) scheduled by a group
type GroupEvent struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	GroupID     uint      `gorm:"not null;index:idx_group_date" json:"groupId"`
	CreatedByID uint      `gorm:"not null;index" json:"createdById"`
	Title       string    `gorm:"not null;size:255" json:"title"`
	Description string    `gorm:"size:5000" json:"description"`
	Location    string    `gorm:"size:500" json:"location"`
	Date        time.Time `gorm:"not null;index:idx_group_date" json:"date"`

	// Relationships
	CreatedBy User `gorm:"foreignKey:CreatedByID" json:"-"`
}
