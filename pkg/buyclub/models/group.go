package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MaxActiveProductsCap bounds the configurable number of active products per group
const MaxActiveProductsCap = 200

// DefaultMaxActiveProducts is used when a group is created without an explicit cap
const DefaultMaxActiveProducts = 20

// Location is where a buying club meets or takes deliveries
type Location struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
}

// Schedule is a weekly day and HH:MM time, either of which may be empty
type Schedule struct {
	Day  string `json:"day,omitempty"`
	Time string `json:"time,omitempty"`
}

// IsZero reports whether neither day nor time is set
func (s Schedule) IsZero() bool {
	return s.Day == "" && s.Time == ""
}

// Group is a community buying club and the aggregate root for its ranked products.
// Memberships and Products are loaded with the group and committed together.
type Group struct {
	ID                uint                        `gorm:"primarykey" json:"id"`
	CreatedAt         time.Time                   `json:"createdAt"`
	UpdatedAt         time.Time                   `json:"updatedAt"`
	DeletedAt         gorm.DeletedAt              `gorm:"index" json:"-"`
	Name              string                      `gorm:"not null" json:"name"`
	Description       string                      `json:"description"`
	Category          string                      `gorm:"index" json:"category"`
	Location          Location                    `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	Rules             string                      `json:"rules"`
	DeliveryDays      datatypes.JSONSlice[string] `json:"deliveryDays"`
	IsPrivate         bool                        `json:"isPrivate"`
	OrderBySchedule   Schedule                    `gorm:"embedded;embeddedPrefix:order_by_" json:"orderBySchedule"`
	DeliverySchedule  Schedule                    `gorm:"embedded;embeddedPrefix:delivery_" json:"deliverySchedule"`
	MaxActiveProducts int                         `gorm:"not null" json:"maxActiveProducts"`
	CreatedByID       uint                        `gorm:"index" json:"createdById"`

	// Relationships
	Members  []GroupMembership `gorm:"foreignKey:GroupID" json:"members,omitempty"`
	Products []Product         `gorm:"foreignKey:GroupID" json:"products,omitempty"`
}

// IsMember reports whether the user holds any membership in the group
func (g *Group) IsMember(userID uint) bool {
	if g == nil || userID == 0 {
		return false
	}
	for _, m := range g.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user is an admin of the group
func (g *Group) IsAdmin(userID uint) bool {
	if g == nil || userID == 0 {
		return false
	}
	for _, m := range g.Members {
		if m.UserID == userID && m.Role == GroupRoleAdmin {
			return true
		}
	}
	return false
}

// RoleOf returns the user's role in the group, or "" for non-members
func (g *Group) RoleOf(userID uint) GroupRole {
	for _, m := range g.Members {
		if m.UserID == userID {
			return m.Role
		}
	}
	return ""
}

// AdminCount returns the number of admins in the group
func (g *Group) AdminCount() int {
	n := 0
	for _, m := range g.Members {
		if m.Role == GroupRoleAdmin {
			n++
		}
	}
	return n
}

// FindProduct returns the index of the product with the given ID, or -1
func (g *Group) FindProduct(productID string) int {
	for i := range g.Products {
		if g.Products[i].ID == productID {
			return i
		}
	}
	return -1
}
