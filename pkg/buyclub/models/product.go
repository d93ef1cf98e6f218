package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProductStatus is the ranking state of a product within its group
type ProductStatus string

const (
	// ProductStatusActive products are within this cycle's order
	ProductStatusActive ProductStatus = "active"
	// ProductStatusRequested products are proposed and waiting for support or capacity
	ProductStatusRequested ProductStatus = "requested"
)

// Valid reports whether s is a known status
func (s ProductStatus) Valid() bool {
	return s == ProductStatusActive || s == ProductStatusRequested
}

// Product is a community-suggested item competing for an active slot in its group.
// Products are owned by their Group and are hard-deleted when removed.
type Product struct {
	ID               string                    `gorm:"primaryKey;size:36" json:"id"`
	GroupID          uint                      `gorm:"not null;index" json:"groupId"`
	Position         int                       `gorm:"not null;default:0" json:"-"`
	Name             string                    `gorm:"not null" json:"name"`
	Note             string                    `json:"note"`
	ImageURL         string                    `json:"imageUrl"`
	ProductURL       string                    `json:"productUrl"`
	Vendor           string                    `json:"vendor"`
	UnitSize         string                    `json:"unitSize"`
	UnitName         string                    `json:"unitName"`
	CaseSize         float64                   `json:"caseSize"`
	Quantity         float64                   `json:"quantity"`
	TotalUnits       float64                   `json:"totalUnits"`
	CasePrice        float64                   `json:"casePrice"`
	UnitPrice        float64                   `json:"unitPrice"`
	PurchaseNotes    string                    `json:"purchaseNotes"`
	AvailabilityNote string                    `json:"availabilityNote"`
	IsPreset         bool                      `json:"isPreset"`
	StatusLocked     bool                      `json:"statusLocked"`
	Pinned           bool                      `json:"pinned"`
	Status           ProductStatus             `gorm:"type:varchar(20);not null" json:"status"`
	Score            int                       `json:"score"`
	Upvoters         datatypes.JSONSlice[uint] `json:"-"`
	Downvoters       datatypes.JSONSlice[uint] `json:"-"`
	CreatedByID      uint                      `gorm:"index" json:"createdById"`
	LastUpdatedByID  uint                      `json:"lastUpdatedById"`
	LastActivityAt   time.Time                 `json:"lastActivityAt"`
	CreatedAt        time.Time                 `json:"createdAt"`
	UpdatedAt        time.Time                 `gorm:"autoUpdateTime:false" json:"updatedAt"`
}
