package models

import "time"

// ShoppingListItem is the legacy per-group shopping list record.
// Items are folded into the ranked product list and deleted once consumed.
type ShoppingListItem struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	GroupID     uint      `gorm:"not null;index" json:"groupId"`
	ProductName string    `json:"productName"`
	Vendor      string    `json:"vendor"`
	CasePrice   float64   `json:"casePrice"`
	Quantity    float64   `json:"quantity"`
	TotalUnits  float64   `json:"totalUnits"`
	Notes       string    `json:"notes"`
	CreatedByID uint      `json:"createdById"`
}
