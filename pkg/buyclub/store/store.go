// Package store persists group aggregates and the legacy shopping list
// through gorm.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/buyclub/buyclub/pkg/buyclub/models"
	"github.com/buyclub/buyclub/pkg/buyclub/ranking"
)

// ErrGroupNotFound is returned when no live group has the requested ID
var ErrGroupNotFound = errors.New("group not found")

// Groups loads and commits group aggregates: the group row, its
// memberships and its ordered products.
type Groups struct {
	db *gorm.DB
}

// NewGroups creates a group store
func NewGroups(db *gorm.DB) *Groups {
	return &Groups{db: db}
}

// FindGroup loads a group with its members and products in rank order
func (s *Groups) FindGroup(ctx context.Context, id uint) (*models.Group, error) {
	var g models.Group
	err := s.db.WithContext(ctx).
		Preload("Members").
		Preload("Products", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&g, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load group %d: %w", id, err)
	}
	return &g, nil
}

// Commit writes the group row and its product list in one transaction.
// Products are stored in slice order; rows no longer in the slice are
// deleted. Memberships are not touched. Nothing is written unless dirty.
func (s *Groups) Commit(ctx context.Context, g *models.Group, dirty bool) error {
	if !dirty || g == nil {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(g).Error; err != nil {
			return fmt.Errorf("failed to save group: %w", err)
		}

		keep := make([]string, 0, len(g.Products))
		for i := range g.Products {
			p := &g.Products[i]
			p.GroupID = g.ID
			p.Position = i
			if err := tx.Save(p).Error; err != nil {
				return fmt.Errorf("failed to save product %s: %w", p.ID, err)
			}
			keep = append(keep, p.ID)
		}

		stale := tx.Where("group_id = ?", g.ID)
		if len(keep) > 0 {
			stale = stale.Where("id NOT IN ?", keep)
		}
		if err := stale.Delete(&models.Product{}).Error; err != nil {
			return fmt.Errorf("failed to prune products: %w", err)
		}
		return nil
	})
}

// UserSummaries returns public summaries for the given user IDs
func (s *Groups) UserSummaries(ctx context.Context, ids []uint) (ranking.UserSummaries, error) {
	out := ranking.UserSummaries{}
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u.Summary()
	}
	return out, nil
}

// ProductUsers returns summaries for every creator and last editor in g
func (s *Groups) ProductUsers(ctx context.Context, g *models.Group) (ranking.UserSummaries, error) {
	seen := map[uint]struct{}{}
	var ids []uint
	for _, p := range g.Products {
		for _, id := range []uint{p.CreatedByID, p.LastUpdatedByID} {
			if _, ok := seen[id]; id != 0 && !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	return s.UserSummaries(ctx, ids)
}

// LegacyItems is the gorm-backed legacy shopping list store
type LegacyItems struct {
	db *gorm.DB
}

// NewLegacyItems creates a legacy item store
func NewLegacyItems(db *gorm.DB) *LegacyItems {
	return &LegacyItems{db: db}
}

// FindByGroup returns the group's legacy items in insertion order
func (s *LegacyItems) FindByGroup(ctx context.Context, groupID uint) ([]models.ShoppingListItem, error) {
	var items []models.ShoppingListItem
	if err := s.db.WithContext(ctx).Where("group_id = ?", groupID).Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteByIDs removes the given legacy items
func (s *LegacyItems) DeleteByIDs(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.ShoppingListItem{}).Error
}

var (
	_ ranking.GroupCommitter  = (*Groups)(nil)
	_ ranking.LegacyItemStore = (*LegacyItems)(nil)
)
