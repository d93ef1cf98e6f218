package ranking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/buyclub/buyclub/pkg/buyclub/models"
)

// LegacyItemStore reads and removes legacy shopping list items
type LegacyItemStore interface {
	FindByGroup(ctx context.Context, groupID uint) ([]models.ShoppingListItem, error)
	DeleteByIDs(ctx context.Context, ids []uint) error
}

// GroupCommitter persists a group aggregate. Implementations skip the
// write when dirty is false.
type GroupCommitter interface {
	Commit(ctx context.Context, g *models.Group, dirty bool) error
}

// Migrator folds legacy shopping list items into a group's ranked products
type Migrator struct {
	items  LegacyItemStore
	groups GroupCommitter
	now    func() time.Time
}

// NewMigrator creates a migrator over the given stores
func NewMigrator(items LegacyItemStore, groups GroupCommitter) *Migrator {
	return &Migrator{items: items, groups: groups, now: time.Now}
}

// Migrate converts g's legacy items into locked, preset, active products,
// skipping blank names and names already on the list. Consumed items,
// including those matched to an existing product, are deleted after the
// group is committed. It reports whether any product was added.
func (m *Migrator) Migrate(ctx context.Context, g *models.Group) (bool, error) {
	if m == nil || m.items == nil || g == nil || g.ID == 0 {
		return false, nil
	}

	items, err := m.items.FindByGroup(ctx, g.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load legacy items: %w", err)
	}
	if len(items) == 0 {
		return false, nil
	}

	now := m.now()
	existing := make(map[string]struct{}, len(g.Products))
	for _, p := range g.Products {
		if name := strings.ToLower(strings.TrimSpace(p.Name)); name != "" {
			existing[name] = struct{}{}
		}
	}

	var additions []models.Product
	var consumed []uint
	for _, item := range items {
		name := strings.TrimSpace(item.ProductName)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := existing[key]; dup {
			consumed = append(consumed, item.ID)
			continue
		}

		creator := item.CreatedByID
		if creator == 0 {
			creator = g.CreatedByID
		}
		product, err := Build(Payload{
			"name":          name,
			"vendor":        item.Vendor,
			"casePrice":     item.CasePrice,
			"quantity":      item.Quantity,
			"totalUnits":    item.TotalUnits,
			"purchaseNotes": item.Notes,
		}, creator, BuildOptions{
			Status:       models.ProductStatusActive,
			IsPreset:     true,
			StatusLocked: true,
			DefaultScore: 1,
			Now:          now,
		})
		if err != nil {
			continue
		}
		product.GroupID = g.ID

		additions = append(additions, product)
		consumed = append(consumed, item.ID)
		existing[key] = struct{}{}
	}

	if len(additions) == 0 {
		if len(consumed) > 0 {
			if err := m.items.DeleteByIDs(ctx, consumed); err != nil {
				return false, fmt.Errorf("failed to delete matched legacy items: %w", err)
			}
		}
		return false, nil
	}

	g.Products = append(g.Products, additions...)
	Recalculate(g, now)

	if m.groups != nil {
		if err := m.groups.Commit(ctx, g, true); err != nil {
			return false, fmt.Errorf("failed to save migrated products: %w", err)
		}
	}
	if err := m.items.DeleteByIDs(ctx, consumed); err != nil {
		return true, fmt.Errorf("failed to delete migrated legacy items: %w", err)
	}
	return true, nil
}
