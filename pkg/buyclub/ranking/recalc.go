package ranking

import (
	"sort"
	"time"

	"github.com/buyclub/buyclub/pkg/buyclub/models"
)

// Recalculate recomputes scores, orders the group's products by pinned,
// score and recent activity, and assigns active status to the first
// min(cap, 200) of them. Status-locked products keep their status.
// The product slice is only replaced when something changed, and the
// return value reports whether it was.
func Recalculate(g *models.Group, now time.Time) bool {
	if g == nil || len(g.Products) == 0 {
		return false
	}
	if now.IsZero() {
		now = time.Now()
	}

	changed := false
	order := make([]*models.Product, len(g.Products))
	for i := range g.Products {
		p := &g.Products[i]

		if score := len(p.Upvoters) - len(p.Downvoters); p.Score != score {
			p.Score = score
			changed = true
		}
		if p.LastActivityAt.IsZero() {
			p.LastActivityAt = firstNonZero(p.UpdatedAt, p.CreatedAt, now)
			changed = true
		}
		if EnsureDerivedFields(p) {
			changed = true
		}
		order[i] = p
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.LastActivityAt.After(b.LastActivityAt)
	})

	limit := ClampCap(g.MaxActiveProducts)
	for i, p := range order {
		if p != &g.Products[i] {
			changed = true
		}
		target := models.ProductStatusRequested
		if i < limit {
			target = models.ProductStatusActive
		}
		if !p.StatusLocked && p.Status != target {
			p.Status = target
			changed = true
		}
	}

	if !changed {
		return false
	}

	sorted := make([]models.Product, len(order))
	for i, p := range order {
		sorted[i] = *p
	}
	g.Products = sorted
	return true
}

func firstNonZero(ts ...time.Time) time.Time {
	for _, t := range ts {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}
