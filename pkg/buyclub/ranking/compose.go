package ranking

import (
	"errors"
	"strings"
	"time"

	"github.com/buyclub/buyclub/pkg/buyclub/models"
)

// ErrInvalidStatusFilter is returned for a status filter other than active, requested or all
var ErrInvalidStatusFilter = errors.New("invalid status filter")

// UserDirectory resolves user summaries for product creators and editors
type UserDirectory interface {
	Summary(userID uint) (models.UserSummary, bool)
}

// UserSummaries is an in-memory UserDirectory
type UserSummaries map[uint]models.UserSummary

// Summary implements UserDirectory
func (s UserSummaries) Summary(userID uint) (models.UserSummary, bool) {
	u, ok := s[userID]
	return u, ok
}

// ProductView is a product as one viewer sees it. Voter identities are
// reduced to counts and the viewer's own vote.
type ProductView struct {
	ID                string               `json:"id"`
	Name              string               `json:"name"`
	Note              string               `json:"note"`
	ImageURL          string               `json:"imageUrl"`
	ProductURL        string               `json:"productUrl"`
	Vendor            string               `json:"vendor"`
	UnitSize          string               `json:"unitSize"`
	UnitName          string               `json:"unitName"`
	CaseSize          float64              `json:"caseSize"`
	Quantity          float64              `json:"quantity"`
	TotalUnits        float64              `json:"totalUnits"`
	CasePrice         float64              `json:"casePrice"`
	UnitPrice         float64              `json:"unitPrice"`
	PurchaseNotes     string               `json:"purchaseNotes"`
	AvailabilityNote  string               `json:"availabilityNote"`
	Status            models.ProductStatus `json:"status"`
	Score             int                  `json:"score"`
	Pinned            bool                 `json:"pinned"`
	IsPreset          bool                 `json:"isPreset"`
	StatusLocked      bool                 `json:"statusLocked"`
	CreatedBy         *models.UserSummary  `json:"createdBy"`
	CreatedByID       uint                 `json:"createdById"`
	IsMine            bool                 `json:"isMine"`
	UpvoteCount       int                  `json:"upvoteCount"`
	DownvoteCount     int                  `json:"downvoteCount"`
	UserVote          *Vote                `json:"userVote"`
	LastActivityAt    time.Time            `json:"lastActivityAt"`
	CreatedAt         time.Time            `json:"createdAt"`
	UpdatedAt         time.Time            `json:"updatedAt"`
	LastUpdatedBy     *models.UserSummary  `json:"lastUpdatedBy"`
	Rank              int                  `json:"rank"`
	IsActiveWithinCap bool                 `json:"isActiveWithinCap"`
}

// Metrics summarises a group's product list
type Metrics struct {
	TotalCount        int      `json:"totalCount"`
	ActiveCount       int      `json:"activeCount"`
	RequestedCount    int      `json:"requestedCount"`
	PinnedCount       int      `json:"pinnedCount"`
	MaxActiveProducts int      `json:"maxActiveProducts"`
	ActiveProductIDs  []string `json:"activeProductIds"`
}

// Listing is the composed reply for a group's product list
type Listing struct {
	Products []ProductView `json:"products"`
	Metrics  Metrics       `json:"metrics"`
}

// Compose serialises g's products in stored order for viewerID.
// users may be nil, in which case creator summaries are omitted.
func Compose(g *models.Group, viewerID uint, users UserDirectory) Listing {
	listing := Listing{
		Products: []ProductView{},
		Metrics:  Metrics{ActiveProductIDs: []string{}},
	}
	if g == nil {
		return listing
	}

	limit := ClampCap(g.MaxActiveProducts)
	for i, p := range g.Products {
		view := serialize(p, viewerID, users)
		view.Rank = i + 1
		view.IsActiveWithinCap = i < limit
		listing.Products = append(listing.Products, view)

		switch p.Status {
		case models.ProductStatusActive:
			listing.Metrics.ActiveCount++
			listing.Metrics.ActiveProductIDs = append(listing.Metrics.ActiveProductIDs, p.ID)
		case models.ProductStatusRequested:
			listing.Metrics.RequestedCount++
		}
		if p.Pinned {
			listing.Metrics.PinnedCount++
		}
	}
	listing.Metrics.TotalCount = len(listing.Products)
	listing.Metrics.MaxActiveProducts = g.MaxActiveProducts
	return listing
}

func serialize(p models.Product, viewerID uint, users UserDirectory) ProductView {
	view := ProductView{
		ID:               p.ID,
		Name:             p.Name,
		Note:             p.Note,
		ImageURL:         p.ImageURL,
		ProductURL:       p.ProductURL,
		Vendor:           p.Vendor,
		UnitSize:         p.UnitSize,
		UnitName:         p.UnitName,
		CaseSize:         ToNonNegativeNumber(p.CaseSize, 0),
		Quantity:         ToNonNegativeNumber(p.Quantity, 0),
		TotalUnits:       ToNonNegativeNumber(p.TotalUnits, 0),
		CasePrice:        ToPrice(p.CasePrice, 0),
		UnitPrice:        ToPrice(p.UnitPrice, 0),
		PurchaseNotes:    p.PurchaseNotes,
		AvailabilityNote: p.AvailabilityNote,
		Status:           p.Status,
		Score:            p.Score,
		Pinned:           p.Pinned,
		IsPreset:         p.IsPreset,
		StatusLocked:     p.StatusLocked,
		CreatedByID:      p.CreatedByID,
		IsMine:           viewerID != 0 && p.CreatedByID == viewerID,
		UpvoteCount:      len(p.Upvoters),
		DownvoteCount:    len(p.Downvoters),
		LastActivityAt:   p.LastActivityAt,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if v := VoteOf(p, viewerID); v != "" {
		view.UserVote = &v
	}
	view.CreatedBy = lookup(users, p.CreatedByID)
	view.LastUpdatedBy = lookup(users, p.LastUpdatedByID)
	return view
}

func lookup(users UserDirectory, id uint) *models.UserSummary {
	if users == nil || id == 0 {
		return nil
	}
	if u, ok := users.Summary(id); ok {
		return &u
	}
	return nil
}

// Find returns the view of the product with id
func (l Listing) Find(id string) (ProductView, bool) {
	for _, p := range l.Products {
		if p.ID == id {
			return p, true
		}
	}
	return ProductView{}, false
}

// Filter narrows a listing for the list endpoint
type Filter struct {
	Status string `json:"status"`
	Mine   bool   `json:"mine"`
	Pinned bool   `json:"pinned"`
}

// ParseStatusFilter normalises a status query value. Empty means all.
func ParseStatusFilter(raw string) (string, error) {
	if raw == "" {
		return "all", nil
	}
	switch s := strings.ToLower(raw); s {
	case "all", string(models.ProductStatusActive), string(models.ProductStatusRequested):
		return s, nil
	default:
		return "", ErrInvalidStatusFilter
	}
}

// Apply returns the products matching f; metrics are left untouched.
func (f Filter) Apply(products []ProductView) []ProductView {
	out := make([]ProductView, 0, len(products))
	for _, p := range products {
		if f.Status != "" && f.Status != "all" && string(p.Status) != f.Status {
			continue
		}
		if f.Mine && !p.IsMine {
			continue
		}
		if f.Pinned && !p.Pinned {
			continue
		}
		out = append(out, p)
	}
	return out
}
