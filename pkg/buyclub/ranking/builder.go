package ranking

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/buyclub/buyclub/pkg/buyclub/models"
)

// ErrNameRequired is returned when a product payload has no usable name
var ErrNameRequired = errors.New("product name is required")

// FieldUpdatePolicy says which product fields a payload may set: either all
// of them or an explicit subset.
type FieldUpdatePolicy struct {
	all    bool
	fields map[string]struct{}
}

// AllFields permits every field
func AllFields() FieldUpdatePolicy {
	return FieldUpdatePolicy{all: true}
}

// FieldSubset permits only the named fields
func FieldSubset(names ...string) FieldUpdatePolicy {
	fields := make(map[string]struct{}, len(names))
	for _, n := range names {
		fields[n] = struct{}{}
	}
	return FieldUpdatePolicy{fields: fields}
}

// Allows reports whether field may be written
func (p FieldUpdatePolicy) Allows(field string) bool {
	if p.all {
		return true
	}
	_, ok := p.fields[field]
	return ok
}

// EditableFields are the fields a group admin may change on an existing product.
// Status and pinned are governed separately by ApplyOptions.AllowStatus.
var EditableFields = FieldSubset(
	"name",
	"note",
	"imageUrl",
	"productUrl",
	"vendor",
	"unitSize",
	"unitName",
	"caseSize",
	"quantity",
	"totalUnits",
	"casePrice",
	"unitPrice",
	"purchaseNotes",
	"availabilityNote",
	"isPreset",
	"statusLocked",
)

// ApplyOptions controls ApplyDetails
type ApplyOptions struct {
	UserID      uint
	Policy      FieldUpdatePolicy
	AllowStatus bool
	AllowScore  bool
	Now         time.Time
}

// ApplyDetails copies the permitted fields present in payload onto p, then
// re-derives computed fields. When anything changed it stamps the activity
// time and the acting user. It reports whether a payload field changed.
func ApplyDetails(p *models.Product, payload Payload, opts ApplyOptions) bool {
	if p == nil || payload == nil {
		return false
	}
	changed := false

	setString := func(field string, dst *string) {
		if !opts.Policy.Allows(field) || !payload.Has(field) {
			return
		}
		if next := TrimString(payload[field], ""); *dst != next {
			*dst = next
			changed = true
		}
	}
	setNumber := func(field string, dst *float64, coerce func(any, float64) float64) {
		if !opts.Policy.Allows(field) || !payload.Has(field) {
			return
		}
		if next := coerce(payload[field], *dst); *dst != next {
			*dst = next
			changed = true
		}
	}
	setBool := func(field string, dst *bool) {
		if !payload.Has(field) {
			return
		}
		if next := toBool(payload[field]); *dst != next {
			*dst = next
			changed = true
		}
	}

	// Name only ever changes to a non-blank string
	if opts.Policy.Allows("name") {
		if raw, ok := payload["name"].(string); ok {
			if next := TrimString(raw, ""); next != "" && next != p.Name {
				p.Name = next
				changed = true
			}
		}
	}

	setString("note", &p.Note)
	setString("imageUrl", &p.ImageURL)
	setString("productUrl", &p.ProductURL)
	setString("vendor", &p.Vendor)
	setString("unitSize", &p.UnitSize)
	setString("unitName", &p.UnitName)
	setNumber("caseSize", &p.CaseSize, ToNonNegativeNumber)
	setNumber("quantity", &p.Quantity, ToNonNegativeNumber)
	setNumber("totalUnits", &p.TotalUnits, ToNonNegativeNumber)
	setNumber("casePrice", &p.CasePrice, ToPrice)
	setNumber("unitPrice", &p.UnitPrice, ToPrice)
	setString("purchaseNotes", &p.PurchaseNotes)
	setString("availabilityNote", &p.AvailabilityNote)
	if opts.Policy.Allows("isPreset") {
		setBool("isPreset", &p.IsPreset)
	}
	if opts.Policy.Allows("statusLocked") {
		setBool("statusLocked", &p.StatusLocked)
	}

	if opts.AllowStatus {
		if raw, ok := payload["status"].(string); ok {
			if status := models.ProductStatus(raw); status.Valid() && p.Status != status {
				p.Status = status
				changed = true
			}
		}
		setBool("pinned", &p.Pinned)
	}

	if opts.AllowScore {
		if score, ok := numericScore(payload["score"]); ok && p.Score != score {
			p.Score = score
			changed = true
		}
	}

	EnsureDerivedFields(p)

	if changed {
		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		p.LastActivityAt = now
		p.UpdatedAt = now
		if opts.UserID != 0 {
			p.LastUpdatedByID = opts.UserID
		}
	}
	return changed
}

// numericScore accepts only real numbers, not numeric strings
func numericScore(v any) (int, bool) {
	switch v.(type) {
	case string, nil, bool:
		return 0, false
	}
	n := ToFiniteNumber(v, math.NaN())
	if math.IsNaN(n) {
		return 0, false
	}
	return int(math.Round(n)), true
}

// BuildOptions carries the contextual defaults for a new product
type BuildOptions struct {
	// Status overrides the default of requested when non-empty
	Status       models.ProductStatus
	IsPreset     bool
	StatusLocked bool
	Pinned       bool
	// Score wins over DefaultScore when set
	Score             *int
	DefaultScore      int
	Upvoters          []uint
	Downvoters        []uint
	AllowScoreUpdates bool
	Now               time.Time
}

// Build constructs a new product from payload on behalf of creatorID.
func Build(payload Payload, creatorID uint, opts BuildOptions) (models.Product, error) {
	name, ok := payload["name"].(string)
	if !ok || TrimString(name, "") == "" {
		return models.Product{}, ErrNameRequired
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	status := models.ProductStatusRequested
	if opts.Status != "" {
		status = opts.Status
	}
	score := opts.DefaultScore
	if opts.Score != nil {
		score = *opts.Score
	}

	p := models.Product{
		ID:              uuid.New().String(),
		Name:            TrimString(name, ""),
		Note:            TrimString(payload["note"], ""),
		ImageURL:        TrimString(payload["imageUrl"], ""),
		ProductURL:      TrimString(payload["productUrl"], ""),
		Quantity:        1,
		IsPreset:        opts.IsPreset || toBool(payload["isPreset"]),
		StatusLocked:    opts.StatusLocked || toBool(payload["statusLocked"]),
		Pinned:          opts.Pinned || toBool(payload["pinned"]),
		Status:          status,
		Score:           score,
		Upvoters:        append([]uint{}, opts.Upvoters...),
		Downvoters:      append([]uint{}, opts.Downvoters...),
		CreatedByID:     creatorID,
		LastUpdatedByID: creatorID,
		LastActivityAt:  now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	ApplyDetails(&p, payload, ApplyOptions{
		UserID:      creatorID,
		Policy:      AllFields(),
		AllowStatus: true,
		AllowScore:  opts.AllowScoreUpdates,
		Now:         now,
	})

	if opts.Status != "" {
		p.Status = opts.Status
	}
	EnsureDerivedFields(&p)

	return p, nil
}
