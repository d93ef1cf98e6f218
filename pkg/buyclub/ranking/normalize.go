// Package ranking maintains a group's ranked product list: field
// normalization, product construction, voting, rank recalculation under
// the active-product cap, legacy shopping list migration and the
// viewer-specific listing returned by the API.
package ranking

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/buyclub/buyclub/pkg/buyclub/models"
)

// Payload is a decoded JSON object. A key that is absent is "not provided";
// a key holding nil was sent as null.
type Payload map[string]any

// Has reports whether key was provided
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// ToFiniteNumber coerces numbers and numeric strings, returning fallback for
// anything missing, unparsable or non-finite.
func ToFiniteNumber(v any, fallback float64) float64 {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	case int32:
		n = float64(t)
	case uint:
		n = float64(t)
	case uint64:
		n = float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return fallback
		}
		n = f
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return fallback
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fallback
		}
		n = f
	default:
		return fallback
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return fallback
	}
	return n
}

// ToNonNegativeNumber is ToFiniteNumber with negatives mapped to fallback
func ToNonNegativeNumber(v any, fallback float64) float64 {
	n := ToFiniteNumber(v, fallback)
	if n < 0 {
		return fallback
	}
	return n
}

// ToPrice parses a price, rejecting negative and non-finite input, and rounds
// to cents.
func ToPrice(v any, fallback float64) float64 {
	n := ToFiniteNumber(v, math.NaN())
	if math.IsNaN(n) || n < 0 {
		return fallback
	}
	return roundCents(n)
}

func roundCents(n float64) float64 {
	return decimal.NewFromFloat(n).Round(2).InexactFloat64()
}

// ClampInt clamps a numeric input into [min, max] and rounds it.
// Missing or unparsable input yields fallback.
func ClampInt(v any, min, max, fallback int) int {
	n := ToFiniteNumber(v, math.NaN())
	if math.IsNaN(n) {
		return fallback
	}
	n = math.Min(math.Max(n, float64(min)), float64(max))
	return int(math.Round(n))
}

// ParseMaxActiveProducts reads a group's active-product cap, keeping current
// when v is missing or invalid.
func ParseMaxActiveProducts(v any, current int) int {
	return ClampInt(v, 0, models.MaxActiveProductsCap, current)
}

// ClampCap bounds a stored cap to the supported range
func ClampCap(n int) int {
	if n < 0 {
		return 0
	}
	if n > models.MaxActiveProductsCap {
		return models.MaxActiveProductsCap
	}
	return n
}

// TrimString returns fallback for nil and the trimmed text form otherwise
func TrimString(v any, fallback string) string {
	switch t := v.(type) {
	case nil:
		return fallback
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// toBool is truthiness for loosely typed input. "false" and "0" are false.
func toBool(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		s := strings.TrimSpace(t)
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		return s != ""
	default:
		n := ToFiniteNumber(v, 0)
		return n != 0
	}
}

// DeriveTotalUnits returns the explicit total when positive, otherwise
// quantity × caseSize when both are positive, otherwise 0.
func DeriveTotalUnits(totalUnits, quantity, caseSize float64) float64 {
	if provided := ToNonNegativeNumber(totalUnits, 0); provided > 0 {
		return provided
	}
	qty := ToNonNegativeNumber(quantity, 0)
	size := ToNonNegativeNumber(caseSize, 0)
	if qty > 0 && size > 0 {
		return qty * size
	}
	return 0
}

// EnsureDerivedFields recomputes totalUnits and fills a missing unit price
// from the case price. It is idempotent and reports whether p changed.
func EnsureDerivedFields(p *models.Product) bool {
	if p == nil {
		return false
	}
	changed := false

	total := DeriveTotalUnits(p.TotalUnits, p.Quantity, p.CaseSize)
	if total != p.TotalUnits {
		p.TotalUnits = total
		changed = true
	}

	if (math.IsNaN(p.UnitPrice) || p.UnitPrice <= 0) && p.CasePrice > 0 && !math.IsInf(p.CasePrice, 0) {
		unit := 0.0
		if p.TotalUnits > 0 {
			unit = roundCents(p.CasePrice / p.TotalUnits)
		}
		if unit != p.UnitPrice {
			p.UnitPrice = unit
			changed = true
		}
	}
	return changed
}
