package importexport

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/buyclub/buyclub/pkg/buyclub/auth"
	"github.com/buyclub/buyclub/pkg/buyclub/models"
	"github.com/buyclub/buyclub/pkg/buyclub/products"
	"github.com/buyclub/buyclub/pkg/buyclub/ranking"
	"github.com/buyclub/buyclub/pkg/buyclub/store"
)

// Handler handles import/export of a group's ranked products
type Handler struct {
	groups *store.Groups
	now    func() time.Time
}

// NewHandler creates a new import/export handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{groups: store.NewGroups(db), now: time.Now}
}

// ImportRequest represents an import request. Each product is a payload in
// the same shape the suggest endpoint accepts, plus status, pinned and score.
type ImportRequest struct {
	Products []ranking.Payload `json:"products" binding:"required"`
}

// ImportResult represents the result of an import operation
type ImportResult struct {
	Imported int             `json:"imported"`
	Skipped  int             `json:"skipped"`
	Errors   []string        `json:"errors,omitempty"`
	Metrics  ranking.Metrics `json:"metrics"`
}

// ExportProduct is a product in export format; it can be imported again as is
type ExportProduct struct {
	Name             string               `json:"name"`
	Note             string               `json:"note,omitempty"`
	ImageURL         string               `json:"imageUrl,omitempty"`
	ProductURL       string               `json:"productUrl,omitempty"`
	Vendor           string               `json:"vendor,omitempty"`
	UnitSize         string               `json:"unitSize,omitempty"`
	UnitName         string               `json:"unitName,omitempty"`
	CaseSize         float64              `json:"caseSize"`
	Quantity         float64              `json:"quantity"`
	TotalUnits       float64              `json:"totalUnits"`
	CasePrice        float64              `json:"casePrice"`
	UnitPrice        float64              `json:"unitPrice"`
	PurchaseNotes    string               `json:"purchaseNotes,omitempty"`
	AvailabilityNote string               `json:"availabilityNote,omitempty"`
	Status           models.ProductStatus `json:"status"`
	Pinned           bool                 `json:"pinned"`
	Score            int                  `json:"score"`
	Rank             int                  `json:"rank"`
}

func productToExport(p models.Product, rank int) ExportProduct {
	return ExportProduct{
		Name:             p.Name,
		Note:             p.Note,
		ImageURL:         p.ImageURL,
		ProductURL:       p.ProductURL,
		Vendor:           p.Vendor,
		UnitSize:         p.UnitSize,
		UnitName:         p.UnitName,
		CaseSize:         p.CaseSize,
		Quantity:         p.Quantity,
		TotalUnits:       p.TotalUnits,
		CasePrice:        p.CasePrice,
		UnitPrice:        p.UnitPrice,
		PurchaseNotes:    p.PurchaseNotes,
		AvailabilityNote: p.AvailabilityNote,
		Status:           p.Status,
		Pinned:           p.Pinned,
		Score:            p.Score,
		Rank:             rank,
	}
}

func (h *Handler) loadGroup(c *gin.Context) (*models.Group, bool) {
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return nil, false
	}

	g, err := h.groups.FindGroup(c.Request.Context(), uint(groupID))
	if errors.Is(err, store.ErrGroupNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load group"})
		return nil, false
	}
	return g, true
}

// Import adds products to a group's list (group admin only). Names already
// on the list, or repeated within the batch, are skipped.
func (h *Handler) Import(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	g, ok := h.loadGroup(c)
	if !ok {
		return
	}

	if !g.IsAdmin(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return
	}

	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	seen := make(map[string]bool, len(g.Products)+len(req.Products))
	for _, p := range g.Products {
		seen[strings.ToLower(strings.TrimSpace(p.Name))] = true
	}

	now := h.now()
	result := ImportResult{Errors: []string{}}
	for i, payload := range req.Products {
		p, err := ranking.Build(payload, userID, ranking.BuildOptions{IsPreset: true, Now: now})
		if err != nil {
			result.Errors = append(result.Errors, "product "+strconv.Itoa(i)+": name is required")
			result.Skipped++
			continue
		}

		key := strings.ToLower(p.Name)
		if seen[key] {
			result.Errors = append(result.Errors, "product "+strconv.Itoa(i)+": "+p.Name+" already exists")
			result.Skipped++
			continue
		}
		seen[key] = true

		g.Products = append(g.Products, p)
		result.Imported++
	}

	products.Recalculate(g, now)
	if err := h.groups.Commit(c.Request.Context(), g, result.Imported > 0); err != nil {
		slog.Error("Failed to save imported products", "group_id", g.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to import products"})
		return
	}

	slog.Info("Imported products", "group_id", g.ID, "imported", result.Imported, "skipped", result.Skipped)
	result.Metrics = ranking.Compose(g, userID, nil).Metrics
	c.JSON(http.StatusOK, result)
}

// Export returns a group's products in rank order (members only)
func (h *Handler) Export(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	g, ok := h.loadGroup(c)
	if !ok {
		return
	}

	if !g.IsMember(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only group members can export products"})
		return
	}

	exported := make([]ExportProduct, len(g.Products))
	for i, p := range g.Products {
		exported[i] = productToExport(p, i+1)
	}

	// Set content disposition for download
	if c.Query("download") == "true" {
		c.Header("Content-Disposition", "attachment; filename=buyclub-group-"+strconv.FormatUint(uint64(g.ID), 10)+"-products.json")
	}

	c.JSON(http.StatusOK, exported)
}

// RegisterRoutes registers import/export routes under a groups router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/:id/products/import", h.Import)
	rg.GET("/:id/products/export", h.Export)
}
