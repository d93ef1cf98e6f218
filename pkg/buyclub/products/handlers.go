package products

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/buyclub/buyclub/pkg/buyclub/auth"
	"github.com/buyclub/buyclub/pkg/buyclub/metrics"
	"github.com/buyclub/buyclub/pkg/buyclub/models"
	"github.com/buyclub/buyclub/pkg/buyclub/ranking"
	"github.com/buyclub/buyclub/pkg/buyclub/store"
)

// Field length limits for suggestions
const (
	maxNameLength = 200
	maxNoteLength = 2000
	maxURLLength  = 500
)

// Handler handles a group's ranked product list
type Handler struct {
	groups   *store.Groups
	migrator *ranking.Migrator
	now      func() time.Time
}

// NewHandler creates a new products handler
func NewHandler(db *gorm.DB) *Handler {
	groups := store.NewGroups(db)
	return &Handler{
		groups:   groups,
		migrator: ranking.NewMigrator(store.NewLegacyItems(db), groups),
		now:      time.Now,
	}
}

// ProductResponse is returned by suggest, vote and update
type ProductResponse struct {
	Product ranking.ProductView `json:"product"`
	Metrics ranking.Metrics     `json:"metrics"`
}

// ListResponse is returned by the list endpoint
type ListResponse struct {
	Products []ranking.ProductView `json:"products"`
	Metrics  ranking.Metrics       `json:"metrics"`
	Filters  ranking.Filter        `json:"filters"`
}

// RemoveResponse is returned after a product is deleted
type RemoveResponse struct {
	Metrics  ranking.Metrics       `json:"metrics"`
	Products []ranking.ProductView `json:"products"`
}

// VoteRequest represents a vote on a product
type VoteRequest struct {
	Vote string `json:"vote"`
}

// Reconcile folds legacy shopping list items into g, re-ranks it and
// commits when anything changed. Migration failures are logged and the
// caller continues with the list as loaded.
func Reconcile(ctx context.Context, groups *store.Groups, migrator *ranking.Migrator, g *models.Group, now time.Time) error {
	migrated, err := migrator.Migrate(ctx, g)
	switch {
	case err != nil:
		metrics.LegacyMigrations.WithLabelValues("failed").Inc()
		slog.Warn("Legacy shopping list migration failed", "group_id", g.ID, "error", err)
	case migrated:
		metrics.LegacyMigrations.WithLabelValues("migrated").Inc()
		slog.Info("Migrated legacy shopping list items", "group_id", g.ID)
	}

	changed := Recalculate(g, now)
	return groups.Commit(ctx, g, changed)
}

// Recalculate re-ranks g and records the outcome
func Recalculate(g *models.Group, now time.Time) bool {
	changed := ranking.Recalculate(g, now)
	metrics.ObserveRecalculation(changed)
	return changed
}

// loadGroup parses :id and loads the aggregate, writing the error reply itself
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
		slog.Error("Failed to load group", "group_id", groupID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load group"})
		return nil, false
	}
	return g, true
}

// compose builds the viewer's listing with creator summaries attached
func (h *Handler) compose(ctx context.Context, g *models.Group, viewerID uint) ranking.Listing {
	users, err := h.groups.ProductUsers(ctx, g)
	if err != nil {
		slog.Warn("Failed to load product creators", "group_id", g.ID, "error", err)
		users = nil
	}
	return ranking.Compose(g, viewerID, users)
}

// commit persists g and writes a 500 on failure
func (h *Handler) commit(c *gin.Context, g *models.Group) bool {
	if err := h.groups.Commit(c.Request.Context(), g, true); err != nil {
		slog.Error("Failed to save group products", "group_id", g.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save products"})
		return false
	}
	return true
}

// List returns the group's ranked products
// @Summary List ranked products
// @Description Get a group's ranked products with metrics, optionally filtered
// @Tags products
// @Produce json
// @Param id path int true "Group ID"
// @Param status query string false "active, requested or all"
// @Param mine query bool false "Only products suggested by the caller"
// @Param pinned query bool false "Only pinned products"
// @Success 200 {object} ListResponse
// @Failure 400 {object} map[string]string "Invalid status filter"
// @Failure 403 {object} map[string]string "Not a member"
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{id}/products [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	g, ok := h.loadGroup(c)
	if !ok {
		return
	}

	if !g.IsMember(userID) && !g.IsAdmin(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only group members can view ranked products"})
		return
	}

	status, err := ranking.ParseStatusFilter(c.Query("status"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status filter", "fields": gin.H{"status": "must be active, requested or all"}})
		return
	}
	filter := ranking.Filter{
		Status: status,
		Mine:   c.Query("mine") == "true",
		Pinned: c.Query("pinned") == "true",
	}

	ctx := c.Request.Context()
	if err := Reconcile(ctx, h.groups, h.migrator, g, h.now()); err != nil {
		slog.Error("Failed to save re-ranked products", "group_id", g.ID, "error", err)
	}

	listing := h.compose(ctx, g, userID)
	c.JSON(http.StatusOK, ListResponse{
		Products: filter.Apply(listing.Products),
		Metrics:  listing.Metrics,
		Filters:  filter,
	})
}

// Suggest adds a product to the group's list on behalf of a member
// @Summary Suggest a product
// @Description Propose a product for the group; the suggester's upvote is recorded
// @Tags products
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Success 201 {object} ProductResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Not a member"
// @Failure 409 {object} map[string]string "Duplicate product name"
// @Security BearerAuth
// @Router /groups/{id}/products [post]
func (h *Handler) Suggest(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	g, ok := h.loadGroup(c)
	if !ok {
		return
	}

	if !g.IsMember(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only group members can suggest products"})
		return
	}

	var payload ranking.Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if fields := validateSuggestion(payload); len(fields) > 0 {
		msg := "Validation failed"
		if _, ok := fields["name"]; ok {
			msg = "Product name is required"
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg, "fields": fields})
		return
	}

	name := strings.ToLower(strings.TrimSpace(payload["name"].(string)))
	for _, p := range g.Products {
		if strings.ToLower(strings.TrimSpace(p.Name)) == name {
			c.JSON(http.StatusConflict, gin.H{"error": "A product with this name already exists in the ranked list"})
			return
		}
	}

	now := h.now()
	product, err := ranking.Build(payload, userID, ranking.BuildOptions{
		Status:       models.ProductStatusRequested,
		DefaultScore: 1,
		Upvoters:     []uint{userID},
		Now:          now,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Product name is required", "fields": gin.H{"name": "required"}})
		return
	}
	product.GroupID = g.ID

	g.Products = append(g.Products, product)
	Recalculate(g, now)
	if !h.commit(c, g) {
		return
	}
	metrics.ProductsSuggested.Inc()

	listing := h.compose(c.Request.Context(), g, userID)
	created, _ := listing.Find(product.ID)
	c.JSON(http.StatusCreated, ProductResponse{Product: created, Metrics: listing.Metrics})
}

// Vote records a member's up, down or clear vote
// @Summary Vote on a product
// @Tags products
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param productId path string true "Product ID"
// @Param request body VoteRequest true "up, down or clear"
// @Success 200 {object} ProductResponse
// @Failure 400 {object} map[string]string "Invalid vote value"
// @Failure 403 {object} map[string]string "Not a member"
// @Failure 404 {object} map[string]string "Group or product not found"
// @Security BearerAuth
// @Router /groups/{id}/products/{productId}/vote [post]
func (h *Handler) Vote(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	g, ok := h.loadGroup(c)
	if !ok {
		return
	}

	if !g.IsMember(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only group members can vote"})
		return
	}

	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vote value", "fields": gin.H{"vote": "must be up, down or clear"}})
		return
	}
	vote, err := ranking.ParseVote(req.Vote)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vote value", "fields": gin.H{"vote": "must be up, down or clear"}})
		return
	}

	productID := c.Param("productId")
	idx := g.FindProduct(productID)
	if idx < 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	now := h.now()
	ranking.ApplyVote(&g.Products[idx], userID, vote, now)
	Recalculate(g, now)
	if !h.commit(c, g) {
		return
	}
	metrics.Votes.WithLabelValues(string(vote)).Inc()

	listing := h.compose(c.Request.Context(), g, userID)
	updated, _ := listing.Find(productID)
	c.JSON(http.StatusOK, ProductResponse{Product: updated, Metrics: listing.Metrics})
}

// Update lets a group admin edit a product, including status and pinning
// @Summary Update a product
// @Description Edit product fields, status or pinned flag (group admin only)
// @Tags products
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param productId path string true "Product ID"
// @Success 200 {object} ProductResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Admin access required"
// @Failure 404 {object} map[string]string "Group or product not found"
// @Security BearerAuth
// @Router /groups/{id}/products/{productId} [patch]
func (h *Handler) Update(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	g, ok := h.loadGroup(c)
	if !ok {
		return
	}

	if !g.IsAdmin(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only admins can update product status"})
		return
	}

	productID := c.Param("productId")
	idx := g.FindProduct(productID)
	if idx < 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	var payload ranking.Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if fields := validateUpdate(payload); len(fields) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "fields": fields})
		return
	}

	now := h.now()
	p := &g.Products[idx]
	ranking.ApplyDetails(p, payload, ranking.ApplyOptions{
		UserID:      userID,
		Policy:      ranking.EditableFields,
		AllowStatus: true,
		Now:         now,
	})
	p.LastActivityAt = now
	p.UpdatedAt = now
	p.LastUpdatedByID = userID

	Recalculate(g, now)
	if !h.commit(c, g) {
		return
	}

	listing := h.compose(c.Request.Context(), g, userID)
	updated, _ := listing.Find(productID)
	c.JSON(http.StatusOK, ProductResponse{Product: updated, Metrics: listing.Metrics})
}

// Remove deletes a product from the list (group admin only)
// @Summary Remove a product
// @Tags products
// @Produce json
// @Param id path int true "Group ID"
// @Param productId path string true "Product ID"
// @Success 200 {object} RemoveResponse
// @Failure 403 {object} map[string]string "Admin access required"
// @Failure 404 {object} map[string]string "Group or product not found"
// @Security BearerAuth
// @Router /groups/{id}/products/{productId} [delete]
func (h *Handler) Remove(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	g, ok := h.loadGroup(c)
	if !ok {
		return
	}

	if !g.IsAdmin(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only admins can remove products"})
		return
	}

	idx := g.FindProduct(c.Param("productId"))
	if idx < 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	g.Products = append(g.Products[:idx:idx], g.Products[idx+1:]...)
	Recalculate(g, h.now())
	if !h.commit(c, g) {
		return
	}

	listing := h.compose(c.Request.Context(), g, userID)
	c.JSON(http.StatusOK, RemoveResponse{Metrics: listing.Metrics, Products: listing.Products})
}

func validateSuggestion(payload ranking.Payload) gin.H {
	fields := gin.H{}
	name, ok := payload["name"].(string)
	switch {
	case !ok || strings.TrimSpace(name) == "":
		fields["name"] = "required"
	case len(strings.TrimSpace(name)) > maxNameLength:
		fields["name"] = "must be at most 200 characters"
	}
	checkOptionalString(payload, fields, "note", maxNoteLength)
	checkOptionalString(payload, fields, "imageUrl", maxURLLength)
	checkOptionalString(payload, fields, "productUrl", maxURLLength)
	return fields
}

func validateUpdate(payload ranking.Payload) gin.H {
	fields := gin.H{}
	if raw, ok := payload["status"]; ok {
		s, isString := raw.(string)
		if !isString || !models.ProductStatus(strings.TrimSpace(s)).Valid() {
			fields["status"] = "must be active or requested"
		}
	}
	if raw, ok := payload["pinned"]; ok {
		if _, isBool := raw.(bool); !isBool {
			fields["pinned"] = "must be a boolean"
		}
	}
	if raw, ok := payload["name"]; ok {
		if s, isString := raw.(string); isString && len(strings.TrimSpace(s)) > maxNameLength {
			fields["name"] = "must be at most 200 characters"
		}
	}
	return fields
}

func checkOptionalString(payload ranking.Payload, fields gin.H, key string, max int) {
	raw, ok := payload[key]
	if !ok || raw == nil {
		return
	}
	s, isString := raw.(string)
	if !isString {
		fields[key] = "must be a string"
		return
	}
	if len(strings.TrimSpace(s)) > max {
		fields[key] = "must be at most " + strconv.Itoa(max) + " characters"
	}
}

// RegisterRoutes registers product routes under a groups router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/products", h.List)
	rg.POST("/:id/products", h.Suggest)
	rg.POST("/:id/products/:productId/vote", h.Vote)
	rg.PATCH("/:id/products/:productId", h.Update)
	rg.DELETE("/:id/products/:productId", h.Remove)
}
