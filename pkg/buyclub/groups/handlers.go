package groups

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
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

var weekdays = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

var clockTime = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Handler handles group-related requests
type Handler struct {
	db               *gorm.DB
	groups           *store.Groups
	migrator         *ranking.Migrator
	defaultMaxActive int
	now              func() time.Time
}

// NewHandler creates a new groups handler
func NewHandler(db *gorm.DB) *Handler {
	groups := store.NewGroups(db)
	return &Handler{
		db:               db,
		groups:           groups,
		migrator:         ranking.NewMigrator(store.NewLegacyItems(db), groups),
		defaultMaxActive: models.DefaultMaxActiveProducts,
		now:              time.Now,
	}
}

// WithDefaultMaxActive sets the cap used when a group is created without one
func (h *Handler) WithDefaultMaxActive(n int) *Handler {
	h.defaultMaxActive = ranking.ClampCap(n)
	return h
}

// LocationRequest is a group's location in create and update requests
type LocationRequest struct {
	Street  string `json:"street" binding:"max=200"`
	City    string `json:"city" binding:"required,max=120"`
	State   string `json:"state" binding:"max=80"`
	ZipCode string `json:"zipCode" binding:"required,min=3,max=20"`
}

// ScheduleRequest is a weekly day and HH:MM time
type ScheduleRequest struct {
	Day  string `json:"day"`
	Time string `json:"time"`
}

// CreateGroupRequest represents the request to create a group
type CreateGroupRequest struct {
	Name              string            `json:"name" binding:"required,min=3,max=100"`
	Description       string            `json:"description" binding:"required,min=10,max=5000"`
	Category          string            `json:"category" binding:"required,max=50"`
	Location          LocationRequest   `json:"location"`
	Rules             string            `json:"rules"`
	DeliveryDays      []string          `json:"deliveryDays"`
	IsPrivate         bool              `json:"isPrivate"`
	MaxActiveProducts any               `json:"maxActiveProducts"`
	OrderBySchedule   *ScheduleRequest  `json:"orderBySchedule"`
	DeliverySchedule  *ScheduleRequest  `json:"deliverySchedule"`
	OrderByDay        string            `json:"orderByDay"`
	OrderByTime       string            `json:"orderByTime"`
	DeliveryDay       string            `json:"deliveryDay"`
	DeliveryTime      string            `json:"deliveryTime"`
	StarterProducts   []ranking.Payload `json:"starterProducts"`
}

// UpdateGroupRequest represents the request to update a group.
// Omitted fields are left unchanged.
type UpdateGroupRequest struct {
	Name              *string          `json:"name" binding:"omitempty,min=3,max=100"`
	Description       *string          `json:"description" binding:"omitempty,min=10,max=5000"`
	Category          *string          `json:"category" binding:"omitempty,max=50"`
	Location          *LocationRequest `json:"location"`
	Rules             *string          `json:"rules"`
	DeliveryDays      []string         `json:"deliveryDays"`
	IsPrivate         *bool            `json:"isPrivate"`
	MaxActiveProducts any              `json:"maxActiveProducts"`
	OrderBySchedule   *ScheduleRequest `json:"orderBySchedule"`
	DeliverySchedule  *ScheduleRequest `json:"deliverySchedule"`
}

// GroupResponse represents a group in API responses
type GroupResponse struct {
	ID                uint             `json:"id"`
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	Category          string           `json:"category"`
	Location          models.Location  `json:"location"`
	Rules             string           `json:"rules"`
	DeliveryDays      []string         `json:"deliveryDays"`
	IsPrivate         bool             `json:"isPrivate"`
	OrderBySchedule   *models.Schedule `json:"orderBySchedule,omitempty"`
	DeliverySchedule  *models.Schedule `json:"deliverySchedule,omitempty"`
	MaxActiveProducts int              `json:"maxActiveProducts"`
	CreatedByID       uint             `json:"createdById"`
	CreatedAt         time.Time        `json:"createdAt"`
	MemberCount       int              `json:"memberCount"`
	Role              string           `json:"role,omitempty"` // Viewer's role in this group
	IsMember          bool             `json:"isMember"`
	IsAdmin           bool             `json:"isAdmin"`
}

// GroupDetailResponse is a group with its ranked product list
type GroupDetailResponse struct {
	GroupResponse
	Products       []ranking.ProductView `json:"products"`
	ProductMetrics ranking.Metrics       `json:"productMetrics"`
}

func newGroupResponse(g *models.Group, viewerID uint, memberCount int) GroupResponse {
	resp := GroupResponse{
		ID:                g.ID,
		Name:              g.Name,
		Description:       g.Description,
		Category:          g.Category,
		Location:          g.Location,
		Rules:             g.Rules,
		DeliveryDays:      []string(g.DeliveryDays),
		IsPrivate:         g.IsPrivate,
		MaxActiveProducts: g.MaxActiveProducts,
		CreatedByID:       g.CreatedByID,
		CreatedAt:         g.CreatedAt,
		MemberCount:       memberCount,
		Role:              string(g.RoleOf(viewerID)),
		IsMember:          g.IsMember(viewerID),
		IsAdmin:           g.IsAdmin(viewerID),
	}
	if resp.DeliveryDays == nil {
		resp.DeliveryDays = []string{}
	}
	if !g.OrderBySchedule.IsZero() {
		s := g.OrderBySchedule
		resp.OrderBySchedule = &s
	}
	if !g.DeliverySchedule.IsZero() {
		s := g.DeliverySchedule
		resp.DeliverySchedule = &s
	}
	return resp
}

// normalizeSchedule keeps a day only when it names a weekday and a time
// only when it is a valid HH:MM clock time.
func normalizeSchedule(s *ScheduleRequest) models.Schedule {
	var out models.Schedule
	if s == nil {
		return out
	}
	day := strings.TrimSpace(s.Day)
	for _, d := range weekdays {
		if d == day {
			out.Day = day
			break
		}
	}
	if t := strings.TrimSpace(s.Time); clockTime.MatchString(t) {
		out.Time = t
	}
	return out
}

func scheduleFrom(nested *ScheduleRequest, day, clock string) models.Schedule {
	if nested != nil {
		return normalizeSchedule(nested)
	}
	return normalizeSchedule(&ScheduleRequest{Day: day, Time: clock})
}

func trimDays(days []string) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

func (h *Handler) parseGroupID(c *gin.Context) (uint, bool) {
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return 0, false
	}
	return uint(groupID), true
}

func (h *Handler) loadGroup(c *gin.Context) (*models.Group, bool) {
	groupID, ok := h.parseGroupID(c)
	if !ok {
		return nil, false
	}
	g, err := h.groups.FindGroup(c.Request.Context(), groupID)
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

// detail builds the viewer's view of a loaded group and its products
func (h *Handler) detail(c *gin.Context, g *models.Group, viewerID uint) GroupDetailResponse {
	users, err := h.groups.ProductUsers(c.Request.Context(), g)
	if err != nil {
		slog.Warn("Failed to load product creators", "group_id", g.ID, "error", err)
	}
	listing := ranking.Compose(g, viewerID, users)
	return GroupDetailResponse{
		GroupResponse:  newGroupResponse(g, viewerID, len(g.Members)),
		Products:       listing.Products,
		ProductMetrics: listing.Metrics,
	}
}

// List returns groups, optionally filtered by category and location
// @Summary List groups
// @Description List groups newest first. mine=true limits to the caller's groups.
// @Tags groups
// @Produce json
// @Param category query string false "Exact category"
// @Param city query string false "City substring, case-insensitive"
// @Param state query string false "State substring, case-insensitive"
// @Param zipCode query string false "Exact zip code"
// @Param mine query bool false "Only groups the caller belongs to"
// @Success 200 {array} GroupResponse
// @Security BearerAuth
// @Router /groups [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	query := h.db.WithContext(c.Request.Context()).Model(&models.Group{}).Preload("Members")
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if city := c.Query("city"); city != "" {
		query = query.Where("LOWER(location_city) LIKE ?", "%"+strings.ToLower(city)+"%")
	}
	if state := c.Query("state"); state != "" {
		query = query.Where("LOWER(location_state) LIKE ?", "%"+strings.ToLower(state)+"%")
	}
	if zip := c.Query("zipCode"); zip != "" {
		query = query.Where("location_zip_code = ?", zip)
	}
	if c.Query("mine") == "true" {
		query = query.Where("id IN (?)", h.db.Model(&models.GroupMembership{}).Select("group_id").Where("user_id = ?", userID))
	}

	var found []models.Group
	if err := query.Order("created_at DESC").Find(&found).Error; err != nil {
		slog.Error("Failed to fetch groups", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
		return
	}

	groups := make([]GroupResponse, len(found))
	for i := range found {
		groups[i] = newGroupResponse(&found[i], userID, len(found[i].Members))
	}

	c.JSON(http.StatusOK, groups)
}

// Create creates a new group and adds the creator as admin
// @Summary Create a group
// @Description Create a new group with the current user as admin, optionally seeded with starter products
// @Tags groups
// @Accept json
// @Produce json
// @Param request body CreateGroupRequest true "Group details"
// @Success 201 {object} GroupDetailResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Security BearerAuth
// @Router /groups [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := h.now()
	starters := make([]models.Product, 0, len(req.StarterProducts))
	for _, payload := range req.StarterProducts {
		p, err := ranking.Build(payload, userID, ranking.BuildOptions{Now: now})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Product name is required"})
			return
		}
		starters = append(starters, p)
	}

	group := models.Group{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		Location: models.Location{
			Street:  strings.TrimSpace(req.Location.Street),
			City:    strings.TrimSpace(req.Location.City),
			State:   strings.TrimSpace(req.Location.State),
			ZipCode: strings.TrimSpace(req.Location.ZipCode),
		},
		Rules:             strings.TrimSpace(req.Rules),
		DeliveryDays:      trimDays(req.DeliveryDays),
		IsPrivate:         req.IsPrivate,
		OrderBySchedule:   scheduleFrom(req.OrderBySchedule, req.OrderByDay, req.OrderByTime),
		DeliverySchedule:  scheduleFrom(req.DeliverySchedule, req.DeliveryDay, req.DeliveryTime),
		MaxActiveProducts: ranking.ParseMaxActiveProducts(req.MaxActiveProducts, h.defaultMaxActive),
		CreatedByID:       userID,
		Products:          starters,
	}
	products.Recalculate(&group, now)

	// Create group in a transaction
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		ranked := group.Products
		group.Products = nil
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		group.Products = ranked

		// Add creator as admin
		membership := models.GroupMembership{
			UserID:  userID,
			GroupID: group.ID,
			Role:    models.GroupRoleAdmin,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return err
		}
		group.Members = []models.GroupMembership{membership}
		return store.NewGroups(tx).Commit(c.Request.Context(), &group, len(group.Products) > 0)
	})
	if err != nil {
		slog.Error("Failed to create group", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create group"})
		return
	}

	slog.Info("Group created", "group_id", group.ID, "user_id", userID, "starter_products", len(starters))
	c.JSON(http.StatusCreated, h.detail(c, &group, userID))
}

// Get returns a group with its ranked products
// @Summary Get a group
// @Description Get a group, its ranked products and the caller's role
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} GroupDetailResponse
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	g, ok := h.loadGroup(c)
	if !ok {
		return
	}

	if err := products.Reconcile(c.Request.Context(), h.groups, h.migrator, g, h.now()); err != nil {
		slog.Error("Failed to save re-ranked products", "group_id", g.ID, "error", err)
	}

	c.JSON(http.StatusOK, h.detail(c, g, userID))
}

// Update updates a group (admin only)
// @Summary Update a group
// @Description Update a group (requires admin role in group). A new cap re-ranks the products.
// @Tags groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param request body UpdateGroupRequest true "Updated group details"
// @Success 200 {object} GroupDetailResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Admin access required"
// @Security BearerAuth
// @Router /groups/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	g, ok := h.loadGroup(c)
	if !ok {
		return
	}

	if !g.IsAdmin(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return
	}

	var req UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Update fields if provided
	if req.Name != nil {
		g.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		g.Description = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		g.Category = strings.TrimSpace(*req.Category)
	}
	if req.Location != nil {
		g.Location = models.Location{
			Street:  strings.TrimSpace(req.Location.Street),
			City:    strings.TrimSpace(req.Location.City),
			State:   strings.TrimSpace(req.Location.State),
			ZipCode: strings.TrimSpace(req.Location.ZipCode),
		}
	}
	if req.Rules != nil {
		g.Rules = strings.TrimSpace(*req.Rules)
	}
	if req.DeliveryDays != nil {
		g.DeliveryDays = trimDays(req.DeliveryDays)
	}
	if req.IsPrivate != nil {
		g.IsPrivate = *req.IsPrivate
	}
	if req.OrderBySchedule != nil {
		g.OrderBySchedule = normalizeSchedule(req.OrderBySchedule)
	}
	if req.DeliverySchedule != nil {
		g.DeliverySchedule = normalizeSchedule(req.DeliverySchedule)
	}
	if req.MaxActiveProducts != nil {
		g.MaxActiveProducts = ranking.ParseMaxActiveProducts(req.MaxActiveProducts, g.MaxActiveProducts)
	}

	products.Recalculate(g, h.now())
	if err := h.groups.Commit(c.Request.Context(), g, true); err != nil {
		slog.Error("Failed to update group", "group_id", g.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update group"})
		return
	}

	c.JSON(http.StatusOK, h.detail(c, g, userID))
}

// Delete deletes a group (admin only)
// @Summary Delete a group
// @Description Delete a group (requires admin role in group)
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} map[string]string "Group deleted"
// @Failure 403 {object} map[string]string "Admin access required"
// @Security BearerAuth
// @Router /groups/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := h.parseGroupID(c)
	if !ok {
		return
	}

	// Check admin membership
	if err := h.db.Where("user_id = ? AND group_id = ? AND role = ?", userID, groupID, models.GroupRoleAdmin).First(&models.GroupMembership{}).Error; err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", groupID).Delete(&models.Product{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Group{}, groupID).Error
	})
	if err != nil {
		slog.Error("Failed to delete group", "group_id", groupID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete group"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Group deleted"})
}

// Join adds the caller to a group as a member
// @Summary Join a group
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} GroupResponse
// @Failure 400 {object} map[string]string "Already a member"
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{id}/join [post]
func (h *Handler) Join(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	g, ok := h.loadGroup(c)
	if !ok {
		return
	}

	if g.IsMember(userID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You are already a member of this group"})
		return
	}

	membership := models.GroupMembership{UserID: userID, GroupID: g.ID, Role: models.GroupRoleMember}
	if err := h.db.WithContext(c.Request.Context()).Create(&membership).Error; err != nil {
		slog.Error("Failed to join group", "group_id", g.ID, "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join group"})
		return
	}
	g.Members = append(g.Members, membership)

	c.JSON(http.StatusOK, newGroupResponse(g, userID, len(g.Members)))
}

// Leave removes the caller from a group
// @Summary Leave a group
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} map[string]string "Left group"
// @Failure 400 {object} map[string]string "Not a member or last admin"
// @Security BearerAuth
// @Router /groups/{id}/leave [post]
func (h *Handler) Leave(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	g, ok := h.loadGroup(c)
	if !ok {
		return
	}

	if !g.IsMember(userID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You are not a member of this group"})
		return
	}
	if g.IsAdmin(userID) && g.AdminCount() <= 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot leave as the last admin"})
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Unscoped().
		Where("user_id = ? AND group_id = ?", userID, g.ID).Delete(&models.GroupMembership{}).Error; err != nil {
		slog.Error("Failed to leave group", "group_id", g.ID, "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to leave group"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Left group"})
}

// RegisterRoutes registers group routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/join", h.Join)
	rg.POST("/:id/leave", h.Leave)
}
