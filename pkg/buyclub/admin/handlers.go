package admin

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/buyclub/buyclub/pkg/buyclub/auth"
	"github.com/buyclub/buyclub/pkg/buyclub/models"
)

// Handler handles admin requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID           uint      `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	DisplayName  string    `json:"displayName"`
	SystemRole   string    `json:"systemRole"`
	CreatedAt    time.Time `json:"createdAt"`
	GroupCount   int64     `json:"groupCount"`
	ProductCount int64     `json:"productCount"`
}

// UpdateUserRequest represents the request to update a user
type UpdateUserRequest struct {
	Username   *string `json:"username" binding:"omitempty,min=3,max=50"`
	FirstName  *string `json:"firstName"`
	LastName   *string `json:"lastName"`
	SystemRole *string `json:"systemRole"`
}

// StatsResponse represents system statistics
type StatsResponse struct {
	TotalUsers        int64 `json:"totalUsers"`
	AdminUsers        int64 `json:"adminUsers"`
	TotalGroups       int64 `json:"totalGroups"`
	PrivateGroups     int64 `json:"privateGroups"`
	TotalProducts     int64 `json:"totalProducts"`
	ActiveProducts    int64 `json:"activeProducts"`
	RequestedProducts int64 `json:"requestedProducts"`
	PinnedProducts    int64 `json:"pinnedProducts"`
	TotalUpvotes      int64 `json:"totalUpvotes"`
	TotalDownvotes    int64 `json:"totalDownvotes"`
	TotalMessages     int64 `json:"totalMessages"`
	TotalEvents       int64 `json:"totalEvents"`
	LegacyItems       int64 `json:"legacyItems"`
}

func (h *Handler) userResponse(user models.User) UserResponse {
	var groupCount, productCount int64
	h.db.Model(&models.GroupMembership{}).Where("user_id = ?", user.ID).Count(&groupCount)
	h.db.Model(&models.Product{}).Where("created_by_id = ?", user.ID).Count(&productCount)

	return UserResponse{
		ID:           user.ID,
		Email:        user.Email,
		Username:     user.Username,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		DisplayName:  user.DisplayName(),
		SystemRole:   string(user.SystemRole),
		CreatedAt:    user.CreatedAt,
		GroupCount:   groupCount,
		ProductCount: productCount,
	}
}

// ListUsers returns all users (admin only)
func (h *Handler) ListUsers(c *gin.Context) {
	var users []models.User

	query := h.db.Order("created_at DESC")

	// Optional search by email or username
	if search := c.Query("q"); search != "" {
		query = query.Where("email LIKE ? OR username LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	// Optional filter by role
	if role := c.Query("role"); role != "" {
		query = query.Where("system_role = ?", role)
	}

	if err := query.Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	responses := make([]UserResponse, len(users))
	for i, user := range users {
		responses[i] = h.userResponse(user)
	}

	c.JSON(http.StatusOK, responses)
}

// GetUser returns a single user by ID (admin only)
func (h *Handler) GetUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, h.userResponse(user))
}

// UpdateUser updates a user's profile (admin only)
func (h *Handler) UpdateUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Prevent admin from demoting themselves
	currentUserID, _ := auth.GetUserID(c)
	if uint(id) == currentUserID && req.SystemRole != nil && *req.SystemRole != string(models.SystemRoleAdmin) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote yourself"})
		return
	}

	updates := make(map[string]interface{})
	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		var taken int64
		h.db.Model(&models.User{}).Where("username = ? AND id <> ?", username, user.ID).Count(&taken)
		if taken > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
			return
		}
		updates["username"] = username
	}
	if req.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*req.LastName)
	}
	if req.SystemRole != nil {
		if *req.SystemRole != string(models.SystemRoleAdmin) && *req.SystemRole != string(models.SystemRoleUser) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid system role"})
			return
		}
		updates["system_role"] = *req.SystemRole
	}

	if len(updates) > 0 {
		if err := h.db.Model(&user).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
	}

	// Reload user
	h.db.First(&user, id)

	c.JSON(http.StatusOK, h.userResponse(user))
}

// DeleteUser soft-deletes a user and their memberships (admin only).
// Products, messages and events they created stay with their groups.
func (h *Handler) DeleteUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	// Prevent admin from deleting themselves
	currentUserID, _ := auth.GetUserID(c)
	if uint(id) == currentUserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete yourself"})
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("user_id = ?", user.ID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// GetStats returns system-wide statistics (admin only)
func (h *Handler) GetStats(c *gin.Context) {
	var stats StatsResponse

	h.db.Model(&models.User{}).Count(&stats.TotalUsers)
	h.db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&stats.AdminUsers)
	h.db.Model(&models.Group{}).Count(&stats.TotalGroups)
	h.db.Model(&models.Group{}).Where("is_private = ?", true).Count(&stats.PrivateGroups)

	h.db.Model(&models.Product{}).Count(&stats.TotalProducts)
	h.db.Model(&models.Product{}).Where("status = ?", models.ProductStatusActive).Count(&stats.ActiveProducts)
	h.db.Model(&models.Product{}).Where("status = ?", models.ProductStatusRequested).Count(&stats.RequestedProducts)
	h.db.Model(&models.Product{}).Where("pinned = ?", true).Count(&stats.PinnedProducts)

	// Voter sets are JSON columns; count them in Go
	var voters []models.Product
	h.db.Model(&models.Product{}).Select("upvoters", "downvoters").Find(&voters)
	for _, p := range voters {
		stats.TotalUpvotes += int64(len(p.Upvoters))
		stats.TotalDownvotes += int64(len(p.Downvoters))
	}

	h.db.Model(&models.GroupMessage{}).Count(&stats.TotalMessages)
	h.db.Model(&models.GroupEvent{}).Count(&stats.TotalEvents)
	h.db.Model(&models.ShoppingListItem{}).Count(&stats.LegacyItems)

	c.JSON(http.StatusOK, stats)
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.GET("/users/:id", h.GetUser)
	rg.PUT("/users/:id", h.UpdateUser)
	rg.DELETE("/users/:id", h.DeleteUser)
}
