package groups

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
)

// MemberResponse represents a group member in API responses
type MemberResponse struct {
	ID          uint      `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// AddMemberRequest represents a request to add a member
type AddMemberRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"omitempty,oneof=admin member"`
}

// UpdateMemberRequest represents a request to update a member's role
type UpdateMemberRequest struct {
	Role string `json:"role" binding:"required,oneof=admin member"`
}

func newMemberResponse(m models.GroupMembership) MemberResponse {
	return MemberResponse{
		ID:          m.User.ID,
		Email:       m.User.Email,
		Username:    m.User.Username,
		DisplayName: m.User.DisplayName(),
		Role:        string(m.Role),
		JoinedAt:    m.CreatedAt,
	}
}

func (h *Handler) requireAdmin(c *gin.Context, groupID uint) bool {
	userID, _ := auth.GetUserID(c)
	if err := h.db.Where("user_id = ? AND group_id = ? AND role = ?", userID, groupID, models.GroupRoleAdmin).First(&models.GroupMembership{}).Error; err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return false
	}
	return true
}

func (h *Handler) findUserByEmail(c *gin.Context, email string) (models.User, error) {
	var user models.User
	err := h.db.WithContext(c.Request.Context()).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	return user, err
}

func (h *Handler) isMember(groupID, userID uint) bool {
	return h.db.Where("user_id = ? AND group_id = ?", userID, groupID).First(&models.GroupMembership{}).Error == nil
}

// ListMembers returns all members of a group
func (h *Handler) ListMembers(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := h.parseGroupID(c)
	if !ok {
		return
	}

	// Check membership
	if !h.isMember(groupID, userID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	var memberships []models.GroupMembership
	if err := h.db.Preload("User").Where("group_id = ?", groupID).Order("created_at ASC").Find(&memberships).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch members"})
		return
	}

	members := make([]MemberResponse, len(memberships))
	for i, m := range memberships {
		members[i] = newMemberResponse(m)
	}

	c.JSON(http.StatusOK, members)
}

// AddMember adds a registered user to a group (admin only)
func (h *Handler) AddMember(c *gin.Context) {
	groupID, ok := h.parseGroupID(c)
	if !ok || !h.requireAdmin(c, groupID) {
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	targetUser, err := h.findUserByEmail(c, req.Email)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if h.isMember(groupID, targetUser.ID) {
		c.JSON(http.StatusConflict, gin.H{"error": "User is already a member"})
		return
	}

	role := models.GroupRoleMember
	if req.Role != "" {
		role = models.GroupRole(req.Role)
	}
	membership := models.GroupMembership{UserID: targetUser.ID, GroupID: groupID, Role: role, User: targetUser}
	if err := h.db.Omit("User", "Group").Create(&membership).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add member"})
		return
	}

	c.JSON(http.StatusCreated, newMemberResponse(membership))
}

// Invite adds a registered user by email or acknowledges an invitation
// for an address with no account yet (admin only)
func (h *Handler) Invite(c *gin.Context) {
	groupID, ok := h.parseGroupID(c)
	if !ok || !h.requireAdmin(c, groupID) {
		return
	}

	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A valid email is required"})
		return
	}

	targetUser, err := h.findUserByEmail(c, req.Email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		slog.Info("Invitation recorded for unregistered email", "group_id", groupID)
		c.JSON(http.StatusOK, gin.H{"message": "Invitation sent"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send invitation"})
		return
	}

	if h.isMember(groupID, targetUser.ID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User is already a member of this group"})
		return
	}

	membership := models.GroupMembership{UserID: targetUser.ID, GroupID: groupID, Role: models.GroupRoleMember, User: targetUser}
	if err := h.db.Omit("User", "Group").Create(&membership).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add member"})
		return
	}

	c.JSON(http.StatusCreated, newMemberResponse(membership))
}

// UpdateMember updates a member's role (admin only)
func (h *Handler) UpdateMember(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := h.parseGroupID(c)
	if !ok {
		return
	}
	memberID, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	if !h.requireAdmin(c, groupID) {
		return
	}

	var req UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Find membership
	var membership models.GroupMembership
	if err := h.db.Preload("User").Where("user_id = ? AND group_id = ?", memberID, groupID).First(&membership).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		return
	}

	// Demoting yourself must leave another admin behind
	if userID == uint(memberID) && req.Role != string(models.GroupRoleAdmin) {
		var adminCount int64
		h.db.Model(&models.GroupMembership{}).Where("group_id = ? AND role = ?", groupID, models.GroupRoleAdmin).Count(&adminCount)
		if adminCount <= 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote the last admin"})
			return
		}
	}

	if err := h.db.Model(&membership).Update("role", req.Role).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update member"})
		return
	}
	membership.Role = models.GroupRole(req.Role)

	c.JSON(http.StatusOK, newMemberResponse(membership))
}

// RemoveMember removes a user from a group (admin only)
func (h *Handler) RemoveMember(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := h.parseGroupID(c)
	if !ok {
		return
	}
	memberID, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	if !h.requireAdmin(c, groupID) {
		return
	}

	// Prevent removing self if only admin
	if userID == uint(memberID) {
		var adminCount int64
		h.db.Model(&models.GroupMembership{}).Where("group_id = ? AND role = ?", groupID, models.GroupRoleAdmin).Count(&adminCount)
		if adminCount <= 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot remove the last admin"})
			return
		}
	}

	// Memberships are hard-deleted so the user can rejoin later
	result := h.db.Unscoped().Where("user_id = ? AND group_id = ?", memberID, groupID).Delete(&models.GroupMembership{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove member"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}

// RegisterMemberRoutes registers member management routes
func (h *Handler) RegisterMemberRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/members", h.ListMembers)
	rg.POST("/:id/members", h.AddMember)
	rg.POST("/:id/invite", h.Invite)
	rg.PUT("/:id/members/:userId", h.UpdateMember)
	rg.DELETE("/:id/members/:userId", h.RemoveMember)
}
