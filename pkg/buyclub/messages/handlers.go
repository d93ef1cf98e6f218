// Package messages serves a group's discussion board.
package messages

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

// Handler handles discussion board requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new messages handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateMessageRequest represents the request to post a message
type CreateMessageRequest struct {
	Content string `json:"content" binding:"required,max=2000"`
}

// PinMessageRequest represents the request to pin or unpin a message
type PinMessageRequest struct {
	Pinned *bool `json:"pinned" binding:"required"`
}

// MessageResponse represents a message in API responses
type MessageResponse struct {
	ID        uint               `json:"id"`
	GroupID   uint               `json:"groupId"`
	Content   string             `json:"content"`
	Pinned    bool               `json:"pinned"`
	Author    models.UserSummary `json:"author"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

func messageToResponse(m models.GroupMessage) MessageResponse {
	author := m.Author.Summary()
	author.ID = m.AuthorID
	return MessageResponse{
		ID:        m.ID,
		GroupID:   m.GroupID,
		Content:   m.Content,
		Pinned:    m.Pinned,
		Author:    author,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// groupRole reports the caller's role in the group, or "" for
// non-members. ok is false when the reply has already been written.
func (h *Handler) groupRole(c *gin.Context, userID uint) (uint, models.GroupRole, bool) {
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return 0, "", false
	}

	if err := h.db.First(&models.Group{}, groupID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return 0, "", false
	}

	var membership models.GroupMembership
	if err := h.db.Where("user_id = ? AND group_id = ?", userID, groupID).First(&membership).Error; err != nil {
		return uint(groupID), "", true
	}
	return uint(groupID), membership.Role, true
}

// loadMessage finds a message and checks it belongs to groupID
func (h *Handler) loadMessage(c *gin.Context, groupID uint) (models.GroupMessage, bool) {
	var message models.GroupMessage
	messageID, err := strconv.ParseUint(c.Param("messageId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message ID"})
		return message, false
	}

	err = h.db.Preload("Author").First(&message, messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return message, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch message"})
		return message, false
	}
	if message.GroupID != groupID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message does not belong to this group"})
		return message, false
	}
	return message, true
}

// List returns a group's messages, pinned first then newest first
// @Summary List messages
// @Tags messages
// @Produce json
// @Param id path int true "Group ID"
// @Param pinned query bool false "Only pinned messages"
// @Success 200 {array} MessageResponse
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{id}/messages [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, _, ok := h.groupRole(c, userID)
	if !ok {
		return
	}

	query := h.db.Preload("Author").Where("group_id = ?", groupID).Order("pinned DESC").Order("created_at DESC")
	if c.Query("pinned") == "true" {
		query = query.Where("pinned = ?", true)
	}

	var messages []models.GroupMessage
	if err := query.Find(&messages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	responses := make([]MessageResponse, len(messages))
	for i, m := range messages {
		responses[i] = messageToResponse(m)
	}

	c.JSON(http.StatusOK, responses)
}

// Create posts a message to the board (members only)
// @Summary Post a message
// @Tags messages
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param request body CreateMessageRequest true "Message"
// @Success 201 {object} MessageResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Not a member"
// @Security BearerAuth
// @Router /groups/{id}/messages [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, role, ok := h.groupRole(c, userID)
	if !ok {
		return
	}
	if role == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only group members can post messages"})
		return
	}

	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message content is required"})
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message content is required"})
		return
	}

	message := models.GroupMessage{GroupID: groupID, AuthorID: userID, Content: content}
	if err := h.db.Create(&message).Error; err != nil {
		slog.Error("Failed to post message", "group_id", groupID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to post message"})
		return
	}
	h.db.First(&message.Author, userID)

	c.JSON(http.StatusCreated, messageToResponse(message))
}

// Pin pins or unpins a message (group admin only)
// @Summary Pin a message
// @Tags messages
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param messageId path int true "Message ID"
// @Param request body PinMessageRequest true "Pinned flag"
// @Success 200 {object} MessageResponse
// @Failure 403 {object} map[string]string "Admin access required"
// @Security BearerAuth
// @Router /groups/{id}/messages/{messageId} [patch]
func (h *Handler) Pin(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, role, ok := h.groupRole(c, userID)
	if !ok {
		return
	}
	if role != models.GroupRoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return
	}

	var req PinMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pinned must be a boolean"})
		return
	}

	message, ok := h.loadMessage(c, groupID)
	if !ok {
		return
	}

	if err := h.db.Model(&message).Update("pinned", *req.Pinned).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update message"})
		return
	}
	message.Pinned = *req.Pinned

	c.JSON(http.StatusOK, messageToResponse(message))
}

// Delete removes a message (author or group admin)
// @Summary Delete a message
// @Tags messages
// @Produce json
// @Param id path int true "Group ID"
// @Param messageId path int true "Message ID"
// @Success 200 {object} map[string]string "Message deleted"
// @Failure 403 {object} map[string]string "Not allowed"
// @Failure 404 {object} map[string]string "Message not found"
// @Security BearerAuth
// @Router /groups/{id}/messages/{messageId} [delete]
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, role, ok := h.groupRole(c, userID)
	if !ok {
		return
	}

	message, ok := h.loadMessage(c, groupID)
	if !ok {
		return
	}

	if message.AuthorID != userID && role != models.GroupRoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the author or a group admin can delete this message"})
		return
	}

	if err := h.db.Delete(&message).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete message"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Message deleted"})
}

// RegisterRoutes registers message routes under a groups router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/messages", h.List)
	rg.POST("/:id/messages", h.Create)
	rg.PATCH("/:id/messages/:messageId", h.Pin)
	rg.DELETE("/:id/messages/:messageId", h.Delete)
}
