// Package events serves a group's calendar of pickups and meetings.
package events

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

// ErrInvalidDate is returned for dates that are not ISO 8601
var ErrInvalidDate = errors.New("date must be an ISO 8601 date or timestamp")

// Handler handles group event requests
type Handler struct {
	db  *gorm.DB
	now func() time.Time
}

// NewHandler creates a new events handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db, now: time.Now}
}

// CreateEventRequest represents the request to create an event
type CreateEventRequest struct {
	Title       string `json:"title" binding:"required,max=200"`
	Date        string `json:"date" binding:"required"`
	Location    string `json:"location" binding:"max=300"`
	Description string `json:"description" binding:"max=2000"`
}

// UpdateEventRequest represents the request to update an event
type UpdateEventRequest struct {
	Title       *string `json:"title" binding:"omitempty,min=1,max=200"`
	Date        *string `json:"date"`
	Location    *string `json:"location" binding:"omitempty,max=300"`
	Description *string `json:"description" binding:"omitempty,max=2000"`
}

// EventResponse represents an event in API responses
type EventResponse struct {
	ID          uint               `json:"id"`
	GroupID     uint               `json:"groupId"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Location    string             `json:"location"`
	Date        time.Time          `json:"date"`
	CreatedBy   models.UserSummary `json:"createdBy"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

func eventToResponse(e models.GroupEvent) EventResponse {
	creator := e.CreatedBy.Summary()
	creator.ID = e.CreatedByID
	return EventResponse{
		ID:          e.ID,
		GroupID:     e.GroupID,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		Date:        e.Date,
		CreatedBy:   creator,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// ParseDate accepts an RFC 3339 timestamp or a plain calendar date
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

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

// loadEvent finds an event the caller may modify: it must belong to
// groupID and the caller must be its creator or a group admin.
func (h *Handler) loadEvent(c *gin.Context, groupID, userID uint, role models.GroupRole) (models.GroupEvent, bool) {
	var event models.GroupEvent
	eventID, err := strconv.ParseUint(c.Param("eventId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event ID"})
		return event, false
	}

	err = h.db.Preload("CreatedBy").First(&event, eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		return event, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch event"})
		return event, false
	}
	if event.GroupID != groupID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Event does not belong to this group"})
		return event, false
	}
	if event.CreatedByID != userID && role != models.GroupRoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the creator or a group admin can change this event"})
		return event, false
	}
	return event, true
}

// List returns a group's events in date order
// @Summary List events
// @Tags events
// @Produce json
// @Param id path int true "Group ID"
// @Param upcoming query bool false "Only events from now on"
// @Success 200 {array} EventResponse
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{id}/events [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, _, ok := h.groupRole(c, userID)
	if !ok {
		return
	}

	query := h.db.Preload("CreatedBy").Where("group_id = ?", groupID).Order("date ASC")
	if c.Query("upcoming") == "true" {
		query = query.Where("date >= ?", h.now().UTC())
	}

	var events []models.GroupEvent
	if err := query.Find(&events).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch events"})
		return
	}

	responses := make([]EventResponse, len(events))
	for i, e := range events {
		responses[i] = eventToResponse(e)
	}

	c.JSON(http.StatusOK, responses)
}

// Create schedules an event (members only)
// @Summary Create an event
// @Tags events
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param request body CreateEventRequest true "Event details"
// @Success 201 {object} EventResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Not a member"
// @Security BearerAuth
// @Router /groups/{id}/events [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, role, ok := h.groupRole(c, userID)
	if !ok {
		return
	}
	if role == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only group members can create events"})
		return
	}

	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title and date are required"})
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title and date are required"})
		return
	}
	date, err := ParseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event := models.GroupEvent{
		GroupID:     groupID,
		CreatedByID: userID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Location:    strings.TrimSpace(req.Location),
		Date:        date,
	}
	if err := h.db.Create(&event).Error; err != nil {
		slog.Error("Failed to create event", "group_id", groupID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create event"})
		return
	}
	h.db.First(&event.CreatedBy, userID)

	c.JSON(http.StatusCreated, eventToResponse(event))
}

// Update edits an event (creator or group admin)
// @Summary Update an event
// @Tags events
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param eventId path int true "Event ID"
// @Param request body UpdateEventRequest true "Changed fields"
// @Success 200 {object} EventResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Not allowed"
// @Failure 404 {object} map[string]string "Event not found"
// @Security BearerAuth
// @Router /groups/{id}/events/{eventId} [put]
func (h *Handler) Update(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, role, ok := h.groupRole(c, userID)
	if !ok {
		return
	}

	var req UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, ok := h.loadEvent(c, groupID, userID, role)
	if !ok {
		return
	}

	updates := map[string]any{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Title cannot be blank"})
			return
		}
		updates["title"] = title
	}
	if req.Date != nil {
		date, err := ParseDate(*req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		updates["date"] = date
	}
	if req.Location != nil {
		updates["location"] = strings.TrimSpace(*req.Location)
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}

	if len(updates) > 0 {
		if err := h.db.Model(&event).Omit("CreatedBy").Updates(updates).Error; err != nil {
			slog.Error("Failed to update event", "event_id", event.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update event"})
			return
		}
	}

	h.db.Preload("CreatedBy").First(&event, event.ID)
	c.JSON(http.StatusOK, eventToResponse(event))
}

// Delete removes an event (creator or group admin)
// @Summary Delete an event
// @Tags events
// @Produce json
// @Param id path int true "Group ID"
// @Param eventId path int true "Event ID"
// @Success 200 {object} map[string]string "Event deleted"
// @Failure 403 {object} map[string]string "Not allowed"
// @Failure 404 {object} map[string]string "Event not found"
// @Security BearerAuth
// @Router /groups/{id}/events/{eventId} [delete]
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, role, ok := h.groupRole(c, userID)
	if !ok {
		return
	}

	event, ok := h.loadEvent(c, groupID, userID, role)
	if !ok {
		return
	}

	if err := h.db.Delete(&event).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Event deleted"})
}

// RegisterRoutes registers event routes under a groups router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/events", h.List)
	rg.POST("/:id/events", h.Create)
	rg.PUT("/:id/events/:eventId", h.Update)
	rg.DELETE("/:id/events/:eventId", h.Delete)
}
