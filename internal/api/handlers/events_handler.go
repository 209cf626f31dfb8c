package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/snapevent/internal/api/middleware"
	"example.com/snapevent/internal/auth"
	"example.com/snapevent/internal/events"
	"example.com/snapevent/internal/models"
	"example.com/snapevent/internal/tracing"
)

// EventsHandler handles event lifecycle HTTP requests
type EventsHandler struct {
	events *events.Service
	tracer tracing.Tracer
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(svc *events.Service, tracer tracing.Tracer) *EventsHandler {
	return &EventsHandler{events: svc, tracer: tracer}
}

// CreateEventRequest is the event-creation payload
type CreateEventRequest struct {
	Name              string     `json:"name" binding:"required"`
	Description       string     `json:"description"`
	ScheduledDate     *time.Time `json:"scheduled_date"`
	ScheduledStartAt  *time.Time `json:"scheduled_start_at"`
	RequireModeration bool       `json:"require_moderation"`
	UploadPolicy      string     `json:"upload_policy"`
	ViewPolicy        string     `json:"view_policy"`
	AccentColor       string     `json:"accent_color"`
}

// UpdateEventRequest is a partial settings patch; absent fields are untouched
type UpdateEventRequest struct {
	Name              *string    `json:"name"`
	Description       *string    `json:"description"`
	ScheduledDate     *time.Time `json:"scheduled_date"`
	ScheduledStartAt  *time.Time `json:"scheduled_start_at"`
	RequireModeration *bool      `json:"require_moderation"`
	UploadPolicy      *string    `json:"upload_policy"`
	ViewPolicy        *string    `json:"view_policy"`
	AccentColor       *string    `json:"accent_color"`
}

// ChangeStatusRequest names the target lifecycle state
type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// HeartbeatRequest identifies the viewing client
type HeartbeatRequest struct {
	ClientID string `json:"client_id" binding:"required"`
}

// EventResponse decorates an event with its share link
type EventResponse struct {
	*models.Event
	ShareURL string `json:"share_url"`
}

func (h *EventsHandler) response(ev *models.Event) EventResponse {
	return EventResponse{Event: ev, ShareURL: h.events.ShareURL(ev)}
}

// CreateEvent handles POST /events
func (h *EventsHandler) CreateEvent(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)

	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ev, err := h.events.Create(c.Request.Context(), p, events.CreateInput{
		Name:              req.Name,
		Description:       req.Description,
		ScheduledDate:     req.ScheduledDate,
		ScheduledStartAt:  req.ScheduledStartAt,
		RequireModeration: req.RequireModeration,
		UploadPolicy:      req.UploadPolicy,
		ViewPolicy:        req.ViewPolicy,
		AccentColor:       req.AccentColor,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.response(ev))
}

// ListEvents handles GET /events
func (h *EventsHandler) ListEvents(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)

	list, err := h.events.List(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]EventResponse, len(list))
	for i := range list {
		out[i] = h.response(&list[i])
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

// GetEvent handles GET /events/:id
func (h *EventsHandler) GetEvent(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	ev, err := h.events.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !p.CanManage(ev) {
		respondError(c, auth.ErrForbidden)
		return
	}
	c.JSON(http.StatusOK, h.response(ev))
}

// UpdateEvent handles PATCH /events/:id
func (h *EventsHandler) UpdateEvent(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ev, err := h.events.UpdateSettings(c.Request.Context(), p, id, events.UpdateInput{
		Name:              req.Name,
		Description:       req.Description,
		ScheduledDate:     req.ScheduledDate,
		ScheduledStartAt:  req.ScheduledStartAt,
		RequireModeration: req.RequireModeration,
		UploadPolicy:      req.UploadPolicy,
		ViewPolicy:        req.ViewPolicy,
		AccentColor:       req.AccentColor,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.response(ev))
}

// DeleteEvent handles DELETE /events/:id
func (h *EventsHandler) DeleteEvent(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.events.Delete(c.Request.Context(), p, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ChangeStatus handles POST /events/:id/status
func (h *EventsHandler) ChangeStatus(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ev, err := h.events.ChangeStatus(c.Request.Context(), p, id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.response(ev))
}

// GetQRCode handles GET /events/:id/qr
func (h *EventsHandler) GetQRCode(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	ev, err := h.events.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !p.CanManage(ev) {
		respondError(c, auth.ErrForbidden)
		return
	}

	png, err := h.events.QRCode(ev)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// Heartbeat handles POST /events/:id/heartbeat. Public: guests report
// presence without authenticating.
func (h *EventsHandler) Heartbeat(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	count, err := h.events.Heartbeat(c.Request.Context(), id, req.ClientID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"viewers": count})
}

// Leave handles POST /events/:id/leave
func (h *EventsHandler) Leave(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	count, err := h.events.Leave(c.Request.Context(), id, req.ClientID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"viewers": count})
}

// GetPresence handles GET /events/:id/presence
func (h *EventsHandler) GetPresence(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	count, err := h.events.PresenceCount(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"viewers": count})
}

// PresenceSnapshot handles GET /presence
func (h *EventsHandler) PresenceSnapshot(c *gin.Context) {
	snapshot, err := h.events.PresenceSnapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": snapshot})
}

// ListAudits handles GET /audits
func (h *EventsHandler) ListAudits(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)

	audits, err := h.events.ListAudits(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audits": audits})
}

// DeleteAudit handles DELETE /audits/:id
func (h *EventsHandler) DeleteAudit(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.events.DeleteAudit(c.Request.Context(), p, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// RegisterRoutes registers the handler's routes
func (h *EventsHandler) RegisterRoutes(public, authorized *gin.RouterGroup) {
	authorized.POST("/events", h.CreateEvent)
	authorized.GET("/events", h.ListEvents)
	authorized.GET("/events/:id", h.GetEvent)
	authorized.PATCH("/events/:id", h.UpdateEvent)
	authorized.DELETE("/events/:id", h.DeleteEvent)
	authorized.POST("/events/:id/status", h.ChangeStatus)
	authorized.GET("/events/:id/qr", h.GetQRCode)
	authorized.GET("/presence", h.PresenceSnapshot)
	authorized.GET("/audits", h.ListAudits)
	authorized.DELETE("/audits/:id", h.DeleteAudit)

	public.POST("/events/:id/heartbeat", h.Heartbeat)
	public.POST("/events/:id/leave", h.Leave)
	public.GET("/events/:id/presence", h.GetPresence)
}

// parseID parses the :id path parameter
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}
