package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/snapevent/internal/api/middleware"
	"example.com/snapevent/internal/media"
	"example.com/snapevent/internal/moderation"
	"example.com/snapevent/internal/tracing"
)

// PresenceCounter reports how many clients are viewing an event right now
type PresenceCounter interface {
	PresenceCount(ctx context.Context, id uint) (int, error)
}

// MediaHandler handles upload, gallery and moderation HTTP requests
type MediaHandler struct {
	media      *media.Service
	moderation *moderation.Service
	presence   PresenceCounter
	tracer     tracing.Tracer
	maxBytes   int64
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(mediaSvc *media.Service, moderationSvc *moderation.Service, presence PresenceCounter, tracer tracing.Tracer, maxSizeMB int64) *MediaHandler {
	return &MediaHandler{
		media:      mediaSvc,
		moderation: moderationSvc,
		presence:   presence,
		tracer:     tracer,
		maxBytes:   maxSizeMB << 20,
	}
}

// BatchRequest names the media rows a moderation batch acts on
type BatchRequest struct {
	IDs []uint `json:"ids" binding:"required,min=1"`
}

// Upload handles POST /e/:slug/media, the guest upload endpoint
func (h *MediaHandler) Upload(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-media-upload")
	defer h.tracer.EndTransaction(txn)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		log.Warn().Err(err).Msg("Invalid upload form")
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or oversized file"})
		return
	}
	defer file.Close()

	m, err := h.media.Upload(c.Request.Context(), media.UploadInput{
		Slug:        c.Param("slug"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// Gallery handles GET /e/:slug, the public share-link view
func (h *MediaHandler) Gallery(c *gin.Context) {
	ev, list, err := h.media.ListBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}

	viewers, err := h.presence.PresenceCount(c.Request.Context(), ev.ID)
	if err != nil {
		log.Warn().Err(err).Uint("event_id", ev.ID).Msg("Failed to read presence count")
		viewers = 0
	}

	c.JSON(http.StatusOK, gin.H{
		"viewers": viewers,
		"event": gin.H{
			"id":              ev.ID,
			"name":            ev.Name,
			"description":     ev.Description,
			"status":          ev.Status,
			"accent_color":    ev.AccentColor,
			"background_path": ev.BackgroundPath,
			"photo_count":     ev.PhotoCount,
			"like_count":      ev.LikeCount,
		},
		"media": list,
	})
}

// ListEventMedia handles GET /events/:id/media. Managers also see the
// pending moderation queue.
func (h *MediaHandler) ListEventMedia(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	list, err := h.media.List(c.Request.Context(), media.ListInput{EventID: id, Principal: &p})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"media": list})
}

// Approve handles POST /moderation/approve
func (h *MediaHandler) Approve(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)

	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.moderation.Approve(c.Request.Context(), p, req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Reject handles POST /moderation/reject
func (h *MediaHandler) Reject(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)

	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.moderation.Reject(c.Request.Context(), p, req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeleteMedia handles DELETE /media/:id
func (h *MediaHandler) DeleteMedia(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.moderation.Delete(c.Request.Context(), p, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Like handles POST /media/:id/like. Public: guests like photos.
func (h *MediaHandler) Like(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	count, err := h.moderation.Like(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"like_count": count})
}

// RegisterRoutes registers the handler's routes
func (h *MediaHandler) RegisterRoutes(public, authorized *gin.RouterGroup) {
	public.GET("/e/:slug", h.Gallery)
	public.POST("/e/:slug/media", h.Upload)
	public.POST("/media/:id/like", h.Like)

	authorized.GET("/events/:id/media", h.ListEventMedia)
	authorized.POST("/moderation/approve", h.Approve)
	authorized.POST("/moderation/reject", h.Reject)
	authorized.DELETE("/media/:id", h.DeleteMedia)
}
