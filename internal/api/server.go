package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/snapevent/config"
	"example.com/snapevent/internal/api/handlers"
	"example.com/snapevent/internal/api/middleware"
	"example.com/snapevent/internal/events"
	"example.com/snapevent/internal/media"
	"example.com/snapevent/internal/metrics"
	"example.com/snapevent/internal/moderation"
	"example.com/snapevent/internal/tracing"
)

// Server represents the HTTP server
type Server struct {
	config     config.Config
	router     *gin.Engine
	httpServer *http.Server
}

// Deps are the services the API surfaces
type Deps struct {
	Events     *events.Service
	Media      *media.Service
	Moderation *moderation.Service
	Users      middleware.TokenAuthenticator
	Metrics    *metrics.Metrics
	Tracer     tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(cfg config.Config, deps Deps) *Server {
	server := &Server{config: cfg}

	router := server.setupRouter(deps)
	server.router = router

	server.httpServer = &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: router,
	}

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter(deps Deps) *gin.Engine {
	if s.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())

	v1 := router.Group("/api/v1")
	authorized := router.Group("/api/v1")
	authorized.Use(middleware.RequireAuth(deps.Users))

	eventsHandler := handlers.NewEventsHandler(deps.Events, deps.Tracer)
	eventsHandler.RegisterRoutes(v1, authorized)

	mediaHandler := handlers.NewMediaHandler(deps.Media, deps.Moderation, deps.Events, deps.Tracer, s.config.Uploads.MaxSizeMB)
	mediaHandler.RegisterRoutes(v1, authorized)

	metricsHandler := handlers.NewMetricsHandler(deps.Metrics)
	metricsHandler.RegisterRoutes(router)

	// Stored files (galleries, previews, branding) are served directly.
	router.Static("/files", s.config.Storage.Root)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
