package handlers

import (
	"fermenter_controller/internal/logger"
	"fermenter_controller/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services    *service.Service
	log         *logger.Logger
	ingestToken string
	// allowedOrigins lists browser origins that may open /ws.
	allowedOrigins []string
}

type Option func(*Handler)

// WithIngestToken enables POST /ingest/readings for clients presenting token.
func WithIngestToken(token string) Option {
	return func(h *Handler) { h.ingestToken = token }
}

// WithAllowedOrigins sets the origins accepted on /ws.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Handler) { h.allowedOrigins = origins }
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger, opts ...Option) *Handler {
	h := &Handler{services: services, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)

	h.registerAuthRoutes(router)
	h.registerIngestRoutes(router)
	h.registerAPIRoutes(router)

	// Status stream on the same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerIngestRoutes(r *gin.Engine) {
	ingest := r.Group("/ingest", h.ingestTokenMiddleware)
	{
		ingest.POST("/readings", h.ingestReading)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerControlRoutes(api)
		h.registerEventRoutes(api)
		h.registerReadingRoutes(api)
	}
}

func (h *Handler) registerControlRoutes(api *gin.RouterGroup) {
	ctrl := api.Group("/control")
	{
		ctrl.GET("/status", h.getStatus)
		ctrl.GET("/config", h.getConfig)
		// Body example: {"low_limit":66,"high_limit":68,"heating_enabled":true}
		ctrl.PUT("/config", h.updateConfig)
	}
}

func (h *Handler) registerEventRoutes(api *gin.RouterGroup) {
	api.GET("/events", h.getEvents)
}

func (h *Handler) registerReadingRoutes(api *gin.RouterGroup) {
	api.GET("/readings", h.getReadings)
}
