package handlers

import (
	"roast_monitor/internal/logger"
	"roast_monitor/internal/metrics"
	"roast_monitor/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Health endpoint
	router.GET("/health", h.health)

	// Auth endpoints
	h.registerAuthRoutes(router)

	// Versioned API endpoints (protected)
	h.registerAPIRoutes(router)

	// Live session stream on the same port
	router.GET("/ws", h.userIdMiddleware, h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerRoastRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerRoastRoutes(api *gin.RouterGroup) {
	roast := api.Group("/roast")
	{
		roast.GET("/state", h.getState)
		// Body example: {"kind":"serial","address":"/dev/ttyUSB0","baud":115200}
		roast.POST("/connect", h.connectDevice)
		roast.POST("/disconnect", h.disconnectDevice)
		roast.POST("/start", h.startRoast)
		roast.POST("/stop", h.stopRoast)
		roast.POST("/undo", h.undoDrop)
		roast.POST("/reset", h.resetSession)
		roast.POST("/events/:label", h.toggleEvent)
		roast.POST("/import", h.importRoast)
		roast.GET("/export", h.exportRoast)
		roast.GET("/analysis", h.getAnalysis)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}
