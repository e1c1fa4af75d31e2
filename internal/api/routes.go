package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Template routes
		v1.POST("/templates", handler.CreateTemplate)
		v1.GET("/templates/:id", handler.GetTemplate)
		v1.PUT("/templates/:id", handler.UpdateTemplate)

		// Import routes
		v1.POST("/imports", handler.UploadImport)
		v1.POST("/imports/preview", handler.Preview)
		v1.GET("/imports/:file_id/status", handler.GetImportStatus)
	}
}

// NewRouter builds the engine with the service middleware installed.
func NewRouter(handler *Handler, maxUploadSize int64) *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = maxUploadSize
	router.Use(RecoveryMiddleware())
	router.Use(LoggingMiddleware())
	router.Use(CORSMiddleware())

	SetupRoutes(router, handler)
	return router
}
