package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes sets up the API routes
func SetupRoutes(handler *Handler, apiToken string) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(RequestLogger())

	// Health check and metrics
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/dashboard/stats", handler.GetDashboardStats)
		v1.GET("/repositories", handler.ListRepositories)

		// Mutating routes require the API token when one is configured
		authed := v1.Group("", TokenAuth(apiToken))
		{
			authed.POST("/repositories", handler.TrackRepository)
			authed.DELETE("/repositories/:owner/:name", handler.UntrackRepository)
			authed.POST("/refresh", handler.TriggerRefresh)
		}
	}

	return router
}
