package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers all endpoints with the router.
//
// Endpoints:
//
//	POST /v1/analyze/stream - Run an analysis, streaming progress over SSE
//	POST /v1/analyze        - Run an analysis, single JSON response
//	POST /v1/returns/bulk   - Batch reference metric lookups
//	GET  /v1/asset-classes  - List known asset class identifiers
//	GET  /v1/health         - Health check
//	GET  /metrics           - Prometheus metrics
func RegisterRoutes(router *gin.Engine, handlers *Handlers) {
	v1 := router.Group("/v1")
	{
		v1.POST("/analyze/stream", handlers.HandleAnalyzeStream)
		v1.POST("/analyze", handlers.HandleAnalyze)

		v1.POST("/returns/bulk", handlers.HandleBulkReturns)
		v1.GET("/asset-classes", handlers.HandleAssetClasses)

		v1.GET("/health", handlers.HandleHealth)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
