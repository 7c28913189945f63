package api

import (
	"github.com/gin-gonic/gin"

	"github.com/boyiajas/omni247-sub001/internal/adapter/api/handlers"
)

// SetupRouter wires the operational HTTP surface: a health probe and a
// synchronous verification trigger for operators and backfill scripts.
func SetupRouter(mode string, verifier handlers.Verifier) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	router := gin.Default()

	router.GET("/health", handlers.HealthCheck)

	v1 := router.Group("/v1")
	{
		v1.POST("/reports/:id/verify", handlers.VerifyReport(verifier))
	}

	return router
}
