package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status returns the current state of all live sync sessions
func Status(syncService interfaces.SyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, syncService.Status())
	}
}
