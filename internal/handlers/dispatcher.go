package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TriggerDispatch runs one due-item sweep outside the polling schedule.
// Service-to-service only.
func TriggerDispatch(c *gin.Context) {
	published, failed := dispatcher.TriggerCheck(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"published": published,
		"failed":    failed,
		"running":   dispatcher.IsRunning(),
	})
}
