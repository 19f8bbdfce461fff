package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler сообщает, готов ли backend обслуживать запросы
func HealthHandler(dbStatus func(ctx context.Context) string, queueStats func(ctx context.Context) map[string]interface{}) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		state := dbStatus(ctx)
		status, code := "ready", http.StatusOK
		if state != "connected" {
			status, code = "not_ready", http.StatusServiceUnavailable
		}

		body := gin.H{
			"message":  "backend woke up",
			"status":   status,
			"database": gin.H{"status": state},
		}
		if queueStats != nil {
			body["cleanup_queue"] = queueStats(ctx)
		}
		c.JSON(code, body)
	}
}
