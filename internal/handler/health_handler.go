package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketplace/internal/database"
	"marketplace/internal/redis"
)

// HealthHandler liveness and readiness endpoints
type HealthHandler struct{}

// NewHealthHandler creates a health handler
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	checks := gin.H{
		"database": "ok",
		"redis":    "ok",
	}
	healthy := true

	if db := database.GetDB(); db != nil {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
	} else {
		checks["database"] = "not initialized"
		healthy = false
	}

	if err := redis.Health(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status": overall,
		"checks": checks,
	})
}
