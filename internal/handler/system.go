package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dialwise/dialwise/internal/models"
	"github.com/dialwise/dialwise/pkg/config"
	"github.com/dialwise/dialwise/pkg/response"
)

var startedAt = time.Now()

// HealthCheck reports liveness, including a database ping.
func (h *Handlers) HealthCheck(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database connection failed"})
		return
	}
	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database ping failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// SystemInfo returns the deployment facts a dashboard needs at startup.
func (h *Handlers) SystemInfo(c *gin.Context) {
	cfg := config.GlobalConfig

	recent, _ := models.CountSessionsSince(h.db, time.Now().Add(-24*time.Hour))

	response.Success(c, "", gin.H{
		"name":    cfg.ServerName,
		"desc":    cfg.ServerDesc,
		"uptime":  time.Since(startedAt).Round(time.Second).String(),
		"started": startedAt.UTC(),
		"database": gin.H{
			"driver": cfg.DBDriver,
		},
		"calls": gin.H{
			"last24h":     recent,
			"subscribers": h.wsHub.ClientCount(),
		},
		"stuckCallThreshold": cfg.StuckCallThreshold.String(),
	})
}
