package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dialwise/dialwise/internal/models"
	"github.com/dialwise/dialwise/pkg/logger"
	"github.com/dialwise/dialwise/pkg/websocket"
)

var dashboardUpgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// DashboardWebSocket upgrades the connection and subscribes it to the event
// stream for its role. The current active-call list goes out first as a
// snapshot so a reconnecting dashboard does not depend on missed events.
func (h *Handlers) DashboardWebSocket(c *gin.Context) {
	role := c.DefaultQuery("role", websocket.RoleOperator)

	conn, err := dashboardUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("dashboard upgrade failed", zap.Error(err))
		return
	}

	snapshot, err := models.ActiveSessions(h.db, h.stuckThreshold())
	if err != nil {
		logger.Error("snapshot read failed", zap.Error(err))
		snapshot = nil
	}

	h.wsHub.Register(conn, role, gin.H{"activeCalls": snapshot})
}
