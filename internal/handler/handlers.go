package handlers

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dialwise/dialwise/pkg/config"
	"github.com/dialwise/dialwise/pkg/websocket"
)

type Handlers struct {
	db    *gorm.DB
	wsHub *websocket.Hub
}

func NewHandlers(db *gorm.DB) *Handlers {
	return &Handlers{
		db:    db,
		wsHub: websocket.NewHub(),
	}
}

// Hub exposes the dashboard hub for background tasks that publish snapshots.
func (h *Handlers) Hub() *websocket.Hub {
	return h.wsHub
}

func (h *Handlers) Register(engine *gin.Engine) {
	r := engine.Group(config.GlobalConfig.APIPrefix)

	calls := r.Group("/calls")
	{
		calls.POST("/events", h.HandleCallEvent)
		calls.GET("/active", h.ListActiveCalls)
		calls.GET("/:id", h.GetCall)
		calls.DELETE("/:id", h.PurgeCall)
		calls.POST("/:id/terminate", h.TerminateCall)
	}

	r.POST("/qualification", h.UpdateQualification)
	r.GET("/qualification/:callId", h.GetQualification)

	objections := r.Group("/objections")
	{
		objections.POST("/classify", h.ClassifyObjection)
		objections.GET("/handlers", h.ListObjectionHandlers)
		objections.POST("/handlers", h.CreateObjectionHandler)
	}

	scripts := r.Group("/scripts")
	{
		scripts.GET("", h.ListScripts)
		scripts.POST("", h.CreateScript)
		scripts.POST("/select", h.SelectScript)
		scripts.POST("/:id/activate", h.ActivateScript)
	}

	r.POST("/usage/feedback", h.RecordUsageFeedback)

	analytics := r.Group("/analytics")
	{
		analytics.GET("/funnel", h.FunnelBreakdown)
		analytics.GET("/objections", h.ObjectionAnalysis)
		analytics.GET("/techniques", h.TechniquePerformance)
		analytics.GET("/qualification", h.QualificationStats)
		analytics.GET("/quality", h.QualityBuckets)
		analytics.GET("/live", h.LiveCalls)
		analytics.GET("/summary", h.AnalyticsSummary)
	}

	r.GET("/ws/dashboard", h.DashboardWebSocket)

	r.GET("/health", h.HealthCheck)
	r.GET("/system/info", h.SystemInfo)
}

func (h *Handlers) stuckThreshold() time.Duration {
	if config.GlobalConfig != nil && config.GlobalConfig.StuckCallThreshold > 0 {
		return config.GlobalConfig.StuckCallThreshold
	}
	return time.Hour
}

// parseTimeRange reads the optional from/to query params. Both accept
// RFC 3339 timestamps or plain dates.
func parseTimeRange(c *gin.Context) (from, to *time.Time, err error) {
	parse := func(raw string) (*time.Time, error) {
		if raw == "" {
			return nil, nil
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, perr := time.Parse(layout, raw); perr == nil {
				return &t, nil
			}
		}
		return nil, fmt.Errorf("invalid time %q", raw)
	}
	if from, err = parse(c.Query("from")); err != nil {
		return nil, nil, err
	}
	if to, err = parse(c.Query("to")); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}
