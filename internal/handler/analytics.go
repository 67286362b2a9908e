package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dialwise/dialwise/internal/models"
	"github.com/dialwise/dialwise/pkg/cache"
	"github.com/dialwise/dialwise/pkg/logger"
	"github.com/dialwise/dialwise/pkg/response"
)

// cachedRange serves an aggregation endpoint through the short-TTL read
// cache. Live call lists bypass this; only range aggregates are cached.
func (h *Handlers) cachedRange(c *gin.Context, name string, load func() (interface{}, error)) {
	key := name + "?" + c.Request.URL.RawQuery
	if cached, ok := cache.Get(key); ok {
		response.Success(c, "", cached)
		return
	}

	data, err := load()
	if err != nil {
		logger.Error(name+" aggregation failed", zap.Error(err))
		response.ServerError(c, "could not compute "+name)
		return
	}
	cache.Set(key, data)
	response.Success(c, "", data)
}

// FunnelBreakdown counts calls per conversation stage in canonical funnel
// order, with lost calls appended.
func (h *Handlers) FunnelBreakdown(c *gin.Context) {
	from, to, err := parseTimeRange(c)
	if err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	h.cachedRange(c, "funnel", func() (interface{}, error) {
		return models.GetFunnelBreakdown(h.db, from, to)
	})
}

func (h *Handlers) ObjectionAnalysis(c *gin.Context) {
	from, to, err := parseTimeRange(c)
	if err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	h.cachedRange(c, "objections", func() (interface{}, error) {
		return models.GetObjectionAnalysis(h.db, from, to)
	})
}

func (h *Handlers) TechniquePerformance(c *gin.Context) {
	from, to, err := parseTimeRange(c)
	if err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	h.cachedRange(c, "techniques", func() (interface{}, error) {
		return models.GetTechniquePerformance(h.db, from, to)
	})
}

func (h *Handlers) QualificationStats(c *gin.Context) {
	from, to, err := parseTimeRange(c)
	if err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	h.cachedRange(c, "qualification", func() (interface{}, error) {
		return models.GetQualificationStats(h.db, from, to)
	})
}

func (h *Handlers) QualityBuckets(c *gin.Context) {
	from, to, err := parseTimeRange(c)
	if err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	h.cachedRange(c, "quality", func() (interface{}, error) {
		return models.GetQualityBuckets(h.db, from, to)
	})
}

// LiveCalls returns the active sessions joined with their current
// qualification and analytics state. Never cached.
func (h *Handlers) LiveCalls(c *gin.Context) {
	sessions, err := models.ActiveSessions(h.db, h.stuckThreshold())
	if err != nil {
		logger.Error("live calls read failed", zap.Error(err))
		response.ServerError(c, "could not load live calls")
		return
	}

	live := make([]gin.H, 0, len(sessions))
	for i := range sessions {
		s := &sessions[i]
		entry := gin.H{"session": s}
		if qual, err := models.GetQualification(h.db, s.SessionID); err == nil {
			entry["qualification"] = qual
		}
		if analytics, err := models.GetAnalytics(h.db, s.SessionID); err == nil {
			entry["analytics"] = analytics
		}
		live = append(live, entry)
	}
	response.Success(c, "", gin.H{"calls": live, "count": len(live)})
}

func (h *Handlers) AnalyticsSummary(c *gin.Context) {
	from, to, err := parseTimeRange(c)
	if err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	threshold := h.stuckThreshold()
	h.cachedRange(c, "summary", func() (interface{}, error) {
		return models.GetAnalyticsSummary(h.db, from, to, threshold)
	})
}
