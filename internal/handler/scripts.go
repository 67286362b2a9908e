package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dialwise/dialwise/internal/models"
	"github.com/dialwise/dialwise/pkg/logger"
	"github.com/dialwise/dialwise/pkg/response"
)

func (h *Handlers) ListScripts(c *gin.Context) {
	filter := models.ScriptFilter{
		ProductID: cast.ToUint(c.Query("productId")),
		Stage:     models.ConversationStage(c.Query("stage")),
		Type:      c.Query("type"),
		Technique: c.Query("technique"),
		Language:  c.Query("language"),
	}
	scripts, err := models.ListScripts(h.db, filter)
	if err != nil {
		logger.Error("list scripts failed", zap.Error(err))
		response.ServerError(c, "could not list scripts")
		return
	}
	response.Success(c, "", gin.H{"scripts": scripts, "count": len(scripts)})
}

func (h *Handlers) CreateScript(c *gin.Context) {
	var script models.SalesScript
	if err := c.ShouldBindJSON(&script); err != nil {
		response.Fail(c, "invalid script payload", nil)
		return
	}
	script.ID = 0
	script.UsageCount = 0
	script.Active = true
	if script.Priority == 0 {
		script.Priority = 5
	}

	if err := script.Validate(); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	if err := h.db.Create(&script).Error; err != nil {
		logger.Error("create script failed", zap.Error(err))
		response.ServerError(c, "could not create script")
		return
	}
	response.Success(c, "script created", script)
}

// SelectScriptRequest carries the live conversation state the selector
// matches scripts against.
type SelectScriptRequest struct {
	ProductID          uint   `json:"productId" binding:"required"`
	Stage              string `json:"stage" binding:"required"`
	Language           string `json:"language" binding:"required"`
	ElapsedSec         int    `json:"elapsedSec"`
	QualificationScore int    `json:"qualificationScore"`
	LatestUtterance    string `json:"latestUtterance"`
}

// SelectScript returns the best eligible script for the conversation state,
// or 404 when no script passes every eligibility gate.
func (h *Handlers) SelectScript(c *gin.Context) {
	var req SelectScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid selection payload", nil)
		return
	}

	script, err := models.SelectScript(h.db, models.SelectionInput{
		ProductID:          req.ProductID,
		Stage:              models.ConversationStage(req.Stage),
		Language:           req.Language,
		ElapsedSec:         req.ElapsedSec,
		QualificationScore: req.QualificationScore,
		LatestUtterance:    req.LatestUtterance,
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "no eligible script")
			return
		}
		logger.Error("script selection failed", zap.Error(err))
		response.ServerError(c, "could not select script")
		return
	}
	response.Success(c, "", script)
}

// ActivateScript makes one script the single active script of its product.
func (h *Handlers) ActivateScript(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.Fail(c, "invalid script id", nil)
		return
	}
	script, err := models.ActivateScript(h.db, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "script not found")
			return
		}
		logger.Error("activate script failed", zap.Uint64("id", id), zap.Error(err))
		response.ServerError(c, "could not activate script")
		return
	}
	response.Success(c, "script activated", script)
}

// UsageFeedbackRequest reports one observed outcome for a script or an
// objection handler.
type UsageFeedbackRequest struct {
	Kind    string `json:"kind" binding:"required"` // "script" or "handler"
	ID      uint   `json:"id" binding:"required"`
	Success bool   `json:"success"`
}

// RecordUsageFeedback folds an observed success or failure into the target's
// cumulative success rate.
func (h *Handlers) RecordUsageFeedback(c *gin.Context) {
	var req UsageFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid feedback payload", nil)
		return
	}

	var (
		result interface{}
		err    error
	)
	switch req.Kind {
	case "script":
		result, err = models.RecordScriptUsage(h.db, req.ID, req.Success)
	case "handler":
		result, err = models.RecordHandlerUsage(h.db, req.ID, req.Success)
	default:
		response.Fail(c, "kind must be \"script\" or \"handler\"", nil)
		return
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, req.Kind+" not found")
			return
		}
		logger.Error("usage feedback failed", zap.String("kind", req.Kind), zap.Uint("id", req.ID), zap.Error(err))
		response.ServerError(c, "could not record usage feedback")
		return
	}
	response.Success(c, "usage recorded", result)
}
