package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dialwise/dialwise/internal/models"
	"github.com/dialwise/dialwise/pkg/logger"
	"github.com/dialwise/dialwise/pkg/response"
)

// QualificationRequest is a partial BANT update for one call.
type QualificationRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	models.QualificationUpdate
}

// UpdateQualification merges non-nil dimensions into the call's lead
// qualification, creating the record on first write. The derived score and
// level come back with the response.
func (h *Handlers) UpdateQualification(c *gin.Context) {
	var req QualificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid qualification payload", nil)
		return
	}

	qual, err := models.UpsertQualification(h.db, req.SessionID, req.QualificationUpdate)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			response.Fail(c, err.Error(), nil)
			return
		}
		logger.Error("qualification update failed", zap.String("sessionId", req.SessionID), zap.Error(err))
		response.ServerError(c, "could not update qualification")
		return
	}
	response.Success(c, "qualification updated", qual)
}

func (h *Handlers) GetQualification(c *gin.Context) {
	qual, err := models.GetQualification(h.db, c.Param("callId"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "qualification not found")
			return
		}
		response.ServerError(c, "could not load qualification")
		return
	}
	response.Success(c, "", qual)
}
