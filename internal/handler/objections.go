package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dialwise/dialwise/internal/models"
	"github.com/dialwise/dialwise/pkg/classifier"
	"github.com/dialwise/dialwise/pkg/logger"
	"github.com/dialwise/dialwise/pkg/response"
)

// ClassifyObjection matches a customer utterance against the objection
// vocabulary and, when asked, attaches the top-ranked handler per match.
func (h *Handlers) ClassifyObjection(c *gin.Context) {
	var req struct {
		Utterance       string `json:"utterance" binding:"required"`
		Language        string `json:"language"`
		IncludeHandlers bool   `json:"includeHandlers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "utterance is required", nil)
		return
	}

	matched := classifier.Classify(req.Utterance, req.Language)

	result := gin.H{"matchedTypes": matched}
	if req.IncludeHandlers && len(matched) > 0 {
		handlers := make(map[string]*models.ObjectionHandler, len(matched))
		for _, t := range matched {
			handler, err := models.BestHandler(h.db, string(t), req.Language)
			if err != nil {
				continue // no handler configured for this type
			}
			handlers[string(t)] = handler
		}
		result["handlers"] = handlers
	}
	response.Success(c, "", result)
}

func (h *Handlers) ListObjectionHandlers(c *gin.Context) {
	handlers, err := models.ListHandlers(h.db, c.Query("type"), c.Query("language"))
	if err != nil {
		logger.Error("list objection handlers failed", zap.Error(err))
		response.ServerError(c, "could not list objection handlers")
		return
	}
	response.Success(c, "", gin.H{"handlers": handlers, "count": len(handlers)})
}

func (h *Handlers) CreateObjectionHandler(c *gin.Context) {
	var handler models.ObjectionHandler
	if err := c.ShouldBindJSON(&handler); err != nil {
		response.Fail(c, "invalid handler payload", nil)
		return
	}
	handler.ID = 0
	handler.Active = true
	if handler.Priority == 0 {
		handler.Priority = 5
	}

	if err := handler.Validate(); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	if err := h.db.Create(&handler).Error; err != nil {
		logger.Error("create objection handler failed", zap.Error(err))
		response.ServerError(c, "could not create objection handler")
		return
	}
	response.Success(c, "objection handler created", handler)
}
