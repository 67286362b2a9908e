package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dialwise/dialwise/internal/models"
	"github.com/dialwise/dialwise/pkg/events"
	"github.com/dialwise/dialwise/pkg/logger"
	"github.com/dialwise/dialwise/pkg/response"
)

// CallEventRequest is the lifecycle ingress payload from the voice engine.
// Type selects the operation; the remaining fields merge on presence.
type CallEventRequest struct {
	Type      string `json:"type" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`

	Direction string          `json:"direction,omitempty"`
	Caller    string          `json:"caller,omitempty"`
	Receiver  string          `json:"receiver,omitempty"`
	Language  string          `json:"language,omitempty"`
	Metadata  models.Metadata `json:"metadata,omitempty"`

	// event timestamps; absent fields fall back to the server clock, so
	// delayed or batched delivery keeps the engine's times
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`

	TranscriptDelta string `json:"transcriptDelta,omitempty"`

	Status       string   `json:"status,omitempty"`
	Transcript   string   `json:"transcript,omitempty"`
	AudioRef     string   `json:"audioRef,omitempty"`
	Satisfaction *float64 `json:"satisfaction,omitempty"`
}

// HandleCallEvent dispatches one lifecycle event to the session registry.
func (h *Handlers) HandleCallEvent(c *gin.Context) {
	var req CallEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid event payload", nil)
		return
	}

	switch req.Type {
	case events.CallStarted:
		session, created, err := models.StartCall(h.db, req.SessionID, models.StartCallInput{
			Direction: req.Direction,
			Caller:    req.Caller,
			Receiver:  req.Receiver,
			Language:  req.Language,
			Metadata:  req.Metadata,
			StartedAt: req.StartedAt,
		})
		if err != nil {
			logger.Error("start call failed", zap.String("sessionId", req.SessionID), zap.Error(err))
			response.ServerError(c, "could not start call")
			return
		}
		if !created {
			response.Success(c, "call already started", session)
			return
		}
		response.Success(c, "call started", session)

	case events.CallUpdated:
		session, err := models.UpdateCallSession(h.db, req.SessionID, models.UpdateCallInput{
			Direction: req.Direction,
			Caller:    req.Caller,
			Receiver:  req.Receiver,
			Language:  req.Language,
			Metadata:  req.Metadata,
		})
		if err != nil {
			h.callWriteError(c, req.SessionID, "update call", err)
			return
		}
		response.Success(c, "call updated", session)

	case events.TranscriptUpdated:
		if req.TranscriptDelta == "" {
			response.Fail(c, "transcriptDelta is required", nil)
			return
		}
		if err := models.AppendTranscript(h.db, req.SessionID, req.TranscriptDelta); err != nil {
			h.callWriteError(c, req.SessionID, "append transcript", err)
			return
		}
		response.Success(c, "transcript appended", nil)

	case events.CallInterrupted:
		if err := models.RecordInterruption(h.db, req.SessionID); err != nil {
			h.callWriteError(c, req.SessionID, "record interruption", err)
			return
		}
		response.Success(c, "interruption recorded", nil)

	case events.CallEnded:
		session, err := models.EndCall(h.db, req.SessionID, models.EndCallInput{
			Status:       models.CallStatus(req.Status),
			Transcript:   req.Transcript,
			AudioRef:     req.AudioRef,
			Satisfaction: req.Satisfaction,
			EndedAt:      req.EndedAt,
		})
		if err != nil {
			h.callWriteError(c, req.SessionID, "end call", err)
			return
		}
		if session == nil {
			// unknown session; end events for untracked calls are ignored
			response.Success(c, "call not tracked", nil)
			return
		}
		response.Success(c, "call ended", session)

	default:
		response.Fail(c, "unknown event type", gin.H{"type": req.Type})
	}
}

func (h *Handlers) callWriteError(c *gin.Context, sessionID, op string, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		response.NotFound(c, "call session not found")
	case errors.Is(err, models.ErrValidation):
		response.Fail(c, err.Error(), nil)
	default:
		logger.Error(op+" failed", zap.String("sessionId", sessionID), zap.Error(err))
		response.ServerError(c, op+" failed")
	}
}

// ListActiveCalls returns in-progress sessions, newest first. Stuck sessions
// are reclaimed before the read so the list never shows expired calls.
func (h *Handlers) ListActiveCalls(c *gin.Context) {
	sessions, err := models.ActiveSessions(h.db, h.stuckThreshold())
	if err != nil {
		logger.Error("list active calls failed", zap.Error(err))
		response.ServerError(c, "could not list active calls")
		return
	}
	response.Success(c, "", gin.H{"calls": sessions, "count": len(sessions)})
}

func (h *Handlers) GetCall(c *gin.Context) {
	session, err := models.GetCallSession(h.db, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "call session not found")
			return
		}
		response.ServerError(c, "could not load call session")
		return
	}
	response.Success(c, "", session)
}

// TerminateCall is the operator hard stop. Terminating an already-ended
// session returns the session unchanged.
func (h *Handlers) TerminateCall(c *gin.Context) {
	var req struct {
		Operator string `json:"operator"`
	}
	_ = c.ShouldBindJSON(&req)

	session, err := models.Terminate(h.db, c.Param("id"), req.Operator)
	if err != nil {
		h.callWriteError(c, c.Param("id"), "terminate call", err)
		return
	}
	response.Success(c, "call terminated", session)
}

// PurgeCall removes a session and its attached qualification and analytics
// records.
func (h *Handlers) PurgeCall(c *gin.Context) {
	if err := models.PurgeCallSession(h.db, c.Param("id")); err != nil {
		h.callWriteError(c, c.Param("id"), "purge call", err)
		return
	}
	response.Success(c, "call purged", nil)
}
