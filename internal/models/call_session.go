package models

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dialwise/dialwise/pkg/events"
	"github.com/dialwise/dialwise/pkg/logger"
	"github.com/dialwise/dialwise/pkg/metrics"
)

// CallStatus is a call session lifecycle state. in_progress is the only
// non-terminal state; terminal states are absorbing.
type CallStatus string

const (
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusSuccess    CallStatus = "success"
	CallStatusFailed     CallStatus = "failed"
	CallStatusMissed     CallStatus = "missed"
)

// Terminal reports whether the status absorbs further transitions.
func (s CallStatus) Terminal() bool {
	return s == CallStatusSuccess || s == CallStatusFailed || s == CallStatusMissed
}

// Call directions as reported by the voice engine.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// StuckCallThreshold is the default age after which an in-progress session
// is reclaimed to failed.
const StuckCallThreshold = time.Hour

// ReasonStuckTimeout is recorded in session metadata when the timeout sweep
// reclaims a session. It distinguishes reclamation from operator or natural
// call failures.
const ReasonStuckTimeout = "stuck_call_timeout"

// CallSession is one phone call tracked through its lifecycle. The registry
// owns it exclusively; qualification and analytics records attach 1:1 by
// SessionID.
type CallSession struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`

	SessionID string     `json:"sessionId" gorm:"uniqueIndex;size:200"`
	Direction string     `json:"direction" gorm:"size:20"`
	Caller    string     `json:"caller" gorm:"size:200"`
	Receiver  string     `json:"receiver" gorm:"size:200"`
	Status    CallStatus `json:"status" gorm:"size:20;index;default:'in_progress'"`

	StartedAt   time.Time  `json:"startedAt" gorm:"index"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	DurationSec int64      `json:"durationSec"`

	Transcript        string `json:"transcript" gorm:"type:text"`
	InterruptionCount int    `json:"interruptionCount"`
	Language          string `json:"language" gorm:"size:16"`

	AudioRef     string   `json:"audioRef,omitempty" gorm:"size:500"`
	Satisfaction *float64 `json:"satisfaction,omitempty"`
	Metadata     Metadata `json:"metadata,omitempty" gorm:"type:json"`
}

func (CallSession) TableName() string {
	return "call_sessions"
}

// StartCallInput carries the optional fields of a call-start event. The
// voice engine may deliver events late or batched, so an explicit StartedAt
// is honored; absent, the wall clock stands in.
type StartCallInput struct {
	Direction string
	Caller    string
	Receiver  string
	Language  string
	Metadata  Metadata
	StartedAt *time.Time
}

// StartCall registers a session in in_progress. Duplicate starts for the
// same identifier are idempotent: the existing record is returned untouched.
// The bool result reports whether a new session was created.
func StartCall(db *gorm.DB, sessionID string, in StartCallInput) (*CallSession, bool, error) {
	if sessionID == "" {
		return nil, false, fmt.Errorf("%w: sessionId is required", ErrValidation)
	}

	var existing CallSession
	err := db.Where("session_id = ?", sessionID).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	startedAt := time.Now()
	if in.StartedAt != nil {
		startedAt = *in.StartedAt
	}
	session := CallSession{
		SessionID: sessionID,
		Direction: in.Direction,
		Caller:    in.Caller,
		Receiver:  in.Receiver,
		Status:    CallStatusInProgress,
		StartedAt: startedAt,
		Language:  in.Language,
		Metadata:  in.Metadata,
	}
	if err := db.Create(&session).Error; err != nil {
		// A concurrent duplicate start may have won the insert; surface the
		// winner instead of an error.
		if ferr := db.Where("session_id = ?", sessionID).First(&existing).Error; ferr == nil {
			return &existing, false, nil
		}
		return nil, false, err
	}

	events.Publish(events.CallStarted, sessionID, map[string]interface{}{
		"direction": in.Direction,
		"caller":    in.Caller,
		"receiver":  in.Receiver,
	})
	metrics.CountEvent(events.CallStarted)
	return &session, true, nil
}

// GetCallSession fetches a session by identifier.
func GetCallSession(db *gorm.DB, sessionID string) (*CallSession, error) {
	var session CallSession
	if err := db.Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// AppendTranscript appends a delta to the session transcript. The append is
// exclusive on the database row, so per-connection arrival order is kept.
func AppendTranscript(db *gorm.DB, sessionID, delta string) error {
	if delta == "" {
		return nil
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		var session CallSession
		if err := tx.Where("session_id = ?", sessionID).First(&session).Error; err != nil {
			return err
		}
		session.Transcript += delta
		return tx.Model(&session).Update("transcript", session.Transcript).Error
	})
	if err != nil {
		return err
	}

	// observers hear about the append only once it is committed
	events.Publish(events.TranscriptUpdated, sessionID, map[string]interface{}{
		"delta": delta,
	})
	metrics.CountEvent(events.TranscriptUpdated)
	return nil
}

// RecordInterruption atomically increments the interruption counter.
func RecordInterruption(db *gorm.DB, sessionID string) error {
	result := db.Model(&CallSession{}).
		Where("session_id = ?", sessionID).
		UpdateColumn("interruption_count", gorm.Expr("interruption_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	events.Publish(events.CallInterrupted, sessionID, nil)
	metrics.CountEvent(events.CallInterrupted)
	return nil
}

// UpdateCallInput carries optional mid-call fields from the voice engine.
// Every field merges on presence; absent fields leave the session untouched.
type UpdateCallInput struct {
	Direction string
	Caller    string
	Receiver  string
	Language  string
	Metadata  Metadata
}

// UpdateCallSession merges present fields into an existing session.
func UpdateCallSession(db *gorm.DB, sessionID string, in UpdateCallInput) (*CallSession, error) {
	var session CallSession
	if err := db.Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		return nil, err
	}

	if in.Direction != "" {
		session.Direction = in.Direction
	}
	if in.Caller != "" {
		session.Caller = in.Caller
	}
	if in.Receiver != "" {
		session.Receiver = in.Receiver
	}
	if in.Language != "" {
		session.Language = in.Language
	}
	if len(in.Metadata) > 0 {
		if session.Metadata == nil {
			session.Metadata = Metadata{}
		}
		for k, v := range in.Metadata {
			session.Metadata[k] = v
		}
	}
	if err := db.Save(&session).Error; err != nil {
		return nil, err
	}

	events.Publish(events.CallUpdated, sessionID, nil)
	metrics.CountEvent(events.CallUpdated)
	return &session, nil
}

// EndCallInput carries the optional final fields of a call-end event.
// All fields merge on presence.
type EndCallInput struct {
	Status       CallStatus
	Transcript   string
	AudioRef     string
	Satisfaction *float64
	EndedAt      *time.Time
}

// EndCall finalizes an in-progress session: end time, terminal status and
// derived duration. Missing or already-terminal sessions are a silent no-op.
func EndCall(db *gorm.DB, sessionID string, in EndCallInput) (*CallSession, error) {
	if in.Status == "" {
		in.Status = CallStatusSuccess
	}
	if !in.Status.Terminal() {
		return nil, fmt.Errorf("%w: %q is not a terminal status", ErrValidation, in.Status)
	}

	var session CallSession
	if err := db.Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if session.Status.Terminal() {
		return &session, nil
	}

	endedAt := time.Now()
	if in.EndedAt != nil {
		endedAt = *in.EndedAt
	}
	session.Status = in.Status
	session.EndedAt = &endedAt
	session.DurationSec = int64(endedAt.Sub(session.StartedAt).Seconds())
	if session.DurationSec < 0 {
		session.DurationSec = 0
	}
	if in.Transcript != "" {
		session.Transcript = in.Transcript
	}
	if in.AudioRef != "" {
		session.AudioRef = in.AudioRef
	}
	if in.Satisfaction != nil {
		session.Satisfaction = in.Satisfaction
	}
	if err := db.Save(&session).Error; err != nil {
		return nil, err
	}

	events.Publish(events.CallEnded, sessionID, map[string]interface{}{
		"status":      string(session.Status),
		"durationSec": session.DurationSec,
	})
	metrics.CountEvent(events.CallEnded)
	return &session, nil
}

// Terminate is the operator hard stop: legal only from in_progress, sets
// status=failed and the end time to now. There is no compare-and-swap; a
// race with a natural EndCall resolves last-write-wins, so a terminate that
// read the session as in_progress overwrites the concurrent natural end.
func Terminate(db *gorm.DB, sessionID, operator string) (*CallSession, error) {
	var session CallSession
	if err := db.Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		// repeated terminate is idempotent, not an error
		return &session, nil
	}

	now := time.Now()
	session.Status = CallStatusFailed
	session.EndedAt = &now
	session.DurationSec = int64(now.Sub(session.StartedAt).Seconds())
	if session.Metadata == nil {
		session.Metadata = Metadata{}
	}
	session.Metadata["terminated_by"] = operator
	if err := db.Save(&session).Error; err != nil {
		return nil, err
	}

	events.Publish(events.CallTerminated, sessionID, map[string]interface{}{
		"operator": operator,
	})
	metrics.CountEvent(events.CallTerminated)
	return &session, nil
}

// ReclaimStuck transitions every in-progress session older than threshold to
// failed, recording ReasonStuckTimeout in metadata. It returns the number of
// sessions reclaimed. Reclamation is a designed transition, not an error.
func ReclaimStuck(db *gorm.DB, threshold time.Duration) (int, error) {
	if threshold <= 0 {
		threshold = StuckCallThreshold
	}
	cutoff := time.Now().Add(-threshold)

	var stuck []CallSession
	if err := db.Where("status = ? AND started_at < ?", CallStatusInProgress, cutoff).Find(&stuck).Error; err != nil {
		return 0, err
	}
	if len(stuck) == 0 {
		return 0, nil
	}

	for i := range stuck {
		session := &stuck[i]
		now := time.Now()
		session.Status = CallStatusFailed
		session.EndedAt = &now
		session.DurationSec = int64(now.Sub(session.StartedAt).Seconds())
		if session.Metadata == nil {
			session.Metadata = Metadata{}
		}
		session.Metadata["reason"] = ReasonStuckTimeout
		if err := db.Save(session).Error; err != nil {
			return 0, err
		}
		logger.Info("reclaimed stuck call",
			zap.String("sessionId", session.SessionID),
			zap.Int64("ageSec", session.DurationSec))
		events.Publish(events.CallEnded, session.SessionID, map[string]interface{}{
			"status": string(CallStatusFailed),
			"reason": ReasonStuckTimeout,
		})
	}
	metrics.AddReclaimed(len(stuck))
	return len(stuck), nil
}

// ActiveSessions lists in-progress sessions, newest first. The stuck-call
// sweep runs first so no reader ever sees a session past the threshold.
func ActiveSessions(db *gorm.DB, threshold time.Duration) ([]CallSession, error) {
	if _, err := ReclaimStuck(db, threshold); err != nil {
		return nil, err
	}
	var sessions []CallSession
	err := db.Where("status = ?", CallStatusInProgress).
		Order("started_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	metrics.SetActiveCalls(int64(len(sessions)))
	return sessions, nil
}

// CountSessionsSince counts sessions created after the given time.
func CountSessionsSince(db *gorm.DB, since time.Time) (int64, error) {
	var n int64
	err := db.Model(&CallSession{}).Where("created_at >= ?", since).Count(&n).Error
	return n, err
}

// PurgeCallSession is the administrative hard delete. It removes the session
// and its attached qualification and analytics records.
func PurgeCallSession(db *gorm.DB, sessionID string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var session CallSession
		if err := tx.Where("session_id = ?", sessionID).First(&session).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&LeadQualification{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&SalesAnalytics{}).Error; err != nil {
			return err
		}
		return tx.Delete(&session).Error
	})
}
