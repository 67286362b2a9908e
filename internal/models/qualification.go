package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// QualificationLevel buckets a BANT score.
type QualificationLevel string

const (
	LevelHigh        QualificationLevel = "high"
	LevelMedium      QualificationLevel = "medium"
	LevelLow         QualificationLevel = "low"
	LevelUnqualified QualificationLevel = "unqualified"
)

// ConversationStage is a step of the conversion funnel.
type ConversationStage string

const (
	StageGreeting      ConversationStage = "greeting"
	StageQualification ConversationStage = "qualification"
	StagePresentation  ConversationStage = "presentation"
	StageObjection     ConversationStage = "objection"
	StageClosing       ConversationStage = "closing"
	StageConverted     ConversationStage = "converted"
	StageLost          ConversationStage = "lost"
)

// FunnelStages is the canonical funnel order used for stage-completion
// scoring and funnel breakdowns.
var FunnelStages = []ConversationStage{
	StageGreeting, StageQualification, StagePresentation,
	StageObjection, StageClosing, StageConverted,
}

const (
	dimensionMax = 10
	scoreMax     = 40
)

// LeadQualification is the BANT record for one call, keyed 1:1 by session.
// Score and Level are derived on every write and never independently set.
type LeadQualification struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`

	SessionID string `json:"sessionId" gorm:"uniqueIndex;size:200"`

	Budget    int `json:"budget"`
	Authority int `json:"authority"`
	Need      int `json:"need"`
	Timeline  int `json:"timeline"`

	BudgetNotes    string `json:"budgetNotes,omitempty" gorm:"type:text"`
	AuthorityNotes string `json:"authorityNotes,omitempty" gorm:"type:text"`
	NeedNotes      string `json:"needNotes,omitempty" gorm:"type:text"`
	TimelineNotes  string `json:"timelineNotes,omitempty" gorm:"type:text"`

	Score int                `json:"score"`
	Level QualificationLevel `json:"level" gorm:"size:20;index"`
	Stage ConversationStage  `json:"stage" gorm:"size:30;index"`
}

func (LeadQualification) TableName() string {
	return "lead_qualifications"
}

// recompute derives Score and Level from the four dimensions.
func (q *LeadQualification) recompute() {
	sum := q.Budget + q.Authority + q.Need + q.Timeline
	if sum < 0 {
		sum = 0
	}
	if sum > scoreMax {
		sum = scoreMax
	}
	q.Score = sum
	q.Level = LevelForScore(sum)
}

// BeforeSave keeps the derived fields consistent on every gorm write path.
func (q *LeadQualification) BeforeSave(*gorm.DB) error {
	q.recompute()
	return nil
}

// LevelForScore maps a total score to its qualification level. Thresholds
// are fixed and evaluated high to low.
func LevelForScore(score int) QualificationLevel {
	switch {
	case score >= 30:
		return LevelHigh
	case score >= 20:
		return LevelMedium
	case score >= 10:
		return LevelLow
	default:
		return LevelUnqualified
	}
}

// QualificationUpdate is a partial BANT write. Only non-nil dimensions are
// merged; the rest stay untouched.
type QualificationUpdate struct {
	Budget    *int `json:"budget"`
	Authority *int `json:"authority"`
	Need      *int `json:"need"`
	Timeline  *int `json:"timeline"`

	BudgetNotes    *string `json:"budgetNotes"`
	AuthorityNotes *string `json:"authorityNotes"`
	NeedNotes      *string `json:"needNotes"`
	TimelineNotes  *string `json:"timelineNotes"`

	Stage *ConversationStage `json:"stage"`
}

func (u QualificationUpdate) validate() error {
	for name, dim := range map[string]*int{
		"budget": u.Budget, "authority": u.Authority,
		"need": u.Need, "timeline": u.Timeline,
	} {
		if dim != nil && (*dim < 0 || *dim > dimensionMax) {
			return fmt.Errorf("%w: %s must be between 0 and %d", ErrValidation, name, dimensionMax)
		}
	}
	if u.Stage != nil {
		switch *u.Stage {
		case StageGreeting, StageQualification, StagePresentation,
			StageObjection, StageClosing, StageConverted, StageLost:
		default:
			return fmt.Errorf("%w: unknown stage %q", ErrValidation, *u.Stage)
		}
	}
	return nil
}

// UpsertQualification merges a partial update into the session's BANT record,
// creating it lazily on first write. The total score is recomputed inside the
// same write; out-of-range dimensions reject the whole update up front.
func UpsertQualification(db *gorm.DB, sessionID string, upd QualificationUpdate) (*LeadQualification, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrValidation)
	}
	if err := upd.validate(); err != nil {
		return nil, err
	}

	var q LeadQualification
	err := db.Where("session_id = ?", sessionID).First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		q = LeadQualification{SessionID: sessionID, Stage: StageGreeting}
	} else if err != nil {
		return nil, err
	}

	if upd.Budget != nil {
		q.Budget = *upd.Budget
	}
	if upd.Authority != nil {
		q.Authority = *upd.Authority
	}
	if upd.Need != nil {
		q.Need = *upd.Need
	}
	if upd.Timeline != nil {
		q.Timeline = *upd.Timeline
	}
	if upd.BudgetNotes != nil {
		q.BudgetNotes = *upd.BudgetNotes
	}
	if upd.AuthorityNotes != nil {
		q.AuthorityNotes = *upd.AuthorityNotes
	}
	if upd.NeedNotes != nil {
		q.NeedNotes = *upd.NeedNotes
	}
	if upd.TimelineNotes != nil {
		q.TimelineNotes = *upd.TimelineNotes
	}
	if upd.Stage != nil {
		q.Stage = *upd.Stage
	}

	if err := db.Save(&q).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

// GetQualification fetches the BANT record for a session.
func GetQualification(db *gorm.DB, sessionID string) (*LeadQualification, error) {
	var q LeadQualification
	if err := db.Where("session_id = ?", sessionID).First(&q).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

// QualificationStats are the aggregate queries over BANT records.
type QualificationStats struct {
	Total          int64   `json:"total"`
	QualifiedCount int64   `json:"qualifiedCount"` // score >= 20
	HighCount      int64   `json:"highCount"`      // score >= 30
	ConvertedCount int64   `json:"convertedCount"`
	AverageScore   float64 `json:"averageScore"`
}

// GetQualificationStats aggregates BANT records, optionally bounded to a
// creation date range.
func GetQualificationStats(db *gorm.DB, from, to *time.Time) (*QualificationStats, error) {
	base := func() *gorm.DB {
		q := db.Model(&LeadQualification{})
		if from != nil {
			q = q.Where("created_at >= ?", *from)
		}
		if to != nil {
			q = q.Where("created_at <= ?", *to)
		}
		return q
	}

	stats := &QualificationStats{}
	if err := base().Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := base().Where("score >= ?", 20).Count(&stats.QualifiedCount).Error; err != nil {
		return nil, err
	}
	if err := base().Where("score >= ?", 30).Count(&stats.HighCount).Error; err != nil {
		return nil, err
	}
	if err := base().
		Where("session_id IN (?)", db.Model(&SalesAnalytics{}).Select("session_id").Where("outcome = ?", OutcomeConverted)).
		Count(&stats.ConvertedCount).Error; err != nil {
		return nil, err
	}
	if stats.Total > 0 {
		var avg *float64
		if err := base().Select("AVG(score)").Scan(&avg).Error; err != nil {
			return nil, err
		}
		if avg != nil {
			stats.AverageScore = *avg
		}
	}
	return stats, nil
}
