package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dialwise/dialwise/pkg/scoring"
)

// Call outcomes.
const (
	OutcomeConverted = "converted"
	OutcomeLost      = "lost"
	OutcomeFollowUp  = "follow_up"
	OutcomeNoAnswer  = "no_answer"
)

// ObjectionRecord is one objection faced during a call.
type ObjectionRecord struct {
	Type              string    `json:"type"`
	Timestamp         time.Time `json:"timestamp"`
	Resolved          bool      `json:"resolved"`
	ResolutionTimeSec float64   `json:"resolutionTimeSec,omitempty"`
}

// TechniqueUse is one sales technique applied during a call.
type TechniqueUse struct {
	Technique string    `json:"technique"`
	Timestamp time.Time `json:"timestamp"`
}

// SentimentPoint is one sentiment sample in call order.
type SentimentPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}

// KeyPhrase is a notable phrase mentioned by the caller.
type KeyPhrase struct {
	Phrase    string    `json:"phrase"`
	Timestamp time.Time `json:"timestamp"`
}

// StageTiming records when a funnel stage was entered and how long it held.
type StageTiming struct {
	Stage       ConversationStage `json:"stage"`
	EnteredAt   time.Time         `json:"enteredAt"`
	DurationSec float64           `json:"durationSec,omitempty"`
}

// ObjectionList, TechniqueList, SentimentList, PhraseList and
// StageTimingList are JSON-encoded ordered columns.
type (
	ObjectionList   []ObjectionRecord
	TechniqueList   []TechniqueUse
	SentimentList   []SentimentPoint
	PhraseList      []KeyPhrase
	StageTimingList []StageTiming
)

func (l ObjectionList) Value() (driver.Value, error)   { return listValue(l) }
func (l *ObjectionList) Scan(v interface{}) error      { return scanJSON(l, v) }
func (l TechniqueList) Value() (driver.Value, error)   { return listValue(l) }
func (l *TechniqueList) Scan(v interface{}) error      { return scanJSON(l, v) }
func (l SentimentList) Value() (driver.Value, error)   { return listValue(l) }
func (l *SentimentList) Scan(v interface{}) error      { return scanJSON(l, v) }
func (l PhraseList) Value() (driver.Value, error)      { return listValue(l) }
func (l *PhraseList) Scan(v interface{}) error         { return scanJSON(l, v) }
func (l StageTimingList) Value() (driver.Value, error) { return listValue(l) }
func (l *StageTimingList) Scan(v interface{}) error    { return scanJSON(l, v) }

func listValue(v interface{}) (driver.Value, error) {
	return json.Marshal(v)
}

// QualityBreakdown stores the sub-factor breakdown behind the composite
// score alongside it.
type QualityBreakdown scoring.Breakdown

func (b QualityBreakdown) Value() (driver.Value, error) { return json.Marshal(b) }
func (b *QualityBreakdown) Scan(v interface{}) error    { return scanJSON(b, v) }

// SalesAnalytics accumulates conversation signals for one call, keyed 1:1 by
// session. TalkListenRatio, QualityScore and QualityBreakdown are derived on
// every save from the current sub-signals, never cached: correcting a
// historical sentiment sample retroactively changes the composite score.
type SalesAnalytics struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`

	SessionID string            `json:"sessionId" gorm:"uniqueIndex;size:200"`
	Stage     ConversationStage `json:"stage" gorm:"size:30;index"`

	Objections ObjectionList `json:"objections,omitempty" gorm:"type:json"`
	Techniques TechniqueList `json:"techniques,omitempty" gorm:"type:json"`
	Sentiment  SentimentList `json:"sentiment,omitempty" gorm:"type:json"`
	KeyPhrases PhraseList    `json:"keyPhrases,omitempty" gorm:"type:json"`

	TalkSeconds     float64 `json:"talkSeconds"`
	ListenSeconds   float64 `json:"listenSeconds"`
	TalkListenRatio float64 `json:"talkListenRatio"`
	TargetRatio     float64 `json:"targetRatio" gorm:"default:0.4"`

	Outcome string `json:"outcome,omitempty" gorm:"size:30;index"`

	QualityScore     int              `json:"qualityScore"`
	QualityBreakdown QualityBreakdown `json:"qualityBreakdown" gorm:"type:json"`

	StageTimings StageTimingList `json:"stageTimings,omitempty" gorm:"type:json"`
}

func (SalesAnalytics) TableName() string {
	return "sales_analytics"
}

// Recompute derives the talk/listen ratio and the composite quality score
// from current sub-signals.
func (a *SalesAnalytics) Recompute() {
	if a.TargetRatio <= 0 {
		a.TargetRatio = scoring.DefaultTargetRatio
	}
	total := a.TalkSeconds + a.ListenSeconds
	if total > 0 {
		a.TalkListenRatio = a.TalkSeconds / total
	} else {
		a.TalkListenRatio = 0
	}

	samples := make([]scoring.SentimentSample, len(a.Sentiment))
	for i, p := range a.Sentiment {
		samples[i] = scoring.SentimentSample{Score: p.Score}
	}
	resolved := 0
	for _, o := range a.Objections {
		if o.Resolved {
			resolved++
		}
	}

	score, breakdown := scoring.Quality(
		a.TalkListenRatio, a.TargetRatio,
		samples, len(a.StageTimings),
		resolved, len(a.Objections),
	)
	a.QualityScore = score
	a.QualityBreakdown = QualityBreakdown(breakdown)
}

// BeforeSave guarantees persisted records are always fully derived.
func (a *SalesAnalytics) BeforeSave(*gorm.DB) error {
	a.Recompute()
	return nil
}

// AnalyticsUpdate is a partial analytics write; every field merges or
// appends on presence.
type AnalyticsUpdate struct {
	Stage          *ConversationStage `json:"stage"`
	Objection      *ObjectionRecord   `json:"objection"`
	ResolveType    *string            `json:"resolveObjection"` // marks latest unresolved objection of this type resolved
	Technique      *string            `json:"technique"`
	Sentiment      *SentimentPoint    `json:"sentiment"`
	KeyPhrase      *string            `json:"keyPhrase"`
	TalkSeconds    *float64           `json:"talkSeconds"`
	ListenSeconds  *float64           `json:"listenSeconds"`
	TargetRatio    *float64           `json:"targetRatio"`
	Outcome        *string            `json:"outcome"`
}

func (u AnalyticsUpdate) validate() error {
	if u.Outcome != nil {
		switch *u.Outcome {
		case OutcomeConverted, OutcomeLost, OutcomeFollowUp, OutcomeNoAnswer:
		default:
			return fmt.Errorf("%w: unknown outcome %q", ErrValidation, *u.Outcome)
		}
	}
	if u.TalkSeconds != nil && *u.TalkSeconds < 0 {
		return fmt.Errorf("%w: talkSeconds must not be negative", ErrValidation)
	}
	if u.ListenSeconds != nil && *u.ListenSeconds < 0 {
		return fmt.Errorf("%w: listenSeconds must not be negative", ErrValidation)
	}
	if u.TargetRatio != nil && (*u.TargetRatio <= 0 || *u.TargetRatio >= 1) {
		return fmt.Errorf("%w: targetRatio must be within (0,1)", ErrValidation)
	}
	return nil
}

// UpsertAnalytics merges a partial update into the session's analytics
// record, creating it lazily on first write. Stage changes append a stage
// timing entry and close the previous one.
func UpsertAnalytics(db *gorm.DB, sessionID string, upd AnalyticsUpdate) (*SalesAnalytics, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrValidation)
	}
	if err := upd.validate(); err != nil {
		return nil, err
	}

	var a SalesAnalytics
	err := db.Where("session_id = ?", sessionID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		a = SalesAnalytics{SessionID: sessionID, Stage: StageGreeting, TargetRatio: scoring.DefaultTargetRatio}
	} else if err != nil {
		return nil, err
	}

	now := time.Now()
	if upd.Stage != nil && *upd.Stage != a.Stage {
		a.Stage = *upd.Stage
		if n := len(a.StageTimings); n > 0 && a.StageTimings[n-1].DurationSec == 0 {
			a.StageTimings[n-1].DurationSec = now.Sub(a.StageTimings[n-1].EnteredAt).Seconds()
		}
		a.StageTimings = append(a.StageTimings, StageTiming{Stage: *upd.Stage, EnteredAt: now})
	}
	if upd.Objection != nil {
		rec := *upd.Objection
		if rec.Timestamp.IsZero() {
			rec.Timestamp = now
		}
		a.Objections = append(a.Objections, rec)
	}
	if upd.ResolveType != nil {
		for i := len(a.Objections) - 1; i >= 0; i-- {
			if a.Objections[i].Type == *upd.ResolveType && !a.Objections[i].Resolved {
				a.Objections[i].Resolved = true
				a.Objections[i].ResolutionTimeSec = now.Sub(a.Objections[i].Timestamp).Seconds()
				break
			}
		}
	}
	if upd.Technique != nil {
		a.Techniques = append(a.Techniques, TechniqueUse{Technique: *upd.Technique, Timestamp: now})
	}
	if upd.Sentiment != nil {
		point := *upd.Sentiment
		if point.Timestamp.IsZero() {
			point.Timestamp = now
		}
		a.Sentiment = append(a.Sentiment, point)
	}
	if upd.KeyPhrase != nil {
		a.KeyPhrases = append(a.KeyPhrases, KeyPhrase{Phrase: *upd.KeyPhrase, Timestamp: now})
	}
	if upd.TalkSeconds != nil {
		a.TalkSeconds = *upd.TalkSeconds
	}
	if upd.ListenSeconds != nil {
		a.ListenSeconds = *upd.ListenSeconds
	}
	if upd.TargetRatio != nil {
		a.TargetRatio = *upd.TargetRatio
	}
	if upd.Outcome != nil {
		a.Outcome = *upd.Outcome
	}

	if err := db.Save(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAnalytics fetches the analytics record for a session.
func GetAnalytics(db *gorm.DB, sessionID string) (*SalesAnalytics, error) {
	var a SalesAnalytics
	if err := db.Where("session_id = ?", sessionID).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}
