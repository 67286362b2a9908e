package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dialwise/dialwise/pkg/classifier"
)

// Script types.
const (
	ScriptTypeOpening           = "opening"
	ScriptTypeDiscovery         = "discovery"
	ScriptTypePitch             = "pitch"
	ScriptTypeObjectionHandling = "objection_handling"
	ScriptTypeClosing           = "closing"
)

// SalesScript is a conversation script template with eligibility conditions.
// Content keeps its named {{variable}} placeholders; substitution happens in
// the caller, the selector only returns the raw template plus Variables.
type SalesScript struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`

	ProductID uint   `json:"productId" gorm:"index"`
	Name      string `json:"name" gorm:"size:200"`

	Type      string            `json:"type" gorm:"size:40;index"`
	Stage     ConversationStage `json:"stage" gorm:"size:30;index"`
	Technique string            `json:"technique" gorm:"size:60;index"`
	Language  string            `json:"language" gorm:"size:16;index"`

	Content   string     `json:"content" gorm:"type:text"`
	Variables StringList `json:"variables,omitempty" gorm:"type:json"`

	Priority int `json:"priority" gorm:"default:5"` // 1-10

	// Eligibility conditions
	TriggerKeywords       StringList `json:"triggerKeywords,omitempty" gorm:"type:json"`
	MinQualificationScore int        `json:"minQualificationScore"`
	MaxCallDurationSec    int        `json:"maxCallDurationSec"`

	SuccessRate int  `json:"successRate"` // cumulative mean, 0-100
	UsageCount  int  `json:"usageCount"`
	Active      bool `json:"active" gorm:"index;default:true"`
}

func (SalesScript) TableName() string {
	return "sales_scripts"
}

// Validate rejects out-of-range script fields before any write.
func (s *SalesScript) Validate() error {
	if s.Priority < 1 || s.Priority > 10 {
		return fmt.Errorf("%w: priority must be between 1 and 10", ErrValidation)
	}
	if s.SuccessRate < 0 || s.SuccessRate > 100 {
		return fmt.Errorf("%w: successRate must be between 0 and 100", ErrValidation)
	}
	if s.Content == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	return nil
}

// ObjectionHandler is a canned response for one objection category.
type ObjectionHandler struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`

	Type     string     `json:"type" gorm:"size:40;index"`
	Keywords StringList `json:"keywords,omitempty" gorm:"type:json"`
	Language string     `json:"language" gorm:"size:16;index"`

	Response  string `json:"response" gorm:"type:text"`
	Technique string `json:"technique,omitempty" gorm:"size:60"`

	Priority    int  `json:"priority" gorm:"default:5"`
	SuccessRate int  `json:"successRate"`
	UsageCount  int  `json:"usageCount"`
	Active      bool `json:"active" gorm:"index;default:true"`
}

func (ObjectionHandler) TableName() string {
	return "objection_handlers"
}

// Validate rejects malformed handlers before any write.
func (h *ObjectionHandler) Validate() error {
	if !classifier.Valid(classifier.Type(h.Type)) {
		return fmt.Errorf("%w: unknown objection type %q", ErrValidation, h.Type)
	}
	if h.Response == "" {
		return fmt.Errorf("%w: response is required", ErrValidation)
	}
	if h.Priority < 1 || h.Priority > 10 {
		return fmt.Errorf("%w: priority must be between 1 and 10", ErrValidation)
	}
	return nil
}

// ScriptFilter narrows script listings. Zero values mean "any".
type ScriptFilter struct {
	ProductID uint
	Stage     ConversationStage
	Type      string
	Technique string
	Language  string
}

// ListScripts returns scripts matching the filter, ranked by priority then
// success rate, ties broken by creation order.
func ListScripts(db *gorm.DB, f ScriptFilter) ([]SalesScript, error) {
	query := db.Model(&SalesScript{})
	if f.ProductID != 0 {
		query = query.Where("product_id = ?", f.ProductID)
	}
	if f.Stage != "" {
		query = query.Where("stage = ?", f.Stage)
	}
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	if f.Technique != "" {
		query = query.Where("technique = ?", f.Technique)
	}
	if f.Language != "" {
		query = query.Where("language = ?", f.Language)
	}
	var scripts []SalesScript
	err := query.Order("priority DESC, success_rate DESC, id ASC").Find(&scripts).Error
	return scripts, err
}

// SelectionInput is the conversation state a script is matched against.
type SelectionInput struct {
	ProductID          uint
	Stage              ConversationStage
	Language           string
	ElapsedSec         int
	QualificationScore int
	LatestUtterance    string
}

// SelectScript returns the best eligible script, or gorm.ErrRecordNotFound
// when nothing qualifies. All eligibility gates must pass: product, stage
// and language match, active flag, elapsed duration within the script's
// maximum, qualification score at or above the script's minimum, and, for
// scripts that declare trigger keywords, a keyword hit in the latest
// utterance. Candidates rank by priority desc, success rate desc, with
// creation order (id asc) as the deterministic tie break.
func SelectScript(db *gorm.DB, in SelectionInput) (*SalesScript, error) {
	var candidates []SalesScript
	err := db.Where("product_id = ? AND stage = ? AND language = ? AND active = ?",
		in.ProductID, in.Stage, in.Language, true).
		Order("priority DESC, success_rate DESC, id ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	utterance := strings.ToLower(in.LatestUtterance)
	for i := range candidates {
		s := &candidates[i]
		if s.MaxCallDurationSec > 0 && in.ElapsedSec > s.MaxCallDurationSec {
			continue
		}
		if in.QualificationScore < s.MinQualificationScore {
			continue
		}
		if len(s.TriggerKeywords) > 0 && !keywordHit(utterance, s.TriggerKeywords) {
			continue
		}
		return s, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func keywordHit(utterance string, keywords StringList) bool {
	if utterance == "" {
		return false
	}
	for _, kw := range keywords {
		if strings.Contains(utterance, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// BestHandler returns the top-ranked active handler for an objection type
// and language: priority desc, then success rate desc, then creation order.
// A mixed or absent language tag ranks handlers of every language, the same
// way the classifier matches both vocabularies for code-switched calls.
func BestHandler(db *gorm.DB, objectionType, language string) (*ObjectionHandler, error) {
	query := db.Where("type = ? AND active = ?", objectionType, true)
	if language != "" && language != classifier.LangMixed {
		query = query.Where("language = ?", language)
	}

	var handler ObjectionHandler
	err := query.Order("priority DESC, success_rate DESC, id ASC").
		First(&handler).Error
	if err != nil {
		return nil, err
	}
	return &handler, nil
}

// ListHandlers returns handlers matching type and/or language, ranked.
func ListHandlers(db *gorm.DB, objectionType, language string) ([]ObjectionHandler, error) {
	query := db.Model(&ObjectionHandler{}).Where("active = ?", true)
	if objectionType != "" {
		query = query.Where("type = ?", objectionType)
	}
	if language != "" {
		query = query.Where("language = ?", language)
	}
	var handlers []ObjectionHandler
	err := query.Order("priority DESC, success_rate DESC, id ASC").Find(&handlers).Error
	return handlers, err
}

// cumulativeRate folds one success/failure observation into a cumulative
// mean success rate. Every historical observation keeps equal weight.
func cumulativeRate(oldRate, usageCount int, success bool) int {
	observed := 0
	if success {
		observed = 100
	}
	rate := int(math.Round((float64(oldRate)*float64(usageCount-1) + float64(observed)) / float64(usageCount)))
	if rate < 0 {
		rate = 0
	}
	if rate > 100 {
		rate = 100
	}
	return rate
}

// RecordScriptUsage applies one usage observation to a script: increments
// the usage count and folds the outcome into the cumulative success rate.
func RecordScriptUsage(db *gorm.DB, id uint, success bool) (*SalesScript, error) {
	var script SalesScript
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&script, id).Error; err != nil {
			return err
		}
		script.UsageCount++
		script.SuccessRate = cumulativeRate(script.SuccessRate, script.UsageCount, success)
		return tx.Model(&script).Updates(map[string]interface{}{
			"usage_count":  script.UsageCount,
			"success_rate": script.SuccessRate,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &script, nil
}

// RecordHandlerUsage applies one usage observation to an objection handler.
func RecordHandlerUsage(db *gorm.DB, id uint, success bool) (*ObjectionHandler, error) {
	var handler ObjectionHandler
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&handler, id).Error; err != nil {
			return err
		}
		handler.UsageCount++
		handler.SuccessRate = cumulativeRate(handler.SuccessRate, handler.UsageCount, success)
		return tx.Model(&handler).Updates(map[string]interface{}{
			"usage_count":  handler.UsageCount,
			"success_rate": handler.SuccessRate,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &handler, nil
}

// ActivateScript makes one script the single active script of its product.
// Deactivate-all and activate-one run in one transaction so no reader ever
// observes zero or two active scripts for the product.
func ActivateScript(db *gorm.DB, scriptID uint) (*SalesScript, error) {
	var script SalesScript
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&script, scriptID).Error; err != nil {
			return err
		}
		if err := tx.Model(&SalesScript{}).
			Where("product_id = ?", script.ProductID).
			Update("active", false).Error; err != nil {
			return err
		}
		script.Active = true
		return tx.Model(&script).Update("active", true).Error
	})
	if err != nil {
		return nil, err
	}
	return &script, nil
}
