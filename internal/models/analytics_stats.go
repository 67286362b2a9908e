package models

import (
	"time"

	"gorm.io/gorm"
)

// FunnelEntry is the number of calls whose conversation reached a stage.
type FunnelEntry struct {
	Stage ConversationStage `json:"stage"`
	Count int64             `json:"count"`
}

// GetFunnelBreakdown counts analytics records per current funnel stage, in
// canonical funnel order (lost appended last).
func GetFunnelBreakdown(db *gorm.DB, from, to *time.Time) ([]FunnelEntry, error) {
	rows, err := analyticsInRange(db, from, to)
	if err != nil {
		return nil, err
	}

	counts := make(map[ConversationStage]int64)
	for _, a := range rows {
		counts[a.Stage]++
	}

	stages := append(append([]ConversationStage{}, FunnelStages...), StageLost)
	breakdown := make([]FunnelEntry, 0, len(stages))
	for _, stage := range stages {
		breakdown = append(breakdown, FunnelEntry{Stage: stage, Count: counts[stage]})
	}
	return breakdown, nil
}

// ObjectionStats aggregates one objection category across calls.
type ObjectionStats struct {
	Type                 string  `json:"type"`
	Count                int64   `json:"count"`
	ResolvedCount        int64   `json:"resolvedCount"`
	ResolutionRate       float64 `json:"resolutionRate"`
	AvgResolutionTimeSec float64 `json:"avgResolutionTimeSec"`
}

// GetObjectionAnalysis aggregates objection counts, resolution rates and
// average resolution time per category.
func GetObjectionAnalysis(db *gorm.DB, from, to *time.Time) ([]ObjectionStats, error) {
	rows, err := analyticsInRange(db, from, to)
	if err != nil {
		return nil, err
	}

	byType := make(map[string]*ObjectionStats)
	order := []string{}
	resolutionSum := make(map[string]float64)
	for _, a := range rows {
		for _, o := range a.Objections {
			stats, ok := byType[o.Type]
			if !ok {
				stats = &ObjectionStats{Type: o.Type}
				byType[o.Type] = stats
				order = append(order, o.Type)
			}
			stats.Count++
			if o.Resolved {
				stats.ResolvedCount++
				resolutionSum[o.Type] += o.ResolutionTimeSec
			}
		}
	}

	result := make([]ObjectionStats, 0, len(order))
	for _, t := range order {
		stats := byType[t]
		if stats.Count > 0 {
			stats.ResolutionRate = float64(stats.ResolvedCount) / float64(stats.Count)
		}
		if stats.ResolvedCount > 0 {
			stats.AvgResolutionTimeSec = resolutionSum[t] / float64(stats.ResolvedCount)
		}
		result = append(result, *stats)
	}
	return result, nil
}

// TechniqueStats aggregates one technique across calls. ConversionRate is
// converted calls over calls that used the technique at least once.
type TechniqueStats struct {
	Technique      string  `json:"technique"`
	UsageCount     int64   `json:"usageCount"`
	CallCount      int64   `json:"callCount"`
	ConvertedCalls int64   `json:"convertedCalls"`
	ConversionRate float64 `json:"conversionRate"`
}

// GetTechniquePerformance correlates technique usage with call outcomes.
func GetTechniquePerformance(db *gorm.DB, from, to *time.Time) ([]TechniqueStats, error) {
	rows, err := analyticsInRange(db, from, to)
	if err != nil {
		return nil, err
	}

	byTechnique := make(map[string]*TechniqueStats)
	order := []string{}
	for _, a := range rows {
		seen := make(map[string]bool)
		for _, t := range a.Techniques {
			stats, ok := byTechnique[t.Technique]
			if !ok {
				stats = &TechniqueStats{Technique: t.Technique}
				byTechnique[t.Technique] = stats
				order = append(order, t.Technique)
			}
			stats.UsageCount++
			if !seen[t.Technique] {
				seen[t.Technique] = true
				stats.CallCount++
				if a.Outcome == OutcomeConverted {
					stats.ConvertedCalls++
				}
			}
		}
	}

	result := make([]TechniqueStats, 0, len(order))
	for _, name := range order {
		stats := byTechnique[name]
		if stats.CallCount > 0 {
			stats.ConversionRate = float64(stats.ConvertedCalls) / float64(stats.CallCount)
		}
		result = append(result, *stats)
	}
	return result, nil
}

// QualityBuckets is the call-quality score distribution.
type QualityBuckets struct {
	Poor      int64 `json:"poor"`      // 0-25
	Fair      int64 `json:"fair"`      // 26-50
	Good      int64 `json:"good"`      // 51-75
	Excellent int64 `json:"excellent"` // 76-100
}

// GetQualityBuckets buckets calls by composite quality score.
func GetQualityBuckets(db *gorm.DB, from, to *time.Time) (*QualityBuckets, error) {
	rows, err := analyticsInRange(db, from, to)
	if err != nil {
		return nil, err
	}

	buckets := &QualityBuckets{}
	for _, a := range rows {
		switch {
		case a.QualityScore <= 25:
			buckets.Poor++
		case a.QualityScore <= 50:
			buckets.Fair++
		case a.QualityScore <= 75:
			buckets.Good++
		default:
			buckets.Excellent++
		}
	}
	return buckets, nil
}

// AnalyticsSummary is the combined dashboard read.
type AnalyticsSummary struct {
	Funnel        []FunnelEntry       `json:"funnel"`
	Objections    []ObjectionStats    `json:"objections"`
	Techniques    []TechniqueStats    `json:"techniques"`
	Qualification *QualificationStats `json:"qualification"`
	Quality       *QualityBuckets     `json:"quality"`
	ActiveCalls   int64               `json:"activeCalls"`
}

// GetAnalyticsSummary assembles the combined summary in one read.
func GetAnalyticsSummary(db *gorm.DB, from, to *time.Time, stuckThreshold time.Duration) (*AnalyticsSummary, error) {
	funnel, err := GetFunnelBreakdown(db, from, to)
	if err != nil {
		return nil, err
	}
	objections, err := GetObjectionAnalysis(db, from, to)
	if err != nil {
		return nil, err
	}
	techniques, err := GetTechniquePerformance(db, from, to)
	if err != nil {
		return nil, err
	}
	qualification, err := GetQualificationStats(db, from, to)
	if err != nil {
		return nil, err
	}
	quality, err := GetQualityBuckets(db, from, to)
	if err != nil {
		return nil, err
	}
	active, err := ActiveSessions(db, stuckThreshold)
	if err != nil {
		return nil, err
	}

	return &AnalyticsSummary{
		Funnel:        funnel,
		Objections:    objections,
		Techniques:    techniques,
		Qualification: qualification,
		Quality:       quality,
		ActiveCalls:   int64(len(active)),
	}, nil
}

func analyticsInRange(db *gorm.DB, from, to *time.Time) ([]SalesAnalytics, error) {
	query := db.Model(&SalesAnalytics{})
	if from != nil {
		query = query.Where("created_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("created_at <= ?", *to)
	}
	var rows []SalesAnalytics
	if err := query.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
