package scoring

import "math"

// FunnelStageCount is the canonical conversion funnel length:
// greeting, qualification, presentation, objection, closing, converted.
const FunnelStageCount = 6

// DefaultTargetRatio is the talk/listen balance a rep is coached toward.
const DefaultTargetRatio = 0.4

// SentimentSample is one observed sentiment reading during a call.
type SentimentSample struct {
	Score float64
}

// Breakdown holds the four sub-scores behind a composite quality score.
// Each sub-score contributes at most 25 points.
type Breakdown struct {
	TalkListen          float64 `json:"talkListen"`
	SentimentTrend      float64 `json:"sentimentTrend"`
	StageCompletion     float64 `json:"stageCompletion"`
	ObjectionResolution float64 `json:"objectionResolution"`
}

// TalkListenScore rewards closeness to the target talk/listen ratio.
func TalkListenScore(actual, target float64) float64 {
	score := 25 - math.Abs(actual-target)*100
	if score < 0 {
		return 0
	}
	return score
}

// SentimentTrendScore rewards sentiment improving over the call. With fewer
// than two samples there is no trend and the score is a neutral 25.
func SentimentTrendScore(samples []SentimentSample) float64 {
	if len(samples) < 2 {
		return 25
	}
	score := 25 + (samples[len(samples)-1].Score-samples[0].Score)*25
	if score < 0 {
		return 0
	}
	return score
}

// StageCompletionScore rewards progress through the conversion funnel.
func StageCompletionScore(stagesRecorded int) float64 {
	return float64(stagesRecorded) / FunnelStageCount * 25
}

// ObjectionResolutionScore rewards resolving the objections that came up.
// A call with no objections earns the full 25: no friction is not penalized.
func ObjectionResolutionScore(resolved, total int) float64 {
	if total == 0 {
		return 25
	}
	return float64(resolved) / float64(total) * 25
}

// Composite computes the 0-100 call quality score from a breakdown.
func Composite(b Breakdown) int {
	sum := b.TalkListen + b.SentimentTrend + b.StageCompletion + b.ObjectionResolution
	if sum < 0 {
		sum = 0
	}
	if sum > 100 {
		sum = 100
	}
	return int(math.Round(sum))
}

// Quality derives the breakdown and composite score from raw call signals.
// It is a pure function of its inputs so a corrected historical sample
// changes the score on the next save.
func Quality(actualRatio, targetRatio float64, samples []SentimentSample, stagesRecorded, objectionsResolved, objectionsTotal int) (int, Breakdown) {
	b := Breakdown{
		TalkListen:          TalkListenScore(actualRatio, targetRatio),
		SentimentTrend:      SentimentTrendScore(samples),
		StageCompletion:     StageCompletionScore(stagesRecorded),
		ObjectionResolution: ObjectionResolutionScore(objectionsResolved, objectionsTotal),
	}
	return Composite(b), b
}
