package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int         { return &v }
func strp(v string) *string   { return &v }
func f64p(v float64) *float64 { return &v }

func TestLevelForScore_Boundaries(t *testing.T) {
	assert.Equal(t, LevelHigh, LevelForScore(30))
	assert.Equal(t, LevelMedium, LevelForScore(29))
	assert.Equal(t, LevelMedium, LevelForScore(20))
	assert.Equal(t, LevelLow, LevelForScore(19))
	assert.Equal(t, LevelLow, LevelForScore(10))
	assert.Equal(t, LevelUnqualified, LevelForScore(9))
	assert.Equal(t, LevelUnqualified, LevelForScore(0))
}

func TestUpsertQualification_CreatesLazily(t *testing.T) {
	db := setupCallTestDB(t)

	q, err := UpsertQualification(db, "call-1", QualificationUpdate{
		Budget: intp(7),
		Need:   intp(8),
	})
	require.NoError(t, err)
	assert.Equal(t, 7, q.Budget)
	assert.Equal(t, 8, q.Need)
	assert.Equal(t, 0, q.Authority)
	assert.Equal(t, 15, q.Score)
	assert.Equal(t, LevelLow, q.Level)
	assert.Equal(t, StageGreeting, q.Stage)
}

func TestUpsertQualification_PartialUpdateLeavesOthersUntouched(t *testing.T) {
	db := setupCallTestDB(t)

	_, err := UpsertQualification(db, "call-1", QualificationUpdate{
		Budget: intp(5), Authority: intp(5), Need: intp(5), Timeline: intp(5),
	})
	require.NoError(t, err)

	q, err := UpsertQualification(db, "call-1", QualificationUpdate{
		Timeline:      intp(9),
		TimelineNotes: strp("decision expected this week"),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, q.Budget)
	assert.Equal(t, 5, q.Authority)
	assert.Equal(t, 5, q.Need)
	assert.Equal(t, 9, q.Timeline)
	assert.Equal(t, 24, q.Score)
	assert.Equal(t, LevelMedium, q.Level)
	assert.Equal(t, "decision expected this week", q.TimelineNotes)
}

func TestUpsertQualification_ScoreAlwaysDerived(t *testing.T) {
	db := setupCallTestDB(t)

	q, err := UpsertQualification(db, "call-1", QualificationUpdate{
		Budget: intp(10), Authority: intp(10), Need: intp(10), Timeline: intp(10),
	})
	require.NoError(t, err)
	assert.Equal(t, 40, q.Score)
	assert.Equal(t, LevelHigh, q.Level)

	// a direct write cannot leave a stale derived score behind
	q.Score = 999
	require.NoError(t, db.Save(q).Error)
	fetched, err := GetQualification(db, "call-1")
	require.NoError(t, err)
	assert.Equal(t, 40, fetched.Score)
}

func TestUpsertQualification_RejectsOutOfRange(t *testing.T) {
	db := setupCallTestDB(t)

	_, err := UpsertQualification(db, "call-1", QualificationUpdate{Budget: intp(11)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = UpsertQualification(db, "call-1", QualificationUpdate{Need: intp(-1)})
	assert.ErrorIs(t, err, ErrValidation)

	// rejected write committed nothing
	_, err = GetQualification(db, "call-1")
	assert.Error(t, err)
}

func TestUpsertQualification_RejectsUnknownStage(t *testing.T) {
	db := setupCallTestDB(t)

	bogus := ConversationStage("haggling")
	_, err := UpsertQualification(db, "call-1", QualificationUpdate{Stage: &bogus})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetQualificationStats(t *testing.T) {
	db := setupCallTestDB(t)

	seed := func(id string, budget, authority, need, timeline int) {
		_, err := UpsertQualification(db, id, QualificationUpdate{
			Budget: intp(budget), Authority: intp(authority),
			Need: intp(need), Timeline: intp(timeline),
		})
		require.NoError(t, err)
	}
	seed("call-1", 10, 10, 10, 5) // 35: high
	seed("call-2", 5, 5, 5, 5)    // 20: medium
	seed("call-3", 2, 2, 2, 2)    // 8: unqualified

	converted := OutcomeConverted
	_, err := UpsertAnalytics(db, "call-1", AnalyticsUpdate{Outcome: &converted})
	require.NoError(t, err)

	stats, err := GetQualificationStats(db, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.QualifiedCount)
	assert.Equal(t, int64(1), stats.HighCount)
	assert.Equal(t, int64(1), stats.ConvertedCount)
	assert.InDelta(t, 21.0, stats.AverageScore, 0.01)
}

func TestGetQualificationStats_DateRange(t *testing.T) {
	db := setupCallTestDB(t)

	_, err := UpsertQualification(db, "call-1", QualificationUpdate{Budget: intp(5)})
	require.NoError(t, err)

	past := time.Now().Add(-48 * time.Hour)
	stats, err := GetQualificationStats(db, nil, &past)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total)

	stats, err = GetQualificationStats(db, &past, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
}
