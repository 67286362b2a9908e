package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dialwise/dialwise/pkg/events"
)

func TestCallSession_TableName(t *testing.T) {
	var session CallSession
	assert.Equal(t, "call_sessions", session.TableName())
}

func TestStartCall_CreatesInProgress(t *testing.T) {
	db := setupCallTestDB(t)

	session, created, err := StartCall(db, "call-1", StartCallInput{Direction: DirectionOutbound, Caller: "+14155550100", Receiver: "+918800550101", Language: "en"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, CallStatusInProgress, session.Status)
	assert.Nil(t, session.EndedAt)
	assert.False(t, session.StartedAt.IsZero())
}

func TestStartCall_IdempotentOnDuplicate(t *testing.T) {
	db := setupCallTestDB(t)

	first, created, err := StartCall(db, "call-1", StartCallInput{Direction: DirectionOutbound, Caller: "+14155550100", Receiver: "+918800550101", Language: "en"})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := StartCall(db, "call-1", StartCallInput{Direction: DirectionInbound, Caller: "someone-else", Receiver: "other", Language: "hi"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, DirectionOutbound, second.Direction) // existing record untouched

	var count int64
	require.NoError(t, db.Model(&CallSession{}).Where("session_id = ?", "call-1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestStartCall_RequiresSessionID(t *testing.T) {
	db := setupCallTestDB(t)

	_, _, err := StartCall(db, "", StartCallInput{Direction: DirectionOutbound, Caller: "a", Receiver: "b", Language: "en"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStartCall_HonorsEngineTimestamp(t *testing.T) {
	db := setupCallTestDB(t)

	startedAt := time.Now().Add(-10 * time.Minute).Truncate(time.Second)
	session, created, err := StartCall(db, "call-1", StartCallInput{
		Direction: DirectionOutbound,
		StartedAt: &startedAt,
	})
	require.NoError(t, err)
	require.True(t, created)
	assert.WithinDuration(t, startedAt, session.StartedAt, time.Second)
}

func TestEndCall_HonorsEngineTimestamps(t *testing.T) {
	db := setupCallTestDB(t)

	startedAt := time.Now().Add(-20 * time.Minute).Truncate(time.Second)
	mustStartAt(t, db, "call-1", startedAt)

	// batched delivery: the end event arrives late but carries its own time
	endedAt := startedAt.Add(90 * time.Second)
	session, err := EndCall(db, "call-1", EndCallInput{Status: CallStatusSuccess, EndedAt: &endedAt})
	require.NoError(t, err)
	require.NotNil(t, session.EndedAt)
	assert.WithinDuration(t, endedAt, *session.EndedAt, time.Second)
	assert.Equal(t, int64(90), session.DurationSec)
}

func TestEndCall_ClampsNegativeDuration(t *testing.T) {
	db := setupCallTestDB(t)

	startedAt := time.Now()
	mustStartAt(t, db, "call-1", startedAt)

	endedAt := startedAt.Add(-time.Minute)
	session, err := EndCall(db, "call-1", EndCallInput{Status: CallStatusFailed, EndedAt: &endedAt})
	require.NoError(t, err)
	assert.EqualValues(t, 0, session.DurationSec)
}

func TestAppendTranscript_PreservesOrder(t *testing.T) {
	db := setupCallTestDB(t)
	mustStart(t, db, "call-1")

	require.NoError(t, AppendTranscript(db, "call-1", "Agent: hello. "))
	require.NoError(t, AppendTranscript(db, "call-1", "Customer: hi."))

	session, err := GetCallSession(db, "call-1")
	require.NoError(t, err)
	assert.Equal(t, "Agent: hello. Customer: hi.", session.Transcript)
}

func TestAppendTranscript_MissingSession(t *testing.T) {
	db := setupCallTestDB(t)
	assert.ErrorIs(t, AppendTranscript(db, "nope", "x"), gorm.ErrRecordNotFound)
}

func TestAppendTranscript_PublishesOnlyCommittedWrites(t *testing.T) {
	db := setupCallTestDB(t)
	mustStart(t, db, "transcript-commit-ok")

	got := make(chan events.Event, 4)
	events.GetBus().Subscribe(events.TranscriptUpdated, func(ev events.Event) error {
		switch ev.SessionID {
		case "transcript-commit-ok", "transcript-commit-missing":
			got <- ev
		}
		return nil
	})

	// a failed write must not have notified anyone
	require.Error(t, AppendTranscript(db, "transcript-commit-missing", "ghost"))
	require.NoError(t, AppendTranscript(db, "transcript-commit-ok", "Agent: hello."))

	select {
	case ev := <-got:
		assert.Equal(t, "transcript-commit-ok", ev.SessionID)
	case <-time.After(time.Second):
		t.Fatal("expected a transcript event for the committed append")
	}
	select {
	case ev := <-got:
		t.Fatalf("unexpected extra event for session %q", ev.SessionID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRecordInterruption_Increments(t *testing.T) {
	db := setupCallTestDB(t)
	mustStart(t, db, "call-1")

	require.NoError(t, RecordInterruption(db, "call-1"))
	require.NoError(t, RecordInterruption(db, "call-1"))

	session, err := GetCallSession(db, "call-1")
	require.NoError(t, err)
	assert.Equal(t, 2, session.InterruptionCount)
}

func TestEndCall_SetsTerminalStateAndDuration(t *testing.T) {
	db := setupCallTestDB(t)
	session := mustStart(t, db, "call-1")

	// backdate the start so duration is non-zero
	started := time.Now().Add(-90 * time.Second)
	require.NoError(t, db.Model(session).Update("started_at", started).Error)

	satisfaction := 4.5
	ended, err := EndCall(db, "call-1", EndCallInput{
		Status:       CallStatusSuccess,
		AudioRef:     "s3://recordings/call-1.wav",
		Satisfaction: &satisfaction,
	})
	require.NoError(t, err)
	require.NotNil(t, ended)
	assert.Equal(t, CallStatusSuccess, ended.Status)
	require.NotNil(t, ended.EndedAt)
	assert.Equal(t, int64(ended.EndedAt.Sub(started).Seconds()), ended.DurationSec)
	assert.GreaterOrEqual(t, ended.DurationSec, int64(90))
}

func TestEndCall_NoOpWhenMissingOrTerminal(t *testing.T) {
	db := setupCallTestDB(t)

	// missing session: silent no-op
	ended, err := EndCall(db, "ghost", EndCallInput{Status: CallStatusFailed})
	require.NoError(t, err)
	assert.Nil(t, ended)

	// terminal session: absorbing, later transitions ignored
	mustStart(t, db, "call-1")
	_, err = EndCall(db, "call-1", EndCallInput{Status: CallStatusSuccess})
	require.NoError(t, err)

	again, err := EndCall(db, "call-1", EndCallInput{Status: CallStatusMissed})
	require.NoError(t, err)
	assert.Equal(t, CallStatusSuccess, again.Status)
}

func TestEndCall_RejectsNonTerminalStatus(t *testing.T) {
	db := setupCallTestDB(t)
	mustStart(t, db, "call-1")

	_, err := EndCall(db, "call-1", EndCallInput{Status: CallStatusInProgress})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTerminate_FromInProgress(t *testing.T) {
	db := setupCallTestDB(t)
	mustStart(t, db, "call-1")

	session, err := Terminate(db, "call-1", "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, CallStatusFailed, session.Status)
	require.NotNil(t, session.EndedAt)
	assert.Equal(t, "ops@example.com", session.Metadata["terminated_by"])
}

func TestTerminate_IdempotentOnTerminal(t *testing.T) {
	db := setupCallTestDB(t)
	mustStart(t, db, "call-1")

	_, err := EndCall(db, "call-1", EndCallInput{Status: CallStatusSuccess})
	require.NoError(t, err)

	session, err := Terminate(db, "call-1", "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, CallStatusSuccess, session.Status)
}

func TestTerminate_MissingSession(t *testing.T) {
	db := setupCallTestDB(t)
	_, err := Terminate(db, "ghost", "ops@example.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestReclaimStuck_TransitionsOldSessions(t *testing.T) {
	db := setupCallTestDB(t)
	stale := mustStart(t, db, "stale")
	fresh := mustStart(t, db, "fresh")

	require.NoError(t, db.Model(stale).Update("started_at", time.Now().Add(-2*time.Hour)).Error)

	n, err := ReclaimStuck(db, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reclaimed, err := GetCallSession(db, "stale")
	require.NoError(t, err)
	assert.Equal(t, CallStatusFailed, reclaimed.Status)
	assert.Equal(t, ReasonStuckTimeout, reclaimed.Metadata["reason"])
	require.NotNil(t, reclaimed.EndedAt)

	untouched, err := GetCallSession(db, fresh.SessionID)
	require.NoError(t, err)
	assert.Equal(t, CallStatusInProgress, untouched.Status)
}

func TestActiveSessions_ReclaimsBeforeListing(t *testing.T) {
	db := setupCallTestDB(t)
	stale := mustStart(t, db, "stale")
	mustStart(t, db, "fresh")

	require.NoError(t, db.Model(stale).Update("started_at", time.Now().Add(-2*time.Hour)).Error)

	active, err := ActiveSessions(db, time.Hour)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "fresh", active[0].SessionID)

	// the stale session was reclaimed as a side effect of the read
	reclaimed, err := GetCallSession(db, "stale")
	require.NoError(t, err)
	assert.Equal(t, CallStatusFailed, reclaimed.Status)
}

func TestUpdateCallSession_MergesOnPresent(t *testing.T) {
	db := setupCallTestDB(t)
	mustStart(t, db, "call-1")

	updated, err := UpdateCallSession(db, "call-1", UpdateCallInput{
		Receiver: "+918800550199",
		Metadata: Metadata{"campaign": "diwali"},
	})
	require.NoError(t, err)
	assert.Equal(t, "+918800550199", updated.Receiver)
	assert.Equal(t, "+14155550100", updated.Caller) // untouched
	assert.Equal(t, "diwali", updated.Metadata["campaign"])
}

func TestPurgeCallSession_RemovesAttachedRecords(t *testing.T) {
	db := setupCallTestDB(t)
	mustStart(t, db, "call-1")

	ten := 10
	_, err := UpsertQualification(db, "call-1", QualificationUpdate{Budget: &ten})
	require.NoError(t, err)
	_, err = UpsertAnalytics(db, "call-1", AnalyticsUpdate{})
	require.NoError(t, err)

	require.NoError(t, PurgeCallSession(db, "call-1"))

	_, err = GetCallSession(db, "call-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = GetQualification(db, "call-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = GetAnalytics(db, "call-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func mustStart(t *testing.T, db *gorm.DB, id string) *CallSession {
	t.Helper()
	session, _, err := StartCall(db, id, StartCallInput{Direction: DirectionOutbound, Caller: "+14155550100", Receiver: "+918800550101", Language: "en"})
	require.NoError(t, err)
	return session
}

func mustStartAt(t *testing.T, db *gorm.DB, id string, startedAt time.Time) *CallSession {
	t.Helper()
	session, _, err := StartCall(db, id, StartCallInput{Direction: DirectionOutbound, StartedAt: &startedAt})
	require.NoError(t, err)
	return session
}
