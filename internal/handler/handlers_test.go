package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"

	"github.com/dialwise/dialwise/internal/models"
	"github.com/dialwise/dialwise/pkg/cache"
	"github.com/dialwise/dialwise/pkg/config"
	"github.com/dialwise/dialwise/pkg/events"
	"github.com/dialwise/dialwise/pkg/response"
)

func setupTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	silentLogger := glog.New(
		log.New(io.Discard, "", log.LstdFlags),
		glog.Config{LogLevel: glog.Silent, IgnoreRecordNotFoundError: true},
	)
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: silentLogger})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.CallSession{},
		&models.LeadQualification{},
		&models.SalesAnalytics{},
		&models.SalesScript{},
		&models.ObjectionHandler{},
		&models.ConfigEntry{},
	))

	config.GlobalConfig = &config.Config{
		APIPrefix:          "/api",
		DBDriver:           "sqlite",
		StuckCallThreshold: time.Hour,
	}

	cache.Flush()

	engine := gin.New()
	NewHandlers(db).Register(engine)
	return engine, db
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, payload interface{}) (*httptest.ResponseRecorder, response.Body) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var envelope response.Body
	_ = json.Unmarshal(w.Body.Bytes(), &envelope)
	return w, envelope
}

func TestCallEvent_StartIsIdempotent(t *testing.T) {
	engine, db := setupTestRouter(t)

	payload := gin.H{
		"type":      events.CallStarted,
		"sessionId": "sess-1",
		"direction": models.DirectionOutbound,
		"caller":    "+15550001",
		"receiver":  "+15550002",
	}
	w, envelope := doJSON(t, engine, http.MethodPost, "/api/calls/events", payload)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, envelope.Success)
	assert.Equal(t, "call started", envelope.Message)

	// duplicate start keeps the existing session and still succeeds
	w, envelope = doJSON(t, engine, http.MethodPost, "/api/calls/events", payload)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "call already started", envelope.Message)

	var count int64
	require.NoError(t, db.Model(&models.CallSession{}).Where("session_id = ?", "sess-1").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCallEvent_EndAndDetail(t *testing.T) {
	engine, _ := setupTestRouter(t)

	doJSON(t, engine, http.MethodPost, "/api/calls/events", gin.H{
		"type": events.CallStarted, "sessionId": "sess-2",
	})
	w, envelope := doJSON(t, engine, http.MethodPost, "/api/calls/events", gin.H{
		"type": events.CallEnded, "sessionId": "sess-2", "status": "success",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "call ended", envelope.Message)

	w, _ = doJSON(t, engine, http.MethodGet, "/api/calls/sess-2", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// ended call no longer shows as active
	_, envelope = doJSON(t, engine, http.MethodGet, "/api/calls/active", nil)
	data := envelope.Data.(map[string]interface{})
	assert.EqualValues(t, 0, data["count"])
}

func TestCallEvent_EngineTimestampsMergeOnPresence(t *testing.T) {
	engine, db := setupTestRouter(t)

	startedAt := time.Now().Add(-15 * time.Minute).Truncate(time.Second)
	w, _ := doJSON(t, engine, http.MethodPost, "/api/calls/events", gin.H{
		"type":      events.CallStarted,
		"sessionId": "sess-ts",
		"startedAt": startedAt.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, w.Code)

	// delayed end event carries the engine's own end time
	endedAt := startedAt.Add(2 * time.Minute)
	w, _ = doJSON(t, engine, http.MethodPost, "/api/calls/events", gin.H{
		"type":      events.CallEnded,
		"sessionId": "sess-ts",
		"status":    "success",
		"endedAt":   endedAt.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, w.Code)

	session, err := models.GetCallSession(db, "sess-ts")
	require.NoError(t, err)
	assert.WithinDuration(t, startedAt, session.StartedAt, time.Second)
	require.NotNil(t, session.EndedAt)
	assert.WithinDuration(t, endedAt, *session.EndedAt, time.Second)
	assert.EqualValues(t, 120, session.DurationSec)
}

func TestCallEvent_EndRejectsNonTerminalStatus(t *testing.T) {
	engine, _ := setupTestRouter(t)

	doJSON(t, engine, http.MethodPost, "/api/calls/events", gin.H{
		"type": events.CallStarted, "sessionId": "sess-3",
	})
	w, envelope := doJSON(t, engine, http.MethodPost, "/api/calls/events", gin.H{
		"type": events.CallEnded, "sessionId": "sess-3", "status": "in_progress",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, envelope.Success)
}

func TestCallEvent_UnknownType(t *testing.T) {
	engine, _ := setupTestRouter(t)
	w, _ := doJSON(t, engine, http.MethodPost, "/api/calls/events", gin.H{
		"type": "call.rebooted", "sessionId": "sess-4",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTerminateCall(t *testing.T) {
	engine, db := setupTestRouter(t)

	doJSON(t, engine, http.MethodPost, "/api/calls/events", gin.H{
		"type": events.CallStarted, "sessionId": "sess-5",
	})
	w, _ := doJSON(t, engine, http.MethodPost, "/api/calls/sess-5/terminate", gin.H{"operator": "alex"})
	assert.Equal(t, http.StatusOK, w.Code)

	session, err := models.GetCallSession(db, "sess-5")
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusFailed, session.Status)

	// terminating again is a no-op success
	w, _ = doJSON(t, engine, http.MethodPost, "/api/calls/sess-5/terminate", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, engine, http.MethodPost, "/api/calls/missing/terminate", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQualificationRoundTrip(t *testing.T) {
	engine, _ := setupTestRouter(t)

	w, envelope := doJSON(t, engine, http.MethodPost, "/api/qualification", gin.H{
		"sessionId": "sess-6", "budget": 8, "need": 9,
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := envelope.Data.(map[string]interface{})
	assert.EqualValues(t, 17, data["score"])
	assert.Equal(t, string(models.LevelLow), data["level"])

	w, _ = doJSON(t, engine, http.MethodGet, "/api/qualification/sess-6", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// out-of-range dimension rejected before any write
	w, _ = doJSON(t, engine, http.MethodPost, "/api/qualification", gin.H{
		"sessionId": "sess-6", "budget": 11,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClassifyObjection(t *testing.T) {
	engine, db := setupTestRouter(t)

	require.NoError(t, db.Create(&models.ObjectionHandler{
		Type: "price", Language: "en", Response: "Let me show you the value.",
		Priority: 5, Active: true,
	}).Error)

	_, envelope := doJSON(t, engine, http.MethodPost, "/api/objections/classify", gin.H{
		"utterance": "it's too expensive for me", "language": "en", "includeHandlers": true,
	})
	data := envelope.Data.(map[string]interface{})
	matched := data["matchedTypes"].([]interface{})
	require.Len(t, matched, 1)
	assert.Equal(t, "price", matched[0])
	assert.Contains(t, data["handlers"].(map[string]interface{}), "price")
}

func TestSelectScript_NotFoundWhenNothingEligible(t *testing.T) {
	engine, _ := setupTestRouter(t)
	w, _ := doJSON(t, engine, http.MethodPost, "/api/scripts/select", gin.H{
		"productId": 1, "stage": "presentation", "language": "en",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUsageFeedback_CumulativeRate(t *testing.T) {
	engine, db := setupTestRouter(t)

	script := models.SalesScript{
		ProductID: 1, Name: "pitch", Stage: models.StagePresentation,
		Language: "en", Content: "Hello {{name}}", Priority: 5, Active: true,
	}
	require.NoError(t, db.Create(&script).Error)
	require.NoError(t, db.Model(&script).Updates(map[string]interface{}{
		"success_rate": 50, "usage_count": 1,
	}).Error)

	_, envelope := doJSON(t, engine, http.MethodPost, "/api/usage/feedback", gin.H{
		"kind": "script", "id": script.ID, "success": true,
	})
	data := envelope.Data.(map[string]interface{})
	assert.EqualValues(t, 2, data["usageCount"])
	assert.EqualValues(t, 75, data["successRate"])
}

func TestAnalyticsEndpoints(t *testing.T) {
	engine, db := setupTestRouter(t)

	_, err := models.UpsertAnalytics(db, "sess-7", models.AnalyticsUpdate{
		Stage: stagep(models.StagePresentation),
	})
	require.NoError(t, err)

	for _, path := range []string{
		"/api/analytics/funnel",
		"/api/analytics/objections",
		"/api/analytics/techniques",
		"/api/analytics/qualification",
		"/api/analytics/quality",
		"/api/analytics/live",
		"/api/analytics/summary",
	} {
		w, envelope := doJSON(t, engine, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.True(t, envelope.Success, path)
	}

	w, _ := doJSON(t, engine, http.MethodGet, "/api/analytics/funnel?from=not-a-date", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthCheck(t *testing.T) {
	engine, _ := setupTestRouter(t)
	w, _ := doJSON(t, engine, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func stagep(s models.ConversationStage) *models.ConversationStage { return &s }
