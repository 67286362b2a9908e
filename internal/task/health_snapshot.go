package task

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dialwise/dialwise/internal/models"
	"github.com/dialwise/dialwise/pkg/config"
	"github.com/dialwise/dialwise/pkg/events"
	"github.com/dialwise/dialwise/pkg/logger"
	"github.com/dialwise/dialwise/pkg/metrics"
)

// StartHealthSnapshots periodically publishes a system.health event with the
// current call counts. Wallboard subscribers render these instead of
// following individual lifecycle events. Blocks; run in a goroutine.
func StartHealthSnapshots(db *gorm.DB) {
	interval := config.GlobalConfig.HealthSnapshotEvery
	threshold := config.GlobalConfig.StuckCallThreshold

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		publishHealthSnapshot(db, threshold)
	}
}

func publishHealthSnapshot(db *gorm.DB, threshold time.Duration) {
	active, err := models.ActiveSessions(db, threshold)
	if err != nil {
		logger.Error("health snapshot read failed", zap.Error(err))
		return
	}
	recent, err := models.CountSessionsSince(db, time.Now().Add(-24*time.Hour))
	if err != nil {
		logger.Error("health snapshot count failed", zap.Error(err))
		return
	}

	metrics.SetActiveCalls(int64(len(active)))
	events.Publish(events.SystemHealth, "", map[string]interface{}{
		"activeCalls":  len(active),
		"callsLast24h": recent,
		"timestamp":    time.Now().UTC(),
	})
}
