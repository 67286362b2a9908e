package task

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dialwise/dialwise/internal/models"
	"github.com/dialwise/dialwise/pkg/config"
	"github.com/dialwise/dialwise/pkg/logger"
)

// StartStuckCallSweeper runs the timeout reclamation sweep on the configured
// cron schedule. Active-list reads reclaim on demand as well; the sweep makes
// sure abandoned sessions expire even when nobody is watching the dashboard.
func StartStuckCallSweeper(db *gorm.DB) {
	threshold := config.GlobalConfig.StuckCallThreshold
	schedule := config.GlobalConfig.StuckSweepSchedule

	// catch sessions left over from a previous run
	sweepStuckCalls(db, threshold)

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		sweepStuckCalls(db, threshold)
	})
	if err != nil {
		logger.Error("failed to add stuck call sweeper cron job", zap.Error(err))
		return
	}
	c.Start()

	logger.Info("stuck call sweeper started",
		zap.String("schedule", schedule),
		zap.Duration("threshold", threshold))
}

func sweepStuckCalls(db *gorm.DB, threshold time.Duration) {
	reclaimed, err := models.ReclaimStuck(db, threshold)
	if err != nil {
		logger.Error("stuck call sweep failed", zap.Error(err))
		return
	}
	if reclaimed > 0 {
		logger.Info("stuck calls reclaimed", zap.Int("count", reclaimed))
	}
}
