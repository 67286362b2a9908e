package bootstrap

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"

	"github.com/dialwise/dialwise/internal/models"
	"github.com/dialwise/dialwise/pkg/config"
	"github.com/dialwise/dialwise/pkg/logger"
)

// Options controls database initialization behavior.
type Options struct {
	// AutoMigrate whether to run entity migration (default true)
	AutoMigrate bool
	// Seed whether to write default handlers and scripts when tables are empty
	Seed bool
}

// SetupDatabase is the unified entry: connect, migrate entities and seed the
// default objection handlers and scripts.
func SetupDatabase(logWriter io.Writer, opts *Options) (*gorm.DB, error) {
	if opts == nil {
		opts = &Options{AutoMigrate: true, Seed: true}
	}

	db, err := initDBConn(logWriter)
	if err != nil {
		logger.Error("init database failed", zap.Error(err))
		return nil, err
	}

	if opts.AutoMigrate {
		if err := RunMigrations(db); err != nil {
			logger.Error("migration failed", zap.Error(err))
			return nil, err
		}
		logger.Info("migration success",
			zap.String("database", config.GlobalConfig.DBDriver),
		)
	}

	if opts.Seed {
		if err := SeedDefaults(db); err != nil {
			logger.Error("seed failed", zap.Error(err))
			return nil, err
		}
	}

	return db, nil
}

func initDBConn(logWriter io.Writer) (*gorm.DB, error) {
	driver := config.GlobalConfig.DBDriver
	dsn := config.GlobalConfig.DSN

	gormLogger := glog.New(
		log.New(logWriter, "\r\n", log.LstdFlags),
		glog.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  glog.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
	cfg := &gorm.Config{Logger: gormLogger}

	switch driver {
	case "sqlite", "":
		return gorm.Open(sqlite.Open(dsn), cfg)
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// RunMigrations migrates every call-domain entity.
func RunMigrations(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.CallSession{},
		&models.LeadQualification{},
		&models.SalesAnalytics{},
		&models.SalesScript{},
		&models.ObjectionHandler{},
		&models.ConfigEntry{},
	)
}
